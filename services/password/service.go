package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed      = errors.New("failed to hash password")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPolicyViolation wraps every policy failure so callers can
	// distinguish a weak password from an infrastructure error.
	ErrPolicyViolation = errors.New("password policy violation")
)

// Service wraps the one-way password hash. The rest of the codebase treats
// the hash as opaque and only ever calls Hash and Verify.
type Service struct {
	config *config.AuthConfig
	logger *logging.Service
}

func NewService(cfg *config.AuthConfig, logger *logging.Service) *Service {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) ValidatePolicy(password string) error {
	if len(password) < s.config.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPolicyViolation, s.config.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	var missing []string

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if s.config.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if s.config.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if s.config.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if s.config.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		if s.logger != nil {
			s.logger.Warn("password policy check failed", zap.Strings("missing_requirements", missing))
		}
		return fmt.Errorf("%w: password must contain at least %s", ErrPolicyViolation, strings.Join(missing, ", "))
	}

	return nil
}

func (s *Service) Hash(password string) (string, error) {
	if err := s.ValidatePolicy(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrHashingFailed
	}

	return string(hash), nil
}

func (s *Service) Verify(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
