package totp

import (
	"errors"
	"fmt"
	"time"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTOTPDisabled    = errors.New("TOTP is disabled")
	ErrInvalidCode     = errors.New("invalid TOTP code")
	ErrSecretExists    = errors.New("TOTP secret already exists for user")
	ErrSecretNotFound  = errors.New("TOTP secret not found for user")
	ErrCodeAlreadyUsed = errors.New("TOTP code has already been used")
)

// replayWindow bounds how long an accepted code is remembered. Codes are
// valid for at most 90 seconds with the default skew, so anything older
// cannot validate again anyway.
const replayWindow = 5 * time.Minute

type Service struct {
	config *config.TOTPConfig
	db     *gorm.DB
	logger *logging.Service
}

func NewService(cfg *config.TOTPConfig, db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		db:     db,
		logger: logger,
	}
}

func (s *Service) GenerateSecret(userID uint, accountName string) (*TOTPSecret, error) {
	if !s.config.Enabled {
		return nil, ErrTOTPDisabled
	}

	var existing TOTPSecret
	if err := s.db.Where("user_id = ?", userID).First(&existing).Error; err == nil {
		if existing.Enabled {
			return nil, ErrSecretExists
		}
		// Re-running setup before the first confirmation replaces the
		// unconfirmed secret.
		secretString, err := s.generateKey(accountName)
		if err != nil {
			return nil, err
		}
		existing.Secret = secretString
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to replace TOTP secret: %w", err)
		}
		return &existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing TOTP secret: %w", err)
	}

	secretString, err := s.generateKey(accountName)
	if err != nil {
		return nil, err
	}

	totpSecret := &TOTPSecret{
		UserID:  userID,
		Secret:  secretString,
		Enabled: false,
	}

	if err := s.db.Create(totpSecret).Error; err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("TOTP secret generated", zap.Uint("user_id", userID))
	}
	return totpSecret, nil
}

func (s *Service) generateKey(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: accountName,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("TOTP key generation failed", zap.Error(err))
		}
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), nil
}

func (s *Service) issuer() string {
	if s.config.Issuer == "" {
		return "credo"
	}
	return s.config.Issuer
}

func (s *Service) GetSecret(userID uint) (*TOTPSecret, error) {
	if !s.config.Enabled {
		return nil, ErrTOTPDisabled
	}

	var secret TOTPSecret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to retrieve TOTP secret: %w", err)
	}

	return &secret, nil
}

func (s *Service) Enable(userID uint, code string) error {
	if !s.config.Enabled {
		return ErrTOTPDisabled
	}

	secret, err := s.GetSecret(userID)
	if err != nil {
		return err
	}

	if !totp.Validate(code, secret.Secret) {
		if s.logger != nil {
			s.logger.Warn("TOTP enable rejected, invalid code", zap.Uint("user_id", userID))
		}
		return ErrInvalidCode
	}

	secret.Enabled = true
	if err := s.db.Save(secret).Error; err != nil {
		return fmt.Errorf("failed to enable TOTP: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("TOTP enabled", zap.Uint("user_id", userID))
	}
	return nil
}

func (s *Service) Disable(userID uint) error {
	if !s.config.Enabled {
		return ErrTOTPDisabled
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ?", userID).Delete(&TOTPSecret{})
		if result.Error != nil {
			return fmt.Errorf("failed to disable TOTP: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrSecretNotFound
		}

		if err := tx.Where("user_id = ?", userID).Delete(&UsedCode{}).Error; err != nil {
			return fmt.Errorf("failed to clean up used codes: %w", err)
		}

		if s.logger != nil {
			s.logger.Info("TOTP disabled", zap.Uint("user_id", userID))
		}
		return nil
	})
}

func (s *Service) ProvisioningURI(secret *TOTPSecret, accountName string) string {
	issuer := s.issuer()
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s", issuer, accountName, secret.Secret, issuer)
}

func (s *Service) IsUserTOTPEnabled(userID uint) bool {
	if !s.config.Enabled {
		return false
	}

	secret, err := s.GetSecret(userID)
	if err != nil {
		return false
	}
	return secret.Enabled
}

// VerifyUserCode validates an authenticator code and burns it for the
// replay window.
func (s *Service) VerifyUserCode(userID uint, code string) error {
	if !s.config.Enabled {
		return ErrTOTPDisabled
	}

	secret, err := s.GetSecret(userID)
	if err != nil {
		return err
	}
	if !secret.Enabled {
		return ErrSecretNotFound
	}

	if !totp.Validate(code, secret.Secret) {
		if s.logger != nil {
			s.logger.Warn("TOTP verification failed", zap.Uint("user_id", userID))
		}
		return ErrInvalidCode
	}

	cutoff := time.Now().Add(-replayWindow).Unix()
	var count int64
	err = s.db.Model(&UsedCode{}).
		Where("user_id = ? AND code = ? AND used_at > ?", userID, code, cutoff).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check used codes: %w", err)
	}
	if count > 0 {
		if s.logger != nil {
			s.logger.Warn("TOTP code replay rejected", zap.Uint("user_id", userID))
		}
		return ErrCodeAlreadyUsed
	}

	used := &UsedCode{
		UserID: userID,
		Code:   code,
		UsedAt: time.Now().Unix(),
	}
	if err := s.db.Create(used).Error; err != nil {
		return fmt.Errorf("failed to record used code: %w", err)
	}

	// opportunistic cleanup of entries past the replay window
	s.db.Where("used_at <= ?", cutoff).Delete(&UsedCode{})

	return nil
}
