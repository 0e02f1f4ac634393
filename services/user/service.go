package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email address is already registered")
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

func (s *Service) Create(username, email, passwordHash string) (*User, error) {
	u := &User{
		Username: username,
		Email:    email,
		Password: passwordHash,
	}

	// The unique index on email decides: a pre-check would let two
	// concurrent signups both pass and surface the loser as a store error.
	if err := s.db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		if s.logger != nil {
			s.logger.Error("failed to create user", zap.Error(err), zap.String("email", email))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("user created", zap.Uint("user_id", u.ID), zap.String("email", email))
	}
	return u, nil
}

func (s *Service) FindByEmail(email string) (*User, error) {
	var u User
	if err := s.db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	return &u, nil
}

func (s *Service) FindByID(id uint) (*User, error) {
	var u User
	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user by id: %w", err)
	}
	return &u, nil
}

func (s *Service) UpdatePassword(userID uint, passwordHash string) error {
	result := s.db.Model(&User{}).Where("id = ?", userID).Update("password", passwordHash)
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to update password", zap.Error(result.Error), zap.Uint("user_id", userID))
		}
		return fmt.Errorf("failed to update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	if s.logger != nil {
		s.logger.Info("password updated", zap.Uint("user_id", userID))
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at. The stamp is written only for
// still-unverified rows so the timestamp is set exactly once.
func (s *Service) MarkEmailVerified(userID uint) error {
	result := s.db.Model(&User{}).
		Where("id = ? AND email_verified_at IS NULL", userID).
		Update("email_verified_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark email verified: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("email verified", zap.Uint("user_id", userID))
	}
	return nil
}
