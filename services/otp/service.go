package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCodeAlreadyPending means an unexpired code already exists for the
	// (user, purpose) pair. Distinct from expiry so callers cannot refresh
	// their window by re-requesting.
	ErrCodeAlreadyPending = errors.New("a code has already been sent and has not expired yet")

	// ErrCodeInvalidOrExpired covers both "no such code" and "code expired".
	// The two cases are deliberately indistinguishable to the caller.
	ErrCodeInvalidOrExpired = errors.New("invalid or expired code")

	ErrCodeGenerationFailed = errors.New("failed to generate code")
)

// issueAttempts bounds the re-draws when a generated code collides with
// another user's live code on the (purpose, code) index.
const issueAttempts = 3

type Service struct {
	db       *gorm.DB
	config   *config.OTPConfig
	logger   *logging.Service
	generate func() (string, error)
}

func NewService(db *gorm.DB, cfg *config.OTPConfig, logger *logging.Service) *Service {
	return &Service{
		db:       db,
		config:   cfg,
		logger:   logger,
		generate: generateCode,
	}
}

func (s *Service) expiry(purpose Purpose) time.Duration {
	if purpose == PurposeResetPassword {
		return s.config.ResetExpiry
	}
	return s.config.VerificationExpiry
}

// Issue creates and persists a fresh code for the user. It fails with
// ErrCodeAlreadyPending while an unexpired code for the same purpose exists.
// An expired leftover row is replaced in place; the delete is guarded by
// expires_at so it can never remove a code another request just issued.
func (s *Service) Issue(userID uint, purpose Purpose) (*OneTimeCode, error) {
	now := time.Now()

	var existing OneTimeCode
	err := s.db.Where("user_id = ? AND purpose = ?", userID, purpose).First(&existing).Error
	switch {
	case err == nil:
		if !existing.Expired(now) {
			if s.logger != nil {
				s.logger.Warn("code issuance rejected, unexpired code pending",
					zap.Uint("user_id", userID),
					zap.String("purpose", string(purpose)))
			}
			return nil, ErrCodeAlreadyPending
		}
		if err := s.db.Where("id = ? AND expires_at <= ?", existing.ID, now).Delete(&OneTimeCode{}).Error; err != nil {
			return nil, fmt.Errorf("failed to clear expired code: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// nothing pending
	default:
		return nil, fmt.Errorf("failed to check pending codes: %w", err)
	}

	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			if s.logger != nil {
				s.logger.Error("code generation failed", zap.Error(err))
			}
			return nil, ErrCodeGenerationFailed
		}

		record := &OneTimeCode{
			Code:      code,
			Purpose:   purpose,
			UserID:    userID,
			ExpiresAt: now.Add(s.expiry(purpose)),
		}

		err = s.db.Create(record).Error
		if err == nil {
			if s.logger != nil {
				s.logger.Info("one-time code issued",
					zap.Uint("user_id", userID),
					zap.String("purpose", string(purpose)),
					zap.Time("expires_at", record.ExpiresAt))
			}
			return record, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			if s.logger != nil {
				s.logger.Error("failed to store one-time code", zap.Error(err), zap.Uint("user_id", userID))
			}
			return nil, fmt.Errorf("failed to store one-time code: %w", err)
		}

		// Two unique indexes can reject the insert. A live code for this
		// user means a concurrent request won the race; a collision on the
		// (purpose, code) value with another user just needs a fresh draw.
		pending, perr := s.HasPending(userID, purpose)
		if perr != nil {
			return nil, perr
		}
		if pending {
			return nil, ErrCodeAlreadyPending
		}

		if s.logger != nil {
			s.logger.Warn("generated code collided with a live code, retrying",
				zap.String("purpose", string(purpose)),
				zap.Int("attempt", attempt+1))
		}
	}

	if s.logger != nil {
		s.logger.Error("code issuance exhausted retries",
			zap.Uint("user_id", userID),
			zap.String("purpose", string(purpose)))
	}
	return nil, ErrCodeGenerationFailed
}

// HasPending reports whether an unexpired code exists for the pair.
func (s *Service) HasPending(userID uint, purpose Purpose) (bool, error) {
	var count int64
	err := s.db.Model(&OneTimeCode{}).
		Where("user_id = ? AND purpose = ? AND expires_at > ?", userID, purpose, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending codes: %w", err)
	}
	return count > 0, nil
}

// Verify looks up a live code and returns its owning user ID. It does not
// consume the code. A missing code and an expired code produce the same
// error.
func (s *Service) Verify(code string, purpose Purpose) (uint, error) {
	var record OneTimeCode
	err := s.db.Where("purpose = ? AND code = ? AND expires_at > ?", purpose, code, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCodeInvalidOrExpired
		}
		return 0, fmt.Errorf("failed to look up code: %w", err)
	}
	return record.UserID, nil
}

// VerifyForUser is Verify with an ownership check. A code belonging to a
// different user is reported exactly like a nonexistent one.
func (s *Service) VerifyForUser(code string, purpose Purpose, userID uint) error {
	var record OneTimeCode
	err := s.db.Where("user_id = ? AND purpose = ? AND code = ? AND expires_at > ?", userID, purpose, code, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeInvalidOrExpired
		}
		return fmt.Errorf("failed to look up code: %w", err)
	}
	return nil
}

// Consume deletes a live code and returns its owning user ID. The guarded
// delete doubles as the mutex for mutating flows: of two concurrent callers
// presenting the same code, exactly one observes an affected row, the other
// gets ErrCodeInvalidOrExpired.
func (s *Service) Consume(code string, purpose Purpose) (uint, error) {
	userID, err := s.Verify(code, purpose)
	if err != nil {
		return 0, err
	}

	result := s.db.Where("purpose = ? AND code = ? AND expires_at > ?", purpose, code, time.Now()).
		Delete(&OneTimeCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to consume code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrCodeInvalidOrExpired
	}

	if s.logger != nil {
		s.logger.Info("one-time code consumed",
			zap.Uint("user_id", userID),
			zap.String("purpose", string(purpose)))
	}
	return userID, nil
}

// DeleteAllForUser removes every code the user owns for the purpose,
// expired or not. Idempotent.
func (s *Service) DeleteAllForUser(userID uint, purpose Purpose) error {
	result := s.db.Where("user_id = ? AND purpose = ?", userID, purpose).Delete(&OneTimeCode{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete codes: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Debug("cleared one-time codes",
			zap.Uint("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) CleanupExpired() error {
	result := s.db.Where("expires_at < ?", time.Now()).Delete(&OneTimeCode{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup expired codes", zap.Error(result.Error))
		}
		return fmt.Errorf("failed to cleanup expired codes: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("expired one-time codes cleaned up", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) StartCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("one-time code cleanup worker failed", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started one-time code cleanup worker", zap.Duration("interval", interval))
	}
}

// generateCode draws a uniformly random 6-digit decimal string, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
