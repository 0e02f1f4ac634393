package refreshtoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenExpired          = errors.New("refresh token expired")
	ErrTokenGenerationFailed = errors.New("failed to generate secure token")
)

type AccessTokenIssuer interface {
	GenerateToken(userID uint) (string, error)
}

type Service struct {
	db     *gorm.DB
	config *config.RefreshTokenConfig
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.RefreshTokenConfig, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

func (s *Service) Generate(userID uint, deviceInfo string) (*TokenData, error) {
	token, err := s.generateSecureToken()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate refresh token", zap.Error(err))
		}
		return nil, ErrTokenGenerationFailed
	}

	now := time.Now()
	refreshToken := RefreshToken{
		UserID:     userID,
		TokenHash:  s.hashToken(token),
		ExpiresAt:  now.Add(s.config.Expiry),
		CreatedAt:  now,
		LastUsed:   now,
		DeviceInfo: deviceInfo,
	}

	if err := s.db.Create(&refreshToken).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh token", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("refresh token issued",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", refreshToken.ID),
			zap.Time("expires_at", refreshToken.ExpiresAt))
	}

	return &TokenData{
		Token:     token,
		TokenID:   refreshToken.ID,
		ExpiresAt: refreshToken.ExpiresAt,
	}, nil
}

func (s *Service) Validate(tokenString string) (*RefreshToken, error) {
	var refreshToken RefreshToken
	err := s.db.Where("token_hash = ?", s.hashToken(tokenString)).First(&refreshToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		if s.logger != nil {
			s.logger.Warn("expired refresh token presented",
				zap.Uint("token_id", refreshToken.ID),
				zap.Uint("user_id", refreshToken.UserID))
		}
		s.db.Delete(&refreshToken)
		return nil, ErrTokenExpired
	}

	// Presenting a live token counts as use; ListForUser orders on this.
	if err := s.UpdateLastUsed(refreshToken.ID); err == nil {
		refreshToken.LastUsed = time.Now()
	}

	return &refreshToken, nil
}

// ValidateAndRotate exchanges a valid refresh token for a fresh pair. The
// old token is deleted so a replayed token fails validation.
func (s *Service) ValidateAndRotate(tokenString string, issuer AccessTokenIssuer) (*RotationResult, error) {
	oldToken, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	accessToken, err := issuer.GenerateToken(oldToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	newToken, err := s.Generate(oldToken.UserID, oldToken.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to generate replacement refresh token: %w", err)
	}

	if err := s.db.Delete(oldToken).Error; err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to delete rotated refresh token",
				zap.Uint("token_id", oldToken.ID),
				zap.Error(err))
		}
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.Uint("user_id", oldToken.UserID),
			zap.Uint("old_token_id", oldToken.ID),
			zap.Uint("new_token_id", newToken.TokenID))
	}

	return &RotationResult{
		AccessToken:  accessToken,
		RefreshToken: newToken.Token,
		ExpiresAt:    newToken.ExpiresAt,
	}, nil
}

func (s *Service) Revoke(tokenString string) error {
	result := s.db.Where("token_hash = ?", s.hashToken(tokenString)).Delete(&RefreshToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("refresh token revoked", zap.Int64("affected_rows", result.RowsAffected))
	}
	return nil
}

// RevokeAllForUser is the cascade target of a password reset: every session
// the user owns is terminated. Delete-by-user is idempotent, so a retried
// cascade is safe.
func (s *Service) RevokeAllForUser(userID uint) error {
	result := s.db.Where("user_id = ?", userID).Delete(&RefreshToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke user refresh tokens",
				zap.Error(result.Error),
				zap.Uint("user_id", userID))
		}
		return fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("all refresh tokens revoked for user",
			zap.Uint("user_id", userID),
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) ListForUser(userID uint) ([]RefreshToken, error) {
	var tokens []RefreshToken
	err := s.db.Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Order("last_used DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	return tokens, nil
}

func (s *Service) UpdateLastUsed(tokenID uint) error {
	err := s.db.Model(&RefreshToken{}).
		Where("id = ?", tokenID).
		Update("last_used", time.Now()).Error

	if err != nil && s.logger != nil {
		s.logger.Warn("failed to update refresh token last used time",
			zap.Error(err),
			zap.Uint("token_id", tokenID))
	}

	return err
}

func (s *Service) CleanupExpired() error {
	result := s.db.Where("expires_at < ?", time.Now()).Delete(&RefreshToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup expired refresh tokens", zap.Error(result.Error))
		}
		return fmt.Errorf("failed to cleanup expired tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired refresh tokens", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) StartCleanupWorker() {
	go func() {
		ticker := time.NewTicker(s.config.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker",
			zap.Duration("interval", s.config.CleanupInterval))
	}
}

func (s *Service) generateSecureToken() (string, error) {
	tokenBytes := make([]byte, s.config.TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

func (s *Service) hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
