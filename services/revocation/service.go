package revocation

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
)

// Service denylists access tokens before their natural expiry. Refresh
// tokens are revoked by deleting their rows; this covers the short window
// in which an already-issued access token would otherwise stay valid.
type Service struct {
	config *config.RevocationConfig
	store  Store
	logger *logging.Service
}

func NewService(cfg *config.RevocationConfig, store Store, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

func (s *Service) Enabled() bool {
	return s.config.Enabled
}

func (s *Service) Revoke(jti string, expiresAt time.Time) error {
	if !s.config.Enabled || jti == "" {
		return nil
	}

	if err := s.store.Revoke(jti, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke access token", zap.String("jti", jti), zap.Error(err))
		}
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("access token revoked", zap.String("jti", jti), zap.Time("expires_at", expiresAt))
	}
	return nil
}

// IsRevoked reports whether the JTI has been denylisted. With revocation
// disabled every token passes.
func (s *Service) IsRevoked(jti string) (bool, error) {
	if !s.config.Enabled || jti == "" {
		return false, nil
	}
	return s.store.IsRevoked(jti)
}

func (s *Service) CleanupExpired() error {
	if !s.config.Enabled {
		return nil
	}
	return s.store.CleanupExpired()
}

func (s *Service) StartCleanupWorker(interval time.Duration) {
	if !s.config.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("revocation cleanup failed", zap.Error(err))
			}
		}
	}()
}
