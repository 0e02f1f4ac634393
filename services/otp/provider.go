package otp

import (
	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideOTPService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	service := NewService(db, &cfg.OTP, logger)

	if cfg.OTP.CleanupInterval > 0 {
		service.StartCleanupWorker(cfg.OTP.CleanupInterval)
	}

	return service
}

var Module = fx.Options(
	fx.Provide(ProvideOTPService),
)
