package totp

import (
	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideTOTPService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	return NewService(&cfg.TOTP, db, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideTOTPService),
)
