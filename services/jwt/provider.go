package jwt

import (
	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/fx"
)

func ProvideJWTService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(&cfg.JWT, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideJWTService),
)
