package password

import (
	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"go.uber.org/fx"
)

func ProvidePasswordService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(&cfg.Auth, logger)
}

var Module = fx.Options(
	fx.Provide(ProvidePasswordService),
)
