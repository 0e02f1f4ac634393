package revocation

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
)

func ProvideRevocationService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	var store Store
	switch cfg.Revocation.Store {
	case "database":
		store = NewDatabaseStore(db)
	default:
		store = NewMemoryStore()
	}

	service := NewService(&cfg.Revocation, store, logger)

	if cfg.Revocation.CleanupPeriod > 0 {
		service.StartCleanupWorker(cfg.Revocation.CleanupPeriod)
	}

	return service
}

var Module = fx.Options(
	fx.Provide(ProvideRevocationService),
)
