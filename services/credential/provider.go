package credential

import (
	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"github.com/credo-auth/credo/services/mail"
	"github.com/credo-auth/credo/services/otp"
	"github.com/credo-auth/credo/services/password"
	"github.com/credo-auth/credo/services/refreshtoken"
	"github.com/credo-auth/credo/services/user"
	"go.uber.org/fx"
)

func ProvideCredentialService(
	cfg *config.Config,
	users *user.Service,
	codes *otp.Service,
	passwords *password.Service,
	sessions *refreshtoken.Service,
	mailSvc *mail.Service,
	logger *logging.Service,
) *Service {
	service := NewService(cfg, users, codes, passwords, sessions, logger)
	if mailSvc != nil {
		service.SetMailService(mailSvc)
	}
	return service
}

var Module = fx.Options(
	fx.Provide(ProvideCredentialService),
)
