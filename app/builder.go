package app

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/database"
	"github.com/credo-auth/credo/middleware/ratelimit"
	"github.com/credo-auth/credo/server"
	"github.com/credo-auth/credo/services/credential"
	"github.com/credo-auth/credo/services/jwt"
	"github.com/credo-auth/credo/services/logging"
	"github.com/credo-auth/credo/services/mail"
	"github.com/credo-auth/credo/services/otp"
	"github.com/credo-auth/credo/services/password"
	"github.com/credo-auth/credo/services/refreshtoken"
	"github.com/credo-auth/credo/services/revocation"
	"github.com/credo-auth/credo/services/totp"
	"github.com/credo-auth/credo/services/user"
)

type Builder struct {
	config    *config.Config
	models    []any
	fxOptions []fx.Option
	errors    []string
}

func NewApp() *Builder {
	return &Builder{
		models:    defaultModels(),
		fxOptions: make([]fx.Option, 0),
	}
}

func defaultModels() []any {
	return []any{
		&user.User{},
		&otp.OneTimeCode{},
		&refreshtoken.RefreshToken{},
		&totp.TOTPSecret{},
		&totp.UsedCode{},
		&revocation.RevokedToken{},
	}
}

func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *Builder) WithAutoConfig() *Builder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithModels registers extra gorm models for automigration on top of the
// built-in set.
func (b *Builder) WithModels(models ...any) *Builder {
	b.models = append(b.models, models...)
	return b
}

func (b *Builder) WithFxOptions(opts ...fx.Option) *Builder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *Builder) addError(msg string) {
	b.errors = append(b.errors, msg)
}

func (b *Builder) Build() (*App, error) {
	if len(b.errors) > 0 {
		return nil, errors.New("invalid application configuration: " + strings.Join(b.errors, "; "))
	}

	if b.config == nil {
		b.WithAutoConfig()
		if len(b.errors) > 0 {
			return nil, errors.New("invalid application configuration: " + strings.Join(b.errors, "; "))
		}
	}

	app := &App{config: b.config}

	opts := []fx.Option{
		config.NewProvider(b.config),
		logging.Module,
		fx.Supply(database.WithModels(b.models...)),
		database.Module,
		password.Module,
		user.Module,
		otp.Module,
		refreshtoken.Module,
		jwt.Module,
		totp.Module,
		mail.Module,
		credential.Module,
		revocation.Module,
		fx.Provide(ratelimit.ProvideRateLimitStore),
		server.NewProvider(),
		fx.Invoke(func(logger *logging.Service, db *gorm.DB, srv *server.Server) {
			app.logger = logger
			app.db = db
			app.server = srv
		}),
		fx.NopLogger,
	}
	opts = append(opts, b.fxOptions...)

	app.fx = fx.New(opts...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to assemble application: %w", err)
	}

	return app, nil
}
