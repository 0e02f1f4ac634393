package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"CREDO_APP_"`
	Server       ServerConfig       `envPrefix:"CREDO_SERVER_"`
	Log          LogConfig          `envPrefix:"CREDO_LOG_"`
	Database     DatabaseConfig     `envPrefix:"CREDO_DB_"`
	Auth         AuthConfig         `envPrefix:"CREDO_AUTH_"`
	OTP          OTPConfig          `envPrefix:"CREDO_OTP_"`
	JWT          JWTConfig          `envPrefix:"CREDO_JWT_"`
	RefreshToken RefreshTokenConfig `envPrefix:"CREDO_REFRESH_"`
	TOTP         TOTPConfig         `envPrefix:"CREDO_TOTP_"`
	Mail         MailConfig         `envPrefix:"CREDO_MAIL_"`
	RateLimit    RateLimitConfig    `envPrefix:"CREDO_RATELIMIT_"`
	Revocation   RevocationConfig   `envPrefix:"CREDO_REVOCATION_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"credo"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"credo.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	MinLength      int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"PASSWORD_REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"PASSWORD_REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"PASSWORD_REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"10"`
}

type OTPConfig struct {
	VerificationExpiry time.Duration `env:"VERIFICATION_EXPIRY" envDefault:"1h"`
	ResetExpiry        time.Duration `env:"RESET_EXPIRY" envDefault:"5m"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
}

type JWTConfig struct {
	SecretKey    string        `env:"SECRET_KEY"`
	Issuer       string        `env:"ISSUER" envDefault:"credo"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
}

type RefreshTokenConfig struct {
	Expiry          time.Duration `env:"EXPIRY" envDefault:"720h"`
	TokenLength     int           `env:"TOKEN_LENGTH" envDefault:"32"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type TOTPConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Issuer  string `env:"ISSUER" envDefault:"credo"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME"`
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"templates/mail"`
}

type RevocationConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"false"`
	Store         string        `env:"STORE" envDefault:"memory"`
	CleanupPeriod time.Duration `env:"CLEANUP_PERIOD" envDefault:"5m"`
}

type RateLimitConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	Rate    int           `env:"RATE" envDefault:"10"`
	Period  time.Duration `env:"PERIOD" envDefault:"1m"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
