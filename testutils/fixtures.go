package testutils

import (
	"time"

	"github.com/credo-auth/credo/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireNumber:  true,
			RequireSpecial: false,
			BcryptCost:     bcrypt.MinCost,
		},
		OTP: config.OTPConfig{
			VerificationExpiry: time.Hour,
			ResetExpiry:        5 * time.Minute,
		},
		JWT: config.JWTConfig{
			SecretKey:    "test-secret-key-32-chars-long!!",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "test-issuer",
		},
		RefreshToken: config.RefreshTokenConfig{
			Expiry:      30 * 24 * time.Hour,
			TokenLength: 32,
		},
		TOTP: config.TOTPConfig{
			Enabled: true,
			Issuer:  "Test App",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
			Output: "stdout",
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        2525,
			Encryption:  "none",
			FromAddress: "noreply@example.com",
			FromName:    "Test App",
		},
		Revocation: config.RevocationConfig{
			Enabled: false,
			Store:   "memory",
		},
		RateLimit: config.RateLimitConfig{
			Enabled: false,
			Rate:    10,
			Period:  time.Minute,
		},
	}
}

var TestPasswords = struct {
	Valid       string
	TooShort    string
	NoUpper     string
	NoLower     string
	NoNumber    string
	WithSpecial string
}{
	Valid:       "Password123",
	TooShort:    "Pass1",
	NoUpper:     "password123",
	NoLower:     "PASSWORD123",
	NoNumber:    "Password",
	WithSpecial: "Password123!",
}
