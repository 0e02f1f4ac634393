package ratelimit

import (
	"github.com/credo-auth/credo/config"
	"github.com/labstack/echo/v4"
)

func ProvideRateLimitStore(cfg *config.Config) Store {
	return NewMemoryStore()
}

// ForConfig builds request middleware from the application rate limit
// settings, sharing the given store across route groups.
func ForConfig(cfg *config.RateLimitConfig, store Store) echo.MiddlewareFunc {
	return Middleware(&Config{
		Store:  store,
		Rate:   cfg.Rate,
		Period: cfg.Period,
	})
}
