package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestMiddleware(t *testing.T) {
	t.Run("basic rate limiting", func(t *testing.T) {
		cfg := &Config{
			Store:  NewMemoryStore(),
			Rate:   1,
			Period: time.Minute,
			KeyGenerator: func(c echo.Context) string {
				return "test-key"
			},
		}

		middleware := Middleware(cfg)

		e := echo.New()
		handler := func(c echo.Context) error {
			return c.String(http.StatusOK, "test")
		}

		req1 := httptest.NewRequest(http.MethodGet, "/", nil)
		rec1 := httptest.NewRecorder()
		c1 := e.NewContext(req1, rec1)

		err := middleware(handler)(c1)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if rec1.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec1.Code)
		}

		req2 := httptest.NewRequest(http.MethodGet, "/", nil)
		rec2 := httptest.NewRecorder()
		c2 := e.NewContext(req2, rec2)

		err = middleware(handler)(c2)
		if err == nil {
			t.Error("expected rate limit error")
		} else {
			if httpErr, ok := err.(*echo.HTTPError); ok {
				if httpErr.Code != http.StatusTooManyRequests {
					t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, httpErr.Code)
				}
			} else {
				t.Errorf("expected echo.HTTPError, got %T", err)
			}
		}
	})

	t.Run("rate limit headers", func(t *testing.T) {
		cfg := &Config{
			Store:  NewMemoryStore(),
			Rate:   3,
			Period: time.Minute,
			KeyGenerator: func(c echo.Context) string {
				return "header-key"
			},
		}

		middleware := Middleware(cfg)

		e := echo.New()
		handler := func(c echo.Context) error {
			return c.String(http.StatusOK, "test")
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := middleware(handler)(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Errorf("expected limit header 3, got %q", got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
			t.Errorf("expected remaining header 2, got %q", got)
		}
		if rec.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("expected reset header to be set")
		}
	})

	t.Run("separate keys are limited independently", func(t *testing.T) {
		cfg := &Config{
			Store:  NewMemoryStore(),
			Rate:   1,
			Period: time.Minute,
			KeyGenerator: func(c echo.Context) string {
				return "key:" + c.RealIP()
			},
		}

		middleware := Middleware(cfg)

		e := echo.New()
		handler := func(c echo.Context) error {
			return c.String(http.StatusOK, "test")
		}

		for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(echo.HeaderXRealIP, ip)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := middleware(handler)(c); err != nil {
				t.Errorf("unexpected error for %s: %v", ip, err)
			}
		}
	})

	t.Run("defaults applied for zero config", func(t *testing.T) {
		cfg := &Config{}
		middleware := Middleware(cfg)

		if cfg.Rate != 10 {
			t.Errorf("expected default rate 10, got %d", cfg.Rate)
		}
		if cfg.Period != time.Minute {
			t.Errorf("expected default period 1m, got %v", cfg.Period)
		}

		e := echo.New()
		handler := func(c echo.Context) error {
			return c.String(http.StatusOK, "test")
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := middleware(handler)(c); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDefaultKeyGenerator(t *testing.T) {
	e := echo.New()

	t.Run("uses real IP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderXRealIP, "192.0.2.7")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		key := DefaultKeyGenerator(c)
		if key != "rate_limit:192.0.2.7" {
			t.Errorf("unexpected key %q", key)
		}
	})
}
