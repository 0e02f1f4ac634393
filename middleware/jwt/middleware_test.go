package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credo-auth/credo/services/jwt"
	"github.com/credo-auth/credo/testutils"
)

func setupTestJWTService() *jwt.Service {
	cfg := testutils.GetTestConfig()
	return jwt.NewService(&cfg.JWT, nil)
}

func TestRequireJWT(t *testing.T) {
	e := echo.New()
	jwtService := setupTestJWTService()
	middleware := RequireJWT(jwtService)

	successHandler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "success"})
	}

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
		assert.Contains(t, httpError.Message, "Authorization header required")
	})

	t.Run("invalid authorization header format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Invalid token")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
		assert.Contains(t, httpError.Message, "Invalid authorization header format")
	})

	t.Run("empty bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer ")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
		assert.Contains(t, httpError.Message, "JWT token required")
	})

	t.Run("invalid JWT token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid.jwt.token")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
	})

	t.Run("valid JWT token", func(t *testing.T) {
		userID := uint(123)

		tokenString, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err = middleware(successHandler)(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, userID, c.Get(UserIDKey))
		claims, ok := c.Get(ClaimsKey).(*jwt.Claims)
		require.True(t, ok)
		assert.Equal(t, userID, claims.UserID)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("pending TOTP token rejected on normal routes", func(t *testing.T) {
		tokenString, err := jwtService.GenerateTOTPPendingToken(123)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err = middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
	})

	t.Run("expired JWT token", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.JWT.AccessExpiry = time.Nanosecond
		shortLivedService := jwt.NewService(&cfg.JWT, nil)

		tokenString, err := shortLivedService.GenerateToken(123)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		middleware := RequireJWT(shortLivedService)
		err = middleware(successHandler)(c)

		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
		assert.Contains(t, httpError.Message, "expired")
	})
}

func TestRequireTOTPPending(t *testing.T) {
	e := echo.New()
	jwtService := setupTestJWTService()
	middleware := RequireTOTPPending(jwtService)

	successHandler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "success"})
	}

	t.Run("accepts pending token", func(t *testing.T) {
		tokenString, err := jwtService.GenerateTOTPPendingToken(42)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, middleware(successHandler)(c))
		assert.Equal(t, uint(42), GetUserID(c))
	})

	t.Run("rejects full access token", func(t *testing.T) {
		tokenString, err := jwtService.GenerateToken(42)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err = middleware(successHandler)(c)
		require.Error(t, err)
		httpError, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpError.Code)
	})
}

func TestGetUserID(t *testing.T) {
	e := echo.New()

	t.Run("user ID exists in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		c.Set(UserIDKey, uint(123))

		assert.Equal(t, uint(123), GetUserID(c))
	})

	t.Run("user ID does not exist in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		assert.Equal(t, uint(0), GetUserID(c))
	})

	t.Run("user ID is wrong type in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		c.Set(UserIDKey, "not-a-uint")

		assert.Equal(t, uint(0), GetUserID(c))
	})
}

func TestGetClaims(t *testing.T) {
	e := echo.New()

	t.Run("claims exist in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		expectedClaims := &jwt.Claims{UserID: 123}
		c.Set(ClaimsKey, expectedClaims)

		claims := GetClaims(c)

		assert.Equal(t, expectedClaims, claims)
		assert.Equal(t, uint(123), claims.UserID)
	})

	t.Run("claims do not exist in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		assert.Nil(t, GetClaims(c))
	})
}

func TestRequireJWT_Integration(t *testing.T) {
	e := echo.New()
	jwtService := setupTestJWTService()

	e.GET("/protected", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user_id": GetUserID(c),
		})
	}, RequireJWT(jwtService))

	t.Run("complete flow with valid token", func(t *testing.T) {
		tokenString, err := jwtService.GenerateToken(456)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"user_id":456`)
	})

	t.Run("complete flow with missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Authorization header required")
	})
}
