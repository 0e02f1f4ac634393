package jwt

import (
	"net/http"
	"strings"

	"github.com/credo-auth/credo/services/jwt"
	"github.com/credo-auth/credo/services/revocation"
	"github.com/labstack/echo/v4"
)

const (
	UserIDKey = "_jwt_user_id"
	ClaimsKey = "_jwt_claims"
)

// RequireJWT authenticates the request with a bearer access token.
// Pending-TOTP tokens are rejected: they only entitle the holder to finish
// the second factor.
func RequireJWT(jwtService *jwt.Service) echo.MiddlewareFunc {
	return requireToken(jwtService, nil, "")
}

// RequireJWTWithRevocation behaves like RequireJWT but also rejects tokens
// whose JTI has been denylisted.
func RequireJWTWithRevocation(jwtService *jwt.Service, revocations *revocation.Service) echo.MiddlewareFunc {
	return requireToken(jwtService, revocations, "")
}

// RequireTOTPPending accepts only the short-lived token issued between
// password check and authenticator code.
func RequireTOTPPending(jwtService *jwt.Service) echo.MiddlewareFunc {
	return requireToken(jwtService, nil, "totp_pending")
}

func requireToken(jwtService *jwt.Service, revocations *revocation.Service, tokenType string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "JWT token required")
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				switch err {
				case jwt.ErrExpiredToken:
					return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has expired")
				case jwt.ErrMalformedToken:
					return echo.NewHTTPError(http.StatusUnauthorized, "Malformed JWT token")
				case jwt.ErrInvalidSignature:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid JWT token signature")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid JWT token")
				}
			}

			if claims.TokenType != tokenType {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid JWT token")
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(claims.ID)
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has been revoked")
				}
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *jwt.Claims {
	if claims, ok := c.Get(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}
