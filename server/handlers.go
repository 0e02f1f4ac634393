package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"

	"github.com/credo-auth/credo/config"
	jwtmw "github.com/credo-auth/credo/middleware/jwt"
	"github.com/credo-auth/credo/middleware/ratelimit"
	"github.com/credo-auth/credo/services/credential"
	"github.com/credo-auth/credo/services/jwt"
	"github.com/credo-auth/credo/services/logging"
	"github.com/credo-auth/credo/services/otp"
	"github.com/credo-auth/credo/services/password"
	"github.com/credo-auth/credo/services/refreshtoken"
	"github.com/credo-auth/credo/services/revocation"
	"github.com/credo-auth/credo/services/totp"
	"github.com/credo-auth/credo/services/user"
)

type Handlers struct {
	cfg         *config.Config
	users       *user.Service
	passwords   *password.Service
	credentials *credential.Service
	sessions    *refreshtoken.Service
	jwtService  *jwt.Service
	totpService *totp.Service
	revocations *revocation.Service
	logger      *logging.Service
}

func NewHandlers(
	cfg *config.Config,
	users *user.Service,
	passwords *password.Service,
	credentials *credential.Service,
	sessions *refreshtoken.Service,
	jwtService *jwt.Service,
	totpService *totp.Service,
	revocations *revocation.Service,
	logger *logging.Service,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		users:       users,
		passwords:   passwords,
		credentials: credentials,
		sessions:    sessions,
		jwtService:  jwtService,
		totpService: totpService,
		revocations: revocations,
		logger:      logger,
	}
}

func RegisterRoutes(srv *Server, h *Handlers, store ratelimit.Store) {
	srv.Echo().GET("/api/v1/openapi.json", h.OpenAPISpec)

	public := srv.Group("/api/v1/auth")
	if h.cfg.RateLimit.Enabled {
		public.Use(ratelimit.ForConfig(&h.cfg.RateLimit, store))
	}

	public.POST("/signup", h.Signup)
	public.POST("/login", h.Login)
	public.POST("/logout", h.Logout)
	public.POST("/refresh", h.Refresh)
	public.POST("/send-verification-email", h.SendVerificationEmail)
	public.POST("/verify-email", h.VerifyEmail)
	public.POST("/forgot-password", h.ForgotPassword)
	public.POST("/check-reset-code", h.CheckResetCode)
	public.POST("/reset-password", h.ResetPassword)

	pending := srv.Group("/api/v1/auth", jwtmw.RequireTOTPPending(h.jwtService))
	pending.POST("/totp/verify", h.TOTPVerify)

	private := srv.Group("/api/v1", jwtmw.RequireJWTWithRevocation(h.jwtService, h.revocations))
	private.POST("/auth/change-password", h.ChangePassword)
	private.GET("/auth/sessions", h.ListSessions)
	private.GET("/auth/me", h.Me)
	private.POST("/totp/setup", h.TOTPSetup)
	private.POST("/totp/enable", h.TOTPEnable)
	private.POST("/totp/disable", h.TOTPDisable)
}

func (h *Handlers) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and password are required")
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		return h.renderError(c, err)
	}

	u, err := h.users.Create(req.Username, req.Email, hash)
	if err != nil {
		return h.renderError(c, err)
	}

	// A verification code goes out right away; a failure here only means
	// the user has to ask for another one.
	if err := h.credentials.RequestVerification(u.Email); err != nil {
		h.logger.Warn("verification request after signup failed",
			zap.Uint("user_id", u.ID), zap.Error(err))
	}

	return c.JSON(http.StatusCreated, userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Verified: u.Verified(),
	})
}

func (h *Handlers) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	u, err := h.users.FindByEmail(req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	if err := h.passwords.Verify(u.Password, req.Password); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	if !u.Verified() {
		return echo.NewHTTPError(http.StatusUnauthorized, "Email not verified")
	}

	if h.totpService.IsUserTOTPEnabled(u.ID) {
		if req.TOTPCode == "" {
			pendingToken, err := h.jwtService.GenerateTOTPPendingToken(u.ID)
			if err != nil {
				return h.renderError(c, err)
			}
			return c.JSON(http.StatusOK, totpPendingResponse{
				TOTPRequired: true,
				PendingToken: pendingToken,
			})
		}
		if err := h.totpService.VerifyUserCode(u.ID, req.TOTPCode); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
		}
	}

	return h.issueTokens(c, u.ID)
}

func (h *Handlers) TOTPVerify(c echo.Context) error {
	var req totpCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	userID := jwtmw.GetUserID(c)
	if err := h.totpService.VerifyUserCode(userID, req.Code); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	return h.issueTokens(c, userID)
}

func (h *Handlers) issueTokens(c echo.Context, userID uint) error {
	accessToken, err := h.jwtService.GenerateToken(userID)
	if err != nil {
		return h.renderError(c, err)
	}

	ua := useragent.Parse(c.Request().UserAgent())
	deviceInfo := ua.Name
	if ua.OS != "" {
		deviceInfo += " on " + ua.OS
	}

	tokenData, err := h.sessions.Generate(userID, deviceInfo)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: tokenData.Token,
		TokenType:    "Bearer",
		ExpiresIn:    h.jwtService.AccessExpirySeconds(),
	})
}

func (h *Handlers) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.sessions.Revoke(req.RefreshToken); err != nil && !errors.Is(err, refreshtoken.ErrTokenNotFound) {
		return h.renderError(c, err)
	}

	// Denylist the presented access token too, if revocation is on. Best
	// effort: an absent or invalid bearer token does not fail the logout.
	if h.revocations.Enabled() {
		authHeader := c.Request().Header.Get("Authorization")
		if tokenString, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			if claims, err := h.jwtService.ValidateToken(tokenString); err == nil && claims.TokenType == "" && claims.ExpiresAt != nil {
				if err := h.revocations.Revoke(claims.ID, claims.ExpiresAt.Time); err != nil {
					h.logger.Warn("failed to denylist access token on logout", zap.Error(err))
				}
			}
		}
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Logged out"})
}

func (h *Handlers) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.sessions.ValidateAndRotate(req.RefreshToken, h.jwtService)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    h.jwtService.AccessExpirySeconds(),
	})
}

func (h *Handlers) SendVerificationEmail(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.credentials.RequestVerification(req.Email); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Verification email sent"})
}

func (h *Handlers) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.credentials.ConfirmVerification(req.Code, req.Email); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Email verified"})
}

func (h *Handlers) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	userID := jwtmw.GetUserID(c)
	if err := h.credentials.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Password changed"})
}

func (h *Handlers) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.credentials.ForgotPassword(req.Email); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Password reset email sent"})
}

func (h *Handlers) CheckResetCode(c echo.Context) error {
	var req checkResetCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.credentials.CheckResetCode(req.Email, req.Code); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Code is valid"})
}

func (h *Handlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.credentials.ResetPassword(req.Code, req.NewPassword); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "Password reset"})
}

func (h *Handlers) ListSessions(c echo.Context) error {
	tokens, err := h.sessions.ListForUser(jwtmw.GetUserID(c))
	if err != nil {
		return h.renderError(c, err)
	}

	resp := make([]sessionResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, sessionResponse{
			ID:         t.ID,
			DeviceInfo: t.DeviceInfo,
			CreatedAt:  t.CreatedAt.Format(time.RFC3339),
			LastUsed:   t.LastUsed.Format(time.RFC3339),
			ExpiresAt:  t.ExpiresAt.Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) Me(c echo.Context) error {
	u, err := h.users.FindByID(jwtmw.GetUserID(c))
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Verified: u.Verified(),
	})
}

func (h *Handlers) TOTPSetup(c echo.Context) error {
	u, err := h.users.FindByID(jwtmw.GetUserID(c))
	if err != nil {
		return h.renderError(c, err)
	}

	secret, err := h.totpService.GenerateSecret(u.ID, u.Email)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, totpSetupResponse{
		Secret: secret.Secret,
		URL:    h.totpService.ProvisioningURI(secret, u.Email),
	})
}

func (h *Handlers) TOTPEnable(c echo.Context) error {
	var req totpCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := h.totpService.Enable(jwtmw.GetUserID(c), req.Code); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "TOTP enabled"})
}

func (h *Handlers) TOTPDisable(c echo.Context) error {
	if err := h.totpService.Disable(jwtmw.GetUserID(c)); err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "TOTP disabled"})
}

// renderError maps service sentinels onto HTTP statuses. Account-probing
// failures collapse into a generic 401 so responses never reveal whether an
// email is registered.
func (h *Handlers) renderError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, credential.ErrEmailNotVerified),
		errors.Is(err, password.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, user.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, "Email address is already registered")
	case errors.Is(err, credential.ErrEmailAlreadyVerified):
		return echo.NewHTTPError(http.StatusConflict, "Email is already verified")
	case errors.Is(err, otp.ErrCodeAlreadyPending):
		return echo.NewHTTPError(http.StatusBadRequest, "A code has already been sent and has not expired yet")
	case errors.Is(err, otp.ErrCodeInvalidOrExpired):
		return echo.NewHTTPError(http.StatusNotFound, "Invalid or expired code")
	case errors.Is(err, password.ErrPolicyViolation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, totp.ErrInvalidCode), errors.Is(err, totp.ErrCodeAlreadyUsed):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, totp.ErrSecretExists):
		return echo.NewHTTPError(http.StatusConflict, "TOTP is already enabled")
	case errors.Is(err, totp.ErrTOTPDisabled), errors.Is(err, totp.ErrSecretNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "TOTP is not configured")
	default:
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}
