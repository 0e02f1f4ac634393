package server

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type checkResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type totpPendingResponse struct {
	TOTPRequired bool   `json:"totp_required"`
	PendingToken string `json:"pending_token"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Verified bool   `json:"email_verified"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	ID         uint   `json:"id"`
	DeviceInfo string `json:"device_info"`
	CreatedAt  string `json:"created_at"`
	LastUsed   string `json:"last_used"`
	ExpiresAt  string `json:"expires_at"`
}

type totpSetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}
