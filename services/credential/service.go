package credential

import (
	"errors"
	"fmt"

	"github.com/credo-auth/credo/config"
	"github.com/credo-auth/credo/services/logging"
	"github.com/credo-auth/credo/services/otp"
	"github.com/credo-auth/credo/services/password"
	"github.com/credo-auth/credo/services/refreshtoken"
	"github.com/credo-auth/credo/services/user"
	"go.uber.org/zap"
)

var (
	ErrEmailAlreadyVerified = errors.New("email is already verified")

	// ErrEmailNotVerified covers both "no such account" and "account not
	// verified" on the forgot-password path so responses cannot be used to
	// probe which addresses are registered.
	ErrEmailNotVerified = errors.New("email is not verified")
)

type MailService interface {
	SendTemplate(templateName string, to []string, subject string, data map[string]any) error
}

// Service orchestrates the email-verification and password-recovery flows.
// It holds no state of its own: every operation re-reads the store, so a
// decision is never made against a stale expiry.
type Service struct {
	config      *config.Config
	users       *user.Service
	codes       *otp.Service
	passwords   *password.Service
	sessions    *refreshtoken.Service
	mailService MailService
	logger      *logging.Service
}

func NewService(
	cfg *config.Config,
	users *user.Service,
	codes *otp.Service,
	passwords *password.Service,
	sessions *refreshtoken.Service,
	logger *logging.Service,
) *Service {
	return &Service{
		config:    cfg,
		users:     users,
		codes:     codes,
		passwords: passwords,
		sessions:  sessions,
		logger:    logger,
	}
}

func (s *Service) SetMailService(mailService MailService) {
	s.mailService = mailService
}

// RequestVerification issues a verification code for an unverified account
// and mails it. Delivery runs in the background: the code is committed
// either way and the caller can simply wait out the pending window if the
// mail is lost.
func (s *Service) RequestVerification(email string) error {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		return err
	}

	if u.Verified() {
		return ErrEmailAlreadyVerified
	}

	code, err := s.codes.Issue(u.ID, otp.PurposeVerifyEmail)
	if err != nil {
		return err
	}

	s.deliverCode(email, "email_verification", "Email verification", code)
	return nil
}

// ConfirmVerification consumes a verification code and marks the account
// verified. All verification codes the user owns are removed afterwards, in
// case an earlier request left a stale one behind.
func (s *Service) ConfirmVerification(code, email string) error {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			// An unknown email must look exactly like a bad code.
			return otp.ErrCodeInvalidOrExpired
		}
		return err
	}

	if err := s.codes.VerifyForUser(code, otp.PurposeVerifyEmail, u.ID); err != nil {
		return err
	}

	// The guarded delete is the mutex: a concurrent confirm with the same
	// code fails here.
	if _, err := s.codes.Consume(code, otp.PurposeVerifyEmail); err != nil {
		return err
	}

	if err := s.users.MarkEmailVerified(u.ID); err != nil {
		return err
	}

	if err := s.codes.DeleteAllForUser(u.ID, otp.PurposeVerifyEmail); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("email verification completed", zap.Uint("user_id", u.ID))
	}
	return nil
}

// ForgotPassword issues a reset code for a verified account. Unverified
// accounts cannot reset: allowing it would turn password recovery into a
// verification bypass.
func (s *Service) ForgotPassword(email string) error {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrEmailNotVerified
		}
		return err
	}

	if !u.Verified() {
		return ErrEmailNotVerified
	}

	code, err := s.codes.Issue(u.ID, otp.PurposeResetPassword)
	if err != nil {
		return err
	}

	s.deliverCode(email, "password_reset", "Password reset", code)
	return nil
}

// CheckResetCode is the non-consuming precheck of the two-step reset UX.
// The code stays valid until ResetPassword spends it.
func (s *Service) CheckResetCode(email, code string) error {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return otp.ErrCodeInvalidOrExpired
		}
		return err
	}

	return s.codes.VerifyForUser(code, otp.PurposeResetPassword, u.ID)
}

// ResetPassword spends a reset code, writes the new password hash and then
// cascades: every reset code and every refresh token the user owns is
// deleted. The password write comes first; the cascade deletes are
// idempotent, so a failure there leaves a retry-safe state rather than a
// changed password with live sessions being the final outcome of a partial
// failure.
func (s *Service) ResetPassword(code, newPassword string) error {
	userID, err := s.codes.Verify(code, otp.PurposeResetPassword)
	if err != nil {
		return err
	}

	// Hash before consuming so a policy rejection leaves the code usable
	// for another attempt.
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}

	// Of two concurrent resets with the same code exactly one passes this
	// point.
	if _, err := s.codes.Consume(code, otp.PurposeResetPassword); err != nil {
		return err
	}

	if err := s.users.UpdatePassword(userID, hash); err != nil {
		return err
	}

	if err := s.codes.DeleteAllForUser(userID, otp.PurposeResetPassword); err != nil {
		return fmt.Errorf("password updated but code cleanup failed: %w", err)
	}

	if err := s.sessions.RevokeAllForUser(userID); err != nil {
		return fmt.Errorf("password updated but session invalidation failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("password reset completed", zap.Uint("user_id", userID))
	}
	return nil
}

// ChangePassword is the authenticated path. It deliberately does not touch
// the user's sessions: the acting session proved knowledge of the old
// password, unlike the recovery path.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	u, err := s.users.FindByID(userID)
	if err != nil {
		return err
	}

	if err := s.passwords.Verify(u.Password, oldPassword); err != nil {
		if s.logger != nil {
			s.logger.Warn("change password rejected, old password mismatch", zap.Uint("user_id", userID))
		}
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(userID, hash); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("password changed", zap.Uint("user_id", userID))
	}
	return nil
}

func (s *Service) deliverCode(email, templateName, subject string, code *otp.OneTimeCode) {
	if s.mailService == nil {
		if s.logger != nil {
			s.logger.Warn("mail service not configured, code not delivered",
				zap.String("template", templateName))
		}
		return
	}

	data := map[string]any{
		"Email":     email,
		"Code":      code.Code,
		"ExpiresAt": code.ExpiresAt,
		"AppName":   s.config.App.Name,
	}

	go func() {
		if err := s.mailService.SendTemplate(templateName, []string{email}, subject, data); err != nil && s.logger != nil {
			s.logger.Error("failed to deliver one-time code email",
				zap.Error(err),
				zap.String("template", templateName))
		}
	}()
}
