package credential

import (
	"testing"
	"time"

	"github.com/credo-auth/credo/services/otp"
	"github.com/credo-auth/credo/services/password"
	"github.com/credo-auth/credo/services/user"
	"github.com/credo-auth/credo/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ForgotPassword(t *testing.T) {
	t.Run("issues reset code and mails it", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))

		msg := env.mail.waitForMail(t)
		assert.Equal(t, "password_reset", msg.Template)
		assert.Equal(t, []string{"alice@example.com"}, msg.To)

		code := env.liveCode(t, u.ID, otp.PurposeResetPassword)
		assert.Equal(t, msg.Data["Code"], code)
	})

	t.Run("unknown email and unverified email fail identically", func(t *testing.T) {
		env := newTestEnv(t)
		env.createUser(t, "unverified@example.com", false)

		errUnknown := env.service.ForgotPassword("nobody@example.com")
		errUnverified := env.service.ForgotPassword("unverified@example.com")

		assert.ErrorIs(t, errUnknown, ErrEmailNotVerified)
		assert.ErrorIs(t, errUnverified, ErrEmailNotVerified)
	})

	t.Run("second request while code pending fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.createUser(t, "alice@example.com", true)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))
		err := env.service.ForgotPassword("alice@example.com")
		assert.ErrorIs(t, err, otp.ErrCodeAlreadyPending)
	})
}

func TestService_CheckResetCode(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice@example.com", true)
	env.createUser(t, "bob@example.com", true)

	require.NoError(t, env.service.ForgotPassword("alice@example.com"))
	code := env.liveCode(t, u.ID, otp.PurposeResetPassword)

	t.Run("valid code passes", func(t *testing.T) {
		assert.NoError(t, env.service.CheckResetCode("alice@example.com", code))
	})

	t.Run("check does not consume the code", func(t *testing.T) {
		require.NoError(t, env.service.CheckResetCode("alice@example.com", code))
		assert.NoError(t, env.service.CheckResetCode("alice@example.com", code))
	})

	t.Run("wrong owner and unknown email look like a bad code", func(t *testing.T) {
		errWrongOwner := env.service.CheckResetCode("bob@example.com", code)
		errUnknown := env.service.CheckResetCode("nobody@example.com", code)

		assert.ErrorIs(t, errWrongOwner, otp.ErrCodeInvalidOrExpired)
		assert.ErrorIs(t, errUnknown, otp.ErrCodeInvalidOrExpired)
	})
}

func TestService_ResetPassword(t *testing.T) {
	t.Run("full recovery scenario", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		// alice is logged in on two devices
		_, err := env.sessions.Generate(u.ID, "Chrome on Linux")
		require.NoError(t, err)
		_, err = env.sessions.Generate(u.ID, "Safari on iOS")
		require.NoError(t, err)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))
		code := env.liveCode(t, u.ID, otp.PurposeResetPassword)

		// precheck leaves the code valid for the second step
		require.NoError(t, env.service.CheckResetCode("alice@example.com", code))

		require.NoError(t, env.service.ResetPassword(code, "NewPass123"))

		fresh, err := env.users.FindByID(u.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, env.passwords.Verify(fresh.Password, testutils.TestPasswords.Valid), password.ErrInvalidCredentials)
		assert.NoError(t, env.passwords.Verify(fresh.Password, "NewPass123"))

		var codeCount int64
		require.NoError(t, env.db.Model(&otp.OneTimeCode{}).
			Where("user_id = ? AND purpose = ?", u.ID, otp.PurposeResetPassword).
			Count(&codeCount).Error)
		assert.Equal(t, int64(0), codeCount)

		remaining, err := env.sessions.ListForUser(u.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		// replaying the spent code must fail
		err = env.service.ResetPassword(code, "Other456x")
		assert.ErrorIs(t, err, otp.ErrCodeInvalidOrExpired)
	})

	t.Run("other users sessions survive the cascade", func(t *testing.T) {
		env := newTestEnv(t)
		alice := env.createUser(t, "alice@example.com", true)
		bob := env.createUser(t, "bob@example.com", true)
		_, err := env.sessions.Generate(bob.ID, "")
		require.NoError(t, err)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))
		code := env.liveCode(t, alice.ID, otp.PurposeResetPassword)
		require.NoError(t, env.service.ResetPassword(code, "NewPass123"))

		bobSessions, err := env.sessions.ListForUser(bob.ID)
		require.NoError(t, err)
		assert.Len(t, bobSessions, 1)
	})

	t.Run("expired code fails", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))
		code := env.liveCode(t, u.ID, otp.PurposeResetPassword)
		require.NoError(t, env.db.Model(&otp.OneTimeCode{}).
			Where("code = ?", code).
			Update("expires_at", time.Now().Add(-time.Second)).Error)

		err := env.service.ResetPassword(code, "NewPass123")
		assert.ErrorIs(t, err, otp.ErrCodeInvalidOrExpired)
	})

	t.Run("policy rejection leaves the code usable", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		require.NoError(t, env.service.ForgotPassword("alice@example.com"))
		code := env.liveCode(t, u.ID, otp.PurposeResetPassword)

		require.Error(t, env.service.ResetPassword(code, "weak"))

		assert.NoError(t, env.service.ResetPassword(code, "NewPass123"))
	})
}

func TestService_ChangePassword(t *testing.T) {
	t.Run("changes password with correct old password", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		require.NoError(t, env.service.ChangePassword(u.ID, testutils.TestPasswords.Valid, "NewPass123"))

		fresh, err := env.users.FindByID(u.ID)
		require.NoError(t, err)
		assert.NoError(t, env.passwords.Verify(fresh.Password, "NewPass123"))
	})

	t.Run("wrong old password fails", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)

		err := env.service.ChangePassword(u.ID, "WrongOld1", "NewPass123")
		assert.ErrorIs(t, err, password.ErrInvalidCredentials)
	})

	t.Run("unknown user fails", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.service.ChangePassword(999, testutils.TestPasswords.Valid, "NewPass123")
		assert.ErrorIs(t, err, user.ErrUserNotFound)
	})

	t.Run("sessions survive a password change", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.createUser(t, "alice@example.com", true)
		_, err := env.sessions.Generate(u.ID, "")
		require.NoError(t, err)

		require.NoError(t, env.service.ChangePassword(u.ID, testutils.TestPasswords.Valid, "NewPass123"))

		remaining, err := env.sessions.ListForUser(u.ID)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
	})
}
