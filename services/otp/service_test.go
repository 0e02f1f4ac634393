package otp

import (
	"regexp"
	"testing"
	"time"

	"github.com/credo-auth/credo/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := testutils.SetupTestDB(t, &OneTimeCode{})
	cfg := testutils.GetTestConfig()
	return NewService(db, &cfg.OTP, nil), db
}

func expireCode(t *testing.T, db *gorm.DB, code string) {
	err := db.Model(&OneTimeCode{}).
		Where("code = ?", code).
		Update("expires_at", time.Now().Add(-time.Second)).Error
	require.NoError(t, err)
}

func TestService_Issue(t *testing.T) {
	t.Run("issues six digit zero padded code", func(t *testing.T) {
		service, _ := newTestService(t)

		record, err := service.Issue(1, PurposeVerifyEmail)

		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), record.Code)
		assert.Equal(t, PurposeVerifyEmail, record.Purpose)
		assert.Equal(t, uint(1), record.UserID)
	})

	t.Run("verification and reset codes use different expiries", func(t *testing.T) {
		service, _ := newTestService(t)
		now := time.Now()

		verify, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)
		reset, err := service.Issue(1, PurposeResetPassword)
		require.NoError(t, err)

		assert.True(t, verify.ExpiresAt.After(now.Add(59*time.Minute)))
		assert.True(t, reset.ExpiresAt.Before(now.Add(6*time.Minute)))
		assert.True(t, reset.ExpiresAt.After(now.Add(4*time.Minute)))
	})

	t.Run("second issue while code pending fails", func(t *testing.T) {
		service, _ := newTestService(t)

		_, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)

		_, err = service.Issue(1, PurposeVerifyEmail)
		assert.ErrorIs(t, err, ErrCodeAlreadyPending)
	})

	t.Run("purposes do not block each other", func(t *testing.T) {
		service, _ := newTestService(t)

		_, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)

		_, err = service.Issue(1, PurposeResetPassword)
		assert.NoError(t, err)
	})

	t.Run("expired code is replaced", func(t *testing.T) {
		service, db := newTestService(t)

		old, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)
		expireCode(t, db, old.Code)

		fresh, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)
		assert.True(t, fresh.ExpiresAt.After(time.Now()))

		var count int64
		require.NoError(t, db.Model(&OneTimeCode{}).Where("user_id = ?", 1).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("different users issue independently", func(t *testing.T) {
		service, _ := newTestService(t)

		_, err := service.Issue(1, PurposeResetPassword)
		require.NoError(t, err)
		_, err = service.Issue(2, PurposeResetPassword)
		assert.NoError(t, err)
	})
}

func TestService_Verify(t *testing.T) {
	t.Run("returns owning user for live code", func(t *testing.T) {
		service, _ := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)

		userID, err := service.Verify(record.Code, PurposeResetPassword)
		require.NoError(t, err)
		assert.Equal(t, uint(42), userID)
	})

	t.Run("does not consume the code", func(t *testing.T) {
		service, _ := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)

		_, err = service.Verify(record.Code, PurposeResetPassword)
		require.NoError(t, err)
		_, err = service.Verify(record.Code, PurposeResetPassword)
		assert.NoError(t, err)
	})

	t.Run("expired and missing codes are indistinguishable", func(t *testing.T) {
		service, db := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)
		expireCode(t, db, record.Code)

		_, errExpired := service.Verify(record.Code, PurposeResetPassword)
		_, errMissing := service.Verify("000000", PurposeResetPassword)

		assert.ErrorIs(t, errExpired, ErrCodeInvalidOrExpired)
		assert.ErrorIs(t, errMissing, ErrCodeInvalidOrExpired)
		assert.Equal(t, errMissing, errExpired)
	})

	t.Run("purpose scopes the lookup", func(t *testing.T) {
		service, _ := newTestService(t)

		record, err := service.Issue(42, PurposeVerifyEmail)
		require.NoError(t, err)

		_, err = service.Verify(record.Code, PurposeResetPassword)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		service, db := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)

		// 299s into a 300s window: still valid.
		err = db.Model(&OneTimeCode{}).Where("code = ?", record.Code).
			Update("expires_at", time.Now().Add(time.Second)).Error
		require.NoError(t, err)
		_, err = service.Verify(record.Code, PurposeResetPassword)
		assert.NoError(t, err)

		// 301s in: expired.
		expireCode(t, db, record.Code)
		_, err = service.Verify(record.Code, PurposeResetPassword)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	})
}

func TestService_VerifyForUser(t *testing.T) {
	service, _ := newTestService(t)

	record, err := service.Issue(42, PurposeResetPassword)
	require.NoError(t, err)

	t.Run("matches owner", func(t *testing.T) {
		assert.NoError(t, service.VerifyForUser(record.Code, PurposeResetPassword, 42))
	})

	t.Run("wrong owner looks like missing code", func(t *testing.T) {
		err := service.VerifyForUser(record.Code, PurposeResetPassword, 7)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	})
}

func TestService_Consume(t *testing.T) {
	t.Run("consumes exactly once", func(t *testing.T) {
		service, _ := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)

		userID, err := service.Consume(record.Code, PurposeResetPassword)
		require.NoError(t, err)
		assert.Equal(t, uint(42), userID)

		_, err = service.Consume(record.Code, PurposeResetPassword)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	})

	t.Run("expired code cannot be consumed", func(t *testing.T) {
		service, db := newTestService(t)

		record, err := service.Issue(42, PurposeResetPassword)
		require.NoError(t, err)
		expireCode(t, db, record.Code)

		_, err = service.Consume(record.Code, PurposeResetPassword)
		assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)
	})
}

func TestService_DeleteAllForUser(t *testing.T) {
	service, db := newTestService(t)

	verify, err := service.Issue(1, PurposeVerifyEmail)
	require.NoError(t, err)
	_, err = service.Issue(1, PurposeResetPassword)
	require.NoError(t, err)

	require.NoError(t, service.DeleteAllForUser(1, PurposeVerifyEmail))

	_, err = service.Verify(verify.Code, PurposeVerifyEmail)
	assert.ErrorIs(t, err, ErrCodeInvalidOrExpired)

	var count int64
	require.NoError(t, db.Model(&OneTimeCode{}).Where("user_id = ? AND purpose = ?", 1, PurposeResetPassword).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// deleting again is a no-op
	assert.NoError(t, service.DeleteAllForUser(1, PurposeVerifyEmail))
}

func TestService_CleanupExpired(t *testing.T) {
	service, db := newTestService(t)

	stale, err := service.Issue(1, PurposeVerifyEmail)
	require.NoError(t, err)
	expireCode(t, db, stale.Code)
	live, err := service.Issue(2, PurposeVerifyEmail)
	require.NoError(t, err)

	require.NoError(t, service.CleanupExpired())

	var count int64
	require.NoError(t, db.Model(&OneTimeCode{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = service.Verify(live.Code, PurposeVerifyEmail)
	assert.NoError(t, err)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		code, err := generateCode()
		require.NoError(t, err)
		require.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
		seen[code] = true
	}
	// 50 draws from a million values should essentially never collide down
	// to a single value.
	assert.Greater(t, len(seen), 1)
}

// stubCodes returns a generator yielding the given codes in order, repeating
// the last one once the sequence is exhausted.
func stubCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

func TestService_Issue_CodeCollision(t *testing.T) {
	t.Run("redraws when the value is held by another user", func(t *testing.T) {
		service, _ := newTestService(t)

		service.generate = stubCodes("111111")
		first, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)
		require.Equal(t, "111111", first.Code)

		// User 2 has nothing pending; a value clash must not be reported
		// as ErrCodeAlreadyPending.
		service.generate = stubCodes("111111", "222222")
		second, err := service.Issue(2, PurposeVerifyEmail)
		require.NoError(t, err)
		assert.Equal(t, "222222", second.Code)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		service, _ := newTestService(t)

		service.generate = stubCodes("111111")
		_, err := service.Issue(1, PurposeVerifyEmail)
		require.NoError(t, err)

		_, err = service.Issue(2, PurposeVerifyEmail)
		assert.ErrorIs(t, err, ErrCodeGenerationFailed)
	})
}

func TestService_HasPending(t *testing.T) {
	service, db := newTestService(t)

	pending, err := service.HasPending(1, PurposeVerifyEmail)
	require.NoError(t, err)
	assert.False(t, pending)

	record, err := service.Issue(1, PurposeVerifyEmail)
	require.NoError(t, err)

	pending, err = service.HasPending(1, PurposeVerifyEmail)
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = service.HasPending(1, PurposeResetPassword)
	require.NoError(t, err)
	assert.False(t, pending)

	expireCode(t, db, record.Code)

	pending, err = service.HasPending(1, PurposeVerifyEmail)
	require.NoError(t, err)
	assert.False(t, pending)
}
