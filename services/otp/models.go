package otp

import (
	"time"
)

// Purpose distinguishes the two one-time-code flows. Codes for different
// purposes never interact: lookups, consumption and bulk deletes are always
// purpose-scoped.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

// OneTimeCode is a short-lived 6-digit credential. The unique index on
// (user_id, purpose) is what enforces "one live code per user and purpose":
// a second insert while a row exists fails at the database, so two
// concurrent issue calls cannot both succeed. Rows are hard-deleted on
// consumption, which is why the model does not use gorm.Model soft deletes.
type OneTimeCode struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Code      string    `json:"-" gorm:"size:6;not null;uniqueIndex:idx_purpose_code,priority:2"`
	Purpose   Purpose   `json:"purpose" gorm:"size:32;not null;uniqueIndex:idx_purpose_code,priority:1;uniqueIndex:idx_user_purpose,priority:2"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_user_purpose,priority:1"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (OneTimeCode) TableName() string {
	return "one_time_codes"
}

// Expired reports whether the code is past its expiry at the given instant.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
