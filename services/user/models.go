package user

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username        string     `json:"username" gorm:"size:64;not null"`
	Email           string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Password        string     `json:"-" gorm:"not null"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Verified reports whether the account has completed email verification.
func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}
