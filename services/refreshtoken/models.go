package refreshtoken

import (
	"time"
)

// RefreshToken is the persisted half of a login session. Only the sha256 of
// the opaque token is stored; the plaintext is returned to the client once
// and never kept.
type RefreshToken struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;index"`
	TokenHash  string    `json:"-" gorm:"uniqueIndex;size:255;not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
	DeviceInfo string    `json:"device_info" gorm:"size:255"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

type TokenData struct {
	Token     string
	TokenID   uint
	ExpiresAt time.Time
}

type RotationResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
