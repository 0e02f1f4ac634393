package revocation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// RevokedToken is a denylisted access token, identified by its JTI claim.
// Rows only need to live until the token would have expired anyway.
type RevokedToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	JTI       string    `json:"jti" gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

type Store interface {
	Revoke(jti string, expiresAt time.Time) error
	IsRevoked(jti string) (bool, error)
	CleanupExpired() error
}

type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

func (m *MemoryStore) Revoke(jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[jti] = expiresAt
	return nil
}

func (m *MemoryStore) IsRevoked(jti string) (bool, error) {
	m.mu.RLock()
	expiresAt, exists := m.tokens[jti]
	m.mu.RUnlock()

	if !exists {
		return false, nil
	}

	if time.Now().After(expiresAt) {
		m.mu.Lock()
		delete(m.tokens, jti)
		m.mu.Unlock()
		return false, nil
	}

	return true, nil
}

func (m *MemoryStore) CleanupExpired() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for jti, expiresAt := range m.tokens {
		if now.After(expiresAt) {
			delete(m.tokens, jti)
		}
	}
	return nil
}

// DatabaseStore keeps the denylist in the shared database so revocations
// survive restarts and apply across replicas.
type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) Revoke(jti string, expiresAt time.Time) error {
	token := RevokedToken{JTI: jti, ExpiresAt: expiresAt}
	err := d.db.Create(&token).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// revoking twice is fine
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to persist revoked token: %w", err)
	}
	return nil
}

func (d *DatabaseStore) IsRevoked(jti string) (bool, error) {
	var count int64
	err := d.db.Model(&RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return count > 0, nil
}

func (d *DatabaseStore) CleanupExpired() error {
	if err := d.db.Where("expires_at <= ?", time.Now()).Delete(&RevokedToken{}).Error; err != nil {
		return fmt.Errorf("failed to clean up revoked tokens: %w", err)
	}
	return nil
}
