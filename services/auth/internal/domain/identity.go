package domain

import (
	"strings"
	"time"
)

// Identity is a registered platform user. Role is fixed at creation.
type Identity struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RefreshToken is a persisted refresh record. Only the SHA-256 digest of the
// token value is stored.
type RefreshToken struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Usable reports whether the record may still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// TokenPair is what signup, login and refresh hand back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessTTL        time.Duration
	RefreshExpiresAt time.Time
}

// NormalizeEmail lower-cases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
