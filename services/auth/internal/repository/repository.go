package repository

import (
	"context"
	"time"

	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
)

// IdentityRepository defines persistence for identities.
type IdentityRepository interface {
	// Create inserts a new identity. A taken email yields
	// apperrors.ErrEmailAlreadyRegistered.
	Create(ctx context.Context, identity *domain.Identity) error

	// GetByID retrieves an identity by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Identity, error)

	// GetByEmail retrieves an identity by its normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// RefreshTokenRegistry records which refresh tokens are live. Records are
// keyed by the SHA-256 digest of the token value.
type RefreshTokenRegistry interface {
	// Store records a newly issued refresh token.
	Store(ctx context.Context, ownerID, tokenHash string, expiresAt time.Time) error

	// Rotate consumes oldHash and records newHash for the same owner as one
	// atomic step. A missing, expired, revoked or already rotated oldHash
	// yields apperrors.ErrInvalidRefreshToken and records nothing.
	Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt time.Time) (ownerID string, err error)

	// Revoke retires a token. Unknown tokens are not an error; the returned
	// owner is empty for them.
	Revoke(ctx context.Context, tokenHash string) (ownerID string, err error)

	// RevokeAllForOwner retires every live token of ownerID.
	RevokeAllForOwner(ctx context.Context, ownerID string) error

	// PurgeExpired deletes records that expired before the given time.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
