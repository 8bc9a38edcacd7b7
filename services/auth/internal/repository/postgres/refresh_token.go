package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/TrainingPlatform/pkg/database"
	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
)

const (
	insertRefreshSQL = `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`

	// The row lock taken by DELETE serializes concurrent rotations of the
	// same token; the loser sees zero rows.
	consumeRefreshSQL = `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING user_id`

	revokeRefreshSQL = `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE token_hash = $2 AND revoked_at IS NULL
		RETURNING user_id`

	revokeOwnerSQL = `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`

	purgeExpiredSQL = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
)

// RefreshTokenRegistry implements repository.RefreshTokenRegistry using PostgreSQL.
type RefreshTokenRegistry struct {
	db  database.DBTX
	now func() time.Time
}

// NewRefreshTokenRegistry creates a new PostgreSQL-backed refresh token registry.
func NewRefreshTokenRegistry(db database.DBTX) *RefreshTokenRegistry {
	return &RefreshTokenRegistry{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Store records a newly issued refresh token hash.
func (r *RefreshTokenRegistry) Store(ctx context.Context, ownerID, tokenHash string, expiresAt time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "StoreRefreshToken", insertRefreshSQL)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, insertRefreshSQL, ownerID, tokenHash, expiresAt, r.now()); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Rotate deletes the old record and inserts its successor in one transaction.
func (r *RefreshTokenRegistry) Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt time.Time) (ownerID string, err error) {
	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", consumeRefreshSQL)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now()
	if err = tx.QueryRow(ctx, consumeRefreshSQL, oldHash, now).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.InvalidOrExpiredRefreshToken()
		}
		return "", fmt.Errorf("consume refresh token: %w", err)
	}

	if _, err = tx.Exec(ctx, insertRefreshSQL, ownerID, newHash, newExpiresAt, now); err != nil {
		return "", fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit rotate: %w", err)
	}
	return ownerID, nil
}

// Revoke marks a token revoked. Unknown or already revoked tokens are ignored.
func (r *RefreshTokenRegistry) Revoke(ctx context.Context, tokenHash string) (ownerID string, err error) {
	ctx, end := database.TraceQuery(ctx, "RevokeRefreshToken", revokeRefreshSQL)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, revokeRefreshSQL, r.now(), tokenHash).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	return ownerID, nil
}

// RevokeAllForOwner revokes all live refresh tokens of ownerID.
func (r *RefreshTokenRegistry) RevokeAllForOwner(ctx context.Context, ownerID string) (err error) {
	ctx, end := database.TraceQuery(ctx, "RevokeOwnerRefreshTokens", revokeOwnerSQL)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, revokeOwnerSQL, r.now(), ownerID); err != nil {
		return fmt.Errorf("revoke refresh tokens by owner: %w", err)
	}
	return nil
}

// PurgeExpired deletes records whose expiry is at or before the given time.
func (r *RefreshTokenRegistry) PurgeExpired(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "PurgeExpiredRefreshTokens", purgeExpiredSQL)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, purgeExpiredSQL, before)
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
