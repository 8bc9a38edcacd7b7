// Package redis keeps the refresh token registry in Redis. Each live token is
// a key holding its owner with a PX expiry; each owner has a set of hashes
// so logout-all can find them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/TrainingPlatform/pkg/database"
	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
)

const (
	tokenKeyPrefix = "auth:refresh:"
	ownerKeyPrefix = "auth:owner:"
	ownerKeySuffix = ":refresh"
)

// storeScript writes KEYS[1] and adds it to the owner set, extending the set's
// expiry but never shortening it.
var storeScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[2]) then
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// rotateScript consumes KEYS[1] and writes KEYS[2] for the same owner. The
// whole script runs atomically, so two rotations of one token cannot both
// see the owner.
var rotateScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if not owner then
  return false
end
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], owner, 'PX', ARGV[1])
local set = ARGV[2] .. owner .. ARGV[3]
redis.call('SREM', set, ARGV[4])
redis.call('SADD', set, ARGV[5])
if redis.call('PTTL', set) < tonumber(ARGV[1]) then
  redis.call('PEXPIRE', set, ARGV[1])
end
return owner
`)

var revokeScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if not owner then
  return false
end
redis.call('DEL', KEYS[1])
redis.call('SREM', ARGV[1] .. owner .. ARGV[2], ARGV[3])
return owner
`)

var revokeOwnerScript = redis.NewScript(`
local hashes = redis.call('SMEMBERS', KEYS[1])
for _, h in ipairs(hashes) do
  redis.call('DEL', ARGV[1] .. h)
end
redis.call('DEL', KEYS[1])
return #hashes
`)

// RefreshTokenRegistry implements repository.RefreshTokenRegistry on Redis.
type RefreshTokenRegistry struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRefreshTokenRegistry creates a Redis-backed refresh token registry.
func NewRefreshTokenRegistry(client redis.UniversalClient) *RefreshTokenRegistry {
	return &RefreshTokenRegistry{client: client, now: time.Now}
}

func tokenKey(hash string) string { return tokenKeyPrefix + hash }

func ownerKey(owner string) string { return ownerKeyPrefix + owner + ownerKeySuffix }

func (r *RefreshTokenRegistry) ttl(expiresAt time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		return 0, fmt.Errorf("refresh token expiry %s is not in the future", expiresAt.Format(time.RFC3339))
	}
	return ttl, nil
}

// Store records a newly issued refresh token hash.
func (r *RefreshTokenRegistry) Store(ctx context.Context, ownerID, tokenHash string, expiresAt time.Time) (err error) {
	ctx, end := database.TraceRedis(ctx, "StoreRefreshToken", "EVALSHA store")
	defer func() { end(err) }()

	ttl, err := r.ttl(expiresAt)
	if err != nil {
		return err
	}

	err = storeScript.Run(ctx, r.client,
		[]string{tokenKey(tokenHash), ownerKey(ownerID)},
		ownerID, ttl.Milliseconds(), tokenHash,
	).Err()
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Rotate swaps oldHash for newHash in a single script evaluation.
func (r *RefreshTokenRegistry) Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt time.Time) (ownerID string, err error) {
	ctx, end := database.TraceRedis(ctx, "RotateRefreshToken", "EVALSHA rotate")
	defer func() { end(err) }()

	ttl, err := r.ttl(newExpiresAt)
	if err != nil {
		return "", err
	}

	ownerID, err = rotateScript.Run(ctx, r.client,
		[]string{tokenKey(oldHash), tokenKey(newHash)},
		ttl.Milliseconds(), ownerKeyPrefix, ownerKeySuffix, oldHash, newHash,
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.InvalidOrExpiredRefreshToken()
	}
	if err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return ownerID, nil
}

// Revoke deletes a token. Unknown tokens are ignored.
func (r *RefreshTokenRegistry) Revoke(ctx context.Context, tokenHash string) (ownerID string, err error) {
	ctx, end := database.TraceRedis(ctx, "RevokeRefreshToken", "EVALSHA revoke")
	defer func() { end(err) }()

	ownerID, err = revokeScript.Run(ctx, r.client,
		[]string{tokenKey(tokenHash)},
		ownerKeyPrefix, ownerKeySuffix, tokenHash,
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	return ownerID, nil
}

// RevokeAllForOwner deletes every token of ownerID.
func (r *RefreshTokenRegistry) RevokeAllForOwner(ctx context.Context, ownerID string) (err error) {
	ctx, end := database.TraceRedis(ctx, "RevokeOwnerRefreshTokens", "EVALSHA revoke_owner")
	defer func() { end(err) }()

	if err = revokeOwnerScript.Run(ctx, r.client, []string{ownerKey(ownerID)}, tokenKeyPrefix).Err(); err != nil {
		return fmt.Errorf("revoke refresh tokens by owner: %w", err)
	}
	return nil
}

// PurgeExpired drops owner-set entries whose token key has already expired.
// Redis expires the token keys themselves, so before is not consulted.
func (r *RefreshTokenRegistry) PurgeExpired(ctx context.Context, _ time.Time) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "PurgeExpiredRefreshTokens", "SCAN/SREM")
	defer func() { end(err) }()

	var purged int64
	iter := r.client.Scan(ctx, 0, ownerKeyPrefix+"*"+ownerKeySuffix, 100).Iterator()
	for iter.Next(ctx) {
		set := iter.Val()
		hashes, err := r.client.SMembers(ctx, set).Result()
		if err != nil {
			return purged, fmt.Errorf("list owner tokens: %w", err)
		}
		for _, h := range hashes {
			n, err := r.client.Exists(ctx, tokenKey(h)).Result()
			if err != nil {
				return purged, fmt.Errorf("check refresh token: %w", err)
			}
			if n > 0 {
				continue
			}
			removed, err := r.client.SRem(ctx, set, h).Result()
			if err != nil {
				return purged, fmt.Errorf("drop stale refresh token: %w", err)
			}
			purged += removed
		}
	}
	if err = iter.Err(); err != nil {
		return purged, fmt.Errorf("scan owner sets: %w", err)
	}
	return purged, nil
}
