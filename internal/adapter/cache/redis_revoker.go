// Package cache provides Redis-backed adapters.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fornetto/pizzeria-api/internal/token"
)

const revokedKeyPrefix = "revoked_refresh:"

// RedisRevoker implements token.Revoker on Redis. Keys carry the remaining
// lifetime of the revoked token as TTL so the set cleans itself up.
type RedisRevoker struct {
	client redis.UniversalClient
}

var _ token.Revoker = (*RedisRevoker)(nil)

// NewRedisRevoker constructs a Redis-backed revocation set.
func NewRedisRevoker(client redis.UniversalClient) *RedisRevoker {
	return &RedisRevoker{client: client}
}

// Revoke marks the issuance id as revoked for the rest of its lifetime.
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// The token has already expired and will never verify again.
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// IsRevoked reports whether the issuance id is in the revocation set.
func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
