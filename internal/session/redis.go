package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eddisonso.com/edd-directory/internal/apperr"
)

type RedisRegistry struct {
	client redis.UniversalClient
}

func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Activate(ctx context.Context, accountID int64, ttl time.Duration) error {
	if err := r.client.Set(ctx, Key(accountID), activeValue, ttl).Err(); err != nil {
		return fmt.Errorf("activate session %d: %w: %v", accountID, apperr.ErrInternalStore, err)
	}
	return nil
}

func (r *RedisRegistry) Active(ctx context.Context, accountID int64) (bool, error) {
	n, err := r.client.Exists(ctx, Key(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session %d: %w: %v", accountID, apperr.ErrInternalStore, err)
	}
	return n > 0, nil
}

// Revoke deletes the flag; revoking an absent flag is not an error.
func (r *RedisRegistry) Revoke(ctx context.Context, accountID int64) error {
	if err := r.client.Del(ctx, Key(accountID)).Err(); err != nil {
		return fmt.Errorf("revoke session %d: %w: %v", accountID, apperr.ErrInternalStore, err)
	}
	return nil
}
