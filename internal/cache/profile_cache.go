// Package cache keeps read-through copies of user profiles in redis.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

const DefaultTTL = 30 * time.Second

// ProfileCache stores a user together with its assets.
type ProfileCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, userID uint64) (*models.User, error)
	Set(ctx context.Context, user *models.User) error
	Invalidate(ctx context.Context, userIDs ...uint64) error
}

// Store is the subset of the redis client the profile cache relies on.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisProfileCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

var _ ProfileCache = (*RedisProfileCache)(nil)

func NewRedisProfileCache(store Store, ttl time.Duration, logger *zap.Logger) *RedisProfileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisProfileCache{store: store, ttl: ttl, logger: logger}
}

func profileKey(userID uint64) string {
	return fmt.Sprintf("user:%d:profile", userID)
}

func (c *RedisProfileCache) Get(ctx context.Context, userID uint64) (*models.User, error) {
	data, err := c.store.Get(ctx, profileKey(userID)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile from cache: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &user, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := c.store.Set(ctx, profileKey(user.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

func (c *RedisProfileCache) Invalidate(ctx context.Context, userIDs ...uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = profileKey(id)
	}
	if err := c.store.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate profiles: %w", err)
	}
	return nil
}

// NopProfileCache is used when redis is disabled. Every Get is a miss.
type NopProfileCache struct{}

func (NopProfileCache) Get(context.Context, uint64) (*models.User, error) { return nil, nil }
func (NopProfileCache) Set(context.Context, *models.User) error           { return nil }
func (NopProfileCache) Invalidate(context.Context, ...uint64) error       { return nil }
