package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"classline/internal/domain/user"
)

// Cache key patterns:
// - user:{user_id} - profile cache, 5m TTL

type CacheConfig struct {
	UserTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{UserTTL: 5 * time.Minute}
}

// CacheStore is a read-through cache for user profiles. A nil store is
// valid and disables caching.
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{client: client, config: config}
}

// GetUser retrieves a user from cache. Returns (nil, nil) on a miss.
func (c *CacheStore) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	if c == nil {
		return nil, nil
	}
	key := fmt.Sprintf("user:%s", userID.String())
	data, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var u user.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUser stores a user profile in cache.
func (c *CacheStore) SetUser(ctx context.Context, u user.User) error {
	if c == nil {
		return nil
	}
	key := fmt.Sprintf("user:%s", u.ID.String())
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.config.UserTTL).Err()
}
