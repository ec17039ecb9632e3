// Package cache holds short-lived copies of profiles so that request
// authorization does not hit the database on every call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	taskmodels "taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
)

const profileKeyPrefix = "profile:"

// RedisProfileCache stores profiles as JSON under "profile:<id>".
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisProfileCache{client: client, ttl: ttl}
}

// Get returns the cached profile. A miss is reported as ok=false with no error.
func (c *RedisProfileCache) Get(ctx context.Context, profileID id.ProfileID) (taskmodels.Profile, bool, error) {
	raw, err := c.client.Get(ctx, profileKeyPrefix+profileID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return taskmodels.Profile{}, false, nil
	}
	if err != nil {
		return taskmodels.Profile{}, false, fmt.Errorf("get cached profile: %w", err)
	}
	var p taskmodels.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return taskmodels.Profile{}, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return p, true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile taskmodels.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return c.client.Set(ctx, profileKeyPrefix+profile.ID.String(), raw, c.ttl).Err()
}

func (c *RedisProfileCache) Delete(ctx context.Context, profileID id.ProfileID) error {
	return c.client.Del(ctx, profileKeyPrefix+profileID.String()).Err()
}
