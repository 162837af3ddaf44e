package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"venuehub/internal/app/profiles"
)

const profileKeyPrefix = "profile:"

// ProfileCache is a read-through cache in front of a profile source.
// Missing profiles are not cached.
type ProfileCache struct {
	client *redis.Client
	next   profiles.Source
	ttl    time.Duration
	logger *slog.Logger
}

func NewProfileCache(client *redis.Client, next profiles.Source, ttl time.Duration, logger *slog.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProfileCache{client: client, next: next, ttl: ttl, logger: logger}
}

func (c *ProfileCache) Profile(ctx context.Context, userID string) (profiles.Profile, error) {
	key := profileKeyPrefix + userID
	if c.client != nil {
		cached, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var p profiles.Profile
			if jsonErr := json.Unmarshal([]byte(cached), &p); jsonErr == nil {
				return p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("profile cache read failed", "user_id", userID, "error", err)
		}
	}

	p, err := c.next.Profile(ctx, userID)
	if err != nil {
		return profiles.Profile{}, err
	}

	if c.client != nil {
		payload, err := json.Marshal(p)
		if err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("profile cache write failed", "user_id", userID, "error", err)
			}
		}
	}
	return p, nil
}

// Invalidate drops the cached profile of userID.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, profileKeyPrefix+userID).Err()
}

var _ profiles.Source = (*ProfileCache)(nil)
