// Package cache keeps read-through event snapshots in Redis. Every failure
// is treated as a miss; the database stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
)

const keyPrefix = "events:event:"

// EventCache stores serialized events under events:event:<id>.
type EventCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// New wraps a Redis client. A non-positive ttl defaults to 30 seconds.
func New(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *EventCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EventCache{rdb: rdb, ttl: ttl, logger: logger}
}

func key(id string) string {
	return keyPrefix + id
}

// GetEvent returns the cached event, if any.
func (c *EventCache) GetEvent(ctx context.Context, id string) (*model.Event, bool) {
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "event_id", id, "error", err)
		}
		return nil, false
	}
	var ev model.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Warn("cache entry corrupt", "event_id", id, "error", err)
		return nil, false
	}
	return &ev, true
}

// SetEvent stores ev until the ttl runs out or it is invalidated.
func (c *EventCache) SetEvent(ctx context.Context, ev *model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(ev.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "event_id", ev.ID, "error", err)
	}
}

// Invalidate drops the snapshot of id.
func (c *EventCache) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, key(id)).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "event_id", id, "error", err)
	}
}
