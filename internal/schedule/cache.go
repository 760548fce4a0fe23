package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCache caches resolved days in Redis. Availability reads hit the
// resolver on every booking screen; the cache keeps rule/constraint scans
// off the hot path. Misses and Redis failures fall through to storage.
type WindowCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewWindowCache(client *redis.Client, ttl time.Duration) *WindowCache {
	return &WindowCache{client: client, ttl: ttl}
}

func cacheKey(date string, providerID int64) string {
	return fmt.Sprintf("windows:%s:%d", date, providerID)
}

func (c *WindowCache) Get(ctx context.Context, date string, providerID int64) (*DayWindows, bool) {
	if c.client == nil || c.ttl <= 0 {
		return nil, false
	}
	val, err := c.client.Get(ctx, cacheKey(date, providerID)).Result()
	if err != nil {
		return nil, false
	}
	var day DayWindows
	if err := json.Unmarshal([]byte(val), &day); err != nil {
		return nil, false
	}
	return &day, true
}

func (c *WindowCache) Put(ctx context.Context, date string, providerID int64, day *DayWindows) {
	if c.client == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(day)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(date, providerID), data, c.ttl).Err()
}

// Invalidate drops the cached windows for one (date, provider) pair.
// Hours edits and constraint changes call this before readers re-resolve.
func (c *WindowCache) Invalidate(ctx context.Context, date string, providerID int64) {
	if c.client == nil {
		return
	}
	_ = c.client.Del(ctx, cacheKey(date, providerID)).Err()
}

// InvalidateDate drops cached windows for a date across all providers.
func (c *WindowCache) InvalidateDate(ctx context.Context, date string) {
	if c.client == nil {
		return
	}
	c.invalidatePattern(ctx, fmt.Sprintf("windows:%s:*", date))
}

// InvalidateProvider drops cached windows for a provider across all dates.
// A weekly-rule edit affects every future date on that weekday, so the
// whole provider slice goes.
func (c *WindowCache) InvalidateProvider(ctx context.Context, providerID int64) {
	if c.client == nil {
		return
	}
	c.invalidatePattern(ctx, fmt.Sprintf("windows:*:%d", providerID))
}

func (c *WindowCache) invalidatePattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
