package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how stale a cached subject record may be. Condition
// evaluation tolerates slightly stale reads; writes invalidate immediately.
const DefaultCacheTTL = 5 * time.Minute

// CachedStore decorates a Store with a redis read cache on Get. Tag writes
// invalidate the cached record so a freshly tagged subject is re-read.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps inner with a redis cache. A non-positive ttl falls
// back to DefaultCacheTTL.
func NewCachedStore(inner Store, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "subject_cache"),
	}
}

func cacheKey(tenantID, id string) string {
	return fmt.Sprintf("careloop:subject:%s:%s", tenantID, id)
}

// Get serves from redis when possible; cache failures degrade to the inner
// store rather than failing the read.
func (c *CachedStore) Get(ctx context.Context, tenantID, id string) (map[string]any, error) {
	key := cacheKey(tenantID, id)

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var record map[string]any
		if unmarshalErr := json.Unmarshal(cached, &record); unmarshalErr == nil {
			return record, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Subject cache read failed, falling through", "error", err, "key", key)
	}

	record, err := c.inner.Get(ctx, tenantID, id)
	if err != nil || record == nil {
		return record, err
	}

	payload, err := json.Marshal(record)
	if err == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("Subject cache write failed", "error", setErr, "key", key)
		}
	}

	return record, nil
}

// ApplyTag writes through and invalidates the cached record.
func (c *CachedStore) ApplyTag(ctx context.Context, tenantID, id, tag string) error {
	err := c.inner.ApplyTag(ctx, tenantID, id, tag)
	if err != nil {
		return err
	}

	if delErr := c.client.Del(ctx, cacheKey(tenantID, id)).Err(); delErr != nil {
		c.logger.Warn("Subject cache invalidation failed", "error", delErr, "subject_id", id)
	}

	return nil
}

// CreateTask passes through; tasks are not part of the cached record.
func (c *CachedStore) CreateTask(ctx context.Context, tenantID string, task Task) error {
	return c.inner.CreateTask(ctx, tenantID, task)
}

// LastVisits passes through; the poller reads this once per sweep.
func (c *CachedStore) LastVisits(ctx context.Context, tenantID string) ([]LastVisit, error) {
	return c.inner.LastVisits(ctx, tenantID)
}

// BirthdaysOn passes through.
func (c *CachedStore) BirthdaysOn(ctx context.Context, tenantID string, month time.Month, day int) ([]string, error) {
	return c.inner.BirthdaysOn(ctx, tenantID, month, day)
}

var _ Store = (*CachedStore)(nil)
