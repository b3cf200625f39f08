package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FalsePositiveSet remembers message ids already classified as not-a-job-application.
type FalsePositiveSet interface {
	Contains(ctx context.Context, messageID string) (bool, error)
	Add(ctx context.Context, messageID string) error
}

// FalsePositiveStore is the durable backing of the set.
type FalsePositiveStore interface {
	FalsePositiveSet
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachedFalsePositives reads through Redis in front of the store.
// Redis failures fall back to the store.
type CachedFalsePositives struct {
	store     FalsePositiveStore
	rdb       *redis.Client
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewCachedFalsePositives builds the set; rdb may be nil to disable caching.
func NewCachedFalsePositives(store FalsePositiveStore, rdb *redis.Client, retention time.Duration, logger *zap.Logger) *CachedFalsePositives {
	return &CachedFalsePositives{
		store:     store,
		rdb:       rdb,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func cacheKey(messageID string) string {
	return fmt.Sprintf("fp:%s", messageID)
}

func (c *CachedFalsePositives) Contains(ctx context.Context, messageID string) (bool, error) {
	if c.rdb != nil {
		n, err := c.rdb.Exists(ctx, cacheKey(messageID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			c.logger.Warn("Redis false-positive lookup failed, using store",
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
	}

	ok, err := c.store.Contains(ctx, messageID)
	if err != nil {
		return false, err
	}
	if ok {
		c.cache(ctx, messageID)
	}
	return ok, nil
}

func (c *CachedFalsePositives) Add(ctx context.Context, messageID string) error {
	if err := c.store.Add(ctx, messageID); err != nil {
		return err
	}
	c.cache(ctx, messageID)
	return nil
}

func (c *CachedFalsePositives) cache(ctx context.Context, messageID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(messageID), 1, c.retention).Err(); err != nil {
		c.logger.Warn("Failed to cache false positive",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// Prune drops store entries older than the retention window. Cached keys
// expire on their own after the same window.
func (c *CachedFalsePositives) Prune(ctx context.Context) (int64, error) {
	if c.retention <= 0 {
		return 0, nil
	}
	n, err := c.store.PruneOlderThan(ctx, c.now().Add(-c.retention))
	if err != nil {
		return 0, fmt.Errorf("prune false positives: %w", err)
	}
	if n > 0 {
		c.logger.Info("Pruned false positives", zap.Int64("count", n))
	}
	return n, nil
}
