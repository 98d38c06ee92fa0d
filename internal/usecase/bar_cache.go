package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
	"BarLake/pkg/apperr"
	"BarLake/pkg/cache"
	"BarLake/pkg/logger"
)

// BarCache is a read-through cache of range query results. Entries expire
// after the TTL; nothing invalidates them on write, so a range that
// includes the current day can be stale for up to one TTL.
type BarCache struct {
	cache   cache.Service
	ttl     time.Duration
	timeout time.Duration
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewBarCache(c cache.Service, ttl, timeout time.Duration, metrics domrepo.Metrics, l *logger.Logger) *BarCache {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BarCache{cache: c, ttl: ttl, timeout: timeout, metrics: metrics, logger: l}
}

// BarCacheKey is bars:<lower(symbol)>:<start>:<end>.
func BarCacheKey(symbol string, start, end time.Time) string {
	return cache.GenerateKeyWithParams("bars",
		strings.ToLower(strings.TrimSpace(symbol)),
		start.Format(models.DateLayout),
		end.Format(models.DateLayout),
	)
}

// Get returns the cached bars and true on a hit. Errors count as misses.
func (c *BarCache) Get(ctx context.Context, key string) ([]models.Bar, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		c.metrics.RecordCacheResult("miss")
		return nil, false
	}
	if err != nil {
		c.fail("get", key, err)
		return nil, false
	}

	var bars []models.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		c.fail("decode", key, err)
		return nil, false
	}
	c.metrics.RecordCacheResult("hit")
	return bars, true
}

// Set stores bars under key with the configured TTL. Failures are logged.
func (c *BarCache) Set(ctx context.Context, key string, bars []models.Bar) {
	if bars == nil {
		bars = []models.Bar{}
	}
	raw, err := json.Marshal(bars)
	if err != nil {
		c.fail("encode", key, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.fail("set", key, err)
	}
}

func (c *BarCache) fail(op, key string, err error) {
	c.metrics.RecordCacheResult("error")
	c.logger.Warn("cache error, treating as miss",
		logger.String("op", op),
		logger.String("key", key),
		logger.Error(apperr.Cache("cache."+op, err)),
	)
}
