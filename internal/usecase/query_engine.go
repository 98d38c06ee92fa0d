package usecase

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
	"BarLake/pkg/apperr"
	"BarLake/pkg/logger"
)

// QueryEngine serves range reads through the cache with a store fallback.
// Concurrent misses for the same key within one process share a single
// store query.
type QueryEngine struct {
	store   domrepo.BarReader
	cache   *BarCache
	metrics domrepo.Metrics
	logger  *logger.Logger
	slow    time.Duration
	timeout time.Duration
	group   singleflight.Group
}

type QueryOption func(*QueryEngine)

func WithSlowQueryThreshold(d time.Duration) QueryOption {
	return func(q *QueryEngine) {
		if d > 0 {
			q.slow = d
		}
	}
}

func WithStoreTimeout(d time.Duration) QueryOption {
	return func(q *QueryEngine) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueryEngine(store domrepo.BarReader, c *BarCache, metrics domrepo.Metrics, l *logger.Logger, opts ...QueryOption) *QueryEngine {
	q := &QueryEngine{
		store:   store,
		cache:   c,
		metrics: metrics,
		logger:  l,
		slow:    20 * time.Millisecond,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Fetch returns the bars of symbol with start <= date <= end ordered by
// (date, time). A symbol that was never ingested yields an empty slice.
func (q *QueryEngine) Fetch(ctx context.Context, symbol string, start, end time.Time, useCache bool) ([]models.Bar, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperr.Validation("fetch", "symbol is required")
	}
	if end.Before(start) {
		return nil, apperr.Validation("fetch", "end %s is before start %s",
			end.Format(models.DateLayout), start.Format(models.DateLayout))
	}

	key := BarCacheKey(symbol, start, end)
	if useCache && q.cache != nil {
		if bars, ok := q.cache.Get(ctx, key); ok {
			return bars, nil
		}
	}

	// The shared query outlives any single caller; it is bounded by the
	// store timeout only. Each caller still stops waiting on its own ctx.
	ch := q.group.DoChan(key, func() (interface{}, error) {
		return q.queryStore(context.WithoutCancel(ctx), symbol, start, end)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	bars := res.Val.([]models.Bar)
	if res.Shared {
		bars = slices.Clone(bars)
	}

	if useCache && q.cache != nil {
		q.cache.Set(ctx, key, bars)
	}
	return bars, nil
}

func (q *QueryEngine) queryStore(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	began := time.Now()
	bars, err := q.store.QueryRange(ctx, symbol, start, end)
	elapsed := time.Since(began)
	q.metrics.RecordQueryLatency("range", elapsed.Seconds())

	if err != nil {
		q.metrics.RecordError(string(apperr.KindOf(err)))
		q.logger.Error("range query failed",
			logger.String("symbol", symbol),
			logger.Duration("duration_ms", elapsed),
			logger.Error(err),
		)
		return nil, err
	}

	fields := []logger.Field{
		logger.String("symbol", symbol),
		logger.String("start", start.Format(models.DateLayout)),
		logger.String("end", end.Format(models.DateLayout)),
		logger.Int("rows", len(bars)),
		logger.Duration("duration_ms", elapsed),
	}
	if elapsed > q.slow {
		q.metrics.RecordSlowQuery(symbol)
		q.logger.Warn("slow range query", fields...)
	} else {
		q.logger.Debug("range query", fields...)
	}

	if bars == nil {
		bars = []models.Bar{}
	}
	return bars, nil
}

// Symbols lists every symbol that has a table.
func (q *QueryEngine) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.store.ListSymbols(ctx)
}
