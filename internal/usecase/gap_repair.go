package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
	"BarLake/pkg/logger"
)

// Locker is a best-effort distributed lock; pkg/cache services satisfy it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// GapRepairer reads a symbol's bars, detects gaps, synthesizes the missing
// bars and re-ingests them through the Ingestor.
type GapRepairer struct {
	store       domrepo.BarReader
	ingestor    *Ingestor
	detector    *GapDetector
	filler      *GapFiller
	locker      Locker
	events      domrepo.EventPublisher
	metrics     domrepo.Metrics
	logger      *logger.Logger
	lockTTL     time.Duration
	parallelism int
	now         func() time.Time
}

type RepairOption func(*GapRepairer)

// WithLocker prevents two workers repairing the same symbol at once.
func WithLocker(l Locker, ttl time.Duration) RepairOption {
	return func(r *GapRepairer) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func WithParallelism(n int) RepairOption {
	return func(r *GapRepairer) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func WithRepairClock(now func() time.Time) RepairOption {
	return func(r *GapRepairer) { r.now = now }
}

func NewGapRepairer(
	store domrepo.BarReader,
	ingestor *Ingestor,
	detector *GapDetector,
	filler *GapFiller,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *logger.Logger,
	opts ...RepairOption,
) *GapRepairer {
	r := &GapRepairer{
		store:       store,
		ingestor:    ingestor,
		detector:    detector,
		filler:      filler,
		events:      events,
		metrics:     metrics,
		logger:      l,
		lockTTL:     5 * time.Minute,
		parallelism: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func repairLockKey(symbol string) string {
	return "lock:repair:" + strings.ToLower(symbol)
}

// DetectAndRepairGaps repairs one symbol. If another worker holds the
// symbol's lock the report is marked Skipped and no error is returned.
func (r *GapRepairer) DetectAndRepairGaps(ctx context.Context, symbol string) (*models.RepairReport, error) {
	symbol = models.NormalizeSymbol(symbol)
	report := &models.RepairReport{Symbol: symbol}

	if r.locker != nil {
		key := repairLockKey(symbol)
		token, ok, err := r.locker.TryLock(ctx, key, r.lockTTL)
		switch {
		case err != nil:
			r.metrics.RecordCacheResult("error")
			r.logger.Warn("repair lock unavailable, continuing without it",
				logger.String("symbol", symbol), logger.Error(err))
		case !ok:
			report.Skipped = true
			r.logger.Info("repair already running", logger.String("symbol", symbol))
			return report, nil
		default:
			defer func() {
				if err := r.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					r.logger.Warn("repair unlock failed", logger.String("symbol", symbol), logger.Error(err))
				}
			}()
		}
	}

	bars, err := r.store.QueryAll(ctx, symbol)
	if err != nil {
		return report, err
	}
	report.Scanned = len(bars)

	gaps := r.detector.DetectGaps(bars)
	report.Gaps = len(gaps)
	if len(gaps) == 0 {
		r.metrics.RecordGaps(symbol, 0, 0)
		r.logger.Debug("no gaps", logger.String("symbol", symbol), logger.Int("bars", len(bars)))
		return report, nil
	}

	synthetic := r.filler.FillGaps(bars, gaps)
	report.Synthesized = len(synthetic)
	r.logger.Info("gaps detected",
		logger.String("symbol", symbol),
		logger.Int("gaps", len(gaps)),
		logger.Int("synthetic", len(synthetic)),
	)
	if len(synthetic) == 0 {
		r.metrics.RecordGaps(symbol, len(gaps), 0)
		return report, nil
	}

	ingest, err := r.ingestor.IngestBars(ctx, "repair:"+symbol, synthetic, true)
	if err != nil {
		return report, err
	}
	if err := ingest.Err(); err != nil {
		return report, err
	}
	report.Inserted = ingest.Inserted()
	r.metrics.RecordGaps(symbol, len(gaps), int(report.Inserted))

	report.Synthetic = make([]time.Time, 0, len(synthetic))
	for _, b := range synthetic {
		report.Synthetic = append(report.Synthetic, b.Timestamp())
	}

	ev := models.RepairedEvent{
		Symbol:     symbol,
		Gaps:       len(gaps),
		Inserted:   report.Inserted,
		Synthetic:  report.Synthetic,
		OccurredAt: r.now().UTC(),
	}
	if err := r.events.PublishRepaired(ctx, ev); err != nil {
		r.metrics.RecordError("publish")
		r.logger.Warn("publish repaired event failed", logger.String("symbol", symbol), logger.Error(err))
	}
	return report, nil
}

// RepairAll repairs every known symbol with bounded parallelism. One
// symbol failing does not stop the others; the failures are joined.
func (r *GapRepairer) RepairAll(ctx context.Context) ([]*models.RepairReport, error) {
	symbols, err := r.store.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	var (
		mu      sync.Mutex
		reports = make([]*models.RepairReport, len(symbols))
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(r.parallelism)

	for i, symbol := range symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rep, err := r.DetectAndRepairGaps(ctx, symbol)
			reports[i] = rep
			if err != nil {
				r.logger.Error("repair failed", logger.String("symbol", symbol), logger.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := reports[:0]
	for _, rep := range reports {
		if rep != nil {
			out = append(out, rep)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}
