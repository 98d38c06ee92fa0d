package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
	"BarLake/pkg/apperr"
	"BarLake/pkg/logger"
)

// Ingestor runs Cleaner, Validator and SchemaManager, then inserts the
// accepted rows one symbol group at a time. Each group is its own
// transaction; a failing group does not affect the others.
type Ingestor struct {
	cleaner   *Cleaner
	validator *Validator
	schema    domrepo.Schema
	store     domrepo.BarWriter
	mirror    domrepo.BarMirror
	events    domrepo.EventPublisher
	metrics   domrepo.Metrics
	logger    *logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

type IngestorOption func(*Ingestor)

// WithMirror copies committed bars to a secondary store. Mirror failures
// are logged and do not fail the group.
func WithMirror(m domrepo.BarMirror) IngestorOption {
	return func(i *Ingestor) { i.mirror = m }
}

// WithGroupTimeout bounds the work done for one symbol group.
func WithGroupTimeout(d time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func WithIngestClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

func NewIngestor(
	schema domrepo.Schema,
	store domrepo.BarWriter,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *logger.Logger,
	opts ...IngestorOption,
) *Ingestor {
	i := &Ingestor{
		cleaner:   NewCleaner(),
		validator: NewValidator(),
		schema:    schema,
		store:     store,
		events:    events,
		metrics:   metrics,
		logger:    l,
		timeout:   30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestBatch cleans, validates and stores one raw batch. A rejected
// batch returns a report with Accepted=false and the validation error;
// storage is not touched. Per-symbol storage failures are recorded in
// the report, not returned.
func (i *Ingestor) IngestBatch(ctx context.Context, raw models.RawBatch) (*models.IngestReport, error) {
	start := i.now()
	report := &models.IngestReport{Source: raw.Source, Rows: raw.Len()}

	clean, err := i.cleaner.Clean(raw)
	if err == nil {
		err = i.validator.Validate(clean)
	}
	if err != nil {
		i.reject(report, err, start)
		return report, err
	}

	i.insertGroups(ctx, report, clean.Bars(), clean.Synthetic)
	i.finish(report, start)
	return report, nil
}

// IngestBars re-validates typed bars and stores them through the same
// path as IngestBatch. Gap repair uses it with synthetic=true.
func (i *Ingestor) IngestBars(ctx context.Context, source string, bars []models.Bar, synthetic bool) (*models.IngestReport, error) {
	start := i.now()
	report := &models.IngestReport{Source: source, Rows: len(bars)}

	batch := models.CleanBatch{Source: source, Synthetic: synthetic, Rows: make([]models.CleanRow, 0, len(bars))}
	for _, b := range bars {
		b.Symbol = models.NormalizeSymbol(b.Symbol)
		batch.Rows = append(batch.Rows, models.RowFromBar(b))
	}
	if err := i.validator.Validate(batch); err != nil {
		i.reject(report, err, start)
		return report, err
	}

	i.insertGroups(ctx, report, batch.Bars(), synthetic)
	i.finish(report, start)
	return report, nil
}

func (i *Ingestor) reject(report *models.IngestReport, err error, start time.Time) {
	report.Accepted = false
	report.Reason = err.Error()
	report.Duration = i.now().Sub(start)

	i.metrics.RecordRejection(RejectionReason(err))
	i.metrics.RecordBatch(sourceKind(report.Source), "rejected", report.Rows)
	i.logger.Warn("batch rejected",
		logger.String("source", report.Source),
		logger.Int("rows", report.Rows),
		logger.String("reason", report.Reason),
	)
}

func (i *Ingestor) finish(report *models.IngestReport, start time.Time) {
	report.Duration = i.now().Sub(start)

	outcome := "success"
	switch {
	case report.Partial():
		outcome = "partial"
	case !report.Success():
		outcome = "failed"
	}
	i.metrics.RecordBatch(sourceKind(report.Source), outcome, report.Rows)

	fields := []logger.Field{
		logger.String("source", report.Source),
		logger.Int("rows", report.Rows),
		logger.Int64("inserted", report.Inserted()),
		logger.Int("symbols", len(report.Symbols)),
		logger.Duration("duration_ms", report.Duration),
	}
	if failed := report.FailedSymbols(); len(failed) > 0 {
		i.logger.Warn("batch ingested with failures", append(fields, logger.Strings("failed", failed))...)
		return
	}
	i.logger.Info("batch ingested", fields...)
}

// insertGroups groups bars by symbol in sorted order and writes each group.
func (i *Ingestor) insertGroups(ctx context.Context, report *models.IngestReport, bars []models.Bar, synthetic bool) {
	report.Accepted = true

	groups := make(map[string][]models.Bar)
	for _, b := range bars {
		groups[b.Symbol] = append(groups[b.Symbol], b)
	}
	symbols := make([]string, 0, len(groups))
	for s := range groups {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		group := groups[symbol]
		outcome := models.SymbolOutcome{Symbol: symbol, Offered: len(group)}

		if err := ctx.Err(); err != nil {
			outcome.Err = err
			report.Symbols = append(report.Symbols, outcome)
			continue
		}

		n, err := i.ingestGroup(ctx, symbol, group)
		outcome.Inserted = n
		outcome.Err = err
		report.Symbols = append(report.Symbols, outcome)

		if err != nil {
			i.metrics.RecordError(string(apperr.KindOf(err)))
			i.logger.Error("symbol group skipped",
				logger.String("source", report.Source),
				logger.String("symbol", symbol),
				logger.Int("rows", len(group)),
				logger.Bool("retryable", apperr.IsRetryable(err)),
				logger.Error(err),
			)
			continue
		}

		i.metrics.RecordRowsInserted(symbol, n)
		i.afterCommit(ctx, report.Source, symbol, group, n, synthetic)
	}
}

func (i *Ingestor) ingestGroup(ctx context.Context, symbol string, bars []models.Bar) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if _, err := i.schema.EnsureTable(ctx, symbol); err != nil {
		return 0, err
	}

	seen := make(map[time.Time]struct{})
	for _, b := range bars {
		if _, ok := seen[b.Date]; ok {
			continue
		}
		seen[b.Date] = struct{}{}
		if _, err := i.schema.EnsurePartition(ctx, symbol, b.Date); err != nil {
			return 0, err
		}
	}

	return i.store.InsertBars(ctx, symbol, bars)
}

func (i *Ingestor) afterCommit(ctx context.Context, source, symbol string, bars []models.Bar, inserted int64, synthetic bool) {
	if inserted == 0 {
		return
	}

	if i.mirror != nil {
		if err := i.mirror.Mirror(ctx, bars); err != nil {
			i.metrics.RecordError("mirror")
			i.logger.Warn("mirror failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}

	first, last := bars[0].Timestamp(), bars[0].Timestamp()
	for _, b := range bars[1:] {
		ts := b.Timestamp()
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}

	ev := models.IngestedEvent{
		Source:     source,
		Symbol:     symbol,
		Rows:       len(bars),
		Inserted:   inserted,
		From:       first.Format(time.RFC3339),
		To:         last.Format(time.RFC3339),
		Synthetic:  synthetic,
		OccurredAt: i.now().UTC(),
	}
	if err := i.events.PublishIngested(ctx, ev); err != nil {
		i.metrics.RecordError("publish")
		i.logger.Warn("publish ingested event failed", logger.String("symbol", symbol), logger.Error(err))
	}
}

// sourceKind trims a source such as "file:AAPL.csv" to "file" for metric
// labels.
func sourceKind(source string) string {
	if k, _, ok := strings.Cut(source, ":"); ok {
		return k
	}
	if source == "" {
		return "unknown"
	}
	return source
}
