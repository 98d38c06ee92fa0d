package repository

import (
	"context"
	"time"

	"BarLake/internal/domain/models"
)

// Schema lazily materializes per-symbol tables and their quarter partitions.
type Schema interface {
	TableName(symbol string) (string, error)
	EnsureTable(ctx context.Context, symbol string) (string, error)
	EnsurePartition(ctx context.Context, symbol string, date time.Time) (string, error)
}

// BarWriter inserts bars of one symbol in a single transaction, skipping
// rows whose (symbol, date, time) already exist. It returns the number
// of rows actually inserted.
type BarWriter interface {
	InsertBars(ctx context.Context, symbol string, bars []models.Bar) (int64, error)
}

// BarReader reads committed bars ordered by (date, time). A symbol with
// no table yields an empty result.
type BarReader interface {
	QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)
	QueryAll(ctx context.Context, symbol string) ([]models.Bar, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

type BarStore interface {
	BarWriter
	BarReader
	Health(ctx context.Context) error
}

// BarMirror replicates committed bars into a secondary analytics store.
type BarMirror interface {
	Mirror(ctx context.Context, bars []models.Bar) error
}

type EventPublisher interface {
	PublishIngested(ctx context.Context, ev models.IngestedEvent) error
	PublishRepaired(ctx context.Context, ev models.RepairedEvent) error
}

type Metrics interface {
	RecordBatch(source, outcome string, rows int)
	RecordRowsInserted(symbol string, n int64)
	RecordRejection(reason string)
	RecordCacheResult(result string)
	RecordQueryLatency(op string, seconds float64)
	RecordSlowQuery(symbol string)
	RecordDDL(object, outcome string)
	RecordGaps(symbol string, found, filled int)
	RecordError(kind string)
}
