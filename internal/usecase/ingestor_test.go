package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarLake/internal/domain/models"
	"BarLake/pkg/apperr"
)

func TestIngestBatchIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	raw := rawBatch(stdColumns,
		fmtRow("AAPL", "2024-01-02", "09:15:00", 187.1, 100),
		fmtRow("AAPL", "2024-01-02", "09:16:00", 187.2, 200),
		fmtRow("MSFT", "2024-01-02", "09:15:00", 370.5, 50),
	)

	first, err := f.ingestor.IngestBatch(ctx, raw)
	require.NoError(t, err)
	assert.True(t, first.Success())
	assert.Equal(t, int64(3), first.Inserted())

	second, err := f.ingestor.IngestBatch(ctx, raw)
	require.NoError(t, err)
	assert.True(t, second.Success())
	assert.Equal(t, int64(0), second.Inserted())

	assert.Equal(t, 2, f.store.count("AAPL"))
	assert.Equal(t, 1, f.store.count("MSFT"))
	assert.Len(t, f.events.ingested, 2, "no event when nothing was inserted")
	assert.Len(t, f.mirror.bars, 3)
}

func TestIngestBatchRejectionTouchesNothing(t *testing.T) {
	f := newFixture()
	raw := rawBatch(stdColumns,
		fmtRow("AAPL", "2024-01-02", "09:15:00", 187.1, 100),
		row("AAPL", "2024-01-02", "09:16:00", "oops", "1", "1", "1", "1"),
	)

	report, err := f.ingestor.IngestBatch(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNullValues)
	assert.False(t, report.Accepted)
	assert.NotEmpty(t, report.Reason)

	assert.Equal(t, 0, f.schema.calls())
	assert.Equal(t, 0, f.store.inserts)
	assert.Equal(t, 1, f.metrics.get("reject:nulls"))
	assert.Equal(t, 1, f.metrics.get("batch:rejected"))
}

func TestIngestBatchMissingColumns(t *testing.T) {
	f := newFixture()
	raw := rawBatch([]string{"symbol", "date"}, row("AAPL", "2024-01-02"))

	report, err := f.ingestor.IngestBatch(context.Background(), raw)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.False(t, report.Accepted)
	assert.Equal(t, 0, f.store.inserts)
}

func TestIngestBatchIsolatesSymbolFailures(t *testing.T) {
	f := newFixture()
	f.store.failInsert["MSFT"] = apperr.Storage("insert", "MSFT", errors.New("connection reset"), true)

	raw := rawBatch(stdColumns,
		fmtRow("AAPL", "2024-01-02", "09:15:00", 187.1, 100),
		fmtRow("MSFT", "2024-01-02", "09:15:00", 370.5, 50),
		fmtRow("NVDA", "2024-01-02", "09:15:00", 480.0, 75),
	)

	report, err := f.ingestor.IngestBatch(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, report.Accepted)
	assert.False(t, report.Success())
	assert.True(t, report.Partial())
	assert.Equal(t, []string{"MSFT"}, report.FailedSymbols())
	assert.True(t, apperr.IsRetryable(report.Err()))

	assert.Equal(t, 1, f.store.count("AAPL"))
	assert.Equal(t, 0, f.store.count("MSFT"))
	assert.Equal(t, 1, f.store.count("NVDA"))
	assert.Equal(t, 1, f.metrics.get("batch:partial"))
}

func TestIngestBatchSchemaFailureSkipsGroup(t *testing.T) {
	f := newFixture()
	f.schema.fail["BAD"] = apperr.Schema("ensure table", "BAD", errors.New("owned by another symbol"))

	raw := rawBatch(stdColumns,
		fmtRow("AAPL", "2024-01-02", "09:15:00", 187.1, 100),
		fmtRow("BAD", "2024-01-02", "09:15:00", 1, 1),
	)
	report, err := f.ingestor.IngestBatch(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"BAD"}, report.FailedSymbols())
	assert.Equal(t, 1, f.store.inserts)
}

func TestIngestBatchEnsuresPartitionPerDistinctDate(t *testing.T) {
	f := newFixture()
	raw := rawBatch(stdColumns,
		fmtRow("AAPL", "2024-03-29", "15:59:00", 1, 1),
		fmtRow("AAPL", "2024-04-01", "09:15:00", 1, 1),
		fmtRow("AAPL", "2024-04-01", "09:16:00", 1, 1),
	)

	_, err := f.ingestor.IngestBatch(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, f.schema.tables)
	assert.Equal(t, []string{"2024-03-29", "2024-04-01"}, f.schema.partitions["AAPL"])
}

func TestIngestBarsFlagsSynthetic(t *testing.T) {
	f := newFixture()
	bars := []models.Bar{
		bar("aapl", "2024-01-02", "09:02:00", "1.00", 10),
		bar("aapl", "2024-01-02", "09:03:00", "1.00", 10),
	}

	report, err := f.ingestor.IngestBars(context.Background(), "repair:AAPL", bars, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Inserted())
	require.Len(t, f.events.ingested, 1)
	assert.True(t, f.events.ingested[0].Synthetic)
	assert.Equal(t, "AAPL", f.events.ingested[0].Symbol)
	assert.Equal(t, 2, f.store.count("AAPL"))
}

func TestIngestBarsRejectsDuplicates(t *testing.T) {
	f := newFixture()
	b := bar("AAPL", "2024-01-02", "09:02:00", "1.00", 10)

	_, err := f.ingestor.IngestBars(context.Background(), "repair:AAPL", []models.Bar{b, b}, true)
	assert.ErrorIs(t, err, ErrDuplicateRows)
	assert.Equal(t, 0, f.store.inserts)
}

func TestSourceKind(t *testing.T) {
	assert.Equal(t, "file", sourceKind("file:AAPL.csv"))
	assert.Equal(t, "upload", sourceKind("upload"))
	assert.Equal(t, "unknown", sourceKind(""))
}
