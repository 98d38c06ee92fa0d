package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
	pkgch "BarLake/pkg/clickhouse"
	applogger "BarLake/pkg/logger"
)

var chIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ domrepo.BarMirror = (*CHBarMirror)(nil)

// CHBarMirror copies committed bars into ClickHouse for the analytics
// side. ReplacingMergeTree collapses rows re-sent for the same key.
type CHBarMirror struct {
	db    *sql.DB
	table string
	chunk int
	l     *applogger.Logger
}

func NewCHBarMirror(ch *pkgch.Client, l *applogger.Logger) (*CHBarMirror, error) {
	if !chIdent.MatchString(ch.Database()) {
		return nil, fmt.Errorf("invalid clickhouse database name %q", ch.Database())
	}
	return &CHBarMirror{
		db:    ch.DB(),
		table: ch.Database() + ".bars",
		chunk: defaultInsertChunk,
		l:     l,
	}, nil
}

func (m *CHBarMirror) Schema() []string {
	db := strings.TrimSuffix(m.table, ".bars")
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol      LowCardinality(String),
	date        Date,
	time        String,
	ts          DateTime('UTC'),
	open        Decimal(12, 2),
	high        Decimal(12, 2),
	low         Decimal(12, 2),
	close       Decimal(12, 2),
	volume      Int64,
	synthetic   UInt8,
	ingested_at DateTime('UTC') DEFAULT now()
) ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY toStartOfQuarter(date)
ORDER BY (symbol, date, time)`, m.table),
	}
}

func (m *CHBarMirror) Mirror(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for start := 0; start < len(bars); start += m.chunk {
		end := min(start+m.chunk, len(bars))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*10)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			var synthetic uint8
			if b.Synthetic {
				synthetic = 1
			}
			args = append(args,
				b.Symbol,
				b.Date,
				b.Time.String(),
				b.Timestamp(),
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
				synthetic,
			)
		}

		q := fmt.Sprintf("INSERT INTO %s (symbol, date, time, ts, open, high, low, close, volume, synthetic) VALUES %s",
			m.table, strings.Join(values, ","))
		if _, err := m.db.ExecContext(ctx, q, args...); err != nil {
			if m.l != nil {
				m.l.Error("clickhouse mirror insert error",
					applogger.String("table", m.table),
					applogger.Int("rows", end-start),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("mirror bars: %w", err)
		}
	}
	return nil
}
