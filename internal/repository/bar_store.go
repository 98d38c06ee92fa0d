package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"BarLake/internal/domain/models"
	"BarLake/internal/domain/repository"
	"BarLake/pkg/apperr"
	"BarLake/pkg/logger"
	"BarLake/pkg/postgresql"
)

const (
	defaultInsertChunk = 2000
	columnsPerRow      = 8
	// bind parameters per statement are capped at 65535
	maxInsertChunk = 65535 / columnsPerRow
)

var _ repository.BarStore = (*PGBarStore)(nil)

// PGBarStore reads and writes bars in the per-symbol partitioned tables.
type PGBarStore struct {
	db     *postgresql.Client
	schema *SchemaManager
	chunk  int
	logger *logger.Logger
}

func NewPGBarStore(db *postgresql.Client, schema *SchemaManager, l *logger.Logger, chunk int) *PGBarStore {
	if chunk <= 0 {
		chunk = defaultInsertChunk
	}
	if chunk > maxInsertChunk {
		chunk = maxInsertChunk
	}
	return &PGBarStore{db: db, schema: schema, chunk: chunk, logger: l}
}

// InsertBars writes all bars of one symbol in a single transaction.
// Rows whose key already exists are skipped.
func (s *PGBarStore) InsertBars(ctx context.Context, symbol string, bars []models.Bar) (int64, error) {
	symbol = models.NormalizeSymbol(symbol)
	table, err := s.schema.TableName(symbol)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	for _, b := range bars {
		if models.NormalizeSymbol(b.Symbol) != symbol {
			return 0, apperr.Validation("insert_bars", "bar for %q in %s group", b.Symbol, symbol)
		}
	}

	var inserted int64
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		inserted = 0
		for start := 0; start < len(bars); start += s.chunk {
			end := min(start+s.chunk, len(bars))
			q, args := buildInsert(table, bars[start:end])
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		if postgresql.IsUndefinedTable(err) {
			// dropped behind our back; make the next EnsureTable look again
			s.schema.Forget(symbol)
		}
		return 0, apperr.Storage("insert_bars", symbol, err, postgresql.IsTransient(err))
	}
	return inserted, nil
}

func buildInsert(table string, bars []models.Bar) (string, []any) {
	var sb strings.Builder
	sb.Grow(96 + len(bars)*160)
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (symbol, date, time, open, high, low, close, volume) VALUES ")

	args := make([]any, 0, len(bars)*columnsPerRow)
	for i, b := range bars {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * columnsPerRow
		fmt.Fprintf(&sb,
			"($%d, $%d::text::date, $%d::text::time, $%d::text::numeric, $%d::text::numeric, $%d::text::numeric, $%d::text::numeric, $%d::bigint)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8)
		args = append(args,
			models.NormalizeSymbol(b.Symbol),
			b.Date.Format(models.DateLayout),
			b.Time.String(),
			b.Open.StringFixed(2),
			b.High.StringFixed(2),
			b.Low.StringFixed(2),
			b.Close.StringFixed(2),
			b.Volume,
		)
	}
	sb.WriteString(" ON CONFLICT (symbol, date, time) DO NOTHING")
	return sb.String(), args
}

const selectColumns = "symbol, date::text, time::text, open::text, high::text, low::text, close::text, volume"

// QueryRange returns bars with start <= date <= end ordered by (date, time).
func (s *PGBarStore) QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	symbol = models.NormalizeSymbol(symbol)
	table, err := s.schema.TableName(symbol)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = $1 AND date BETWEEN $2::text::date AND $3::text::date ORDER BY date, time",
		selectColumns, pgx.Identifier{table}.Sanitize())
	return s.query(ctx, "query_range", symbol, q, symbol, start.Format(models.DateLayout), end.Format(models.DateLayout))
}

func (s *PGBarStore) QueryAll(ctx context.Context, symbol string) ([]models.Bar, error) {
	symbol = models.NormalizeSymbol(symbol)
	table, err := s.schema.TableName(symbol)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = $1 ORDER BY date, time",
		selectColumns, pgx.Identifier{table}.Sanitize())
	return s.query(ctx, "query_all", symbol, q, symbol)
}

func (s *PGBarStore) query(ctx context.Context, op, symbol, q string, args ...any) ([]models.Bar, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		if postgresql.IsUndefinedTable(err) {
			return []models.Bar{}, nil
		}
		return nil, apperr.Storage(op, symbol, err, postgresql.IsTransient(err))
	}
	defer rows.Close()

	bars := []models.Bar{}
	for rows.Next() {
		var sym, date, clock, open, high, low, closePrice string
		var volume int64
		if err := rows.Scan(&sym, &date, &clock, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, apperr.Storage(op, symbol, fmt.Errorf("scan: %w", err), false)
		}
		bar, err := decodeBar(sym, date, clock, open, high, low, closePrice, volume)
		if err != nil {
			return nil, apperr.Storage(op, symbol, err, false)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		if postgresql.IsUndefinedTable(err) {
			return []models.Bar{}, nil
		}
		return nil, apperr.Storage(op, symbol, err, postgresql.IsTransient(err))
	}
	return bars, nil
}

func decodeBar(symbol, date, clock, open, high, low, closePrice string, volume int64) (models.Bar, error) {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return models.Bar{}, fmt.Errorf("decode date %q: %w", date, err)
	}
	c, err := models.ParseClock(clock)
	if err != nil {
		return models.Bar{}, err
	}
	prices := make([]decimal.Decimal, 4)
	for i, v := range []string{open, high, low, closePrice} {
		if prices[i], err = decimal.NewFromString(v); err != nil {
			return models.Bar{}, fmt.Errorf("decode price %q: %w", v, err)
		}
	}
	return models.Bar{
		Symbol: symbol,
		Date:   d,
		Time:   c,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, nil
}

// ListSymbols returns every symbol that has a table.
func (s *PGBarStore) ListSymbols(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT symbol FROM %s ORDER BY symbol", pgx.Identifier{s.schema.RegistryTable()}.Sanitize())
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		if postgresql.IsUndefinedTable(err) {
			return []string{}, nil
		}
		return nil, apperr.Storage("list_symbols", "", err, postgresql.IsTransient(err))
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Storage("list_symbols", "", err, postgresql.IsTransient(err))
	}
	return symbols, nil
}

func (s *PGBarStore) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}
