package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names of a bar batch.
const (
	ColSymbol = "symbol"
	ColDate   = "date"
	ColTime   = "time"
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

var CanonicalColumns = []string{ColSymbol, ColDate, ColTime, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// RawBatch is an untyped table as read from a file, message or upload.
// A nil cell is a null.
type RawBatch struct {
	Source  string
	Columns []string
	Rows    [][]*string
}

func (b RawBatch) Len() int { return len(b.Rows) }

// ColumnIndex finds a column by case-insensitive, trimmed name.
func (b RawBatch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

var nullTokens = map[string]struct{}{
	"": {}, "nan": {}, "null": {}, "none": {}, "na": {}, "n/a": {}, "nat": {}, "<na>": {}, "#n/a": {},
}

// Cell converts a textual value into a raw cell, mapping the usual null
// spellings to nil.
func Cell(s string) *string {
	if _, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]; ok {
		return nil
	}
	return &s
}

// CleanRow is a typed row. Nil fields are values that were missing or
// could not be coerced.
type CleanRow struct {
	Symbol *string
	Date   *time.Time
	Time   *Clock
	Open   *decimal.Decimal
	High   *decimal.Decimal
	Low    *decimal.Decimal
	Close  *decimal.Decimal
	Volume *int64
}

// NullColumns lists the canonical columns that are nil in r.
func (r CleanRow) NullColumns() []string {
	var cols []string
	if r.Symbol == nil {
		cols = append(cols, ColSymbol)
	}
	if r.Date == nil {
		cols = append(cols, ColDate)
	}
	if r.Time == nil {
		cols = append(cols, ColTime)
	}
	if r.Open == nil {
		cols = append(cols, ColOpen)
	}
	if r.High == nil {
		cols = append(cols, ColHigh)
	}
	if r.Low == nil {
		cols = append(cols, ColLow)
	}
	if r.Close == nil {
		cols = append(cols, ColClose)
	}
	if r.Volume == nil {
		cols = append(cols, ColVolume)
	}
	return cols
}

// Bar converts a complete row. ok is false if any field is nil.
func (r CleanRow) Bar() (Bar, bool) {
	if len(r.NullColumns()) > 0 {
		return Bar{}, false
	}
	return Bar{
		Symbol: *r.Symbol,
		Date:   *r.Date,
		Time:   *r.Time,
		Open:   *r.Open,
		High:   *r.High,
		Low:    *r.Low,
		Close:  *r.Close,
		Volume: *r.Volume,
	}, true
}

// RowFromBar is the inverse of CleanRow.Bar.
func RowFromBar(b Bar) CleanRow {
	return CleanRow{
		Symbol: &b.Symbol,
		Date:   &b.Date,
		Time:   &b.Time,
		Open:   &b.Open,
		High:   &b.High,
		Low:    &b.Low,
		Close:  &b.Close,
		Volume: &b.Volume,
	}
}

// CleanBatch is the cleaner's output and the validator's input.
type CleanBatch struct {
	Source string
	Rows   []CleanRow

	// Synthetic is set when every row was produced by gap repair.
	Synthetic bool
}

func (b CleanBatch) Len() int { return len(b.Rows) }

// Bars converts every row. It must only be called on a validated batch.
func (b CleanBatch) Bars() []Bar {
	bars := make([]Bar, 0, len(b.Rows))
	for _, r := range b.Rows {
		if bar, ok := r.Bar(); ok {
			bar.Synthetic = b.Synthetic
			bars = append(bars, bar)
		}
	}
	return bars
}
