package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"BarLake/internal/domain/models"
	"BarLake/pkg/apperr"
	"BarLake/pkg/util"
)

// columnAliases maps lowercased, trimmed header names onto canonical
// columns.
var columnAliases = map[string]string{
	"symbol": models.ColSymbol, "ticker": models.ColSymbol, "sym": models.ColSymbol,
	"date": models.ColDate, "trade_date": models.ColDate, "day": models.ColDate,
	"time": models.ColTime, "trade_time": models.ColTime,
	"open": models.ColOpen, "open_price": models.ColOpen, "o": models.ColOpen,
	"high": models.ColHigh, "high_price": models.ColHigh, "h": models.ColHigh,
	"low": models.ColLow, "low_price": models.ColLow, "l": models.ColLow,
	"close": models.ColClose, "close_price": models.ColClose, "c": models.ColClose,
	"volume": models.ColVolume, "vol": models.ColVolume, "v": models.ColVolume,
}

// Cleaner turns a raw batch into typed rows. The steps run in a fixed
// order: null and duplicate rows are dropped on the raw text, then columns
// are mapped, then values are coerced. A value that fails coercion becomes
// a nil field and the row is kept, so the validator rejects the batch.
type Cleaner struct{}

func NewCleaner() *Cleaner { return &Cleaner{} }

// Clean never mutates raw. When a canonical column is missing it returns
// an empty batch and a validation error, leaving raw as it was.
func (c *Cleaner) Clean(raw models.RawBatch) (models.CleanBatch, error) {
	out := models.CleanBatch{Source: raw.Source}
	if raw.Len() == 0 {
		return out, nil
	}

	rows := dropIncompleteRows(raw)

	index, err := mapColumns(raw.Columns)
	if err != nil {
		return out, err
	}

	out.Rows = make([]models.CleanRow, 0, len(rows))
	for _, r := range rows {
		out.Rows = append(out.Rows, coerceRow(r, index))
	}
	return out, nil
}

func dropIncompleteRows(raw models.RawBatch) [][]*string {
	seen := make(map[string]struct{}, len(raw.Rows))
	out := make([][]*string, 0, len(raw.Rows))

rows:
	for _, r := range raw.Rows {
		if len(r) < len(raw.Columns) {
			continue
		}
		var key strings.Builder
		for _, cell := range r[:len(raw.Columns)] {
			if cell == nil {
				continue rows
			}
			key.WriteString(*cell)
			key.WriteByte(0x1f)
		}
		k := key.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// mapColumns returns the raw index of every canonical column. The first
// header that maps to a canonical name wins.
func mapColumns(columns []string) (map[string]int, error) {
	index := make(map[string]int, len(models.CanonicalColumns))
	for i, name := range columns {
		canonical, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, taken := index[canonical]; !taken {
			index[canonical] = i
		}
	}

	var missing []string
	for _, col := range models.CanonicalColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperr.New(apperr.KindValidation, "clean",
			fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", ")))
	}
	return index, nil
}

// canonicalIndex is the raw index of the first column mapping to canonical,
// or -1.
func canonicalIndex(columns []string, canonical string) int {
	for i, name := range columns {
		if columnAliases[strings.ToLower(strings.TrimSpace(name))] == canonical {
			return i
		}
	}
	return -1
}

func coerceRow(r []*string, index map[string]int) models.CleanRow {
	cell := func(col string) string { return strings.TrimSpace(*r[index[col]]) }

	var row models.CleanRow
	if s := models.NormalizeSymbol(cell(models.ColSymbol)); s != "" {
		row.Symbol = &s
	}
	if d, ok := util.ParseDate(cell(models.ColDate)); ok {
		row.Date = &d
	}
	if clk, err := models.ParseClock(cell(models.ColTime)); err == nil {
		row.Time = &clk
	}
	row.Open = parsePrice(cell(models.ColOpen))
	row.High = parsePrice(cell(models.ColHigh))
	row.Low = parsePrice(cell(models.ColLow))
	row.Close = parsePrice(cell(models.ColClose))
	row.Volume = parseVolume(cell(models.ColVolume))
	return row
}

func parsePrice(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	d = d.Round(2)
	return &d
}

// parseVolume accepts integers and integral decimals such as "1200.0".
func parseVolume(s string) *int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return nil
	}
	n := d.IntPart()
	return &n
}
