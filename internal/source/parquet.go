package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/shopspring/decimal"

	"BarLake/internal/domain/models"
)

// ParquetReader decodes flat parquet files. Every leaf column becomes a
// batch column; values are rendered as text so the cleaner applies the
// same coercion rules as for CSV.
type ParquetReader struct{}

func (ParquetReader) Read(r io.Reader, size int64, name string) (models.RawBatch, error) {
	ra, ok := r.(io.ReaderAt)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return models.RawBatch{}, fmt.Errorf("read parquet: %w", err)
		}
		ra, size = bytes.NewReader(b), int64(len(b))
	}

	f, err := parquet.OpenFile(ra, size)
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("open parquet: %w", err)
	}

	schema := f.Schema()
	paths := schema.Columns()
	columns := make([]string, len(paths))
	renders := make([]func(parquet.Value) string, len(paths))
	for i, path := range paths {
		columns[i] = path[len(path)-1]
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return models.RawBatch{}, fmt.Errorf("parquet column %v not found", path)
		}
		renders[i] = renderer(leaf.Node.Type())
	}

	batch := models.RawBatch{Source: name, Columns: columns}
	buf := make([]parquet.Row, 256)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				out := make([]*string, len(columns))
				for _, v := range row {
					col := v.Column()
					if col < 0 || col >= len(out) || v.IsNull() {
						continue
					}
					s := renders[col](v)
					out[col] = models.Cell(s)
				}
				batch.Rows = append(batch.Rows, out)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return models.RawBatch{}, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		rows.Close()
	}
	return batch, nil
}

func renderer(t parquet.Type) func(parquet.Value) string {
	lt := t.LogicalType()
	switch {
	case lt != nil && lt.Date != nil:
		return func(v parquet.Value) string {
			return time.Unix(int64(v.Int32())*86400, 0).UTC().Format(models.DateLayout)
		}
	case lt != nil && lt.Timestamp != nil:
		unit := unitOf(lt.Timestamp.Unit)
		return func(v parquet.Value) string {
			return time.Unix(0, v.Int64()*int64(unit)).UTC().Format(time.RFC3339)
		}
	case lt != nil && lt.Time != nil:
		unit := unitOf(lt.Time.Unit)
		return func(v parquet.Value) string {
			var raw int64
			if v.Kind() == parquet.Int32 {
				raw = int64(v.Int32())
			} else {
				raw = v.Int64()
			}
			return models.ClockOf(time.Unix(0, raw*int64(unit)).UTC()).String()
		}
	case lt != nil && lt.Decimal != nil:
		scale := lt.Decimal.Scale
		return func(v parquet.Value) string {
			switch v.Kind() {
			case parquet.Int32:
				return decimal.New(int64(v.Int32()), -scale).String()
			case parquet.Int64:
				return decimal.New(v.Int64(), -scale).String()
			default:
				return plain(v)
			}
		}
	default:
		return plain
	}
}

func unitOf(u format.TimeUnit) time.Duration {
	switch {
	case u.Nanos != nil:
		return time.Nanosecond
	case u.Micros != nil:
		return time.Microsecond
	default:
		return time.Millisecond
	}
}

func plain(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	default:
		return string(v.ByteArray())
	}
}
