package source

import (
	"bytes"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellValue(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestCSVReader(t *testing.T) {
	in := "\ufeffSymbol, Date,Time,Open,High,Low,Close,Volume\n" +
		"AAPL,2024-01-02,09:15:00,187.15,187.4,187.1,187.3,1200\n" +
		"AAPL,2024-01-02,09:16:00,NaN,187.4,187.1,187.3\n" +
		"\n"

	batch, err := CSVReader{}.Read(strings.NewReader(in), int64(len(in)), "upload")
	require.NoError(t, err)

	assert.Equal(t, "upload", batch.Source)
	assert.Equal(t, "Symbol", batch.Columns[0])
	assert.Equal(t, 1, batch.ColumnIndex("date"))
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "AAPL", cellValue(batch.Rows[0][0]))
	assert.Nil(t, batch.Rows[1][3], "NaN is a null")
	assert.Nil(t, batch.Rows[1][7], "short rows are padded with nulls")
}

func TestCSVReaderEmpty(t *testing.T) {
	batch, err := CSVReader{}.Read(strings.NewReader(""), 0, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
}

type parquetRow struct {
	Symbol string  `parquet:"symbol"`
	Date   string  `parquet:"date"`
	Time   string  `parquet:"time"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

func TestParquetReader(t *testing.T) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetRow](&buf)
	_, err := w.Write([]parquetRow{
		{Symbol: "MSFT", Date: "2024-01-02", Time: "09:15:00", Open: 370.5, High: 371, Low: 370.25, Close: 370.75, Volume: 900},
		{Symbol: "MSFT", Date: "2024-01-02", Time: "09:16:00", Open: 370.75, High: 371.5, Low: 370.5, Close: 371.25, Volume: 450},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	batch, err := ParquetReader{}.Read(bytes.NewReader(data), int64(len(data)), "file:msft.parquet")
	require.NoError(t, err)

	assert.Equal(t, []string{"symbol", "date", "time", "open", "high", "low", "close", "volume"}, batch.Columns)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "MSFT", cellValue(batch.Rows[0][0]))
	assert.Equal(t, "370.5", cellValue(batch.Rows[0][3]))
	assert.Equal(t, "450", cellValue(batch.Rows[1][7]))
}

func TestForName(t *testing.T) {
	_, ok := ForName("/data/AAPL.CSV")
	assert.True(t, ok)
	_, ok = ForName("bars.parquet")
	assert.True(t, ok)
	assert.False(t, Supported("notes.md"))
}
