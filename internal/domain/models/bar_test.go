package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockParse(t *testing.T) {
	c, err := ParseClock("09:15")
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 15, 0), c)
	assert.Equal(t, "09:15:00", c.String())

	_, err = ParseClock("25:00:00")
	assert.Error(t, err)
}

func TestBarJSON(t *testing.T) {
	bar := Bar{
		Symbol: "RELIANCE",
		Date:   date(2024, 2, 15),
		Time:   NewClock(9, 15, 0),
		Open:   decimal.RequireFromString("2900.50"),
		High:   decimal.RequireFromString("2910.00"),
		Low:    decimal.RequireFromString("2895.25"),
		Close:  decimal.RequireFromString("2905.75"),
		Volume: 1200,
	}

	b, err := json.Marshal(bar)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":"2024-02-15"`)
	assert.Contains(t, string(b), `"time":"09:15:00"`)
	assert.NotContains(t, string(b), "synthetic")

	var got Bar
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, bar.Key(), got.Key())
	assert.True(t, bar.Close.Equal(got.Close))
	assert.Equal(t, time.Date(2024, 2, 15, 9, 15, 0, 0, time.UTC), got.Timestamp())
}

func TestBarAt(t *testing.T) {
	bar := Bar{Symbol: "TCS", Date: date(2024, 2, 15), Time: NewClock(9, 15, 0)}
	moved := bar.At(time.Date(2024, 2, 16, 10, 1, 0, 0, time.UTC))

	assert.Equal(t, date(2024, 2, 16), moved.Date)
	assert.Equal(t, NewClock(10, 1, 0), moved.Time)
	assert.Equal(t, date(2024, 2, 15), bar.Date)
}

func TestSortBars(t *testing.T) {
	bars := []Bar{
		{Symbol: "A", Date: date(2024, 1, 2), Time: NewClock(9, 0, 0)},
		{Symbol: "A", Date: date(2024, 1, 1), Time: NewClock(15, 0, 0)},
		{Symbol: "A", Date: date(2024, 1, 1), Time: NewClock(9, 1, 0)},
	}
	SortBars(bars)

	assert.Equal(t, NewClock(9, 1, 0), bars[0].Time)
	assert.Equal(t, NewClock(15, 0, 0), bars[1].Time)
	assert.Equal(t, date(2024, 1, 2), bars[2].Date)
}

func TestIngestReport(t *testing.T) {
	r := &IngestReport{Accepted: true, Symbols: []SymbolOutcome{
		{Symbol: "A", Offered: 2, Inserted: 2},
		{Symbol: "B", Offered: 1, Err: assert.AnError},
	}}

	assert.False(t, r.Success())
	assert.True(t, r.Partial())
	assert.Equal(t, int64(2), r.Inserted())
	assert.Equal(t, []string{"B"}, r.FailedSymbols())
	assert.ErrorIs(t, r.Err(), assert.AnError)
}
