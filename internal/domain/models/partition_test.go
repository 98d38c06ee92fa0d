package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPartitionFor(t *testing.T) {
	tests := []struct {
		date  time.Time
		name  string
		start time.Time
		end   time.Time
	}{
		{date(2024, 2, 15), "ohlcv_reliance__2024_q1", date(2024, 1, 1), date(2024, 4, 1)},
		{date(2024, 4, 1), "ohlcv_reliance__2024_q2", date(2024, 4, 1), date(2024, 7, 1)},
		{date(2024, 3, 31), "ohlcv_reliance__2024_q1", date(2024, 1, 1), date(2024, 4, 1)},
		{date(2024, 9, 30), "ohlcv_reliance__2024_q3", date(2024, 7, 1), date(2024, 10, 1)},
		{date(2024, 12, 31), "ohlcv_reliance__2024_q4", date(2024, 10, 1), date(2025, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.date.Format(DateLayout), func(t *testing.T) {
			p := PartitionFor("ohlcv_reliance", tt.date)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, tt.start, p.Start)
			assert.Equal(t, tt.end, p.End)
			assert.True(t, p.Contains(tt.date))
			assert.False(t, p.Contains(p.End))
		})
	}
}

func TestQuarterRangeIgnoresClock(t *testing.T) {
	start, end := QuarterRange(time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, date(2024, 4, 1), start)
	assert.Equal(t, date(2024, 7, 1), end)
}
