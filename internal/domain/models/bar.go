package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Bar is one OHLCV record. (Symbol, Date, Time) is unique in storage.
type Bar struct {
	Symbol string
	Date   time.Time // UTC midnight
	Time   Clock
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64

	// Synthetic marks rows fabricated by gap repair. It is carried in
	// events and responses, not in the bar table.
	Synthetic bool
}

type BarKey struct {
	Symbol string
	Date   string
	Time   Clock
}

func (b Bar) Key() BarKey {
	return BarKey{Symbol: b.Symbol, Date: b.Date.Format(DateLayout), Time: b.Time}
}

// Timestamp combines Date and Time into a single UTC instant.
func (b Bar) Timestamp() time.Time {
	return b.Date.Add(b.Time.Duration())
}

// At builds a copy of b positioned at ts.
func (b Bar) At(ts time.Time) Bar {
	ts = ts.UTC()
	b.Date = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	b.Time = ClockOf(ts)
	return b
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s %s o=%s h=%s l=%s c=%s v=%d",
		b.Symbol, b.Date.Format(DateLayout), b.Time, b.Open, b.High, b.Low, b.Close, b.Volume)
}

type barJSON struct {
	Symbol    string          `json:"symbol"`
	Date      string          `json:"date"`
	Time      Clock           `json:"time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Synthetic bool            `json:"synthetic,omitempty"`
}

func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(barJSON{
		Symbol:    b.Symbol,
		Date:      b.Date.Format(DateLayout),
		Time:      b.Time,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Synthetic: b.Synthetic,
	})
}

func (b *Bar) UnmarshalJSON(data []byte) error {
	var v barJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, v.Date)
	if err != nil {
		return fmt.Errorf("bar date: %w", err)
	}
	*b = Bar{
		Symbol:    v.Symbol,
		Date:      date,
		Time:      v.Time,
		Open:      v.Open,
		High:      v.High,
		Low:       v.Low,
		Close:     v.Close,
		Volume:    v.Volume,
		Synthetic: v.Synthetic,
	}
	return nil
}

// SortBars orders bars by timestamp, then symbol.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		ti, tj := bars[i].Timestamp(), bars[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return bars[i].Symbol < bars[j].Symbol
	})
}

// NormalizeSymbol is the canonical spelling of a symbol: trimmed, upper case.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
