package usecase

import (
	"sort"
	"time"

	"BarLake/internal/domain/models"
)

// GapDetector flags the later bar of every consecutive pair of one symbol
// whose timestamps are more than threshold apart.
type GapDetector struct {
	threshold time.Duration
}

func NewGapDetector(threshold time.Duration) *GapDetector {
	if threshold <= 0 {
		threshold = time.Minute
	}
	return &GapDetector{threshold: threshold}
}

func (d *GapDetector) Threshold() time.Duration { return d.threshold }

// DetectGaps does not modify bars. Bars of different symbols are compared
// only with bars of the same symbol.
func (d *GapDetector) DetectGaps(bars []models.Bar) []models.GapRecord {
	if len(bars) < 2 {
		return nil
	}

	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	var gaps []models.GapRecord
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Symbol != cur.Symbol {
			continue
		}
		delta := cur.Timestamp().Sub(prev.Timestamp())
		if delta > d.threshold {
			gaps = append(gaps, models.GapRecord{
				Boundary: cur,
				Previous: prev.Timestamp(),
				Delta:    delta,
			})
		}
	}
	return gaps
}
