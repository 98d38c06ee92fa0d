package usecase

import (
	"sort"
	"time"

	"BarLake/internal/domain/models"
)

// GapFiller synthesizes bars for detected gaps by carrying forward the
// nearest preceding bar. Synthetic bars duplicate the last known values;
// they are flagged so consumers can tell them apart.
type GapFiller struct {
	mode      models.FillMode
	step      time.Duration
	maxPerGap int
}

func NewGapFiller(mode models.FillMode, step time.Duration, maxPerGap int) *GapFiller {
	if mode == "" {
		mode = models.FillMissing
	}
	if step <= 0 {
		step = time.Minute
	}
	if maxPerGap <= 0 {
		maxPerGap = 390
	}
	return &GapFiller{mode: mode, step: step, maxPerGap: maxPerGap}
}

// FillGaps returns only the synthetic bars, ordered by timestamp.
//
// In FillMissing mode every absent slot strictly between a boundary and
// its predecessor is filled, unless the gap crosses a calendar day or
// needs more than maxPerGap bars. In FillBoundary mode a single bar is
// placed at the boundary's own timestamp.
func (f *GapFiller) FillGaps(existing []models.Bar, gaps []models.GapRecord) []models.Bar {
	if len(existing) == 0 || len(gaps) == 0 {
		return nil
	}

	bySymbol := make(map[string][]models.Bar)
	have := make(map[models.BarKey]struct{}, len(existing))
	for _, b := range existing {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
		have[b.Key()] = struct{}{}
	}
	for s := range bySymbol {
		models.SortBars(bySymbol[s])
	}

	var out []models.Bar
	add := func(b models.Bar) {
		if _, dup := have[b.Key()]; dup && f.mode == models.FillMissing {
			return
		}
		b.Synthetic = true
		have[b.Key()] = struct{}{}
		out = append(out, b)
	}

	for _, g := range gaps {
		series := bySymbol[g.Boundary.Symbol]
		boundary := g.Boundary.Timestamp()
		prev, ok := precedingBar(series, boundary)
		if !ok {
			continue
		}

		switch f.mode {
		case models.FillBoundary:
			add(prev.At(boundary))
		default:
			from := prev.Timestamp()
			if !sameDay(from, boundary) {
				continue
			}
			slots := int((boundary.Sub(from) - 1) / f.step)
			if slots <= 0 || slots > f.maxPerGap {
				continue
			}
			for ts := from.Add(f.step); ts.Before(boundary); ts = ts.Add(f.step) {
				add(prev.At(ts))
			}
		}
	}

	models.SortBars(out)
	return out
}

// precedingBar finds the last bar strictly before ts in a sorted series.
func precedingBar(series []models.Bar, ts time.Time) (models.Bar, bool) {
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp().Before(ts)
	})
	if i == 0 {
		return models.Bar{}, false
	}
	return series[i-1], true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
