package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordCacheResult("hit")
	r.RecordCacheResult("hit")
	r.RecordCacheResult("miss")
	r.RecordRowsInserted("RELIANCE", 3)
	r.RecordGaps("RELIANCE", 2, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheResults.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheResults.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.rowsInserted.WithLabelValues("RELIANCE")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.gapsFilled.WithLabelValues("RELIANCE")))
}

func TestNewTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
