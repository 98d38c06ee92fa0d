package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	gatherer prometheus.Gatherer

	batches       *prometheus.CounterVec
	rowsInserted  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	cacheResults  *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
	slowQueries   *prometheus.CounterVec
	ddl           *prometheus.CounterVec
	gapsFound     *prometheus.CounterVec
	gapsFilled    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_ingest_batches_total",
			Help: "Ingested batches by source and outcome",
		}, []string{"source", "outcome"}),
		rowsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_rows_inserted_total",
			Help: "Rows inserted into the bar store",
		}, []string{"symbol"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_batch_rejections_total",
			Help: "Batches rejected by cleaning or validation",
		}, []string{"reason"}),
		cacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_cache_requests_total",
			Help: "Cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		queryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barlake_query_duration_seconds",
			Help:    "Store round trip latency",
			Buckets: []float64{.001, .005, .01, .02, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		slowQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_slow_queries_total",
			Help: "Store queries slower than the configured threshold",
		}, []string{"symbol"}),
		ddl: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_ddl_total",
			Help: "Table and partition DDL by outcome",
		}, []string{"object", "outcome"}),
		gapsFound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_gaps_found_total",
			Help: "Gap boundaries detected",
		}, []string{"symbol"}),
		gapsFilled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_gaps_filled_rows_total",
			Help: "Synthetic rows produced by gap repair",
		}, []string{"symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barlake_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barlake_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordBatch(source, outcome string, rows int) {
	r.batches.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) RecordRowsInserted(symbol string, n int64) {
	r.rowsInserted.WithLabelValues(symbol).Add(float64(n))
}

func (r *Recorder) RecordRejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordCacheResult(result string) {
	r.cacheResults.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordQueryLatency(op string, seconds float64) {
	r.queryLatency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSlowQuery(symbol string) {
	r.slowQueries.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordDDL(object, outcome string) {
	r.ddl.WithLabelValues(object, outcome).Inc()
}

func (r *Recorder) RecordGaps(symbol string, found, filled int) {
	r.gapsFound.WithLabelValues(symbol).Add(float64(found))
	r.gapsFilled.WithLabelValues(symbol).Add(float64(filled))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordHTTPRequest(method, route, status string, seconds float64) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpDurations.WithLabelValues(method, route).Observe(seconds)
}
