package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarLake/internal/domain/models"
	"BarLake/internal/repository"
	"BarLake/internal/service/ratelimit"
	"BarLake/internal/usecase"
	"BarLake/pkg/cache"
	xhttp "BarLake/pkg/http"
	"BarLake/pkg/logger"
	"BarLake/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]map[models.BarKey]models.Bar
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[models.BarKey]models.Bar)}
}

func (s *memStore) InsertBars(_ context.Context, symbol string, bars []models.Bar) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[symbol]
	if !ok {
		t = make(map[models.BarKey]models.Bar)
		s.rows[symbol] = t
	}
	var n int64
	for _, b := range bars {
		if _, ok := t[b.Key()]; !ok {
			b.Synthetic = false
			t[b.Key()] = b
			n++
		}
	}
	return n, nil
}

func (s *memStore) all(symbol string, keep func(models.Bar) bool) []models.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Bar{}
	for _, b := range s.rows[symbol] {
		if keep(b) {
			out = append(out, b)
		}
	}
	models.SortBars(out)
	return out
}

func (s *memStore) QueryRange(_ context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	return s.all(symbol, func(b models.Bar) bool { return !b.Date.Before(start) && !b.Date.After(end) }), nil
}

func (s *memStore) QueryAll(_ context.Context, symbol string) ([]models.Bar, error) {
	return s.all(symbol, func(models.Bar) bool { return true }), nil
}

func (s *memStore) ListSymbols(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for k := range s.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

type nopSchema struct{}

func (nopSchema) TableName(symbol string) (string, error) { return repository.SymbolTable("ohlcv_", symbol) }
func (nopSchema) EnsureTable(_ context.Context, symbol string) (string, error) {
	return repository.SymbolTable("ohlcv_", symbol)
}
func (nopSchema) EnsurePartition(_ context.Context, symbol string, _ time.Time) (string, error) {
	return repository.SymbolTable("ohlcv_", symbol)
}

type fakeQueue struct {
	types    []string
	payloads []interface{}
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

type testAPI struct {
	e     *echo.Echo
	store *memStore
}

func newTestAPI(t *testing.T, opts ...BarsOption) *testAPI {
	t.Helper()
	return newTestAPIWithWindow(t, 0, opts...)
}

func newTestAPIWithWindow(t *testing.T, window time.Duration, opts ...BarsOption) *testAPI {
	t.Helper()
	l := logger.Nop()
	rec := metrics.New(prometheus.NewRegistry())
	store := newMemStore()

	ingestor := usecase.NewIngestor(nopSchema{}, store, repository.NopPublisher{}, rec, l)
	engine := usecase.NewQueryEngine(store,
		usecase.NewBarCache(cache.NewMemoryCache(), 20*time.Second, time.Second, rec, l), rec, l)
	files := usecase.NewFileIngestor(ingestor, window, l)
	repairer := usecase.NewGapRepairer(store, ingestor,
		usecase.NewGapDetector(time.Minute),
		usecase.NewGapFiller(models.FillMissing, time.Minute, 390),
		repository.NopPublisher{}, rec, l)

	h := NewBarsEchoHandler(l, engine, files, repairer, opts...)
	srv := xhttp.NewServer(h, l, xhttp.WithMetrics("/metrics", rec.Handler(), rec), xhttp.WithBodyLimit(1<<20))
	return &testAPI{e: srv.Echo(), store: store}
}

func (a *testAPI) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

const csvBody = "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
	"AAPL,2024-01-02,09:30:00,185.10,185.50,184.90,185.20,1200\n" +
	"AAPL,2024-01-02,09:31:00,185.20,185.60,185.00,185.40,900\n" +
	"AAPL,2024-01-02,09:34:00,185.40,185.40,185.40,185.40,100\n"

func TestUploadAndFetch(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/upload-csv", []byte(csvBody), "text/csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.IngestReport
	decode(t, rec, &report)
	assert.True(t, report.Accepted)
	assert.Equal(t, "upload:body.csv", report.Source)

	rec = a.do(http.MethodGet, "/api/fetch/aapl/2024-01-01/2024-01-31", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.FetchResponse
	decode(t, rec, &resp)
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "09:30:00", resp.Bars[0].Time.String())
}

func TestUploadIgnoresRecencyWindow(t *testing.T) {
	a := newTestAPIWithWindow(t, 180*24*time.Hour)

	rec := a.do(http.MethodPost, "/api/upload-csv", []byte(csvBody), "text/csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.IngestReport
	decode(t, rec, &report)
	assert.True(t, report.Accepted)
	assert.Empty(t, report.Reason)
	assert.Len(t, a.store.all("AAPL", func(models.Bar) bool { return true }), 3)
}

func TestUploadMultipart(t *testing.T) {
	a := newTestAPI(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "bars.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := a.do(http.MethodPost, "/api/upload-csv", buf.Bytes(), w.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, a.store.rows["AAPL"], 3)
}

func TestUploadRejected(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/upload-csv", []byte("Symbol,Date\nAAPL,2024-01-02\n"), "text/csv")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, a.store.rows)

	rec = a.do(http.MethodPost, "/api/upload-csv?name=bars.xlsx", []byte("x"), "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/fetch/AAPL/2024-13-01/2024-01-31", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/fetch/AAPL/2024-02-01/2024-01-31", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/fetch/AAPL/2024-01-01/2024-01-31?cache=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchUnknownSymbolIsEmpty(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/fetch/ZZZZ/2024-01-01/2024-01-31?cache=false", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.FetchResponse
	decode(t, rec, &resp)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Bars)
}

func TestRepairSync(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/upload-csv", []byte(csvBody), "text/csv").Code)

	rec := a.do(http.MethodPost, "/api/repair/AAPL?sync=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.RepairReport
	decode(t, rec, &report)
	assert.Equal(t, 1, report.Gaps)
	assert.Equal(t, int64(2), report.Inserted)
	assert.Len(t, a.store.rows["AAPL"], 5)
}

func TestRepairQueued(t *testing.T) {
	q := &fakeQueue{}
	a := newTestAPI(t, WithJobQueue(q))

	rec := a.do(http.MethodPost, "/api/repair/msft", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.types, 1)
	assert.Equal(t, usecase.RepairJobType, q.types[0])
	assert.Equal(t, usecase.RepairPayload{Symbol: "MSFT"}, q.payloads[0])

	rec = a.do(http.MethodPost, "/api/repair", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, usecase.RepairPayload{}, q.payloads[1])

	q.err = errors.New("redis down")
	rec = a.do(http.MethodPost, "/api/repair/msft", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSymbols(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/upload-csv", []byte(csvBody), "text/csv").Code)

	rec := a.do(http.MethodGet, "/api/symbols", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []string `json:"rows"`
		Total int64    `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, []string{"AAPL"}, list.Rows)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, WithHealthCheck("store", func(context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/health", nil, "").Code)

	a = newTestAPI(t,
		WithHealthCheck("store", func(context.Context) error { return nil }),
		WithHealthCheck("cache", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec := a.do(http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "connection refused"))
}

func TestFetchRateLimited(t *testing.T) {
	a := newTestAPI(t, WithRateLimiter(ratelimit.New(1, 0.001)))

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/fetch/AAPL/2024-01-01/2024-01-02", nil, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodGet, "/api/fetch/AAPL/2024-01-01/2024-01-02", nil, "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/symbols", nil, "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(http.MethodGet, "/api/", nil, "")

	rec := a.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "barlake_http_requests_total")
}
