package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"BarLake/internal/domain/models"
	"BarLake/pkg/logger"
)

func d(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(symbol, date, clock string, price string, volume int64) models.Bar {
	c, err := models.ParseClock(clock)
	if err != nil {
		panic(err)
	}
	p := decimal.RequireFromString(price)
	return models.Bar{Symbol: symbol, Date: d(date), Time: c, Open: p, High: p, Low: p, Close: p, Volume: volume}
}

func strp(s string) *string { return &s }

func rawBatch(columns []string, rows ...[]string) models.RawBatch {
	b := models.RawBatch{Source: "test", Columns: columns}
	for _, r := range rows {
		row := make([]*string, len(r))
		for i, c := range r {
			row[i] = models.Cell(c)
		}
		b.Rows = append(b.Rows, row)
	}
	return b
}

var stdColumns = []string{"Symbol", "Date", "Time", "Open", "High", "Low", "Close", "Volume"}

type memStore struct {
	mu         sync.Mutex
	rows       map[string]map[models.BarKey]models.Bar
	failInsert map[string]error
	queryErr   error
	queries    int
	inserts    int
	delay      time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		rows:       make(map[string]map[models.BarKey]models.Bar),
		failInsert: make(map[string]error),
	}
}

func (s *memStore) InsertBars(_ context.Context, symbol string, bars []models.Bar) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if err := s.failInsert[symbol]; err != nil {
		return 0, err
	}
	table, ok := s.rows[symbol]
	if !ok {
		table = make(map[models.BarKey]models.Bar)
		s.rows[symbol] = table
	}
	var n int64
	for _, b := range bars {
		b.Synthetic = false
		if _, exists := table[b.Key()]; exists {
			continue
		}
		table[b.Key()] = b
		n++
	}
	return n, nil
}

func (s *memStore) sorted(symbol string, keep func(models.Bar) bool) []models.Bar {
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
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.sorted(symbol, func(b models.Bar) bool {
		return !b.Date.Before(start) && !b.Date.After(end)
	}), nil
}

func (s *memStore) QueryAll(_ context.Context, symbol string) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.sorted(symbol, func(models.Bar) bool { return true }), nil
}

func (s *memStore) ListSymbols(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for sym := range s.rows {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) count(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[symbol])
}

func (s *memStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

type fakeSchema struct {
	mu         sync.Mutex
	tables     []string
	partitions map[string][]string
	fail       map[string]error
}

func newFakeSchema() *fakeSchema {
	return &fakeSchema{partitions: make(map[string][]string), fail: make(map[string]error)}
}

func (s *fakeSchema) TableName(symbol string) (string, error) {
	return "ohlcv_" + symbol, nil
}

func (s *fakeSchema) EnsureTable(_ context.Context, symbol string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[symbol]; err != nil {
		return "", err
	}
	s.tables = append(s.tables, symbol)
	return "ohlcv_" + symbol, nil
}

func (s *fakeSchema) EnsurePartition(_ context.Context, symbol string, date time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.PartitionFor("ohlcv_"+symbol, date)
	s.partitions[symbol] = append(s.partitions[symbol], date.Format(models.DateLayout))
	return p.Name, nil
}

func (s *fakeSchema) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tables)
	for _, p := range s.partitions {
		n += len(p)
	}
	return n
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{counts: make(map[string]int)} }

func (m *fakeMetrics) inc(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key] += n
}

func (m *fakeMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *fakeMetrics) RecordBatch(source, outcome string, _ int) { m.inc("batch:"+outcome, 1) }
func (m *fakeMetrics) RecordRowsInserted(_ string, n int64)      { m.inc("rows", int(n)) }
func (m *fakeMetrics) RecordRejection(reason string)             { m.inc("reject:"+reason, 1) }
func (m *fakeMetrics) RecordCacheResult(result string)           { m.inc("cache:"+result, 1) }
func (m *fakeMetrics) RecordQueryLatency(string, float64)        {}
func (m *fakeMetrics) RecordSlowQuery(string)                    { m.inc("slow", 1) }
func (m *fakeMetrics) RecordDDL(object, outcome string)          { m.inc("ddl:"+object+":"+outcome, 1) }
func (m *fakeMetrics) RecordGaps(_ string, found, filled int) {
	m.inc("gaps:found", found)
	m.inc("gaps:filled", filled)
}
func (m *fakeMetrics) RecordError(kind string) { m.inc("error:"+kind, 1) }

type fakePublisher struct {
	mu       sync.Mutex
	ingested []models.IngestedEvent
	repaired []models.RepairedEvent
}

func (p *fakePublisher) PublishIngested(_ context.Context, ev models.IngestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingested = append(p.ingested, ev)
	return nil
}

func (p *fakePublisher) PublishRepaired(_ context.Context, ev models.RepairedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repaired = append(p.repaired, ev)
	return nil
}

type fakeMirror struct {
	bars []models.Bar
	err  error
}

func (m *fakeMirror) Mirror(_ context.Context, bars []models.Bar) error {
	if m.err != nil {
		return m.err
	}
	m.bars = append(m.bars, bars...)
	return nil
}

type errCache struct{ err error }

func (c errCache) Get(context.Context, string) ([]byte, error)            { return nil, c.err }
func (c errCache) Set(context.Context, string, []byte, time.Duration) error { return c.err }
func (c errCache) Delete(context.Context, ...string) error                 { return c.err }
func (c errCache) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, c.err
}
func (c errCache) Unlock(context.Context, string, string) error { return c.err }
func (c errCache) Ping(context.Context) error            { return c.err }
func (c errCache) Close() error                          { return nil }

type fixture struct {
	store    *memStore
	schema   *fakeSchema
	metrics  *fakeMetrics
	events   *fakePublisher
	mirror   *fakeMirror
	ingestor *Ingestor
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		schema:  newFakeSchema(),
		metrics: newFakeMetrics(),
		events:  &fakePublisher{},
		mirror:  &fakeMirror{},
	}
	f.ingestor = NewIngestor(f.schema, f.store, f.events, f.metrics, logger.Nop(), WithMirror(f.mirror))
	return f
}

func row(cells ...string) []string { return cells }

func fmtRow(symbol, date, clock string, price float64, volume int) []string {
	p := fmt.Sprintf("%.2f", price)
	return []string{symbol, date, clock, p, p, p, p, fmt.Sprint(volume)}
}
