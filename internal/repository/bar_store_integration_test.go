//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"BarLake/internal/domain/models"
	"BarLake/pkg/logger"
	"BarLake/pkg/metrics"
	"BarLake/pkg/postgresql"
)

type BarStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *postgresql.Client
	schema    *SchemaManager
	store     *PGBarStore
}

func TestBarStoreSuite(t *testing.T) {
	suite.Run(t, new(BarStoreSuite))
}

func (s *BarStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx, "postgres:16-alpine",
		postgres.WithDatabase("barlake_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)
	s.db = postgresql.NewFromPool(pool)

	s.schema, err = NewSchemaManager(NewPGCatalog(s.db), logger.Nop(), metrics.New(prometheus.NewRegistry()))
	s.Require().NoError(err)
	s.Require().NoError(s.schema.Init(s.ctx))
	s.store = NewPGBarStore(s.db, s.schema, logger.Nop(), 3)
}

func (s *BarStoreSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func bar(symbol string, y int, m time.Month, d, hh, mm int, price string) models.Bar {
	p := decimal.RequireFromString(price)
	return models.Bar{
		Symbol: symbol,
		Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Time:   models.NewClock(hh, mm, 0),
		Open:   p, High: p, Low: p, Close: p,
		Volume: 100,
	}
}

func (s *BarStoreSuite) ensure(symbol string, bars []models.Bar) {
	_, err := s.schema.EnsureTable(s.ctx, symbol)
	s.Require().NoError(err)
	for _, b := range bars {
		_, err := s.schema.EnsurePartition(s.ctx, symbol, b.Date)
		s.Require().NoError(err)
	}
}

func (s *BarStoreSuite) TestInsertIsIdempotent() {
	bars := []models.Bar{
		bar("RELIANCE", 2024, 3, 28, 9, 15, "2900.10"),
		bar("RELIANCE", 2024, 3, 28, 9, 16, "2901.20"),
		bar("RELIANCE", 2024, 4, 1, 9, 15, "2950.00"),
		bar("RELIANCE", 2024, 4, 1, 9, 16, "2951.00"),
	}
	s.ensure("RELIANCE", bars)

	n, err := s.store.InsertBars(s.ctx, "RELIANCE", bars)
	s.Require().NoError(err)
	s.Equal(int64(4), n)

	n, err = s.store.InsertBars(s.ctx, "RELIANCE", bars)
	s.Require().NoError(err)
	s.Equal(int64(0), n)

	all, err := s.store.QueryAll(s.ctx, "RELIANCE")
	s.Require().NoError(err)
	s.Len(all, 4)
	s.Equal("2900.10", all[0].Open.StringFixed(2))

	got, err := s.store.QueryRange(s.ctx, "reliance",
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(models.NewClock(9, 15, 0), got[0].Time)
}

func (s *BarStoreSuite) TestUnknownSymbolIsEmpty() {
	got, err := s.store.QueryRange(s.ctx, "NOSUCH", time.Now().AddDate(0, -1, 0), time.Now())
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *BarStoreSuite) TestConcurrentEnsurePartition() {
	t := s.T()
	// separate managers share nothing in-process, like two replicas
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := NewSchemaManager(NewPGCatalog(s.db), logger.Nop(), metrics.New(prometheus.NewRegistry()))
			if err != nil {
				errs <- err
				return
			}
			_, err = m.EnsurePartition(s.ctx, "INFY", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	err := s.db.QueryRow(s.ctx,
		"SELECT count(*) FROM pg_inherits i JOIN pg_class c ON c.oid = i.inhrelid WHERE c.relname = 'ohlcv_infy__2024_q1'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func (s *BarStoreSuite) TestListSymbols() {
	s.ensure("TCS", nil)
	symbols, err := s.store.ListSymbols(s.ctx)
	s.Require().NoError(err)
	s.Contains(symbols, "TCS")
}
