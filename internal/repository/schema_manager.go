package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"BarLake/internal/domain/models"
	"BarLake/internal/domain/repository"
	"BarLake/pkg/apperr"
	"BarLake/pkg/logger"
	"BarLake/pkg/postgresql"
)

const DefaultTablePrefix = "ohlcv_"

var _ repository.Schema = (*SchemaManager)(nil)

// SchemaManager creates per-symbol partitioned tables and their quarter
// partitions on first use. Creation is serialized per table by an
// in-process mutex and by the catalog lock; a concurrent "already
// exists" is treated as success.
type SchemaManager struct {
	catalog Catalog
	prefix  string
	retry   postgresql.RetryPolicy
	logger  *logger.Logger
	metrics repository.Metrics
	now     func() time.Time

	known sync.Map // relation name -> owning symbol
	locks sync.Map // lock key -> *sync.Mutex
}

type SchemaOption func(*SchemaManager)

func WithTablePrefix(prefix string) SchemaOption {
	return func(m *SchemaManager) { m.prefix = prefix }
}

func WithRetryPolicy(p postgresql.RetryPolicy) SchemaOption {
	return func(m *SchemaManager) { m.retry = p }
}

func WithSchemaClock(now func() time.Time) SchemaOption {
	return func(m *SchemaManager) { m.now = now }
}

func NewSchemaManager(catalog Catalog, l *logger.Logger, metrics repository.Metrics, opts ...SchemaOption) (*SchemaManager, error) {
	m := &SchemaManager{
		catalog: catalog,
		prefix:  DefaultTablePrefix,
		retry:   postgresql.DefaultRetryPolicy(),
		logger:  l,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !validPrefix(m.prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", m.prefix)
	}
	return m, nil
}

// RegistryTable records which symbol owns which table. Symbol tables
// always continue the prefix with a letter or digit.
func (m *SchemaManager) RegistryTable() string {
	return m.prefix + "_registry"
}

func (m *SchemaManager) TableName(symbol string) (string, error) {
	return SymbolTable(m.prefix, symbol)
}

// Init creates the symbol registry.
func (m *SchemaManager) Init(ctx context.Context) error {
	registry := m.RegistryTable()
	return m.materialize(ctx, registry, registry, "registry", "", func(ctx context.Context, tx CatalogTx) (bool, error) {
		kind, err := tx.RelationKind(ctx, registry)
		if err != nil || kind == RelTable {
			return false, err
		}
		if kind != RelNone {
			return false, apperr.Schema("init_registry", "", fmt.Errorf("%s exists with kind %q", registry, kind))
		}
		return true, tx.Exec(ctx, registryDDL(registry))
	})
}

// EnsureTable makes sure the symbol's table exists, registers it and
// eagerly creates the partition for the current quarter.
func (m *SchemaManager) EnsureTable(ctx context.Context, symbol string) (string, error) {
	symbol = models.NormalizeSymbol(symbol)
	table, err := m.TableName(symbol)
	if err != nil {
		return "", err
	}

	if err := m.checkOwner(table, symbol); err != nil {
		return "", err
	}
	if !m.isKnown(table) {
		if err := m.Init(ctx); err != nil {
			return "", err
		}
		registry := m.RegistryTable()
		err := m.materialize(ctx, table, table, "table", symbol, func(ctx context.Context, tx CatalogTx) (bool, error) {
			return m.createTable(ctx, tx, registry, symbol, table)
		})
		if err != nil {
			return "", err
		}
	}

	if _, err := m.EnsurePartition(ctx, symbol, m.now()); err != nil {
		return "", err
	}
	return table, nil
}

// EnsurePartition makes sure the quarter partition holding date exists.
func (m *SchemaManager) EnsurePartition(ctx context.Context, symbol string, date time.Time) (string, error) {
	symbol = models.NormalizeSymbol(symbol)
	table, err := m.TableName(symbol)
	if err != nil {
		return "", err
	}
	if err := m.checkOwner(table, symbol); err != nil {
		return "", err
	}
	if !m.isKnown(table) {
		if _, err := m.EnsureTable(ctx, symbol); err != nil {
			return "", err
		}
	}

	p := models.PartitionFor(table, date)
	if m.isKnown(p.Name) {
		return p.Name, nil
	}

	err = m.materialize(ctx, table, p.Name, "partition", symbol, func(ctx context.Context, tx CatalogTx) (bool, error) {
		kind, err := tx.RelationKind(ctx, p.Name)
		if err != nil {
			return false, err
		}
		switch kind {
		case RelNone:
			return true, tx.Exec(ctx, partitionDDL(p))
		case RelTable:
			return false, nil
		default:
			return false, apperr.Schema("ensure_partition", symbol, fmt.Errorf("%s exists with kind %q", p.Name, kind))
		}
	})
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

func (m *SchemaManager) createTable(ctx context.Context, tx CatalogTx, registry, symbol, table string) (bool, error) {
	owner, registered, err := tx.RegisteredSymbol(ctx, registry, table)
	if err != nil {
		return false, err
	}
	if registered && owner != symbol {
		return false, apperr.Schema("ensure_table", symbol, fmt.Errorf("table %s already belongs to %s", table, owner))
	}

	kind, err := tx.RelationKind(ctx, table)
	if err != nil {
		return false, err
	}

	created := false
	switch kind {
	case RelNone:
		for _, stmt := range tableDDL(table) {
			if err := tx.Exec(ctx, stmt); err != nil {
				return false, err
			}
		}
		created = true
	case RelPartitioned:
	default:
		return false, apperr.Schema("ensure_table", symbol, fmt.Errorf("%s exists with kind %q", table, kind))
	}

	if !registered {
		q := fmt.Sprintf("INSERT INTO %s (table_name, symbol) VALUES ($1, $2) ON CONFLICT (table_name) DO NOTHING",
			pgx.Identifier{registry}.Sanitize())
		if err := tx.Exec(ctx, q, table, symbol); err != nil {
			return false, err
		}
	}
	return created, nil
}

type createFunc func(ctx context.Context, tx CatalogTx) (created bool, err error)

// materialize runs create under the per-key mutex and catalog lock,
// memoizing name on success.
func (m *SchemaManager) materialize(ctx context.Context, lockKey, name, object, symbol string, create createFunc) error {
	if m.isKnown(name) {
		return nil
	}

	mu := m.mutex(lockKey)
	mu.Lock()
	defer mu.Unlock()

	if m.isKnown(name) {
		return nil
	}

	var created bool
	run := func(ctx context.Context) error {
		return m.catalog.WithLock(ctx, lockKey, func(ctx context.Context, tx CatalogTx) error {
			c, err := create(ctx, tx)
			created = c
			return err
		})
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = postgresql.Retry(ctx, m.retry, run)
		if !postgresql.IsAlreadyExists(err) {
			break
		}
		// someone created it outside our lock; run again so follow-up
		// steps (registration) see the relation
		m.metrics.RecordDDL(object, "conflict")
		m.logger.Debug("concurrent create absorbed",
			logger.String("object", object),
			logger.String("name", name),
			logger.Error(err),
		)
	}
	if postgresql.IsAlreadyExists(err) {
		err = nil
		created = false
	}

	if err != nil {
		m.metrics.RecordDDL(object, "error")
		m.logger.Error("ddl failed",
			logger.String("object", object),
			logger.String("name", name),
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		var appErr *apperr.Error
		switch {
		case errors.As(err, &appErr):
			return err
		case postgresql.IsTransient(err):
			return apperr.Storage("ensure_"+object, symbol, err, true)
		default:
			return apperr.Schema("ensure_"+object, symbol, err)
		}
	}

	if created {
		m.metrics.RecordDDL(object, "created")
		m.logger.Info("created "+object,
			logger.String("name", name),
			logger.String("symbol", symbol),
		)
	}
	m.known.Store(name, symbol)
	return nil
}

func (m *SchemaManager) isKnown(name string) bool {
	_, ok := m.known.Load(name)
	return ok
}

// checkOwner rejects a symbol whose table name was memoized for a
// different symbol.
func (m *SchemaManager) checkOwner(table, symbol string) error {
	owner, ok := m.known.Load(table)
	if ok && owner.(string) != symbol {
		return apperr.Schema("ensure_table", symbol, fmt.Errorf("table %s already belongs to %s", table, owner))
	}
	return nil
}

func (m *SchemaManager) mutex(key string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Forget drops the memoized state for a symbol so the next call consults
// the catalog again.
func (m *SchemaManager) Forget(symbol string) {
	table, err := m.TableName(models.NormalizeSymbol(symbol))
	if err != nil {
		return
	}
	m.known.Range(func(k, _ any) bool {
		name := k.(string)
		if name == table || len(name) > len(table) && name[:len(table)+1] == table+"_" {
			m.known.Delete(name)
		}
		return true
	})
}

func registryDDL(registry string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	table_name TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{registry}.Sanitize())
}

// tableDDL returns the statements creating a symbol table. Indexes on a
// partitioned table are created on every partition automatically.
func tableDDL(table string) []string {
	t := pgx.Identifier{table}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol TEXT NOT NULL,
	date   DATE NOT NULL,
	time   TIME NOT NULL,
	open   NUMERIC(12,2) NOT NULL,
	high   NUMERIC(12,2) NOT NULL,
	low    NUMERIC(12,2) NOT NULL,
	close  NUMERIC(12,2) NOT NULL,
	volume BIGINT NOT NULL,
	CONSTRAINT %s UNIQUE (symbol, date, time)
) PARTITION BY RANGE (date)`, t, pgx.Identifier{table + "_uq"}.Sanitize()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (date, time)",
			pgx.Identifier{table + "_date_time_idx"}.Sanitize(), t),
	}
}

// partitionDDL bounds come from formatted dates, never from input text.
func partitionDDL(p models.Partition) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		pgx.Identifier{p.Name}.Sanitize(),
		pgx.Identifier{p.Table}.Sanitize(),
		p.Start.Format(models.DateLayout),
		p.End.Format(models.DateLayout),
	)
}
