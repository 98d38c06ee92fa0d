package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"BarLake/pkg/postgresql"
)

// Relation kinds as reported by pg_class.relkind.
const (
	RelNone        = ""
	RelTable       = "r"
	RelPartitioned = "p"
)

// Catalog serializes DDL on a key across processes.
type Catalog interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx CatalogTx) error) error
}

// CatalogTx is what DDL steps may do while the lock is held.
type CatalogTx interface {
	RelationKind(ctx context.Context, name string) (string, error)
	RegisteredSymbol(ctx context.Context, registry, table string) (string, bool, error)
	Exec(ctx context.Context, sql string, args ...any) error
}

// PGCatalog takes a transaction-scoped advisory lock, so the lock is
// released on commit or rollback even if the process dies mid-DDL.
type PGCatalog struct {
	db *postgresql.Client
}

func NewPGCatalog(db *postgresql.Client) *PGCatalog {
	return &PGCatalog{db: db}
}

func (c *PGCatalog) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx CatalogTx) error) error {
	return c.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
		return fn(ctx, pgCatalogTx{tx: tx})
	})
}

type pgCatalogTx struct {
	tx pgx.Tx
}

const relationKindSQL = `
SELECT c.relkind::text
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = current_schema() AND c.relname = $1`

func (t pgCatalogTx) RelationKind(ctx context.Context, name string) (string, error) {
	var kind string
	err := t.tx.QueryRow(ctx, relationKindSQL, name).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return RelNone, nil
	}
	return kind, err
}

func (t pgCatalogTx) RegisteredSymbol(ctx context.Context, registry, table string) (string, bool, error) {
	q := fmt.Sprintf("SELECT symbol FROM %s WHERE table_name = $1", pgx.Identifier{registry}.Sanitize())

	var symbol string
	err := t.tx.QueryRow(ctx, q, table).Scan(&symbol)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return symbol, true, nil
}

func (t pgCatalogTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return err
}
