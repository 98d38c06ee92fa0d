package repository

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

var quotedIdent = regexp.MustCompile(`"([^"]+)"`)

// fakeCatalog is an in-memory pg_class plus registry shared by every
// SchemaManager in a test, standing in for one database.
type fakeCatalog struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	relations map[string]string
	registry  map[string]string
	created   map[string]int
	failures  map[string][]error
	races     map[string]bool
	execs     int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		locks:     map[string]*sync.Mutex{},
		relations: map[string]string{},
		registry:  map[string]string{},
		created:   map[string]int{},
		failures:  map[string][]error{},
		races:     map[string]bool{},
	}
}

// failNext makes the next DDL for name fail with err, once per call.
func (c *fakeCatalog) failNext(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[name] = append(c.failures[name], err)
}

// raceOn simulates another process creating name right before our DDL.
func (c *fakeCatalog) raceOn(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.races[name] = true
}

func (c *fakeCatalog) creates(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[name]
}

func (c *fakeCatalog) kind(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relations[name]
}

func (c *fakeCatalog) execCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execs
}

func (c *fakeCatalog) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx CatalogTx) error) error {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	c.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx, fakeTx{c: c})
}

type fakeTx struct {
	c *fakeCatalog
}

func (t fakeTx) RelationKind(_ context.Context, name string) (string, error) {
	return t.c.kind(name), nil
}

func (t fakeTx) RegisteredSymbol(_ context.Context, _, table string) (string, bool, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	s, ok := t.c.registry[table]
	return s, ok, nil
}

func (t fakeTx) Exec(_ context.Context, sql string, args ...any) error {
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs++

	m := quotedIdent.FindStringSubmatch(sql)
	if m == nil {
		return nil
	}
	name := m[1]

	if errs := c.failures[name]; len(errs) > 0 {
		c.failures[name] = errs[1:]
		return errs[0]
	}

	switch {
	case strings.HasPrefix(sql, "INSERT INTO"):
		table := args[0].(string)
		if _, ok := c.registry[table]; !ok {
			c.registry[table] = args[1].(string)
		}
		return nil
	case strings.HasPrefix(sql, "CREATE INDEX"):
		idx := name
		if _, ok := c.relations[idx]; !ok {
			c.relations[idx] = "I"
		}
		return nil
	}

	kind := RelTable
	if strings.Contains(sql, "PARTITION BY") {
		kind = RelPartitioned
	}

	if c.races[name] {
		delete(c.races, name)
		c.relations[name] = kind
		return pgDuplicate()
	}
	if _, ok := c.relations[name]; ok {
		return nil
	}
	c.relations[name] = kind
	c.created[name]++
	return nil
}
