// Package sqlite provides the durable SQLite storage for the record store:
// an indexed medium with one table per collection, and a state-table
// persister for the flat snapshot medium.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"creatorstudio/pkg/domain"
)

var _ domain.Medium = (*Medium)(nil)

// SchemaVersion is stored in PRAGMA user_version once the tables exist.
const SchemaVersion = 1

const defaultPageSize = 64

// Medium stores each collection in its own table keyed by record key, with
// a byProject secondary index on the indexed collections. Rowids preserve
// insertion order across upserts.
type Medium struct {
	db       *sql.DB
	path     string
	pageSize int

	mu     sync.RWMutex
	closed bool
}

// Option configures a Medium.
type Option func(*Medium)

// WithPageSize sets how many rows a cursor fetches per round trip.
func WithPageSize(n int) Option {
	return func(m *Medium) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// Open opens or creates the database at path and migrates it to
// SchemaVersion. Any failure here is fatal for the medium.
func Open(ctx context.Context, path string, opts ...Option) (*Medium, error) {
	if path == "" {
		path = "creatorstudio.db"
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	m := &Medium{db: db, path: path, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(m)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, SchemaVersion)
	}
	if version == SchemaVersion {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range domain.Collections {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			idx TEXT,
			body BLOB NOT NULL
		)`, c)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", c, err)
		}
		if c.Indexed() {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_by_project ON %s(idx)`, c, c)); err != nil {
				return fmt.Errorf("create index on %s: %w", c, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return tx.Commit()
}

func (m *Medium) check(op string, c domain.Collection, key string, r domain.Range) error {
	if err := domain.CheckRange(c, r); err != nil {
		return &domain.StoreError{Op: op, Collection: c, Key: key, Err: err}
	}
	if m.closed {
		return &domain.StoreError{Op: op, Collection: c, Key: key, Err: domain.ErrStoreClosed}
	}
	return nil
}

func indexValue(c domain.Collection, e domain.Entry) sql.NullString {
	if !c.Indexed() || e.Index == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: e.Index, Valid: true}
}

// Put upserts e without moving it in iteration order.
func (m *Medium) Put(ctx context.Context, c domain.Collection, e domain.Entry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("put", c, e.Key, domain.Range{}); err != nil {
		return err
	}
	if e.Key == "" {
		return domain.Rejected("put", c, e.Key, errors.New("empty key"))
	}
	q := fmt.Sprintf(`INSERT INTO %s(key, idx, body) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET idx = excluded.idx, body = excluded.body`, c)
	if _, err := m.db.ExecContext(ctx, q, e.Key, indexValue(c, e), []byte(e.Body)); err != nil {
		return domain.Rejected("put", c, e.Key, err)
	}
	return nil
}

func (m *Medium) Get(ctx context.Context, c domain.Collection, key string) (domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get", c, key, domain.Range{}); err != nil {
		return domain.Entry{}, err
	}
	var idx sql.NullString
	var body []byte
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT idx, body FROM %s WHERE key = ?`, c), key).Scan(&idx, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: domain.ErrNotFound}
	}
	if err != nil {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: err}
	}
	return domain.Entry{Key: key, Index: idx.String, Body: body}, nil
}

func (m *Medium) Delete(ctx context.Context, c domain.Collection, key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("delete", c, key, domain.Range{}); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, c), key); err != nil {
		return domain.Rejected("delete", c, key, err)
	}
	return nil
}

// Open returns a keyset-paginated cursor ordered by rowid.
func (m *Medium) Open(_ context.Context, c domain.Collection, r domain.Range) (domain.Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("open cursor", c, "", r); err != nil {
		return nil, err
	}
	return &cursor{m: m, c: c, r: r}, nil
}

// Close closes the database. Later operations fail with ErrStoreClosed.
func (m *Medium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (m *Medium) DB() *sql.DB { return m.db }

// Path returns the configured database path.
func (m *Medium) Path() string { return m.path }
