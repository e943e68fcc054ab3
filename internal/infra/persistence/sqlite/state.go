package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ memory.Persister = (*StatePersister)(nil)

// openDB opens path, creating parent directories. A single connection keeps
// ":memory:" databases coherent and serializes writers.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// StatePersister stores the flat snapshot in a state table with one JSON
// payload row per collection bucket. Every Save rewrites all rows in a
// single transaction.
type StatePersister struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStatePersister opens (or creates) the state table at path.
func NewStatePersister(ctx context.Context, path string) (*StatePersister, error) {
	if path == "" {
		path = "creatorstudio.db"
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &StatePersister{db: db, path: path}, nil
}

func (p *StatePersister) Load(ctx context.Context) (memory.Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Version: memory.SnapshotVersion, Buckets: map[domain.Collection][]domain.Entry{}}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		var entries []domain.Entry
		if err := json.Unmarshal(payload, &entries); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
		snapshot.Buckets[domain.Collection(bucket)] = entries
	}
	return snapshot, rows.Err()
}

func (p *StatePersister) Save(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, c := range domain.Collections {
		entries := snapshot.Buckets[c]
		if entries == nil {
			entries = []domain.Entry{}
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, string(c), data); err != nil {
			return fmt.Errorf("upsert %s: %w", c, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (p *StatePersister) Close() error { return p.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (p *StatePersister) DB() *sql.DB { return p.db }

// Path returns the configured database path.
func (p *StatePersister) Path() string { return p.path }
