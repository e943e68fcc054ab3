// Package memory provides the flat snapshot medium: the whole dataset lives in
// process memory, is loaded once at construction and is rewritten wholesale
// through a Persister after every mutation.
package memory

import (
	"context"
	"fmt"
	"sync"

	"creatorstudio/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the medium interface.
var _ domain.Medium = (*Store)(nil)

// SnapshotVersion is the current on-disk snapshot layout.
const SnapshotVersion = 1

// Snapshot captures a point-in-time copy of every bucket. Entries keep
// insertion order so a reload reproduces cursor order.
type Snapshot struct {
	Version int                                  `json:"version"`
	Buckets map[domain.Collection][]domain.Entry `json:"buckets"`
}

// Len returns the number of entries across all buckets.
func (s Snapshot) Len() int {
	n := 0
	for _, entries := range s.Buckets {
		n += len(entries)
	}
	return n
}

// Persister loads and rewrites the full dataset. Save must be atomic: either
// the new snapshot replaces the previous one or the previous one stays intact.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

type bucket struct {
	order   []string
	entries map[string]domain.Entry
}

func newBucket() *bucket {
	return &bucket{entries: make(map[string]domain.Entry)}
}

func (b *bucket) clone() *bucket {
	cp := &bucket{
		order:   append([]string(nil), b.order...),
		entries: make(map[string]domain.Entry, len(b.entries)),
	}
	for k, v := range b.entries {
		cp.entries[k] = v
	}
	return cp
}

func (b *bucket) put(e domain.Entry) {
	if _, exists := b.entries[e.Key]; !exists {
		b.order = append(b.order, e.Key)
	}
	b.entries[e.Key] = e
}

func (b *bucket) remove(key string) bool {
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

type memoryState map[domain.Collection]*bucket

func newMemoryState() memoryState {
	state := make(memoryState, len(domain.Collections))
	for _, c := range domain.Collections {
		state[c] = newBucket()
	}
	return state
}

// clone copies bucket maps and ordering. Entries are immutable once stored so
// they are shared between generations of the state.
func (s memoryState) clone() memoryState {
	cloned := make(memoryState, len(s))
	for c, b := range s {
		cloned[c] = b.clone()
	}
	return cloned
}

func (s memoryState) snapshot() Snapshot {
	out := Snapshot{Version: SnapshotVersion, Buckets: make(map[domain.Collection][]domain.Entry, len(s))}
	for c, b := range s {
		entries := make([]domain.Entry, 0, len(b.order))
		for _, k := range b.order {
			entries = append(entries, b.entries[k].Clone())
		}
		out.Buckets[c] = entries
	}
	return out
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for c, entries := range migrateSnapshot(snapshot).Buckets {
		b := state[c]
		for _, e := range entries {
			b.put(e.Clone())
		}
	}
	return state
}

// migrateSnapshot upgrades older layouts and drops buckets outside the schema.
// Version 0 snapshots predate the version field and share the version 1 layout.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{Version: SnapshotVersion, Buckets: make(map[domain.Collection][]domain.Entry)}
	for c, entries := range snapshot.Buckets {
		if !c.Valid() {
			continue
		}
		kept := make([]domain.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Key == "" {
				continue
			}
			if !c.Indexed() {
				e.Index = ""
			}
			kept = append(kept, e)
		}
		out.Buckets[c] = kept
	}
	return out
}

// Store is the snapshot-backed medium.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	persister Persister
	closed    bool
}

// NewStore constructs an ephemeral store that never persists.
func NewStore() *Store {
	return &Store{state: newMemoryState(), persister: NopPersister{}}
}

// Open loads the dataset through p. A load failure is fatal for the store.
func Open(ctx context.Context, p Persister) (*Store, error) {
	if p == nil {
		p = NopPersister{}
	}
	snapshot, err := p.Load(ctx)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("load snapshot: %w", err)}
	}
	return &Store{state: memoryStateFromSnapshot(snapshot), persister: p}, nil
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ImportState replaces the in-memory state without rewriting the persister.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// Put upserts e. The mutation becomes visible only after the full rewrite
// succeeds.
func (s *Store) Put(ctx context.Context, c domain.Collection, e domain.Entry) error {
	if err := domain.CheckRange(c, domain.Range{}); err != nil {
		return &domain.StoreError{Op: "put", Collection: c, Key: e.Key, Err: err}
	}
	if e.Key == "" {
		return domain.Rejected("put", c, e.Key, fmt.Errorf("empty key"))
	}
	if !c.Indexed() {
		e.Index = ""
	}
	return s.mutate(ctx, "put", c, e.Key, func(next memoryState) bool {
		next[c].put(e.Clone())
		return true
	})
}

// Get returns the entry stored under key.
func (s *Store) Get(_ context.Context, c domain.Collection, key string) (domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: domain.ErrStoreClosed}
	}
	b, ok := s.state[c]
	if !ok {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: domain.ErrUnknownCollection}
	}
	e, ok := b.entries[key]
	if !ok {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: domain.ErrNotFound}
	}
	return e.Clone(), nil
}

// Delete removes key. Removing an absent key neither fails nor rewrites.
func (s *Store) Delete(ctx context.Context, c domain.Collection, key string) error {
	if err := domain.CheckRange(c, domain.Range{}); err != nil {
		return &domain.StoreError{Op: "delete", Collection: c, Key: key, Err: err}
	}
	return s.mutate(ctx, "delete", c, key, func(next memoryState) bool {
		return next[c].remove(key)
	})
}

// Open returns a cursor over a copy of the matching entries in insertion order.
func (s *Store) Open(_ context.Context, c domain.Collection, r domain.Range) (domain.Cursor, error) {
	if err := domain.CheckRange(c, r); err != nil {
		return nil, &domain.StoreError{Op: "open cursor", Collection: c, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreError{Op: "open cursor", Collection: c, Err: domain.ErrStoreClosed}
	}
	b := s.state[c]
	out := make([]domain.Entry, 0, len(b.order))
	for _, k := range b.order {
		e := b.entries[k]
		if !r.All() && e.Index != r.Value {
			continue
		}
		out = append(out, e)
	}
	return domain.NewSliceCursor(out), nil
}

// Close releases the store. Later operations fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.persister.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, op string, c domain.Collection, key string, apply func(memoryState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.StoreError{Op: op, Collection: c, Key: key, Err: domain.ErrStoreClosed}
	}
	next := s.state.clone()
	if changed := apply(next); !changed {
		return nil
	}
	if err := s.persister.Save(ctx, next.snapshot()); err != nil {
		return domain.Rejected(op, c, key, fmt.Errorf("rewrite snapshot: %w", err))
	}
	s.state = next
	return nil
}
