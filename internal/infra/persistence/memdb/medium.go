// Package memdb provides an ephemeral indexed medium on hashicorp/go-memdb.
// Every collection is a table with a unique id index, an insertion sequence
// index and, on the project-owned collections, a byProject index.
package memdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"creatorstudio/pkg/domain"
)

var _ domain.Medium = (*Medium)(nil)

const (
	indexID  = "id"
	indexSeq = "seq"
)

// row is the object stored in every table.
type row struct {
	Key   string
	Index string
	Seq   uint64
	Body  []byte
}

func (r *row) entry() domain.Entry {
	return domain.Entry{Key: r.Key, Index: r.Index, Body: append([]byte(nil), r.Body...)}
}

// seqIndexer encodes Seq big-endian so index order is numeric order.
type seqIndexer struct{}

func (seqIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	r, ok := obj.(*row)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object %T", obj)
	}
	return true, encodeSeq(r.Seq), nil
}

func (seqIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	v, ok := args[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("argument must be a uint64: %#v", args[0])
	}
	return encodeSeq(v), nil
}

func encodeSeq(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// Schema builds the go-memdb schema for every collection.
func Schema() *memdb.DBSchema {
	tables := make(map[string]*memdb.TableSchema, len(domain.Collections))
	for _, c := range domain.Collections {
		indexes := map[string]*memdb.IndexSchema{
			indexID: {
				Name:    indexID,
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "Key"},
			},
			indexSeq: {
				Name:    indexSeq,
				Unique:  true,
				Indexer: seqIndexer{},
			},
		}
		if c.Indexed() {
			// (Index, Seq) keeps one project's rows in insertion order.
			indexes[domain.IndexByProject] = &memdb.IndexSchema{
				Name:         domain.IndexByProject,
				AllowMissing: true,
				Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
					&memdb.StringFieldIndex{Field: "Index"},
					seqIndexer{},
				}},
			}
		}
		tables[string(c)] = &memdb.TableSchema{Name: string(c), Indexes: indexes}
	}
	return &memdb.DBSchema{Tables: tables}
}

// Medium is the go-memdb backed medium.
type Medium struct {
	db *memdb.MemDB

	mu     sync.RWMutex
	seq    uint64
	closed bool
}

// New builds an empty medium.
func New() (*Medium, error) {
	db, err := memdb.NewMemDB(Schema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &Medium{db: db}, nil
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

// Put upserts e. An update keeps the original sequence number so iteration
// order stays insertion order.
func (m *Medium) Put(_ context.Context, c domain.Collection, e domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("put", c, e.Key, domain.Range{}); err != nil {
		return err
	}
	if e.Key == "" {
		return domain.Rejected("put", c, e.Key, errors.New("empty key"))
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(string(c), indexID, e.Key)
	if err != nil {
		return domain.Rejected("put", c, e.Key, err)
	}
	r := &row{Key: e.Key, Body: append([]byte(nil), e.Body...)}
	if c.Indexed() {
		r.Index = e.Index
	}
	if prev, ok := existing.(*row); ok {
		r.Seq = prev.Seq
	} else {
		m.seq++
		r.Seq = m.seq
	}
	if err := txn.Insert(string(c), r); err != nil {
		return domain.Rejected("put", c, e.Key, err)
	}
	txn.Commit()
	return nil
}

func (m *Medium) Get(_ context.Context, c domain.Collection, key string) (domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get", c, key, domain.Range{}); err != nil {
		return domain.Entry{}, err
	}
	raw, err := m.db.Txn(false).First(string(c), indexID, key)
	if err != nil {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: err}
	}
	r, ok := raw.(*row)
	if !ok {
		return domain.Entry{}, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: domain.ErrNotFound}
	}
	return r.entry(), nil
}

func (m *Medium) Delete(_ context.Context, c domain.Collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete", c, key, domain.Range{}); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	n, err := txn.DeleteAll(string(c), indexID, key)
	if err != nil {
		return domain.Rejected("delete", c, key, err)
	}
	if n > 0 {
		txn.Commit()
	}
	return nil
}

// Open iterates a read transaction snapshot, so writes made while the cursor
// is open are not observed by it.
func (m *Medium) Open(_ context.Context, c domain.Collection, r domain.Range) (domain.Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("open cursor", c, "", r); err != nil {
		return nil, err
	}
	txn := m.db.Txn(false)
	var it memdb.ResultIterator
	var err error
	if r.All() {
		it, err = txn.Get(string(c), indexSeq)
	} else {
		it, err = txn.Get(string(c), r.Index+"_prefix", r.Value)
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "open cursor", Collection: c, Err: err}
	}
	k := &cursor{it: it}
	if !r.All() {
		// prefix scans also match longer ids sharing the prefix; those sort
		// after the exact matches, so the first mismatch ends the scan
		want := r.Value
		k.match = func(x *row) bool { return x.Index == want }
	}
	return k, nil
}

func (m *Medium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type cursor struct {
	it     memdb.ResultIterator
	match  func(*row) bool
	cur    domain.Entry
	err    error
	closed bool
}

func (k *cursor) Next(ctx context.Context) bool {
	if k.closed || k.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		k.err = err
		return false
	}
	raw := k.it.Next()
	if raw == nil {
		return false
	}
	r := raw.(*row)
	if k.match != nil && !k.match(r) {
		k.closed = true
		return false
	}
	k.cur = r.entry()
	return true
}

func (k *cursor) Entry() domain.Entry { return k.cur.Clone() }
func (k *cursor) Err() error          { return k.err }

func (k *cursor) Close() error {
	k.closed = true
	return nil
}
