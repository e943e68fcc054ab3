package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entry is the unit a keyed medium stores: a primary key, the optional
// byProject index value and the JSON-encoded record body.
type Entry struct {
	Key   string          `json:"key"`
	Index string          `json:"index,omitempty"`
	Body  json.RawMessage `json:"body"`
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	if e.Body != nil {
		e.Body = append(json.RawMessage(nil), e.Body...)
	}
	return e
}

// Range selects the records a cursor visits. The zero Range visits the whole
// collection in medium order. A non-empty Index restricts the scan to records
// whose index value equals Value.
type Range struct {
	Index string
	Value string
}

// All reports whether the range covers the whole collection.
func (r Range) All() bool { return r.Index == "" }

// ByProject returns the range over records owned by projectID.
func ByProject(projectID string) Range {
	return Range{Index: IndexByProject, Value: projectID}
}

// Cursor iterates entries one at a time. Implementations may page through the
// medium in batches; callers only observe Next/Entry. A cursor is finite and
// single-use: reopen it from the medium to restart.
type Cursor interface {
	Next(ctx context.Context) bool
	Entry() Entry
	Err() error
	Close() error
}

// Medium is the keyed storage layer the record store is built on. It offers
// named collections, primary keys, the byProject secondary index and cursor
// iteration. Put is an upsert. Delete of an absent key is not an error. Get of
// an absent key returns ErrNotFound.
type Medium interface {
	Put(ctx context.Context, c Collection, e Entry) error
	Get(ctx context.Context, c Collection, key string) (Entry, error)
	Delete(ctx context.Context, c Collection, key string) error
	Open(ctx context.Context, c Collection, r Range) (Cursor, error)
	Close() error
}

// CheckRange validates a range against the collection schema.
func CheckRange(c Collection, r Range) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	if r.All() {
		return nil
	}
	if r.Index != IndexByProject || !c.Indexed() {
		return fmt.Errorf("collection %s has no index %q", c, r.Index)
	}
	return nil
}

// SliceCursor serves a pre-materialized batch of entries. Snapshot media use
// it because their full state is already in memory.
type SliceCursor struct {
	entries []Entry
	pos     int
	cur     Entry
	closed  bool
}

// NewSliceCursor returns a cursor over entries. The cursor owns the slice.
func NewSliceCursor(entries []Entry) *SliceCursor {
	return &SliceCursor{entries: entries}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.closed || c.pos >= len(c.entries) || ctx.Err() != nil {
		return false
	}
	c.cur = c.entries[c.pos]
	c.pos++
	return true
}

func (c *SliceCursor) Entry() Entry { return c.cur.Clone() }
func (c *SliceCursor) Err() error   { return nil }

func (c *SliceCursor) Close() error {
	c.closed = true
	return nil
}
