package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"creatorstudio/pkg/domain"
)

// cursor pages through a table by rowid. Each page is read in full and its
// rows released before Next hands out entries, so no statement stays open
// between calls.
type cursor struct {
	m *Medium
	c domain.Collection
	r domain.Range

	after  int64
	page   []domain.Entry
	pos    int
	done   bool
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
	if k.pos >= len(k.page) {
		if k.done {
			return false
		}
		if err := k.fetch(ctx); err != nil {
			k.err = err
			return false
		}
		if len(k.page) == 0 {
			return false
		}
	}
	k.cur = k.page[k.pos]
	k.pos++
	return true
}

func (k *cursor) fetch(ctx context.Context) error {
	k.m.mu.RLock()
	defer k.m.mu.RUnlock()
	if k.m.closed {
		return &domain.StoreError{Op: "next", Collection: k.c, Err: domain.ErrStoreClosed}
	}
	var rows *sql.Rows
	var err error
	if k.r.All() {
		rows, err = k.m.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT rowid, key, idx, body FROM %s WHERE rowid > ? ORDER BY rowid LIMIT ?`, k.c),
			k.after, k.m.pageSize)
	} else {
		rows, err = k.m.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT rowid, key, idx, body FROM %s WHERE rowid > ? AND idx = ? ORDER BY rowid LIMIT ?`, k.c),
			k.after, k.r.Value, k.m.pageSize)
	}
	if err != nil {
		return &domain.StoreError{Op: "next", Collection: k.c, Err: err}
	}
	defer func() { _ = rows.Close() }()
	k.page = k.page[:0]
	k.pos = 0
	for rows.Next() {
		var rowid int64
		var e domain.Entry
		var idx sql.NullString
		var body []byte
		if err := rows.Scan(&rowid, &e.Key, &idx, &body); err != nil {
			return &domain.StoreError{Op: "next", Collection: k.c, Err: err}
		}
		e.Index = idx.String
		e.Body = body
		k.page = append(k.page, e)
		k.after = rowid
	}
	if err := rows.Err(); err != nil {
		return &domain.StoreError{Op: "next", Collection: k.c, Err: err}
	}
	k.done = len(k.page) < k.m.pageSize
	return nil
}

func (k *cursor) Entry() domain.Entry { return k.cur.Clone() }
func (k *cursor) Err() error          { return k.err }

func (k *cursor) Close() error {
	k.closed = true
	k.page = nil
	return nil
}
