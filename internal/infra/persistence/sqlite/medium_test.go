package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/pkg/domain"
)

func openTemp(t *testing.T, opts ...Option) *Medium {
	t.Helper()
	m, err := Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func keys(t *testing.T, m domain.Medium, c domain.Collection, r domain.Range) []string {
	t.Helper()
	ctx := context.Background()
	cur, err := m.Open(ctx, c, r)
	if err != nil {
		t.Fatalf("open cursor: %v", err)
	}
	defer func() { _ = cur.Close() }()
	var out []string
	for cur.Next(ctx) {
		out = append(out, cur.Entry().Key)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	return out
}

func TestMediumPagesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := openTemp(t, WithPageSize(2))
	want := []string{"e", "d", "c", "b", "a"}
	for i, k := range want {
		project := "p1"
		if i%2 == 1 {
			project = "p2"
		}
		if err := m.Put(ctx, domain.CollectionFiles, domain.Entry{Key: k, Index: project, Body: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := m.Put(ctx, domain.CollectionFiles, domain.Entry{Key: "e", Index: "p1", Body: json.RawMessage(`{"v":2}`)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got := keys(t, m, domain.CollectionFiles, domain.Range{})
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	byProject := keys(t, m, domain.CollectionFiles, domain.ByProject("p1"))
	if len(byProject) != 3 || byProject[0] != "e" || byProject[1] != "c" || byProject[2] != "a" {
		t.Fatalf("unexpected index scan %v", byProject)
	}
	if none := keys(t, m, domain.CollectionFiles, domain.ByProject("p3")); len(none) != 0 {
		t.Fatalf("expected empty scan, got %v", none)
	}
}

func TestMediumGetDelete(t *testing.T) {
	ctx := context.Background()
	m := openTemp(t)
	if err := m.Put(ctx, domain.CollectionNotes, domain.Entry{Key: "n", Body: json.RawMessage(`{"title":"x"}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, err := m.Get(ctx, domain.CollectionNotes, "n")
	if err != nil || e.Index != "" || string(e.Body) != `{"title":"x"}` {
		t.Fatalf("get: %#v %v", e, err)
	}
	if err := m.Delete(ctx, domain.CollectionNotes, "n"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, domain.CollectionNotes, "n"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := m.Get(ctx, domain.CollectionNotes, "n"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Get(ctx, "widgets", "n"); !errors.Is(err, domain.ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
}

func TestMediumDeleteWhileIterating(t *testing.T) {
	ctx := context.Background()
	m := openTemp(t, WithPageSize(1))
	for _, k := range []string{"a", "b", "c"} {
		_ = m.Put(ctx, domain.CollectionScenes, domain.Entry{Key: k, Index: "p", Body: json.RawMessage(`{}`)})
	}
	cur, err := m.Open(ctx, domain.CollectionScenes, domain.ByProject("p"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	n := 0
	for cur.Next(ctx) {
		if err := m.Delete(ctx, domain.CollectionScenes, cur.Entry().Key); err != nil {
			t.Fatalf("delete: %v", err)
		}
		n++
	}
	if cur.Err() != nil || n != 3 {
		t.Fatalf("visited %d entries, err %v", n, cur.Err())
	}
	if rest := keys(t, m, domain.CollectionScenes, domain.Range{}); len(rest) != 0 {
		t.Fatalf("expected empty table, got %v", rest)
	}
}

func TestMediumSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	m, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = m.Put(ctx, domain.CollectionProjects, domain.Entry{Key: "p1", Index: "ignored", Body: json.RawMessage(`{}`)})
	_ = m.Close()
	if err := m.Put(ctx, domain.CollectionProjects, domain.Entry{Key: "p2", Body: json.RawMessage(`{}`)}); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	again, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()
	e, err := again.Get(ctx, domain.CollectionProjects, "p1")
	if err != nil || e.Index != "" {
		t.Fatalf("unexpected reload %#v %v", e, err)
	}
	var version int
	if err := again.DB().QueryRow(`PRAGMA user_version`).Scan(&version); err != nil || version != SchemaVersion {
		t.Fatalf("schema version %d %v", version, err)
	}
}

func TestStatePersisterBacksSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	p, err := NewStatePersister(ctx, path)
	if err != nil {
		t.Fatalf("persister: %v", err)
	}
	s, err := memory.Open(ctx, p)
	if err != nil {
		t.Fatalf("open snapshot store: %v", err)
	}
	_ = s.Put(ctx, domain.CollectionNotes, domain.Entry{Key: "n1", Index: "p", Body: json.RawMessage(`{}`)})
	_ = s.Put(ctx, domain.CollectionNotes, domain.Entry{Key: "n2", Body: json.RawMessage(`{}`)})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := NewStatePersister(ctx, path)
	if err != nil {
		t.Fatalf("reopen persister: %v", err)
	}
	var rows int
	if err := p2.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil || rows != len(domain.Collections) {
		t.Fatalf("expected one row per bucket, got %d %v", rows, err)
	}
	s2, err := memory.Open(ctx, p2)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if got := keys(t, s2, domain.CollectionNotes, domain.ByProject("p")); len(got) != 1 || got[0] != "n1" {
		t.Fatalf("unexpected reload %v", got)
	}
}
