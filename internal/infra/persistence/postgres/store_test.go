package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/internal/infra/persistence/postgres/testutil"
	"creatorstudio/pkg/domain"
)

func stubPersister(t *testing.T) (*StatePersister, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	defer restore()
	p, err := NewStatePersister(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStatePersister: %v", err)
	}
	return p, conn
}

func TestNewStatePersisterCreatesStateTable(t *testing.T) {
	_, conn := stubPersister(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS state") && strings.Contains(stmt, "JSONB") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got %v", conn.Execs)
	}
}

func TestNewStatePersisterPingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStatePersister(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestSnapshotStoreRoundTripsThroughPostgres(t *testing.T) {
	ctx := context.Background()
	p, conn := stubPersister(t)
	s, err := memory.Open(ctx, p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, domain.CollectionProjects, domain.Entry{Key: "p1", Body: json.RawMessage(`{"title":"Roadmap"}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := len(conn.Tables["state"]); got != len(domain.Collections) {
		t.Fatalf("expected one row per bucket, got %d", got)
	}

	reloaded, err := memory.Open(ctx, p)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e, err := reloaded.Get(ctx, domain.CollectionProjects, "p1")
	if err != nil || string(e.Body) != `{"title":"Roadmap"}` {
		t.Fatalf("unexpected reload %s %v", e.Body, err)
	}
}

func TestFailedSaveLeavesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	p, conn := stubPersister(t)
	s, _ := memory.Open(ctx, p)
	_ = s.Put(ctx, domain.CollectionNotes, domain.Entry{Key: "n1", Body: json.RawMessage(`{}`)})

	conn.FailKey = string(domain.CollectionScenes)
	err := s.Put(ctx, domain.CollectionNotes, domain.Entry{Key: "n2", Body: json.RawMessage(`{}`)})
	if !errors.Is(err, domain.ErrWriteRejected) {
		t.Fatalf("expected rejected write, got %v", err)
	}
	conn.FailKey = ""
	conn.FailCommit = true
	if err := s.Delete(ctx, domain.CollectionNotes, "n1"); !errors.Is(err, domain.ErrWriteRejected) {
		t.Fatalf("expected rejected delete, got %v", err)
	}
	conn.FailCommit = false

	snap, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	notes := snap.Buckets[domain.CollectionNotes]
	if len(notes) != 1 || notes[0].Key != "n1" {
		t.Fatalf("durable state changed by failed saves: %#v", notes)
	}
	if _, err := s.Get(ctx, domain.CollectionNotes, "n2"); !domain.IsNotFound(err) {
		t.Fatalf("rejected write became visible: %v", err)
	}
}
