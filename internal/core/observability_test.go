package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/pkg/domain"
)

func TestPrometheusRecorderCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder("creatorstudio", reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	s := NewStore(memory.NewStore(), WithMetrics(rec))
	ctx := context.Background()
	_, _ = s.AddNote(ctx, Note{Title: "a"})
	_, _ = s.AddNote(ctx, Note{Title: "b"})
	_, _ = s.AddFile(ctx, File{Type: strings.Repeat("x", 40)})

	if got := promtest.ToFloat64(rec.operations.WithLabelValues("add_note", "success")); got != 2 {
		t.Fatalf("expected 2 successful add_note, got %v", got)
	}
	if got := promtest.ToFloat64(rec.operations.WithLabelValues("add_file", "error")); got != 1 {
		t.Fatalf("expected 1 failed add_file, got %v", got)
	}
	if _, err := NewPrometheusMetricsRecorder("creatorstudio", reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	other := NewExpvarMetricsRecorder("")
	if rec.Name() == other.Name() {
		t.Fatalf("generated names must be unique")
	}
	s := NewStore(memory.NewStore(), WithMetrics(MultiRecorder{rec, noopMetrics{}}))
	ctx := context.Background()
	_, _ = s.AddProject(ctx, Project{Title: "p"})
	_, _, _ = s.GetProject(ctx, "missing")
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Operations["add_project"].Success != 1 || snap.Operations["get_project"].Success != 1 {
		t.Fatalf("unexpected snapshot %#v", snap.Operations)
	}
	if _, ok := snap.Operations[""]; ok {
		t.Fatalf("empty operation must be ignored")
	}
	v := expvar.Get(rec.Name())
	if v == nil {
		t.Fatalf("recorder not published")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(v.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded.Operations["add_project"].Success != 1 {
		t.Fatalf("expvar output missing add_project")
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf, 2)
	s := NewStore(memory.NewStore(), WithTracer(tracer))
	ctx := context.Background()
	_, _ = s.AddNote(ctx, Note{})
	_, _ = s.AddScene(ctx, Scene{Payload: json.RawMessage("nope")})
	_, _ = s.ListNotes(ctx, ListOptions{})

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 retained spans, got %d", len(entries))
	}
	if entries[0].Operation != "add_scene" || entries[0].Status != "error" || entries[0].Error == "" {
		t.Fatalf("unexpected failed span %#v", entries[0])
	}
	if entries[1].Operation != "list_notes" || entries[1].Status != "success" {
		t.Fatalf("unexpected span %#v", entries[1])
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", lines)
	}
}

func TestFailedOperationsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewStore(memory.NewStore(), WithLogger(zap.New(core)))
	_, err := s.AddFile(context.Background(), File{Type: strings.Repeat("y", 33)})
	if !errors.Is(err, domain.ErrWriteRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	entries := logs.FilterMessage("store operation failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["op"] != "add_file" {
		t.Fatalf("unexpected log entries %#v", entries)
	}
}
