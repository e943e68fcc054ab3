// Package core implements the record store: typed CRUD, ordering, text
// search and cascade rules over projects, notes, files, scenes and the
// profile, on top of any domain.Medium.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"creatorstudio/pkg/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Store is the record store. It holds no record state of its own; every
// operation completes against the medium before returning.
type Store struct {
	medium  domain.Medium
	clock   Clock
	log     *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	cascade CascadePolicy
	newID   func() string
}

// NewStore builds a record store over medium.
func NewStore(medium domain.Medium, opts ...Option) *Store {
	s := &Store{
		medium:  medium,
		clock:   defaultClock(),
		log:     zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		cascade: CascadeLeave,
		newID:   defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Medium returns the underlying keyed medium.
func (s *Store) Medium() domain.Medium { return s.medium }

// Cascade returns the configured project deletion policy.
func (s *Store) Cascade() CascadePolicy { return s.cascade }

// Close closes the medium.
func (s *Store) Close() error { return s.medium.Close() }

func (s *Store) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		s.log.Debug("store operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Store) now() time.Time { return s.clock.Now().UTC() }

// touch returns a timestamp strictly after prev.
func (s *Store) touch(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func check(op string, c domain.Collection, key string, rec any) error {
	if err := validate.Struct(rec); err != nil {
		return domain.Rejected(op, c, key, err)
	}
	return nil
}

func put(ctx context.Context, m domain.Medium, c domain.Collection, rec domain.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return domain.Rejected("put", c, rec.RecordKey(), fmt.Errorf("encode: %w", err))
	}
	return m.Put(ctx, c, domain.Entry{Key: rec.RecordKey(), Index: rec.IndexValue(), Body: body})
}

// get loads key into a T. Absence is reported as ok=false.
func get[T any](ctx context.Context, m domain.Medium, c domain.Collection, key string) (T, bool, error) {
	var out T
	e, err := m.Get(ctx, c, key)
	if errors.Is(err, domain.ErrNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(e.Body, &out); err != nil {
		return out, false, &domain.StoreError{Op: "get", Collection: c, Key: key, Err: fmt.Errorf("decode: %w", err)}
	}
	return out, true, nil
}

// scan decodes a fresh cursor every time the sequence is ranged over.
func scan[T any](ctx context.Context, m domain.Medium, c domain.Collection, r domain.Range) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cur, err := m.Open(ctx, c, r)
		if err != nil {
			yield(zero, err)
			return
		}
		defer func() { _ = cur.Close() }()
		for cur.Next(ctx) {
			e := cur.Entry()
			var v T
			if err := json.Unmarshal(e.Body, &v); err != nil {
				yield(zero, &domain.StoreError{Op: "scan", Collection: c, Key: e.Key, Err: fmt.Errorf("decode: %w", err)})
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// filtered applies opts to a medium scan: the byProject index when a project
// is given and the text match when a query is given.
func filtered[T any](ctx context.Context, m domain.Medium, c domain.Collection, opts ListOptions, text func(T) string) iter.Seq2[T, error] {
	r := domain.Range{}
	if opts.ProjectID != "" {
		r = domain.ByProject(opts.ProjectID)
	}
	q := normalizeQuery(opts.Query)
	return func(yield func(T, error) bool) {
		for v, err := range scan[T](ctx, m, c, r) {
			if err != nil {
				yield(v, err)
				return
			}
			if q != "" && text != nil && !strings.Contains(strings.ToLower(text(v)), q) {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
