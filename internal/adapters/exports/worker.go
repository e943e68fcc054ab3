// Package exports bundles record store contents into downloadable artifacts.
// Requests are queued and rendered asynchronously; artifacts land in a blob
// store under <prefix>/<export id>/.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/core"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format selects an artifact rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DefaultPrefix is the blob key prefix for artifacts.
const DefaultPrefix = "exports"

var (
	ErrProjectNotFound   = errors.New("export project not found")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrQueueFull         = errors.New("export queue full")
	ErrStopped           = errors.New("export worker stopped")
	ErrNotReady          = errors.New("export not finished")
)

// Artifact describes one stored rendering of a bundle.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId,omitempty"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (r Record) copy() Record {
	r.Formats = append([]Format(nil), r.Formats...)
	r.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// Input is an enqueue request. An empty ProjectID exports everything.
type Input struct {
	ProjectID string   `json:"projectId,omitempty"`
	Formats   []Format `json:"formats,omitempty"`
}

// Source is the read side of the record store the worker bundles from.
type Source interface {
	GetProject(ctx context.Context, id string) (core.Project, bool, error)
	ListProjects(ctx context.Context) ([]core.Project, error)
	ListNotes(ctx context.Context, opts core.ListOptions) ([]core.Note, error)
	ListFiles(ctx context.Context, opts core.ListOptions) ([]core.File, error)
	ListScenes(ctx context.Context, opts core.ListOptions) ([]core.Scene, error)
	GetProfile(ctx context.Context) (core.Profile, error)
}

// Scheduler queues exports and exposes their status.
type Scheduler interface {
	Enqueue(ctx context.Context, input Input) (Record, error)
	Get(id string) (Record, bool)
	Download(ctx context.Context, id string, format Format) ([]byte, Artifact, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithPrefix sets the blob key prefix.
func WithPrefix(p string) Option {
	return func(w *Worker) {
		if p != "" {
			w.prefix = p
		}
	}
}

// WithQueueSize bounds the number of pending requests.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker renders exports asynchronously.
type Worker struct {
	source    Source
	blobs     blob.Store
	log       *zap.Logger
	prefix    string
	queueSize int
	now       func() time.Time

	queue   chan string
	mu      sync.RWMutex
	jobs    map[string]*Record
	entropy *ulid.MonotonicEntropy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Scheduler = (*Worker)(nil)

// NewWorker constructs an export worker. Call Start before enqueueing.
func NewWorker(src Source, bs blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:    src,
		blobs:     bs,
		log:       zap.NewNop(),
		prefix:    DefaultPrefix,
		queueSize: 32,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*Record),
		entropy:   ulid.Monotonic(rand.Reader, 0),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan string, w.queueSize)
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current job.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue validates input and schedules an export.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.ctx.Err() != nil {
		return Record{}, ErrStopped
	}
	formats, err := normalizeFormats(input.Formats)
	if err != nil {
		return Record{}, err
	}
	if input.ProjectID != "" {
		_, ok, err := w.source.GetProject(ctx, input.ProjectID)
		if err != nil {
			return Record{}, err
		}
		if !ok {
			return Record{}, fmt.Errorf("%w: %s", ErrProjectNotFound, input.ProjectID)
		}
	}

	now := w.now()
	w.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), w.entropy).String()
	record := &Record{
		ID:        id,
		ProjectID: input.ProjectID,
		Formats:   formats,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.jobs[id] = record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- id:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.log.Info("export queued", zap.String("export", id), zap.String("project", input.ProjectID))
	return snapshot, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Download reads a finished artifact back from the blob store.
func (w *Worker) Download(ctx context.Context, id string, format Format) ([]byte, Artifact, error) {
	record, ok := w.Get(id)
	if !ok {
		return nil, Artifact{}, blob.ErrNotFound
	}
	if record.Status != StatusSucceeded {
		return nil, Artifact{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, record.Status)
	}
	for _, a := range record.Artifacts {
		if a.Format != format {
			continue
		}
		data, _, err := blob.ReadAll(ctx, w.blobs, a.Key)
		if err != nil {
			return nil, Artifact{}, err
		}
		return data, a, nil
	}
	return nil, Artifact{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func (w *Worker) process(id string) {
	record, ok := w.Get(id)
	if !ok {
		return
	}
	w.setStatus(id, StatusRunning)

	b, err := w.collect(w.ctx, record.ProjectID)
	if err != nil {
		w.fail(id, fmt.Sprintf("collect records: %v", err))
		return
	}
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, rows, err := render(format, b)
		if err != nil {
			w.fail(id, err.Error())
			return
		}
		a := Artifact{
			Key:       path.Join(w.prefix, id, "bundle."+string(format)),
			Format:    format,
			SizeBytes: int64(len(payload)),
			Rows:      rows,
			CreatedAt: w.now(),
		}
		a.ContentType = contentType(format)
		_, err = w.blobs.Put(w.ctx, a.Key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: a.ContentType,
			Metadata:    map[string]string{"export": id, "rows": strconv.Itoa(rows)},
		})
		if err != nil {
			w.fail(id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, a)
	}
	w.complete(id, artifacts)
}

func (w *Worker) setStatus(id string, status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.UpdatedAt = w.now()
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.log.Info("export finished", zap.String("export", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.log.Warn("export failed", zap.String("export", id), zap.String("error", reason))
}

func normalizeFormats(formats []Format) ([]Format, error) {
	if len(formats) == 0 {
		return []Format{FormatJSON, FormatCSV}, nil
	}
	out := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		if f != FormatJSON && f != FormatCSV {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func contentType(f Format) string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Bundle is the JSON artifact body.
type Bundle struct {
	ExportedAt time.Time      `json:"exportedAt"`
	ProjectID  string         `json:"projectId,omitempty"`
	Projects   []core.Project `json:"projects"`
	Notes      []core.Note    `json:"notes"`
	Files      []core.File    `json:"files"`
	Scenes     []core.Scene   `json:"scenes"`
	Profile    *core.Profile  `json:"profile,omitempty"`
}

func (w *Worker) collect(ctx context.Context, projectID string) (Bundle, error) {
	b := Bundle{ExportedAt: w.now(), ProjectID: projectID}
	if projectID == "" {
		projects, err := w.source.ListProjects(ctx)
		if err != nil {
			return Bundle{}, err
		}
		b.Projects = projects
		profile, err := w.source.GetProfile(ctx)
		if err != nil {
			return Bundle{}, err
		}
		b.Profile = &profile
	} else {
		p, ok, err := w.source.GetProject(ctx, projectID)
		if err != nil {
			return Bundle{}, err
		}
		if !ok {
			return Bundle{}, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		b.Projects = []core.Project{p}
	}
	opts := core.ListOptions{ProjectID: projectID}
	var err error
	if b.Notes, err = w.source.ListNotes(ctx, opts); err != nil {
		return Bundle{}, err
	}
	if b.Files, err = w.source.ListFiles(ctx, opts); err != nil {
		return Bundle{}, err
	}
	if b.Scenes, err = w.source.ListScenes(ctx, opts); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// csvHeader is the column layout of the CSV listing.
var csvHeader = []string{"collection", "id", "projectId", "title", "updatedAt"}

func render(format Format, b Bundle) ([]byte, int, error) {
	rows := len(b.Projects) + len(b.Notes) + len(b.Files) + len(b.Scenes)
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, 0, fmt.Errorf("marshal json: %w", err)
		}
		return payload, rows, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		cw := csv.NewWriter(buf)
		_ = cw.Write(csvHeader)
		stamp := func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
		for _, p := range b.Projects {
			_ = cw.Write([]string{"projects", p.ID, "", p.Title, stamp(p.UpdatedAt)})
		}
		for _, n := range b.Notes {
			_ = cw.Write([]string{"notes", n.ID, n.ProjectID, n.Title, stamp(n.UpdatedAt)})
		}
		for _, f := range b.Files {
			_ = cw.Write([]string{"files", f.ID, f.ProjectID, f.Name, stamp(f.UpdatedAt)})
		}
		for _, s := range b.Scenes {
			_ = cw.Write([]string{"scenes", s.ID, s.ProjectID, "", stamp(s.UpdatedAt)})
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return nil, 0, err
		}
		return buf.Bytes(), rows, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
