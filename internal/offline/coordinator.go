package offline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"creatorstudio/internal/blob"
)

var (
	// ErrUnavailable is returned when a request misses the cache and the
	// network fetch fails.
	ErrUnavailable = errors.New("offline: resource unavailable")
	// ErrNotInstalled is returned by Activate before a successful Install.
	ErrNotInstalled = errors.New("offline: no generation installed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("offline: coordinator closed")
)

const (
	lockStripes    = 64
	installWorkers = 8
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTransport sets the network transport. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Coordinator) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRegisterer registers the coordinator metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Coordinator) { c.reg = reg }
}

// WithRoot sets the blob key prefix generations live under.
func WithRoot(root string) Option {
	return func(c *Coordinator) { c.root = root }
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator owns the cache lifecycle. Install seeds a generation, Activate
// makes it the only one and starts interception. Fetch and RoundTrip answer
// cache-first with a background refresh.
type Coordinator struct {
	manifest  Manifest
	store     *generations
	root      string
	transport http.RoundTripper
	log       *zap.Logger
	metrics   *Metrics
	reg       prometheus.Registerer
	now       func() time.Time

	mu        sync.RWMutex
	installed string
	active    bool
	closed    bool

	locks [lockStripes]sync.Mutex
	wg    sync.WaitGroup
}

// New builds a coordinator for m whose generations live in bs.
func New(m Manifest, bs blob.Store, opts ...Option) (*Coordinator, error) {
	if bs == nil {
		return nil, errors.New("offline: blob store is required")
	}
	if _, err := m.URLs(); err != nil {
		return nil, fmt.Errorf("offline: %w", err)
	}
	c := &Coordinator{
		manifest:  m,
		transport: http.DefaultTransport,
		log:       zap.NewNop(),
		metrics:   newMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = newGenerations(bs, c.root)
	if c.reg != nil {
		if err := c.metrics.register(c.reg); err != nil {
			return nil, fmt.Errorf("offline: register metrics: %w", err)
		}
	}
	return c, nil
}

// Manifest returns the manifest the coordinator installs.
func (c *Coordinator) Manifest() Manifest { return c.manifest }

// Generation returns the installed generation name, empty before Install.
func (c *Coordinator) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.installed
}

// Active reports whether requests are intercepted.
func (c *Coordinator) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Generations lists every generation present in the blob store.
func (c *Coordinator) Generations(ctx context.Context) ([]string, error) {
	return c.store.list(ctx)
}

// Status summarizes the cache state.
type Status struct {
	Generation  string   `json:"generation"`
	Active      bool     `json:"active"`
	Generations []string `json:"generations"`
	Entries     int      `json:"entries"`
}

// Status reports the installed generation and what the blob store holds.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	c.mu.RLock()
	st := Status{Generation: c.installed, Active: c.active}
	c.mu.RUnlock()
	gens, err := c.store.list(ctx)
	if err != nil {
		return st, err
	}
	st.Generations = gens
	if st.Generation != "" {
		if st.Entries, err = c.store.count(ctx, st.Generation); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Install fetches every manifest resource concurrently and seeds a fresh
// generation with the responses. Any failed or non-2xx fetch fails the
// install before anything is written.
func (c *Coordinator) Install(ctx context.Context) (err error) {
	defer func() { c.metrics.installs.WithLabelValues(status(err)).Inc() }()
	if c.isClosed() {
		return ErrClosed
	}
	urls, err := c.manifest.URLs()
	if err != nil {
		return err
	}
	fetched := make([]*entry, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installWorkers)
	for i, u := range urls {
		g.Go(func() error {
			e, err := c.fetchAsset(gctx, u)
			if err != nil {
				return fmt.Errorf("install %s: %w", u, err)
			}
			fetched[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn("cache install failed", zap.Error(err))
		return err
	}

	gen := c.manifest.Generation()
	existing, err := c.store.list(ctx)
	if err != nil {
		return err
	}
	fresh := !slices.Contains(existing, gen)
	if err := c.store.create(ctx, gen); err != nil {
		return fmt.Errorf("create generation %s: %w", gen, err)
	}
	for _, e := range fetched {
		if err := c.store.write(ctx, gen, e); err != nil {
			if fresh {
				_ = c.store.drop(ctx, gen)
			}
			return fmt.Errorf("seed generation %s: %w", gen, err)
		}
	}

	c.mu.Lock()
	c.installed = gen
	c.mu.Unlock()
	c.log.Info("cache generation installed", zap.String("generation", gen), zap.Int("entries", len(fetched)))
	return nil
}

// Activate deletes every generation except the installed one and starts
// intercepting requests.
func (c *Coordinator) Activate(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	gen := c.Generation()
	if gen == "" {
		return ErrNotInstalled
	}
	names, err := c.store.list(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == gen {
			continue
		}
		if err := c.store.drop(ctx, name); err != nil {
			return fmt.Errorf("delete generation %s: %w", name, err)
		}
		c.metrics.pruned.Inc()
		c.log.Debug("stale cache generation deleted", zap.String("generation", name))
	}
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	return nil
}

// Resume re-adopts the manifest's generation when a previous process left it
// in the blob store, installed and active, so requests are answered from it
// without a fresh install. It reports whether a generation was found.
func (c *Coordinator) Resume(ctx context.Context) (bool, error) {
	if c.isClosed() {
		return false, ErrClosed
	}
	gen := c.manifest.Generation()
	names, err := c.store.list(ctx)
	if err != nil {
		return false, err
	}
	if !slices.Contains(names, gen) {
		return false, nil
	}
	c.mu.Lock()
	c.installed = gen
	c.mu.Unlock()
	if err := c.Activate(ctx); err != nil {
		return false, err
	}
	c.log.Info("cache generation resumed", zap.String("generation", gen))
	return true, nil
}

type fetchResult struct {
	entry *entry
	err   error
}

// Fetch answers req. Once active it looks the request up in the installed
// generation while the live fetch runs. A hit is returned at once and the
// fetch finishes in the background; a miss waits for the fetch and fails
// with ErrUnavailable when the network does. Before activation requests go
// straight to the network.
func (c *Coordinator) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	gen, active := c.installed, c.active
	if !active {
		c.mu.RUnlock()
		c.metrics.requests.WithLabelValues("passthrough").Inc()
		out := req.Clone(ctx)
		out.RequestURI = ""
		return c.transport.RoundTrip(out)
	}
	live := make(chan fetchResult, 1)
	c.wg.Add(1)
	c.mu.RUnlock()

	rawURL := req.URL.String()
	id := identity(req.Method, rawURL)
	go func() {
		defer c.wg.Done()
		e, err := c.refresh(context.WithoutCancel(ctx), gen, req, id)
		live <- fetchResult{entry: e, err: err}
	}()

	if req.Method == "" || req.Method == http.MethodGet {
		cached, ok, err := c.store.read(ctx, gen, id)
		if err != nil {
			c.log.Warn("cache lookup failed", zap.String("url", rawURL), zap.Error(err))
		}
		if ok {
			c.metrics.requests.WithLabelValues("hit").Inc()
			return cached.response(req), nil
		}
	}

	select {
	case res := <-live:
		if res.err != nil {
			c.metrics.requests.WithLabelValues("unavailable").Inc()
			return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, req.Method, rawURL, res.err)
		}
		c.metrics.requests.WithLabelValues("miss").Inc()
		return res.entry.response(req), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RoundTrip implements http.RoundTripper.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Fetch(req.Context(), req)
}

// Client returns an http.Client whose requests go through the coordinator.
func (c *Coordinator) Client() *http.Client {
	return &http.Client{Transport: c}
}

// Wait blocks until every background refresh has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close stops accepting requests and waits for background refreshes.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// refresh performs the live fetch and writes a successful cacheable response
// back into gen, replacing the previous entry.
func (c *Coordinator) refresh(ctx context.Context, gen string, req *http.Request, id string) (*entry, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	resp, err := c.transport.RoundTrip(out)
	if err != nil {
		c.metrics.refreshes.WithLabelValues("failed").Inc()
		c.log.Debug("live fetch failed", zap.String("request", id), zap.Error(err))
		return nil, err
	}
	e, err := c.capture(req.Method, req.URL.String(), resp)
	if err != nil {
		c.metrics.refreshes.WithLabelValues("failed").Inc()
		return nil, err
	}
	// Only 2xx GETs for the own origin or an allowed prefix are written back;
	// an error page never replaces a good entry.
	if !success(e.Status) || !c.manifest.Cacheable(e.Method, e.URL) {
		c.metrics.refreshes.WithLabelValues("skipped").Inc()
		return e, nil
	}

	lock := c.lock(id)
	lock.Lock()
	defer lock.Unlock()
	if c.Generation() != gen {
		c.metrics.refreshes.WithLabelValues("skipped").Inc()
		return e, nil
	}
	if err := c.store.write(ctx, gen, e); err != nil {
		c.metrics.refreshes.WithLabelValues("failed").Inc()
		c.log.Warn("cache write-back failed", zap.String("request", id), zap.Error(err))
		return e, nil
	}
	c.metrics.refreshes.WithLabelValues("stored").Inc()
	return e, nil
}

func (c *Coordinator) fetchAsset(ctx context.Context, rawURL string) (*entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := (&http.Client{Transport: c.transport}).Do(req)
	if err != nil {
		return nil, err
	}
	e, err := c.capture(http.MethodGet, rawURL, resp)
	if err != nil {
		return nil, err
	}
	if !success(e.Status) {
		return nil, fmt.Errorf("unexpected status %d", e.Status)
	}
	return e, nil
}

func (c *Coordinator) capture(method, rawURL string, resp *http.Response) (*entry, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if method == "" {
		method = http.MethodGet
	}
	h := resp.Header.Clone()
	for _, k := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Content-Length"} {
		h.Del(k)
	}
	return &entry{
		Method:   method,
		URL:      withoutFragment(rawURL),
		Status:   resp.StatusCode,
		Header:   h,
		Body:     body,
		StoredAt: c.now(),
	}, nil
}

func (c *Coordinator) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &c.locks[h.Sum32()%lockStripes]
}

func success(code int) bool { return code >= 200 && code < 300 }

func withoutFragment(rawURL string) string {
	before, _, _ := strings.Cut(rawURL, "#")
	return before
}
