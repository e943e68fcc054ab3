package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/config"
	"creatorstudio/internal/core"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
)

// app is the set of collaborators one command invocation works with.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	blobs   blob.Store
	store   *core.Store
	planner *planner.Planner
	cache   *offline.Coordinator
}

// newLogger builds the zap logger described by cfg.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// openApp loads configuration and opens storage. reg, when non-nil, receives
// the store and cache collectors.
func openApp(ctx context.Context, opts *RootOptions, reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}

	bs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open blob store", err)
	}

	storeOpts := []core.Option{core.WithLogger(log.Named("store"))}
	if reg != nil {
		rec, err := core.NewPrometheusMetricsRecorder("creatorstudio", reg)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, core.WithMetrics(rec))
	}
	store, err := core.OpenStore(ctx, cfg.Storage, bs, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open record store", err)
	}

	a := &app{cfg: cfg, log: log, blobs: bs, store: store}
	if cfg.Cache.Enabled {
		cacheOpts := []offline.Option{offline.WithLogger(log.Named("offline")), offline.WithRoot(cfg.Cache.Root)}
		if reg != nil {
			cacheOpts = append(cacheOpts, offline.WithRegisterer(reg))
		}
		if a.cache, err = offline.New(cfg.Cache.Manifest, bs, cacheOpts...); err != nil {
			_ = store.Close()
			return nil, WrapExitError(ExitCommandError, "open offline cache", err)
		}
	}
	a.planner = planner.New(
		planner.NewSettingsStore(bs, cfg.Planner.SettingsKey),
		planner.WithLogger(log.Named("planner")),
		planner.WithBreaker(cfg.Planner.Breaker),
		planner.WithHTTPClient(plannerClient(cfg.Planner, a.cache)),
	)
	return a, nil
}

func (a *app) requireCache() error {
	if a.cache == nil {
		return NewExitError(ExitCommandError, "offline cache is disabled")
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.store.Close())
	_ = a.log.Sync()
	return errors.Join(errs...)
}
