package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"creatorstudio/internal/adapters/exports"
	"creatorstudio/internal/adapters/httpapi"
	"creatorstudio/internal/offline"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and offline asset proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, addrOverride string) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := openApp(ctx, opts, reg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	worker := exports.NewWorker(a.store, a.blobs, exports.WithLogger(a.log.Named("exports")))
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	deps := httpapi.Deps{
		Store:          a.store,
		Planner:        a.planner,
		Exports:        worker,
		Gatherer:       reg,
		Logger:         a.log.Named("http"),
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
	}
	if a.cache != nil {
		deps.Cache = a.cache
		deps.AssetProxy = offline.NewHandler(a.cache)
		go warmCache(ctx, a.cache, a.log)
	}

	addr := a.cfg.HTTP.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitFailure, "http server", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	return nil
}

// warmCache resumes a persisted generation or installs and activates a
// fresh one. Failure leaves requests passing through to the network.
func warmCache(ctx context.Context, c *offline.Coordinator, log *zap.Logger) {
	resumed, err := c.Resume(ctx)
	if err != nil {
		log.Warn("cache resume failed", zap.Error(err))
	}
	if resumed {
		return
	}
	if err := c.Install(ctx); err != nil {
		log.Warn("cache install failed; serving from network", zap.Error(err))
		return
	}
	if err := c.Activate(ctx); err != nil {
		log.Warn("cache activate failed", zap.Error(err))
	}
}
