package cli

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"creatorstudio/internal/adapters/exports"
	"creatorstudio/internal/config"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
)

// plannerClient sends planner calls through the offline cache when one is
// configured. The calls are POSTs, so the cache only passes them on.
func plannerClient(cfg config.PlannerConfig, cache *offline.Coordinator) *http.Client {
	c := &http.Client{Timeout: cfg.Timeout}
	if cache != nil {
		c.Transport = cache
	}
	return c
}

// NewPlanCommand creates the plan command and its settings subcommands.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <idea>",
		Short: "Turn an idea into a step-by-step plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return printJSON(cmd.OutOrStdout(), a.planner.Plan(cmd.Context(), strings.Join(args, " ")))
			})
		},
	}

	settings := &cobra.Command{Use: "settings", Short: "Show or change the remote planner settings"}
	settings.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the settings with the key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				st, err := a.planner.Settings().Load(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st.Redacted())
			})
		},
	})
	var apiKey, model, endpoint string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the given settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				store := a.planner.Settings()
				st, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				f := cmd.Flags()
				if f.Changed("api-key") {
					st.APIKey = apiKey
				}
				if f.Changed("model") {
					st.Model = model
				}
				if f.Changed("endpoint") {
					st.Endpoint = endpoint
				}
				if err := store.Save(cmd.Context(), st); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st.Redacted())
			})
		},
	}
	set.Flags().StringVar(&apiKey, "api-key", "", "API key for the completions endpoint")
	set.Flags().StringVar(&model, "model", "", "model name")
	set.Flags().StringVar(&endpoint, "endpoint", "", "chat completions URL (default "+planner.DefaultEndpoint+")")
	settings.AddCommand(set)
	cmd.AddCommand(settings)
	return cmd
}

// NewExportCommand creates the export command. It runs the export worker in
// process and waits for the result.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var (
		projectID string
		formats   []string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Bundle records into the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				w := exports.NewWorker(a.store, a.blobs, exports.WithLogger(a.log.Named("exports")))
				w.Start()
				defer func() { _ = w.Stop(context.Background()) }()

				in := exports.Input{ProjectID: projectID}
				for _, f := range formats {
					in.Formats = append(in.Formats, exports.Format(f))
				}
				rec, err := w.Enqueue(cmd.Context(), in)
				if err != nil {
					return WrapExitError(ExitCommandError, "enqueue export", err)
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				rec, err = waitExport(ctx, w, rec.ID)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
					return err
				}
				if rec.Status == exports.StatusFailed {
					return NewExitError(ExitFailure, rec.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "export a single project (default everything)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "artifact formats: json, csv (default both)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the export")
	return cmd
}

func waitExport(ctx context.Context, w *exports.Worker, id string) (exports.Record, error) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if rec, ok := w.Get(id); ok && (rec.Status == exports.StatusSucceeded || rec.Status == exports.StatusFailed) {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return exports.Record{}, WrapExitError(ExitFailure, "wait for export", ctx.Err())
		case <-tick.C:
		}
	}
}

// NewCacheCommand creates the offline cache command group.
func NewCacheCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage the offline asset cache"}

	status := func(cmd *cobra.Command, a *app) error {
		st, err := a.cache.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the installed generation and stored generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireCache(); err != nil {
					return err
				}
				return status(cmd, a)
			})
		},
	})
	var activate bool
	install := &cobra.Command{
		Use:   "install",
		Short: "Fetch every manifest resource into a new generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireCache(); err != nil {
					return err
				}
				if err := a.cache.Install(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "install cache", err)
				}
				if activate {
					if err := a.cache.Activate(cmd.Context()); err != nil {
						return WrapExitError(ExitFailure, "activate cache", err)
					}
				}
				return status(cmd, a)
			})
		},
	}
	install.Flags().BoolVar(&activate, "activate", true, "delete older generations after installing")
	cmd.AddCommand(install)
	return cmd
}
