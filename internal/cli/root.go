// Package cli implements the creatorstudio command line: the API server plus
// direct access to the record store, planner, exports and offline cache.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "creatorstudio",
		Short:         "Local-first studio for projects, notes, files and scenes",
		Long:          "creatorstudio keeps projects, notes, files and 3D scenes in a local record store and serves them with an offline asset cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewNoteCommand(opts))
	cmd.AddCommand(NewFileCommand(opts))
	cmd.AddCommand(NewSceneCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}

// withApp opens the app for one command run and closes it afterwards.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app) error) (err error) {
	a, err := openApp(cmd.Context(), opts, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return fn(a)
}
