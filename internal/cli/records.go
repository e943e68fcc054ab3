package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"creatorstudio/internal/core"
	"creatorstudio/pkg/domain"
)

// NewProjectCommand creates the project command group.
func NewProjectCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				items, err := a.store.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				p, err := a.store.AddProject(cmd.Context(), core.Project{Title: args[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				p, ok, err := a.store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return notFound("project", args[0])
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				p, ok, err := a.store.UpdateProject(cmd.Context(), args[0], domain.ProjectPatch{Title: &args[1]})
				if err != nil {
					return err
				}
				if !ok {
					return notFound("project", args[0])
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a project; children follow the configured cascade policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return a.store.DeleteProject(cmd.Context(), args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Return the first project, creating one when there is none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				p, err := a.store.EnsureDefaultProject(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})
	return cmd
}

func addListFlags(cmd *cobra.Command, lo *core.ListOptions) {
	cmd.Flags().StringVarP(&lo.ProjectID, "project", "p", "", "only records owned by this project")
	cmd.Flags().StringVarP(&lo.Query, "query", "q", "", "case-insensitive text filter")
}

// NewNoteCommand creates the note command group.
func NewNoteCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "note", Short: "Manage notes"}

	var lo core.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List notes, pinned first then newest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				items, err := a.store.ListNotes(cmd.Context(), lo)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	addListFlags(list, &lo)
	cmd.AddCommand(list)

	var n core.Note
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				saved, err := a.store.AddNote(cmd.Context(), n)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
	add.Flags().StringVarP(&n.ProjectID, "project", "p", "", "owning project id")
	add.Flags().StringVarP(&n.Title, "title", "t", "", "note title")
	add.Flags().StringVar(&n.Content, "content", "", "note body")
	add.Flags().BoolVar(&n.Pinned, "pinned", false, "pin the note")
	cmd.AddCommand(add)

	var patch struct {
		project, title, content string
		pinned                  bool
	}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the given note fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.NotePatch
			f := cmd.Flags()
			if f.Changed("project") {
				p.ProjectID = &patch.project
			}
			if f.Changed("title") {
				p.Title = &patch.title
			}
			if f.Changed("content") {
				p.Content = &patch.content
			}
			if f.Changed("pinned") {
				p.Pinned = &patch.pinned
			}
			return withApp(cmd, opts, func(a *app) error {
				saved, ok, err := a.store.UpdateNote(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				if !ok {
					return notFound("note", args[0])
				}
				return printJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
	update.Flags().StringVarP(&patch.project, "project", "p", "", "move to project (empty for global)")
	update.Flags().StringVarP(&patch.title, "title", "t", "", "new title")
	update.Flags().StringVar(&patch.content, "content", "", "new body")
	update.Flags().BoolVar(&patch.pinned, "pinned", false, "pin or unpin")
	cmd.AddCommand(update)

	cmd.AddCommand(showCommand(opts, "note", func(a *app, cmd *cobra.Command, id string) (any, bool, error) {
		return a.store.GetNote(cmd.Context(), id)
	}))
	cmd.AddCommand(rmCommand(opts, "note", func(a *app, cmd *cobra.Command, id string) error {
		return a.store.DeleteNote(cmd.Context(), id)
	}))
	return cmd
}

// NewFileCommand creates the file command group.
func NewFileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "file", Short: "Manage code and text files"}

	var lo core.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				items, err := a.store.ListFiles(cmd.Context(), lo)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	addListFlags(list, &lo)
	cmd.AddCommand(list)

	var f core.File
	var from string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from != "" {
				data, err := os.ReadFile(from)
				if err != nil {
					return WrapExitError(ExitCommandError, "read content", err)
				}
				f.Content = string(data)
			}
			return withApp(cmd, opts, func(a *app) error {
				saved, err := a.store.AddFile(cmd.Context(), f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
	add.Flags().StringVarP(&f.ProjectID, "project", "p", "", "owning project id")
	add.Flags().StringVarP(&f.Name, "name", "n", "", "file name")
	add.Flags().StringVar(&f.Type, "type", "", "content kind, e.g. js or md")
	add.Flags().StringVar(&f.Content, "content", "", "file content")
	add.Flags().StringVar(&from, "from", "", "read content from a local path")
	cmd.AddCommand(add)

	var patch struct {
		project, name, typ, content string
	}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the given file fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.FilePatch
			fl := cmd.Flags()
			if fl.Changed("project") {
				p.ProjectID = &patch.project
			}
			if fl.Changed("name") {
				p.Name = &patch.name
			}
			if fl.Changed("type") {
				p.Type = &patch.typ
			}
			if fl.Changed("content") {
				p.Content = &patch.content
			}
			return withApp(cmd, opts, func(a *app) error {
				saved, ok, err := a.store.UpdateFile(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				if !ok {
					return notFound("file", args[0])
				}
				return printJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
	update.Flags().StringVarP(&patch.project, "project", "p", "", "move to project (empty for global)")
	update.Flags().StringVarP(&patch.name, "name", "n", "", "new name")
	update.Flags().StringVar(&patch.typ, "type", "", "new content kind")
	update.Flags().StringVar(&patch.content, "content", "", "new content")
	cmd.AddCommand(update)

	cmd.AddCommand(showCommand(opts, "file", func(a *app, cmd *cobra.Command, id string) (any, bool, error) {
		return a.store.GetFile(cmd.Context(), id)
	}))
	cmd.AddCommand(rmCommand(opts, "file", func(a *app, cmd *cobra.Command, id string) error {
		return a.store.DeleteFile(cmd.Context(), id)
	}))
	return cmd
}

// NewSceneCommand creates the scene command group.
func NewSceneCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "scene", Short: "Manage 3D scene snapshots"}

	var lo core.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List scenes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				items, err := a.store.ListScenes(cmd.Context(), core.ListOptions{ProjectID: lo.ProjectID})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	list.Flags().StringVarP(&lo.ProjectID, "project", "p", "", "only scenes owned by this project")
	cmd.AddCommand(list)

	var projectID, payload, from string
	add := &cobra.Command{
		Use:   "add",
		Short: "Save a scene snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw := []byte(payload)
			if from != "" {
				data, err := os.ReadFile(from)
				if err != nil {
					return WrapExitError(ExitCommandError, "read payload", err)
				}
				raw = data
			}
			return withApp(cmd, opts, func(a *app) error {
				sc, err := a.store.AddScene(cmd.Context(), core.Scene{ProjectID: projectID, Payload: json.RawMessage(raw)})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sc)
			})
		},
	}
	add.Flags().StringVarP(&projectID, "project", "p", "", "owning project id")
	add.Flags().StringVar(&payload, "payload", "", "scene JSON (defaults to an empty shape list)")
	add.Flags().StringVar(&from, "from", "", "read scene JSON from a local path")
	cmd.AddCommand(add)

	cmd.AddCommand(showCommand(opts, "scene", func(a *app, cmd *cobra.Command, id string) (any, bool, error) {
		return a.store.GetScene(cmd.Context(), id)
	}))
	cmd.AddCommand(rmCommand(opts, "scene", func(a *app, cmd *cobra.Command, id string) error {
		return a.store.DeleteScene(cmd.Context(), id)
	}))
	return cmd
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Show or edit the profile"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				p, err := a.store.GetProfile(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	})

	var name, bio, avatar string
	set := &cobra.Command{
		Use:   "set",
		Short: "Merge the given fields into the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch domain.ProfilePatch
			if cmd.Flags().Changed("name") {
				patch.DisplayName = &name
			}
			if cmd.Flags().Changed("bio") {
				patch.Bio = &bio
			}
			if avatar != "" {
				data, err := os.ReadFile(avatar)
				if err != nil {
					return WrapExitError(ExitCommandError, "read avatar", err)
				}
				patch.Avatar = data
			}
			return withApp(cmd, opts, func(a *app) error {
				p, err := a.store.SaveProfile(cmd.Context(), patch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&bio, "bio", "", "short bio")
	set.Flags().StringVar(&avatar, "avatar", "", "path to an avatar image")
	cmd.AddCommand(set)
	return cmd
}

func showCommand(opts *RootOptions, kind string, get func(a *app, cmd *cobra.Command, id string) (any, bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: fmt.Sprintf("Show one %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				v, ok, err := get(a, cmd, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return notFound(kind, args[0])
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func rmCommand(opts *RootOptions, kind string, del func(a *app, cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: fmt.Sprintf("Delete a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return del(a, cmd, args[0])
			})
		},
	}
}
