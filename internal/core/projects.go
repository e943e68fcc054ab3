package core

import (
	"context"
	"iter"
	"sort"

	"go.uber.org/zap"

	"creatorstudio/pkg/domain"
)

// AddProject stores a new project under a fresh key.
func (s *Store) AddProject(ctx context.Context, p Project) (Project, error) {
	err := s.run(ctx, "add_project", func(ctx context.Context) error {
		now := s.now()
		p.ID = s.newID()
		p.Title = orDefault(p.Title, UntitledTitle)
		p.CreatedAt, p.UpdatedAt = now, now
		if err := check("put", domain.CollectionProjects, p.ID, p); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionProjects, p)
	})
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProject returns the project stored under id.
func (s *Store) GetProject(ctx context.Context, id string) (Project, bool, error) {
	var p Project
	var ok bool
	err := s.run(ctx, "get_project", func(ctx context.Context) error {
		var err error
		p, ok, err = get[Project](ctx, s.medium, domain.CollectionProjects, id)
		return err
	})
	return p, ok, err
}

// Projects iterates projects in medium order.
func (s *Store) Projects(ctx context.Context) iter.Seq2[Project, error] {
	return scan[Project](ctx, s.medium, domain.CollectionProjects, domain.Range{})
}

// ListProjects returns every project, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := s.run(ctx, "list_projects", func(ctx context.Context) error {
		var err error
		if out, err = collect(s.Projects(ctx)); err != nil {
			return err
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

// UpdateProject applies patch. It reports false when id does not exist.
func (s *Store) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, bool, error) {
	var p Project
	var ok bool
	err := s.run(ctx, "update_project", func(ctx context.Context) error {
		var err error
		if p, ok, err = get[Project](ctx, s.medium, domain.CollectionProjects, id); err != nil || !ok {
			return err
		}
		patch.Apply(&p)
		p.Title = orDefault(p.Title, UntitledTitle)
		p.UpdatedAt = s.touch(p.UpdatedAt)
		if err := check("put", domain.CollectionProjects, id, p); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionProjects, p)
	})
	if err != nil || !ok {
		return Project{}, false, err
	}
	return p, true, nil
}

// DeleteProject removes the project and then applies the cascade policy to
// the notes, files and scenes it owned. Deleting an absent id is a no-op.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.run(ctx, "delete_project", func(ctx context.Context) error {
		if err := s.medium.Delete(ctx, domain.CollectionProjects, id); err != nil {
			return err
		}
		if s.cascade == CascadeLeave || id == "" {
			return nil
		}
		for _, c := range []domain.Collection{domain.CollectionNotes, domain.CollectionFiles, domain.CollectionScenes} {
			n, err := s.cascadeChildren(ctx, c, id)
			if err != nil {
				return err
			}
			if n > 0 {
				s.log.Debug("cascaded project delete",
					zap.String("project", id), zap.String("collection", string(c)),
					zap.String("policy", string(s.cascade)), zap.Int("records", n))
			}
		}
		return nil
	})
}

// cascadeChildren reads the owned keys first and mutates afterwards, so no
// cursor is open while the medium is written.
func (s *Store) cascadeChildren(ctx context.Context, c domain.Collection, projectID string) (int, error) {
	cur, err := s.medium.Open(ctx, c, domain.ByProject(projectID))
	if err != nil {
		return 0, err
	}
	var entries []domain.Entry
	for cur.Next(ctx) {
		entries = append(entries, cur.Entry())
	}
	err = cur.Err()
	_ = cur.Close()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		switch s.cascade {
		case CascadeDelete:
			err = s.medium.Delete(ctx, c, e.Key)
		case CascadeDetach:
			err = s.detach(ctx, c, e)
		}
		if err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func (s *Store) detach(ctx context.Context, c domain.Collection, e domain.Entry) error {
	switch c {
	case domain.CollectionNotes:
		n, ok, err := get[Note](ctx, s.medium, c, e.Key)
		if err != nil || !ok {
			return err
		}
		n.ProjectID = ""
		n.UpdatedAt = s.touch(n.UpdatedAt)
		return put(ctx, s.medium, c, n)
	case domain.CollectionFiles:
		f, ok, err := get[File](ctx, s.medium, c, e.Key)
		if err != nil || !ok {
			return err
		}
		f.ProjectID = ""
		f.UpdatedAt = s.touch(f.UpdatedAt)
		return put(ctx, s.medium, c, f)
	case domain.CollectionScenes:
		sc, ok, err := get[Scene](ctx, s.medium, c, e.Key)
		if err != nil || !ok {
			return err
		}
		sc.ProjectID = ""
		return put(ctx, s.medium, c, sc)
	}
	return nil
}

// EnsureDefaultProject returns the oldest project, creating DefaultProjectTitle
// when the store has none.
func (s *Store) EnsureDefaultProject(ctx context.Context) (Project, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return Project{}, err
	}
	if len(projects) > 0 {
		return projects[0], nil
	}
	return s.AddProject(ctx, Project{Title: DefaultProjectTitle})
}
