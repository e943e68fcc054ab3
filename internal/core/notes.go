package core

import (
	"context"
	"iter"
	"sort"

	"creatorstudio/pkg/domain"
)

func noteText(n Note) string { return n.Title + " " + n.Content }

// AddNote stores a new note under a fresh key.
func (s *Store) AddNote(ctx context.Context, n Note) (Note, error) {
	err := s.run(ctx, "add_note", func(ctx context.Context) error {
		now := s.now()
		n.ID = s.newID()
		n.Title = orDefault(n.Title, UntitledTitle)
		n.CreatedAt, n.UpdatedAt = now, now
		if err := check("put", domain.CollectionNotes, n.ID, n); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionNotes, n)
	})
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

// GetNote returns the note stored under id.
func (s *Store) GetNote(ctx context.Context, id string) (Note, bool, error) {
	var n Note
	var ok bool
	err := s.run(ctx, "get_note", func(ctx context.Context) error {
		var err error
		n, ok, err = get[Note](ctx, s.medium, domain.CollectionNotes, id)
		return err
	})
	return n, ok, err
}

// Notes iterates the notes matching opts in medium order.
func (s *Store) Notes(ctx context.Context, opts ListOptions) iter.Seq2[Note, error] {
	return filtered(ctx, s.medium, domain.CollectionNotes, opts, noteText)
}

// ListNotes returns the notes matching opts, pinned first and then most
// recently updated first.
func (s *Store) ListNotes(ctx context.Context, opts ListOptions) ([]Note, error) {
	var out []Note
	err := s.run(ctx, "list_notes", func(ctx context.Context) error {
		var err error
		if out, err = collect(s.Notes(ctx, opts)); err != nil {
			return err
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Pinned != out[j].Pinned {
				return out[i].Pinned
			}
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		})
		return nil
	})
	return out, err
}

// UpdateNote applies patch. It reports false when id does not exist.
func (s *Store) UpdateNote(ctx context.Context, id string, patch NotePatch) (Note, bool, error) {
	var n Note
	var ok bool
	err := s.run(ctx, "update_note", func(ctx context.Context) error {
		var err error
		if n, ok, err = get[Note](ctx, s.medium, domain.CollectionNotes, id); err != nil || !ok {
			return err
		}
		patch.Apply(&n)
		n.Title = orDefault(n.Title, UntitledTitle)
		n.UpdatedAt = s.touch(n.UpdatedAt)
		if err := check("put", domain.CollectionNotes, id, n); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionNotes, n)
	})
	if err != nil || !ok {
		return Note{}, false, err
	}
	return n, true, nil
}

// DeleteNote removes the note. Deleting an absent id is a no-op.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	return s.run(ctx, "delete_note", func(ctx context.Context) error {
		return s.medium.Delete(ctx, domain.CollectionNotes, id)
	})
}
