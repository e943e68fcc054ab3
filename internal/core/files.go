package core

import (
	"context"
	"iter"
	"sort"

	"creatorstudio/pkg/domain"
)

func fileText(f File) string { return f.Name + " " + f.Content }

func fileDefaults(f *File) {
	f.Type = orDefault(f.Type, DefaultFileType)
	f.Name = orDefault(f.Name, "untitled."+f.Type)
}

// AddFile stores a new file under a fresh key. A blank type becomes
// DefaultFileType and a blank name becomes untitled.<type>.
func (s *Store) AddFile(ctx context.Context, f File) (File, error) {
	err := s.run(ctx, "add_file", func(ctx context.Context) error {
		now := s.now()
		f.ID = s.newID()
		fileDefaults(&f)
		f.CreatedAt, f.UpdatedAt = now, now
		if err := check("put", domain.CollectionFiles, f.ID, f); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionFiles, f)
	})
	if err != nil {
		return File{}, err
	}
	return f, nil
}

// GetFile returns the file stored under id.
func (s *Store) GetFile(ctx context.Context, id string) (File, bool, error) {
	var f File
	var ok bool
	err := s.run(ctx, "get_file", func(ctx context.Context) error {
		var err error
		f, ok, err = get[File](ctx, s.medium, domain.CollectionFiles, id)
		return err
	})
	return f, ok, err
}

// Files iterates the files matching opts in medium order.
func (s *Store) Files(ctx context.Context, opts ListOptions) iter.Seq2[File, error] {
	return filtered(ctx, s.medium, domain.CollectionFiles, opts, fileText)
}

// ListFiles returns the files matching opts, most recently updated first.
func (s *Store) ListFiles(ctx context.Context, opts ListOptions) ([]File, error) {
	var out []File
	err := s.run(ctx, "list_files", func(ctx context.Context) error {
		var err error
		if out, err = collect(s.Files(ctx, opts)); err != nil {
			return err
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
		return nil
	})
	return out, err
}

// UpdateFile applies patch. It reports false when id does not exist.
func (s *Store) UpdateFile(ctx context.Context, id string, patch FilePatch) (File, bool, error) {
	var f File
	var ok bool
	err := s.run(ctx, "update_file", func(ctx context.Context) error {
		var err error
		if f, ok, err = get[File](ctx, s.medium, domain.CollectionFiles, id); err != nil || !ok {
			return err
		}
		patch.Apply(&f)
		fileDefaults(&f)
		f.UpdatedAt = s.touch(f.UpdatedAt)
		if err := check("put", domain.CollectionFiles, id, f); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionFiles, f)
	})
	if err != nil || !ok {
		return File{}, false, err
	}
	return f, true, nil
}

// DeleteFile removes the file. Deleting an absent id is a no-op.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.run(ctx, "delete_file", func(ctx context.Context) error {
		return s.medium.Delete(ctx, domain.CollectionFiles, id)
	})
}
