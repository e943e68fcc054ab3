package core

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sort"

	"creatorstudio/pkg/domain"
)

// AddScene stores a scene snapshot. Scenes are write-once: there is no
// update operation. A nil payload is stored as an empty shape list.
func (s *Store) AddScene(ctx context.Context, sc Scene) (Scene, error) {
	err := s.run(ctx, "add_scene", func(ctx context.Context) error {
		now := s.now()
		sc = sc.Clone()
		sc.ID = s.newID()
		if len(sc.Payload) == 0 {
			sc.Payload = json.RawMessage("[]")
		}
		if !json.Valid(sc.Payload) {
			return domain.Rejected("put", domain.CollectionScenes, sc.ID, errors.New("payload is not valid JSON"))
		}
		sc.CreatedAt, sc.UpdatedAt = now, now
		if err := check("put", domain.CollectionScenes, sc.ID, sc); err != nil {
			return err
		}
		return put(ctx, s.medium, domain.CollectionScenes, sc)
	})
	if err != nil {
		return Scene{}, err
	}
	return sc, nil
}

// GetScene returns the scene stored under id.
func (s *Store) GetScene(ctx context.Context, id string) (Scene, bool, error) {
	var sc Scene
	var ok bool
	err := s.run(ctx, "get_scene", func(ctx context.Context) error {
		var err error
		sc, ok, err = get[Scene](ctx, s.medium, domain.CollectionScenes, id)
		return err
	})
	return sc, ok, err
}

// Scenes iterates the scenes matching opts in medium order. Payloads are
// opaque, so Query is ignored.
func (s *Store) Scenes(ctx context.Context, opts ListOptions) iter.Seq2[Scene, error] {
	return filtered[Scene](ctx, s.medium, domain.CollectionScenes, opts, nil)
}

// ListScenes returns the scenes matching opts, most recently updated first.
func (s *Store) ListScenes(ctx context.Context, opts ListOptions) ([]Scene, error) {
	var out []Scene
	err := s.run(ctx, "list_scenes", func(ctx context.Context) error {
		var err error
		if out, err = collect(s.Scenes(ctx, opts)); err != nil {
			return err
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
		return nil
	})
	return out, err
}

// DeleteScene removes the scene. Deleting an absent id is a no-op.
func (s *Store) DeleteScene(ctx context.Context, id string) error {
	return s.run(ctx, "delete_scene", func(ctx context.Context) error {
		return s.medium.Delete(ctx, domain.CollectionScenes, id)
	})
}
