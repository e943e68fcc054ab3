package core

import (
	"context"

	"creatorstudio/pkg/domain"
)

// GetProfile returns the saved profile, or an empty one when none was saved.
func (s *Store) GetProfile(ctx context.Context) (Profile, error) {
	var p Profile
	err := s.run(ctx, "get_profile", func(ctx context.Context) error {
		var err error
		p, _, err = get[Profile](ctx, s.medium, domain.CollectionProfile, domain.ProfileKey)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	p.ID = domain.ProfileKey
	return p, nil
}

// SaveProfile merges patch into the stored profile. Fields the patch leaves
// nil keep their previous values.
func (s *Store) SaveProfile(ctx context.Context, patch ProfilePatch) (Profile, error) {
	var p Profile
	err := s.run(ctx, "save_profile", func(ctx context.Context) error {
		var err error
		if p, _, err = get[Profile](ctx, s.medium, domain.CollectionProfile, domain.ProfileKey); err != nil {
			return err
		}
		p.ID = domain.ProfileKey
		patch.Apply(&p)
		p.UpdatedAt = s.touch(p.UpdatedAt)
		return put(ctx, s.medium, domain.CollectionProfile, p)
	})
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
