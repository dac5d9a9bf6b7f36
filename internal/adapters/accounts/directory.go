// Package accounts resolves which competitors belong to a sub-national area.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
)

// Directory answers area membership questions for rankings.
type Directory interface {
	// Area returns the person's area at level. ok is false when the person
	// has no profile or no area at that level.
	Area(ctx context.Context, personID string, level model.AreaLevel) (area string, ok bool, err error)
	PersonIDsByArea(ctx context.Context, level model.AreaLevel, area string) ([]string, error)
	// Areas lists the distinct, case-folded areas known at level.
	Areas(ctx context.Context, level model.AreaLevel) ([]string, error)
}

// ProfileDirectory is a Directory over the profiles kept by the store.
type ProfileDirectory struct {
	profiles repository.ProfileStore
}

// NewProfileDirectory wraps a profile store.
func NewProfileDirectory(profiles repository.ProfileStore) *ProfileDirectory {
	return &ProfileDirectory{profiles: profiles}
}

// Area implements Directory.
func (d *ProfileDirectory) Area(ctx context.Context, personID string, level model.AreaLevel) (string, bool, error) {
	p, err := d.profiles.Profile(ctx, personID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("profile %s: %w", personID, err)
	}
	area := strings.TrimSpace(p.Area(level))
	return area, area != "", nil
}

// PersonIDsByArea implements Directory. National has no membership list.
func (d *ProfileDirectory) PersonIDsByArea(ctx context.Context, level model.AreaLevel, area string) ([]string, error) {
	if level == model.National {
		return nil, fmt.Errorf("national level has no area: %w", model.ErrUnknownValue)
	}
	return d.profiles.PersonIDsByArea(ctx, level, area)
}

// Areas implements Directory.
func (d *ProfileDirectory) Areas(ctx context.Context, level model.AreaLevel) ([]string, error) {
	if level == model.National {
		return nil, nil
	}
	return d.profiles.Areas(ctx, level)
}

// Update stores p and reports the areas that changed, keyed by level, as
// (old, new) pairs.
func (d *ProfileDirectory) Update(ctx context.Context, p model.Profile) (map[model.AreaLevel][2]string, error) {
	prev, err := d.profiles.Profile(ctx, p.PersonID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("profile %s: %w", p.PersonID, err)
	}
	if err := d.profiles.PutProfile(ctx, p); err != nil {
		return nil, err
	}

	changed := make(map[model.AreaLevel][2]string)
	for _, level := range []model.AreaLevel{model.Regional, model.Local} {
		before, after := prev.Area(level), p.Area(level)
		if !strings.EqualFold(strings.TrimSpace(before), strings.TrimSpace(after)) {
			changed[level] = [2]string{before, after}
		}
	}
	return changed, nil
}
