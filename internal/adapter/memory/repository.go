// Package memory provides an in-process TownRepository.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/town-data-etl/internal/domain"
)

// Repository keeps the latest snapshot per town in a map. It is safe for
// concurrent use.
type Repository struct {
	mu    sync.RWMutex
	towns map[string]domain.Town
}

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{towns: make(map[string]domain.Town)}
}

// Put stores town unless a strictly newer snapshot is already held.
func (r *Repository) Put(_ context.Context, town domain.Town) error {
	if err := town.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientValidation, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.towns[town.NameLower]; ok && cur.LastUpdated > town.LastUpdated {
		return nil
	}
	r.towns[town.NameLower] = clone(town)
	return nil
}

// GetLatest returns the newest snapshot for the town, or nil if none exists.
func (r *Repository) GetLatest(_ context.Context, nameLower string) (*domain.Town, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	town, ok := r.towns[domain.NormalizeKey(nameLower)]
	if !ok {
		return nil, nil
	}
	out := clone(town)
	return &out, nil
}

// Len returns the number of towns held.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.towns)
}

func clone(t domain.Town) domain.Town {
	t.Resources = slices.Clone(t.Resources)
	t.Members = slices.Clone(t.Members)
	t.Trusted = slices.Clone(t.Trusted)
	if t.Affiliation != nil {
		a := *t.Affiliation
		t.Affiliation = &a
	}
	return t
}
