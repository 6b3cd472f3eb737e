package main

import (
	"fmt"
	"os"

	"github.com/couchcryptid/town-data-etl/internal/adapter/dynmap"
	"github.com/couchcryptid/town-data-etl/internal/domain"
)

// loadTowns runs a saved feed file through decode, merge and build.
func loadTowns(path, markerSet string) ([]domain.AreaMarker, []domain.Town, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading feed: %w", err)
	}
	areas, err := dynmap.Decode(body, markerSet)
	if err != nil {
		return nil, nil, err
	}

	merged := domain.MergeAreas(areas)
	towns := make([]domain.Town, 0, len(merged))
	for _, name := range domain.SortedKeys(merged) {
		towns = append(towns, domain.BuildTown(name, merged[name]))
	}
	return areas, towns, nil
}
