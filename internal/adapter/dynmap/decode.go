package dynmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/couchcryptid/town-data-etl/internal/domain"
)

// Marker document types. Only the fields read by the pipeline are declared.

type document struct {
	Sets map[string]markerSet `json:"sets"`
}

type markerSet struct {
	Areas map[string]json.RawMessage `json:"areas"`
}

type area struct {
	Desc *string `json:"desc"`
}

// Decode parses a marker document and returns the areas of the named marker
// set sorted by name. Areas without a string "desc" are skipped.
func Decode(body []byte, markerSetID string) ([]domain.AreaMarker, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %w", domain.ErrFeedShape, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedMalformed, err)
	}

	set, ok := doc.Sets[markerSetID]
	if !ok {
		return nil, fmt.Errorf("%w: marker set %q not found", domain.ErrFeedShape, markerSetID)
	}
	if set.Areas == nil {
		return nil, fmt.Errorf("%w: marker set %q has no areas", domain.ErrFeedShape, markerSetID)
	}

	markers := make([]domain.AreaMarker, 0, len(set.Areas))
	for name, raw := range set.Areas {
		var a area
		if err := json.Unmarshal(raw, &a); err != nil || a.Desc == nil {
			continue
		}
		markers = append(markers, domain.AreaMarker{Name: name, Description: *a.Desc})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Name < markers[j].Name })
	return markers, nil
}
