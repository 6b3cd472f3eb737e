package domain

import (
	"sort"
	"strings"
)

const (
	keySeparator = "__"
	homeSuffix   = "__home"
)

// townDescriptors holds the popup texts gathered for one town key.
type townDescriptors struct {
	primary    string
	hasPrimary bool
	home       string
	hasHome    bool
}

// MergeAreas groups markers by town key and joins each town's primary popup
// with its home popup. Towns with only a home marker are omitted.
//
// Markers are visited in name order, so when a key has several primary (or
// several home) markers the one with the greatest name wins.
func MergeAreas(markers []AreaMarker) map[string]string {
	sorted := make([]AreaMarker, len(markers))
	copy(sorted, markers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	groups := make(map[string]*townDescriptors)
	for _, m := range sorted {
		key := TownKey(m.Name)
		g, ok := groups[key]
		if !ok {
			g = &townDescriptors{}
			groups[key] = g
		}
		if strings.HasSuffix(m.Name, homeSuffix) {
			g.home, g.hasHome = m.Description, true
		} else {
			g.primary, g.hasPrimary = m.Description, true
		}
	}

	merged := make(map[string]string, len(groups))
	for key, g := range groups {
		if !g.hasPrimary {
			continue
		}
		desc := g.primary
		if g.hasHome {
			desc += "\n" + g.home
		}
		merged[key] = desc
	}
	return merged
}

// TownKey returns the part of a marker name before the first "__".
func TownKey(markerName string) string {
	key, _, _ := strings.Cut(markerName, keySeparator)
	return key
}

// SortedKeys returns the keys of a merged area map in ascending order.
func SortedKeys(merged map[string]string) []string {
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
