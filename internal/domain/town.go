package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AreaMarker is one named area from the marker feed.
type AreaMarker struct {
	Name        string
	Description string
}

// Town is a normalized snapshot of one town at a point in time.
type Town struct {
	Name        string     `json:"name"`
	NameLower   string     `json:"name_lower"`
	Affiliation *string    `json:"affiliation"` // nation; nil when unaffiliated
	Owner       string     `json:"owner"`
	Peaceful    bool       `json:"peaceful"`
	Culture     string     `json:"culture"`
	Board       string     `json:"board"`
	Balance     float64    `json:"balance"`
	UpkeepCost  float64    `json:"upkeep_cost"`
	FoundedAt   int64      `json:"founded_at"` // epoch seconds, 0 when unknown
	Resources   []string   `json:"resources"`
	Members     []string   `json:"members"`
	Trusted     []string   `json:"trusted"`
	AreaSize    float64    `json:"area_size"`
	Coordinates [2]float64 `json:"coordinates"`
	LastUpdated int64      `json:"last_updated"` // epoch seconds
}

// WillGoNegative reports whether the next upkeep charge exceeds the bank.
func (t Town) WillGoNegative() bool {
	return t.Balance-t.UpkeepCost < 0
}

// Validate checks the invariants every persisted snapshot must hold.
func (t Town) Validate() error {
	if t.Name == "" {
		return errors.New("town name is required")
	}
	if t.NameLower != strings.ToLower(t.Name) {
		return fmt.Errorf("name_lower %q does not match name %q", t.NameLower, t.Name)
	}
	return nil
}

// NormalizeKey returns the lookup key for a town name.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
