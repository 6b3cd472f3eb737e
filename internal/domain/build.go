package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Popup labels for scalar fields.
const (
	LabelMayor   = "Mayor"
	LabelBank    = "Bank"
	LabelUpkeep  = "Upkeep"
	LabelCulture = "Culture"
	LabelBoard   = "Board"
	LabelFounded = "Founded"
)

// foundedLayout is the popup date format, e.g. "Dec 1 2024".
const foundedLayout = "Jan 2 2006"

// ParseCurrency parses "$1,234.50" style amounts. Anything unparseable or
// non-finite is 0.
func ParseCurrency(s string) float64 {
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseDate parses a founding date as midnight UTC and returns epoch seconds,
// or 0 when the text is not a date.
func ParseDate(s string) int64 {
	t, err := time.ParseInLocation(foundedLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// BuildTown extracts every field from a merged popup and assembles a Town.
// AreaSize and Coordinates are not present in the popup and stay zero.
// LastUpdated is left for Stamp.
func BuildTown(name, desc string) Town {
	town := Town{
		Name:       name,
		NameLower:  strings.ToLower(name),
		Owner:      ExtractScalar(desc, LabelMayor),
		Peaceful:   ExtractPeaceful(desc),
		Culture:    ExtractScalar(desc, LabelCulture),
		Board:      ExtractScalar(desc, LabelBoard),
		Balance:    ParseCurrency(ExtractScalar(desc, LabelBank)),
		UpkeepCost: ParseCurrency(ExtractScalar(desc, LabelUpkeep)),
		FoundedAt:  ParseDate(ExtractScalar(desc, LabelFounded)),
		Resources:  ExtractResources(desc),
		Members:    ExtractMembers(desc),
		Trusted:    ExtractTrusted(desc),
	}
	if nation := ExtractAffiliation(desc); nation != "" {
		town.Affiliation = &nation
	}
	return town
}

// Stamp sets LastUpdated to the current time, replacing any earlier value.
func Stamp(town Town) Town {
	town.LastUpdated = clock.Now().Unix()
	return town
}

// Summary renders a multi-line description of a town for operator logs.
func Summary(t Town) string {
	nation := "none"
	if t.Affiliation != nil {
		nation = *t.Affiliation
	}
	founded := "unknown"
	if t.FoundedAt != 0 {
		founded = time.Unix(t.FoundedAt, 0).UTC().Format("2006-01-02")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Town: %s\n", t.Name)
	fmt.Fprintf(&b, "Nation: %s\n", nation)
	fmt.Fprintf(&b, "Mayor: %s\n", t.Owner)
	fmt.Fprintf(&b, "Peaceful: %t\n", t.Peaceful)
	fmt.Fprintf(&b, "Culture: %s\n", t.Culture)
	fmt.Fprintf(&b, "Board: %s\n", t.Board)
	fmt.Fprintf(&b, "Bank: $%.2f\n", t.Balance)
	fmt.Fprintf(&b, "Upkeep: $%.2f\n", t.UpkeepCost)
	fmt.Fprintf(&b, "Founded: %s\n", founded)
	fmt.Fprintf(&b, "Resources: %q\n", t.Resources)
	fmt.Fprintf(&b, "Residents: %q\n", t.Members)
	fmt.Fprintf(&b, "Trusted Players: %q\n", t.Trusted)
	fmt.Fprintf(&b, "Will go negative: %t", t.WillGoNegative())
	return b.String()
}
