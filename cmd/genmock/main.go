// Command genmock writes a synthetic dynmap marker feed for local runs and
// fixture-driven tests. Towns get a primary claim marker, most get a home
// marker, and a few are home-only so the merge rules are exercised.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/marker_world.json -towns 200 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/couchcryptid/town-data-etl/internal/config"
)

var (
	foundedFrom = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	foundedTo   = time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	cultures    = []string{"Roman", "Norse", "Greek", "Egyptian", "Celtic", "Persian"}
	resources   = []string{"Iron", "Gold", "Wheat", "Coal", "Diamonds", "Wool", "Lapis"}
)

type document struct {
	Timestamp int64                `json:"timestamp"`
	Sets      map[string]markerSet `json:"sets"`
}

type markerSet struct {
	Label string          `json:"label"`
	Areas map[string]area `json:"areas"`
}

type area struct {
	Label     string    `json:"label"`
	Desc      string    `json:"desc"`
	FillColor string    `json:"fillcolor"`
	X         []float64 `json:"x"`
	Z         []float64 `json:"z"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the marker feed")
	towns := flag.Int("towns", 100, "number of towns to generate")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" || *towns < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flag -out or invalid -towns")
	}

	doc := generate(gofakeit.New(*seed), *towns)
	if err := writeJSON(*out, doc); err != nil {
		return fmt.Errorf("writing feed: %w", err)
	}
	log.Printf("wrote %d areas for %d towns: %s", len(doc.Sets[config.DefaultMarkerSet].Areas), *towns, *out)
	return nil
}

func generate(f *gofakeit.Faker, n int) document {
	areas := make(map[string]area, n*2)
	seen := make(map[string]bool, n)
	nations := []string{f.Country(), f.Country(), f.Country()}

	for i := 0; i < n; i++ {
		name := strings.ReplaceAll(f.City(), " ", "_")
		if seen[strings.ToLower(name)] {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		seen[strings.ToLower(name)] = true

		x, z := f.Float64Range(-10000, 10000), f.Float64Range(-10000, 10000)
		color := f.HexColor()

		// Roughly one in ten towns has lost its claims and only keeps a home marker.
		homeOnly := f.Number(1, 10) == 1
		if !homeOnly {
			claims := f.Number(1, 3)
			for c := 0; c < claims; c++ {
				areas[fmt.Sprintf("%s__%d", name, c)] = area{
					Label:     name,
					Desc:      primaryPopup(f, name, nations),
					FillColor: color,
					X:         square(x+float64(c*16), 16),
					Z:         square(z, 16),
				}
			}
		}
		if homeOnly || f.Number(1, 4) > 1 {
			areas[name+"__home"] = area{
				Label:     name,
				Desc:      homePopup(f),
				FillColor: color,
				X:         square(x, 16),
				Z:         square(z, 16),
			}
		}
	}

	return document{
		Timestamp: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Sets: map[string]markerSet{
			config.DefaultMarkerSet: {Label: "Towny", Areas: areas},
			"markers":               {Label: "Markers", Areas: map[string]area{}},
		},
	}
}

func primaryPopup(f *gofakeit.Faker, name string, nations []string) string {
	residents := make([]string, f.Number(1, 8))
	for i := range residents {
		residents[i] = f.Username()
	}

	var res []string
	for _, r := range resources {
		if f.Bool() {
			res = append(res, r)
		}
	}
	resourceText := strings.Join(res, ", ")
	if len(res) > 0 && f.Bool() {
		resourceText += ","
	}

	var b strings.Builder
	b.WriteString(`<div><div style="text-align:center">`)
	if f.Number(1, 3) > 1 {
		fmt.Fprintf(&b, `<span style="font-size:150%%">Member of %s</span><br />`, f.RandomString(nations))
	}
	fmt.Fprintf(&b, `<span style="font-weight:bold;font-size:120%%">%s</span></div><br />`, name)
	bold(&b, "Mayor", ": "+residents[0])
	bold(&b, "Peaceful?", " "+fmt.Sprint(f.Bool()))
	bold(&b, "Culture", ": "+f.RandomString(cultures))
	bold(&b, "Board", ": "+strings.TrimSuffix(f.Sentence(5), "."))
	bold(&b, "Bank", ": "+currency(f.Float64Range(0, 250000)))
	bold(&b, "Upkeep", ": "+currency(f.Float64Range(5, 500)))
	bold(&b, "Founded", ": "+f.DateRange(foundedFrom, foundedTo).Format("Jan 2 2006"))
	bold(&b, "Resources", ": "+resourceText)
	bold(&b, fmt.Sprintf("Residents (%d)", len(residents)), ": "+strings.Join(residents, ", "))
	b.WriteString(`</div>`)
	return b.String()
}

func homePopup(f *gofakeit.Faker) string {
	trusted := make([]string, f.Number(0, 3))
	for i := range trusted {
		trusted[i] = f.Username()
	}
	return fmt.Sprintf(`<div><span style="font-weight:bold">Trusted Players</span>: %s</div>`, strings.Join(trusted, ", "))
}

func bold(b *strings.Builder, label, rest string) {
	fmt.Fprintf(b, `<span style="font-weight:bold">%s</span>%s<br />`, label, rest)
}

// currency formats v as "$1,234.50".
func currency(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	whole, frac, _ := strings.Cut(s, ".")
	var out []byte
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}
	return "$" + string(out) + "." + frac
}

func square(origin, size float64) []float64 {
	return []float64{origin, origin + size, origin + size, origin}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
