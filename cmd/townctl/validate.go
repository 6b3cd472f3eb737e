package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/spf13/cobra"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd(markerSet *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <feed.json>",
		Short: "Check that every town in a saved feed extracts cleanly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			areas, towns, err := loadTowns(args[0], *markerSet)
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), len(areas), towns, []*phase{
				validateMerge(areas, towns),
				validateInvariants(towns),
				validateCoverage(towns),
			})
		},
	}
}

// validateMerge checks that every town has a primary marker and that lone
// home markers were dropped.
func validateMerge(areas []domain.AreaMarker, towns []domain.Town) *phase {
	p := &phase{name: "Marker merge"}
	primaries := make(map[string]bool)
	for _, a := range areas {
		if !strings.HasSuffix(a.Name, "__home") {
			primaries[domain.TownKey(a.Name)] = true
		}
	}
	for _, t := range towns {
		if !primaries[t.Name] {
			p.errorf("%s: built without a primary marker", t.Name)
		}
	}
	if len(towns) != len(primaries) {
		p.errorf("built %d towns from %d primary keys", len(towns), len(primaries))
	}
	return p
}

// validateInvariants checks the record invariants enforced at write time.
func validateInvariants(towns []domain.Town) *phase {
	p := &phase{name: "Record invariants"}
	for _, t := range towns {
		if err := t.Validate(); err != nil {
			p.errorf("%q: %v", t.Name, err)
		}
		for _, m := range t.Members {
			if strings.TrimSpace(m) == "" {
				p.errorf("%s: blank member entry", t.Name)
			}
		}
	}
	return p
}

// validateCoverage flags towns whose popup lacked the labels every claimed
// town is expected to carry.
func validateCoverage(towns []domain.Town) *phase {
	p := &phase{name: "Label coverage"}
	for _, t := range towns {
		if t.Owner == "0" {
			p.errorf("%s: no Mayor", t.Name)
		}
		if len(t.Members) == 0 {
			p.errorf("%s: no residents", t.Name)
		}
		if t.FoundedAt == 0 {
			p.errorf("%s: founding date missing or unparseable", t.Name)
		}
	}
	return p
}

func report(w io.Writer, areaCount int, towns []domain.Town, phases []*phase) error {
	fmt.Fprintln(w, "=== Town Feed Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-24s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Areas: %d, towns: %d\n", areaCount, len(towns))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return nil
	}
	return errors.New("validation failed")
}
