package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/town-data-etl/internal/domain"
)

// TownTransformer implements Transformer using the domain builder and logs a
// summary of the reference town whenever it is seen.
type TownTransformer struct {
	reference string
	logger    *slog.Logger
}

// NewTransformer creates a TownTransformer. An empty reference disables the summary log.
func NewTransformer(reference string, logger *slog.Logger) *TownTransformer {
	return &TownTransformer{
		reference: strings.TrimSpace(reference),
		logger:    logger,
	}
}

func (t *TownTransformer) Transform(_ context.Context, name, desc string) (domain.Town, error) {
	town := domain.BuildTown(name, desc)
	if err := town.Validate(); err != nil {
		return domain.Town{}, fmt.Errorf("build town %q: %w", name, err)
	}

	if t.IsReference(name) {
		t.logger.Info("reference town", "town", town.Name, "will_go_negative", town.WillGoNegative(), "summary", domain.Summary(town))
	}
	return town, nil
}

// IsReference reports whether name is the configured reference town, ignoring case.
func (t *TownTransformer) IsReference(name string) bool {
	return t.reference != "" && strings.EqualFold(name, t.reference)
}

// HasReference reports whether a reference town is configured.
func (t *TownTransformer) HasReference() bool {
	return t.reference != ""
}
