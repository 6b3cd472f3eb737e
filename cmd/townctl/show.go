package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/town-data-etl/internal/adapter/store"
	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/couchcryptid/town-data-etl/internal/observability"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "show <town>",
		Short: "Print the latest stored snapshot of a town",
		Long:  "Opens the store selected by STORE_DRIVER and prints the newest snapshot for the town.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			repo, closeRepo, err := store.Open(cmd.Context(), cfg, logger, observability.NewMetricsForTesting())
			if err != nil {
				return err
			}
			defer closeRepo()

			town, err := repo.GetLatest(cmd.Context(), domain.NormalizeKey(args[0]))
			if err != nil {
				return fmt.Errorf("looking up %q: %w", args[0], err)
			}
			if town == nil {
				return fmt.Errorf("town %q not found", args[0])
			}

			if summary {
				fmt.Fprintln(cmd.OutOrStdout(), domain.Summary(*town))
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(town)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a human-readable summary instead of JSON")
	return cmd
}
