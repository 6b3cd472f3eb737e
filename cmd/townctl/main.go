// Command townctl inspects marker feeds and stored town snapshots.
//
// Usage:
//
//	townctl parse data/mock/marker_world.json
//	townctl validate data/mock/marker_world.json
//	townctl show Astarte
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var markerSet string

	rootCmd := &cobra.Command{
		Use:           "townctl",
		Short:         "Inspect Towny marker feeds and stored town snapshots",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&markerSet, "markerset", config.DefaultMarkerSet, "Marker set holding town areas")

	rootCmd.AddCommand(
		newParseCmd(&markerSet),
		newValidateCmd(&markerSet),
		newShowCmd(),
	)
	return rootCmd
}
