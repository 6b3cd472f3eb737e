package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newParseCmd(markerSet *string) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <feed.json>",
		Short: "Print the town records extracted from a saved feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, towns, err := loadTowns(args[0], *markerSet)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(towns)
		},
	}
}
