package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type discoverOptions struct {
	extract bool
	jsonOut bool
}

func newDiscoverCmd() *cobra.Command {
	opts := &discoverOptions{}
	cmd := &cobra.Command{
		Use:   "discover seed-url...",
		Short: "List same-host links found on seed pages",
		Long: `Visits each seed page and prints the same-host links it finds as JSON
records, ready to feed back into "extract --input -". With --extract the
links are harvested straight away.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.extract, "extract", false, "harvest the discovered links")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "with --extract, print one JSON result per document")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string, opts *discoverOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	records, err := appInstance.Discoverer().Discover(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	appInstance.Logger().Info("discovery finished", zap.Int("links", len(records)))
	if opts.extract {
		if len(records) == 0 {
			return errors.New("no links discovered")
		}
		return harvestRecords(cmd, appInstance, records, opts.jsonOut)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}
