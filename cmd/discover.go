package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tafuta/tafuta/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var (
		limit     int
		rate      float64
		tags      []string
		freshness string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs one discovery pass and prints the results",
		Long: `Runs a single discovery pass against the configured Bluesky host,
growing the profile cache as a side effect, and prints the ranked
posts as JSON to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			opts := discovery.Options{
				Limit:           limit,
				ExplorationRate: rate,
				Tags:            tags,
				Freshness:       discovery.Freshness(freshness),
			}
			switch opts.Freshness {
			case discovery.FreshnessAny, discovery.FreshnessRecent:
			default:
				return fmt.Errorf("freshness must be %q or %q", discovery.FreshnessAny, discovery.FreshnessRecent)
			}

			res, err := a.Discovery.Discover(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("discovery run: %w", err)
			}
			return printJSON(res)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", discovery.DefaultLimit, "maximum posts to return")
	cmd.Flags().Float64Var(&rate, "exploration-rate", discovery.DefaultExplorationRate, "probability of a full exploration pass")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "restrict results to posts carrying one of these hashtags")
	cmd.Flags().StringVar(&freshness, "freshness", string(discovery.FreshnessAny), `post age filter: "any" or "recent"`)

	return cmd
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
