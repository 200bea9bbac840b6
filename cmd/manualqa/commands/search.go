package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/manualqa/internal/cli"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var serverURL string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search manual passages without generating an answer",
		Long: `Search indexed passages by keywords and meaning.

Results combine keyword relevance and semantic similarity with equal weight.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}
			q := strings.Join(args, " ")
			format := cli.FormatFor(asJSON)
			ctx := cmd.Context()

			if serverURL != "" {
				hits, err := newAPIClient(serverURL).search(ctx, q, limit)
				if err != nil {
					return err
				}
				return cli.WriteSearchHits(cmd.OutOrStdout(), q, hits, format)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			svc, err := openService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Shutdown(context.Background()) }()

			hits, err := svc.Search(ctx, q, limit)
			if err != nil {
				return err
			}
			return cli.WriteSearchHits(cmd.OutOrStdout(), q, hits, format)
		},
	}
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "URL of a running manualqa server")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
