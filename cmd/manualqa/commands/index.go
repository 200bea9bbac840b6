package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/manualqa/internal/cli"
	"github.com/hyperjump/manualqa/internal/models"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var rebuild, asJSON bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the index from the corpus directory",
		Long: `Index every PDF in the corpus directory.

Without --rebuild the persisted index is loaded (or built when missing) and the
whole corpus is submitted as an update, so only new or changed chunks are
embedded. --rebuild discards the persisted index and embeds everything again;
use it after changing the embedding model or when the index file is corrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Shutdown(context.Background()) }()

			var report *models.IndexReport
			if rebuild {
				report, err = svc.Rebuild(ctx)
			} else {
				report, err = svc.UpdateCorpus(ctx)
			}
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			return cli.WriteReport(cmd.OutOrStdout(), report, cli.FormatFor(asJSON))
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard the persisted index and embed the whole corpus")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
