package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hyperjump/manualqa/internal/cli"
	"github.com/hyperjump/manualqa/internal/indexstore"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var serverURL string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show whether the index is ready and how many documents and chunks it holds.

Locally the persisted index is loaded when it exists; status never builds one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := cli.FormatFor(asJSON)
			ctx := cmd.Context()
			if serverURL != "" {
				st, err := newAPIClient(serverURL).status(ctx)
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), st, format)
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
			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Shutdown(context.Background()) }()
			if indexstore.NewFileStore(cfg.Storage.IndexPath).Exists() {
				if err := svc.Init(ctx); err != nil {
					return err
				}
			}
			st, err := svc.Status(ctx)
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "URL of a running manualqa server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}
