package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/manualqa/internal/cli"
	"github.com/hyperjump/manualqa/internal/models"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var serverURL string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the manuals",
		Long: `Answer a question from the indexed manuals and list the passages used.

With --server the question is sent to a running manualqa server; otherwise the
index is opened locally.`,
		Example: `  manualqa ask "What is the torque limit for the flange bolts?"
  manualqa ask --server http://localhost:8080 --json "How do I reset the pump?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.QueryRequest{Question: strings.Join(args, " ")}
			if err := req.Normalize(); err != nil {
				return err
			}
			format := cli.FormatFor(asJSON)
			ctx := cmd.Context()

			if serverURL != "" {
				res, err := newAPIClient(serverURL).query(ctx, req.Question)
				if err != nil {
					return err
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), res, format)
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

			res, err := svc.Query(ctx, req.Question)
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "URL of a running manualqa server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
