package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start an MCP (Model Context Protocol) server on stdio.

LLM agents can call ask_manuals, search_chunks and index_status to answer
questions from the indexed manuals. Logs go to stderr.`,
		Example: `  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "manuals": {
  #       "command": "manualqa",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := openService(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize index: %w", err)
			}
			defer func() {
				if err := svc.Shutdown(context.Background()); err != nil {
					logger.Warn("index shutdown failed", zap.Error(err))
				}
			}()

			server := mcp.NewServer(svc, versionInfo.Version, logger)
			logger.Info("MCP server starting on stdio")
			serverErr := make(chan error, 1)
			go func() { serverErr <- mcpserver.ServeStdio(server) }()

			select {
			case <-ctx.Done():
				logger.Info("Shutdown signal received")
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
}
