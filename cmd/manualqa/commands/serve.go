package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/server"
	"github.com/hyperjump/manualqa/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with POST /upload and POST /query.

The index is loaded from disk, or built from the corpus directory when no index
exists yet. With watch enabled, PDFs copied into the corpus directory are
indexed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
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

			var w *watcher.Watcher
			if cfg.Watch.Enabled && !noWatch {
				w = watcher.NewWatcher(cfg.Storage.CorpusDir, svc,
					watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))
				if err := w.Start(ctx); err != nil {
					_ = svc.Shutdown(context.Background())
					return fmt.Errorf("failed to start watcher: %w", err)
				}
			}

			srv := server.NewServer(svc, cfg.Storage.CorpusDir, &cfg.Server, logger)
			serverErr := make(chan error, 1)
			go func() { serverErr <- srv.Start() }()

			select {
			case <-ctx.Done():
				logger.Info("Shutting down...")
			case err = <-serverErr:
				if errors.Is(err, http.ErrServerClosed) {
					err = nil
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("server shutdown failed", zap.Error(stopErr))
			}
			if w != nil {
				w.Stop()
			}
			if shutErr := svc.Shutdown(shutdownCtx); shutErr != nil {
				logger.Warn("index shutdown failed", zap.Error(shutErr))
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the corpus directory")
	return cmd
}
