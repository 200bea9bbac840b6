package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/manualqa/internal/cli"
	"github.com/hyperjump/manualqa/internal/loader"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add <file.pdf>...",
		Short: "Copy PDFs into the corpus and index them",
		Long: `Copy PDF files into the corpus directory and index them incrementally.

Files already inside the corpus directory are indexed in place. Files that are
not PDFs are reported as failed and not copied.`,
		Example: `  manualqa add ~/Downloads/pump-manual.pdf ~/Downloads/valve-manual.pdf`,
		Args:    cobra.MinimumNArgs(1),
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

			paths := make([]string, 0, len(args))
			for _, arg := range args {
				p, err := copyIntoCorpus(arg, cfg.Storage.CorpusDir)
				if err != nil {
					return err
				}
				paths = append(paths, p)
			}

			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Shutdown(context.Background()) }()

			report, err := svc.Update(cmd.Context(), paths)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			return cli.WriteReport(cmd.OutOrStdout(), report, cli.FormatFor(asJSON))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// copyIntoCorpus copies src into corpusDir through a temp file and rename, and returns the
// destination. Unsupported files and files already in corpusDir are returned unchanged.
func copyIntoCorpus(src, corpusDir string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	if !loader.IsSupported(abs) {
		return abs, nil
	}
	corpusAbs, err := filepath.Abs(corpusDir)
	if err != nil {
		return "", err
	}
	if filepath.Dir(abs) == corpusAbs {
		return abs, nil
	}

	in, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	if err := os.MkdirAll(corpusAbs, 0o755); err != nil {
		return "", fmt.Errorf("create corpus dir: %w", err)
	}
	tmp, err := os.CreateTemp(corpusAbs, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	dst := filepath.Join(corpusAbs, filepath.Base(abs))
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}
