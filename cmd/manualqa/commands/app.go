package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/config"
	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/indexer"
	"github.com/hyperjump/manualqa/internal/indexstore"
	"github.com/hyperjump/manualqa/internal/keyword"
	"github.com/hyperjump/manualqa/internal/llm"
	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/query"
	"github.com/hyperjump/manualqa/internal/service"
	"github.com/hyperjump/manualqa/internal/storage"
	"github.com/hyperjump/manualqa/internal/workerpool"
	"github.com/hyperjump/manualqa/pkg/utils"
)

// loadConfig loads the config named by --config. Without the flag it prefers config.yaml in the
// current directory, then the default path, then built-in defaults. A .env file is loaded first so
// API key variables can live next to the config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	path := o.configPath
	if path == "" {
		path = config.DefaultConfigPath()
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns the logger for a command. Long running commands log at info level; one-shot
// commands only report warnings unless debug is on.
func newLogger(cfg *config.Config, longRunning bool) (*zap.Logger, error) {
	if cfg.Debug || longRunning {
		return utils.NewLogger(cfg.Debug)
	}
	return utils.NewQuietLogger()
}

// newEmbedder builds the configured embedding provider wrapped in an LRU cache.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch cfg.Provider {
	case "onnx":
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("onnx embedder: %w", err)
		}
		base = e
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     config.APIKey(cfg.APIKeyEnv),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		base = e
	default:
		base = embedding.NewHashEmbedder(cfg.Dimensions)
	}
	if cfg.CacheSize > 0 {
		return embedding.NewCachedEmbedder(base, cfg.CacheSize), nil
	}
	return base, nil
}

// newGenerator builds the configured answer generator. Remote generators are rate limited.
func newGenerator(cfg config.LLMConfig, logger *zap.Logger) (llm.Generator, error) {
	if cfg.Provider != "openai" {
		return llm.NewExtractiveGenerator(), nil
	}
	g, err := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		APIKey:      config.APIKey(cfg.APIKeyEnv),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("llm generator: %w", err)
	}
	return llm.NewRateLimited(g, cfg.RequestsPerSecond, cfg.Burst), nil
}

// buildService wires every component of the index service from cfg. The returned service owns
// all of them; Shutdown releases them.
func buildService(cfg *config.Config, logger *zap.Logger) (*service.IndexService, error) {
	embedder, err := newEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg.LLM, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	svc, err := assembleService(cfg, embedder, generator, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	return svc, nil
}

// assembleService builds storage, indexer and query engine around the given providers. Indexing
// and queries get separate worker pools so a queued build never delays a question.
func assembleService(cfg *config.Config, embedder embedding.Embedder, generator llm.Generator, logger *zap.Logger) (*service.IndexService, error) {
	chunker, err := indexer.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	indexPool := workerpool.New(cfg.Workers.Size)
	queryPool := workerpool.New(cfg.Workers.QuerySize)
	store := indexstore.NewFileStore(cfg.Storage.IndexPath, indexstore.WithLogger(logger))
	pdfLoader := loader.NewPDFLoader(loader.WithLogger(logger), loader.WithValidation(cfg.Loader.ValidatePDF))

	ixOpts := []indexer.IndexerOption{indexer.WithLogger(logger), indexer.WithPool(indexPool)}
	svcOpts := []service.Option{service.WithLogger(logger), service.WithCloser(embedder)}

	var catalog *storage.SQLiteCatalog
	if cfg.Storage.CatalogPath != "" {
		catalog, err = storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		ixOpts = append(ixOpts, indexer.WithCatalog(catalog))
		svcOpts = append(svcOpts, service.WithCatalog(catalog))
	}
	if cfg.Storage.KeywordIndexPath != "" {
		kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
		if err != nil {
			if catalog != nil {
				_ = catalog.Close()
			}
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		ixOpts = append(ixOpts, indexer.WithKeywordIndex(kw))
		svcOpts = append(svcOpts, service.WithKeywordIndex(kw))
	}

	ix := indexer.NewIndexer(cfg.Storage.CorpusDir, pdfLoader, chunker, embedder, store, ixOpts...)

	qOpts := []query.Option{query.WithLogger(logger), query.WithPool(queryPool), query.WithTopK(cfg.Query.TopK)}
	if cfg.Query.MaxContextTokens > 0 {
		qOpts = append(qOpts, query.WithContextBudget(cfg.Query.MaxContextTokens, llm.NewTokenCounter(cfg.LLM.Model, logger)))
	}
	engine := query.NewEngine(embedder, generator, qOpts...)

	return service.New(ix, engine, store, svcOpts...), nil
}

// openService builds and initializes the service. Init loads the persisted index or builds one.
func openService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service.IndexService, error) {
	svc, err := buildService(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := svc.Init(ctx); err != nil {
		_ = svc.Shutdown(context.Background())
		return nil, err
	}
	return svc, nil
}
