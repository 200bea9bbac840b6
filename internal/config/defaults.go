package config

import "time"

// Defaults for a fresh installation.
const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimensions     = 384
	DefaultLLMModel       = "HuggingFaceH4/zephyr-7b-beta"
	DefaultLLMBaseURL     = "https://router.huggingface.co/v1"
	DefaultAPIKeyEnv      = "HF_TOKEN"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Server.UploadMaxBytes == 0 {
		cfg.Server.UploadMaxBytes = 256 << 20
	}
	if cfg.Storage.CorpusDir == "" {
		cfg.Storage.CorpusDir = "~/.manualqa/Documents"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "~/.manualqa/data/index.mqix"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "~/.manualqa/data/catalog.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "~/.manualqa/data/bleve"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = DefaultChunkSize
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = DefaultChunkOverlap
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "~/.manualqa/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "extractive"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 256
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = time.Minute
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Workers.Size == 0 {
		cfg.Workers.Size = 4
	}
	if cfg.Workers.QuerySize == 0 {
		cfg.Workers.QuerySize = 2
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
