// Package config provides configuration loading and structs for the manualqa server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/manualqa/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Loader    LoaderConfig    `yaml:"loader"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Query     QueryConfig     `yaml:"query"`
	Workers   WorkersConfig   `yaml:"workers"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`
	// UploadMaxBytes bounds one multipart upload request.
	UploadMaxBytes int64 `yaml:"upload_max_bytes" validate:"min=0"`
}

// StorageConfig holds the corpus directory and the paths of every persisted artifact.
type StorageConfig struct {
	CorpusDir        string `yaml:"corpus_dir" validate:"required"`
	IndexPath        string `yaml:"index_path" validate:"required"`
	CatalogPath      string `yaml:"catalog_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// LoaderConfig holds PDF loading settings.
type LoaderConfig struct {
	// ValidatePDF runs a structural check before text extraction.
	ValidatePDF bool `yaml:"validate_pdf"`
}

// ChunkingConfig holds the token window settings. Size must exceed Overlap.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" validate:"oneof=hash onnx openai"`
	Model       string `yaml:"model"`
	ModelPath   string `yaml:"model_path" validate:"required_if=Provider onnx"`
	LibraryPath string `yaml:"library_path"`
	Dimensions  int    `yaml:"dimensions" validate:"min=1"`
	MaxTokens   int    `yaml:"max_tokens" validate:"min=1"`
	CacheSize   int    `yaml:"cache_size" validate:"min=0"`
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
}

// LLMConfig selects and configures the answer generator.
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=openai extractive"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	MaxTokens         int           `yaml:"max_tokens" validate:"min=1"`
	Temperature       float32       `yaml:"temperature" validate:"min=0,max=2"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"min=0"`
	Burst             int           `yaml:"burst" validate:"min=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"min=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=0"`
}

// QueryConfig holds retrieval settings.
type QueryConfig struct {
	TopK int `yaml:"top_k" validate:"min=1"`
	// MaxContextTokens caps the prompt size; 0 disables the cap.
	MaxContextTokens int `yaml:"max_context_tokens" validate:"min=0"`
}

// WorkersConfig bounds concurrent embedding and generation calls. Indexing and queries use
// separate pools so questions are answered while an index build is queued.
type WorkersConfig struct {
	Size      int `yaml:"size" validate:"min=1"`
	QuerySize int `yaml:"query_size" validate:"min=1"`
}

// WatchConfig holds corpus directory watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`
}

// DefaultConfigPath returns ~/.manualqa/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".manualqa", "config.yaml")
	}
	return filepath.Join(home, ".manualqa", "config.yaml")
}

// Default returns a config with every default applied and paths expanded.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(DefaultConfigPath()))
	return &cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the config to path, creating its directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks field constraints and the chunk window. Every failure matches models.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Chunking.Size <= c.Chunking.Overlap || c.Chunking.Overlap < 0 {
		return &models.ConfigurationError{
			Field:  "chunking.size",
			Reason: fmt.Sprintf("must be greater than chunking.overlap (size %d, overlap %d)", c.Chunking.Size, c.Chunking.Overlap),
		}
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &models.ConfigurationError{
			Field:  strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config.")),
			Reason: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &models.ConfigurationError{Field: "config", Reason: err.Error()}
}

// APIKey returns the value of the environment variable named by env, or "".
func APIKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) expandPaths(configDir string) {
	c.Storage.CorpusDir = expandPath(c.Storage.CorpusDir, configDir)
	c.Storage.IndexPath = expandPath(c.Storage.IndexPath, configDir)
	c.Storage.CatalogPath = expandPath(c.Storage.CatalogPath, configDir)
	c.Storage.KeywordIndexPath = expandPath(c.Storage.KeywordIndexPath, configDir)
	c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	c.Embedding.LibraryPath = expandPath(c.Embedding.LibraryPath, configDir)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
