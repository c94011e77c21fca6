// Package config loads the YAML server configuration with environment
// variable expansion and defaults for every field.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the SQLite database path.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig holds the vector index snapshot location and search defaults.
type IndexConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
	TopK         int    `yaml:"top_k"`
}

// EmbeddingConfig selects the embedding provider. The "hash" provider runs
// fully offline; "http" talks to an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	ProviderHash = "hash"
	ProviderHTTP = "http"
)

// Default returns the configuration used when no file is given: a local
// server with an on-disk store and the offline hash embedder.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8356"},
		Database: DatabaseConfig{Path: "data/smart-mcp.db"},
		Index: IndexConfig{
			SnapshotPath: "data/index.snapshot.json",
			TopK:         5,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderHash,
			Dimension: 256,
			Timeout:   10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path, expanding ${VAR_NAME}
// references against the environment. Fields left unset fall back to
// Default values. An empty path returns Default directly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Embedding.TimeoutRaw != "" {
		cfg.Embedding.Timeout, err = time.ParseDuration(cfg.Embedding.TimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing embedding.timeout %q: %w", cfg.Embedding.TimeoutRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and consistent. It
// returns the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Index.SnapshotPath == "" {
		return fmt.Errorf("index.snapshot_path is required")
	}
	if c.Index.TopK < 1 {
		return fmt.Errorf("index.top_k must be at least 1")
	}

	switch c.Embedding.Provider {
	case ProviderHash:
		if c.Embedding.Dimension < 1 {
			return fmt.Errorf("embedding.dimension must be at least 1")
		}
	case ProviderHTTP:
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url is required for the http provider")
		}
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for the http provider")
		}
		if c.Embedding.Dimension < 1 {
			return fmt.Errorf("embedding.dimension must be at least 1")
		}
	default:
		return fmt.Errorf("embedding.provider must be %q or %q", ProviderHash, ProviderHTTP)
	}

	return nil
}
