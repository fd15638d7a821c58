// Package config provides configuration loading and structs for the Kasane indexer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Library    LibraryConfig    `yaml:"library"`
	Scan       ScanConfig       `yaml:"scan"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Stacking   StackingConfig   `yaml:"stacking"`
}

// LibraryConfig holds photo library roots and extension filters.
type LibraryConfig struct {
	Roots      []string `yaml:"roots"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to walk roots recursively; defaults to true when unset.
func (l *LibraryConfig) RecursiveOrDefault() bool {
	if l.Recursive != nil {
		return *l.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig holds feature extractor settings.
type EmbeddingConfig struct {
	ModelPath string `yaml:"model_path"`
	// Dimensions is the fixed embedding length produced by the model.
	Dimensions int `yaml:"dimensions"`
	// MaxImageDim bounds the longest image side before extraction.
	MaxImageDim int `yaml:"max_image_dim"`
	CacheSize   int `yaml:"cache_size"`
}

// ScanConfig holds incremental scan settings.
type ScanConfig struct {
	// MaxRetries is the failure count after which a photo is marked
	// permanently failed and skipped by future scans.
	MaxRetries int `yaml:"max_retries"`
	// YieldEvery is how many items the scanner processes before yielding
	// to interactive callers.
	YieldEvery int `yaml:"yield_every"`
}

// SimilarityConfig holds similarity search and duplicate detection settings.
type SimilarityConfig struct {
	DefaultThreshold   float64 `yaml:"default_threshold"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	DefaultLimit       int     `yaml:"default_limit"`
	MaxLimit           int     `yaml:"max_limit"`
}

// StackingConfig holds burst-stacking settings.
type StackingConfig struct {
	Threshold float64 `yaml:"threshold"`
	// Lookahead is how many subsequent items are considered for the
	// current stack before the anchor moves on.
	Lookahead int `yaml:"lookahead"`
	// MaxItems caps one stacking pass; items beyond it become singletons.
	MaxItems int `yaml:"max_items"`
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

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Library.Roots {
		cfg.Library.Roots[i] = expandPath(cfg.Library.Roots[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting library root add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
