// Package config provides unified configuration for the statsync services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the statsync ingestion engine.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Sync configuration
	Sync SyncConfig `json:"sync" yaml:"sync"`

	// Resolver configuration
	Resolver ResolverConfig `json:"resolver" yaml:"resolver"`

	// Archive configuration for raw chunk payloads
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Seed configuration
	Seed SeedConfig `json:"seed" yaml:"seed"`
}

// DatabaseConfig holds relational store configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file path
	Path string `json:"path" yaml:"path"`

	// ReadPoolSize is the maximum number of concurrent read connections
	ReadPoolSize int `json:"read_pool_size" yaml:"read_pool_size"`
}

// SyncConfig holds ingestion configuration.
type SyncConfig struct {
	// BatchSize is the number of fact rows upserted per transaction
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxChunkAge re-syncs chunks last synced longer ago than this.
	// Zero means a synced chunk is permanently fresh.
	MaxChunkAge time.Duration `json:"max_chunk_age" yaml:"max_chunk_age"`

	// ForceRefresh re-syncs every chunk regardless of checkpoint freshness
	ForceRefresh bool `json:"force_refresh" yaml:"force_refresh"`
}

// ResolverConfig holds label resolver configuration.
type ResolverConfig struct {
	// PrefilterExpectedKeys sizes the persisted-mapping bloom prefilter
	PrefilterExpectedKeys int `json:"prefilter_expected_keys" yaml:"prefilter_expected_keys"`

	// PrefilterFPR is the prefilter's target false positive rate
	PrefilterFPR float64 `json:"prefilter_fpr" yaml:"prefilter_fpr"`
}

// ArchiveConfig holds raw chunk archive configuration.
type ArchiveConfig struct {
	// Enabled controls whether fetched chunks are archived before ingest
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type is the archive backend: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// SeedConfig holds seed data configuration.
type SeedConfig struct {
	// TerritoriesCSV is the path to the territory seed file. When set, the
	// territory table is loaded from it at startup if empty.
	TerritoriesCSV string `json:"territories_csv" yaml:"territories_csv"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/statsync",
		Database: DatabaseConfig{
			Path:         "",
			ReadPoolSize: 4,
		},
		Sync: SyncConfig{
			BatchSize:    500,
			MaxChunkAge:  0,
			ForceRefresh: false,
		},
		Resolver: ResolverConfig{
			PrefilterExpectedKeys: 100000,
			PrefilterFPR:          0.01,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "local",
			Path:    "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/statsync"
	}

	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "statsync.db")
	}

	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 10000 {
		return fmt.Errorf("sync.batch_size must be between 1 and 10000, got %d", c.Sync.BatchSize)
	}

	if c.Archive.Type != "local" && c.Archive.Type != "s3" {
		return fmt.Errorf("invalid archive type: %s (must be local or s3)", c.Archive.Type)
	}

	if c.Archive.Enabled && c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when archive type is s3")
	}

	if c.Resolver.PrefilterFPR <= 0 || c.Resolver.PrefilterFPR >= 1 {
		return fmt.Errorf("resolver.prefilter_fpr must be in (0, 1), got %g", c.Resolver.PrefilterFPR)
	}

	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Database.Path),
	}
	if c.Archive.Enabled && c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STATSYNC_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STATSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STATSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STATSYNC_DATABASE_READ_POOL_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.ReadPoolSize)
	}

	// Sync configuration
	if v := os.Getenv("STATSYNC_SYNC_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Sync.BatchSize)
	}
	if v := os.Getenv("STATSYNC_SYNC_MAX_CHUNK_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.MaxChunkAge = d
		}
	}
	if v := os.Getenv("STATSYNC_SYNC_FORCE_REFRESH"); v != "" {
		cfg.Sync.ForceRefresh = v == "true" || v == "1"
	}

	// Archive configuration
	if v := os.Getenv("STATSYNC_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STATSYNC_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("STATSYNC_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("STATSYNC_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("STATSYNC_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("STATSYNC_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}

	// Seed configuration
	if v := os.Getenv("STATSYNC_SEED_TERRITORIES_CSV"); v != "" {
		cfg.Seed.TerritoriesCSV = v
	}
}
