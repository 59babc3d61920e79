// Package config provides unified configuration for critdex sessions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for one critdex session.
//
// The path segments below the project root are fixed by cargo-criterion, but
// they are injected here rather than hard-wired so that the walker and the
// cache can be exercised against synthetic trees.
type Config struct {
	// ProjectRoot is the root of the Cargo project or workspace. For
	// workspaces this is the workspace root, where the top-level Cargo.toml
	// lives.
	ProjectRoot string `json:"project_root" yaml:"project_root"`

	// BuildDir is the name of the build output directory under ProjectRoot.
	BuildDir string `json:"build_dir" yaml:"build_dir"`

	// ToolName is the benchmarking tool's directory under BuildDir.
	ToolName string `json:"tool_name" yaml:"tool_name"`

	// Timeline is cargo-criterion's timeline path segment. The field exists
	// in the tool's data model but is currently unused and always "main".
	Timeline string `json:"timeline" yaml:"timeline"`

	// CacheDB is the path to the SQLite cache database. Empty means
	// <ProjectRoot>/<BuildDir>/<ToolName>/data.sqlite.
	CacheDB string `json:"cache_db" yaml:"cache_db"`

	// Archive configures snapshot export of the cache database.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// ArchiveConfig holds snapshot archive configuration.
type ArchiveConfig struct {
	// Backend is the archive backend type: local, s3
	Backend string `json:"backend" yaml:"backend"`

	// Dir is the destination directory (for local backend)
	Dir string `json:"dir" yaml:"dir"`

	// Prefix is the object key prefix under the backend root
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 backend)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage like MinIO)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for a cargo-criterion
// project in the current directory.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		BuildDir:    "target",
		ToolName:    "criterion",
		Timeline:    "main",
		Archive: ArchiveConfig{
			Backend: "local",
			Prefix:  "snapshots",
		},
	}
}

// Resolve fills in defaults and resolves paths derived from ProjectRoot.
func (c *Config) Resolve() {
	if c.ProjectRoot == "" {
		c.ProjectRoot = "."
	}
	if c.BuildDir == "" {
		c.BuildDir = "target"
	}
	if c.ToolName == "" {
		c.ToolName = "criterion"
	}
	if c.Timeline == "" {
		c.Timeline = "main"
	}
	if c.CacheDB == "" {
		c.CacheDB = filepath.Join(c.ProjectRoot, c.BuildDir, c.ToolName, "data.sqlite")
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = "local"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "snapshots"
	}
	if c.Archive.Backend == "local" && c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(c.ProjectRoot, c.BuildDir, c.ToolName, "archive")
	}
}

// DataRoot returns the absolute path of the benchmark data tree,
// <ProjectRoot>/<BuildDir>/<ToolName>/data/<Timeline>.
func (c *Config) DataRoot() string {
	return filepath.Join(c.ProjectRoot, c.BuildDir, c.ToolName, "data", c.Timeline)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root is required")
	}
	if c.BuildDir == "" || c.ToolName == "" || c.Timeline == "" {
		return fmt.Errorf("build_dir, tool_name and timeline must all be non-empty")
	}
	switch c.Archive.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("invalid archive backend: %s (must be local or s3)", c.Archive.Backend)
	}
	if c.Archive.Backend == "s3" && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("archive.s3.bucket is required when archive backend is s3")
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

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the CRITDEX_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CRITDEX_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("CRITDEX_BUILD_DIR"); v != "" {
		cfg.BuildDir = v
	}
	if v := os.Getenv("CRITDEX_TOOL_NAME"); v != "" {
		cfg.ToolName = v
	}
	if v := os.Getenv("CRITDEX_TIMELINE"); v != "" {
		cfg.Timeline = v
	}
	if v := os.Getenv("CRITDEX_CACHE_DB"); v != "" {
		cfg.CacheDB = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_BACKEND"); v != "" {
		cfg.Archive.Backend = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}
	if v := os.Getenv("CRITDEX_ARCHIVE_S3_PATH_STYLE"); v != "" {
		cfg.Archive.S3.UsePathStyle = v == "true" || v == "1"
	}
}
