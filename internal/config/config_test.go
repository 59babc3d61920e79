package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_Defaults(t *testing.T) {
	cfg := &Config{ProjectRoot: "/work/proj"}
	cfg.Resolve()

	if cfg.BuildDir != "target" || cfg.ToolName != "criterion" || cfg.Timeline != "main" {
		t.Errorf("resolved defaults = %+v", cfg)
	}
	if want := filepath.Join("/work/proj", "target", "criterion", "data.sqlite"); cfg.CacheDB != want {
		t.Errorf("cache db = %s, want %s", cfg.CacheDB, want)
	}
	if want := filepath.Join("/work/proj", "target", "criterion", "archive"); cfg.Archive.Dir != want {
		t.Errorf("archive dir = %s, want %s", cfg.Archive.Dir, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("resolved config is invalid: %v", err)
	}
}

func TestDataRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProjectRoot = "/work/proj"
	cfg.Resolve()

	want := filepath.Join("/work/proj", "target", "criterion", "data", "main")
	if got := cfg.DataRoot(); got != want {
		t.Errorf("DataRoot = %s, want %s", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty project root", func(c *Config) { c.ProjectRoot = "" }, false},
		{"empty tool name", func(c *Config) { c.ToolName = "" }, false},
		{"unknown archive backend", func(c *Config) { c.Archive.Backend = "ftp" }, false},
		{"s3 without bucket", func(c *Config) { c.Archive.Backend = "s3" }, false},
		{"s3 with bucket", func(c *Config) {
			c.Archive.Backend = "s3"
			c.Archive.S3.Bucket = "benchmarks"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critdex.yaml")
	content := `
project_root: /work/proj
timeline: main
archive:
  backend: s3
  prefix: nightly
  s3:
    bucket: benchmarks
    region: eu-central-1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.ProjectRoot != "/work/proj" {
		t.Errorf("project root = %s", cfg.ProjectRoot)
	}
	if cfg.Archive.Backend != "s3" || cfg.Archive.Prefix != "nightly" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Archive.S3.Bucket != "benchmarks" || cfg.Archive.S3.Region != "eu-central-1" {
		t.Errorf("s3 = %+v", cfg.Archive.S3)
	}
	// Unset fields keep their defaults.
	if cfg.BuildDir != "target" {
		t.Errorf("build dir = %s, want target", cfg.BuildDir)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critdex.json")
	content := `{"project_root": "/work/proj", "cache_db": "/tmp/bench.sqlite"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.ProjectRoot != "/work/proj" || cfg.CacheDB != "/tmp/bench.sqlite" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadFromFile_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critdex.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRITDEX_PROJECT_ROOT", "/env/proj")
	t.Setenv("CRITDEX_TIMELINE", "nightly")
	t.Setenv("CRITDEX_ARCHIVE_BACKEND", "s3")
	t.Setenv("CRITDEX_ARCHIVE_S3_BUCKET", "benchmarks")
	t.Setenv("CRITDEX_ARCHIVE_S3_PATH_STYLE", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.ProjectRoot != "/env/proj" || cfg.Timeline != "nightly" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Archive.Backend != "s3" || cfg.Archive.S3.Bucket != "benchmarks" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if !cfg.Archive.S3.UsePathStyle {
		t.Error("path style not enabled")
	}
}
