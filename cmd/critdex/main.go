// Package main implements the critdex binary. It indexes the CBOR benchmark
// data recorded by cargo-criterion under a project's target directory:
// dumping it, verifying its layout invariants, synchronizing the SQLite
// cache, and archiving cache snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/critdex/critdex/internal/archive"
	"github.com/critdex/critdex/internal/cache"
	"github.com/critdex/critdex/internal/config"
	"github.com/critdex/critdex/internal/walk"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile     string
		projectRoot    string
		dbPath         string
		mode           string
		archiveBackend string
		archiveDir     string
		showVersion    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&projectRoot, "project-root", "", "Root of the Cargo project or workspace")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite cache database")
	flag.StringVar(&mode, "mode", "dump", "Operation: dump, verify, sync, archive")
	flag.StringVar(&archiveBackend, "archive-backend", "", "Snapshot archive backend: local or s3")
	flag.StringVar(&archiveDir, "archive-dir", "", "Destination directory for the local archive backend")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "critdex - index for cargo-criterion benchmark data\n\n")
		fmt.Fprintf(os.Stderr, "Usage: critdex [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  critdex -mode dump -project-root ~/src/myproject\n")
		fmt.Fprintf(os.Stderr, "  critdex -mode sync -project-root ~/src/myproject\n")
		fmt.Fprintf(os.Stderr, "  critdex -mode archive -config critdex.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CRITDEX_PROJECT_ROOT     Root of the Cargo project\n")
		fmt.Fprintf(os.Stderr, "  CRITDEX_CACHE_DB         Path to the SQLite cache database\n")
		fmt.Fprintf(os.Stderr, "  CRITDEX_ARCHIVE_*        Snapshot archive settings\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("critdex %s (%s)\n", version, commit)
		return
	}

	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("critdex: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if projectRoot != "" {
		cfg.ProjectRoot = projectRoot
	}
	if dbPath != "" {
		cfg.CacheDB = dbPath
	}
	if archiveBackend != "" {
		cfg.Archive.Backend = archiveBackend
	}
	if archiveDir != "" {
		cfg.Archive.Dir = archiveDir
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("critdex: invalid configuration: %v", err)
	}

	ctx := context.Background()

	var err error
	switch mode {
	case "dump":
		err = runDump(cfg, os.Stdout)
	case "verify":
		err = runVerify(cfg)
	case "sync":
		err = runSync(ctx, cfg)
	case "archive":
		err = runArchive(ctx, cfg)
	default:
		log.Fatalf("critdex: unknown mode %q (must be dump, verify, sync, or archive)", mode)
	}
	if err != nil {
		log.Fatalf("critdex: %v", err)
	}
}

// runSync brings the cache database in line with the data tree and prints
// what the pass did.
func runSync(ctx context.Context, cfg *config.Config) error {
	store, err := cache.Open(cfg.CacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := cache.NewSynchronizer(store)
	passID, err := syncer.Sync(ctx, walk.InProject(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("sync pass %s complete: %s\n", passID, syncer.Stats())
	return nil
}

// runArchive synchronizes the cache, then uploads a compressed snapshot of
// it to the configured backend.
func runArchive(ctx context.Context, cfg *config.Config) error {
	store, err := cache.Open(cfg.CacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := cache.NewSynchronizer(store)
	passID, err := syncer.Sync(ctx, walk.InProject(cfg))
	if err != nil {
		return err
	}

	var backend archive.Backend
	switch cfg.Archive.Backend {
	case "s3":
		backend, err = archive.NewS3Backend(ctx, cfg.Archive.S3)
	default:
		backend, err = archive.NewLocalBackend(cfg.Archive.Dir)
	}
	if err != nil {
		return err
	}

	key, err := archive.Snapshot(ctx, store, backend, cfg.Archive.Prefix, passID)
	if err != nil {
		return err
	}
	fmt.Printf("archived snapshot %s\n", key)
	return nil
}
