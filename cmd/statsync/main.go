// Package main implements the statsync command line tool: checkpointed
// ingestion of statistical matrices from chunk exports into the canonical
// fact store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/statsync/statsync/internal/app"
	"github.com/statsync/statsync/internal/config"
	"github.com/statsync/statsync/internal/ingest"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		sourceDir   string
		mode        string
		matrixID    string
		chunkHash   string
		force       bool
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&sourceDir, "source-dir", "", "Directory holding exported chunk files")
	flag.StringVar(&mode, "mode", "sync", "Operation: sync, status, resync, replay, provision")
	flag.StringVar(&matrixID, "matrix", "", "Matrix id to operate on")
	flag.StringVar(&chunkHash, "chunk", "", "Chunk hash for replay mode")
	flag.BoolVar(&force, "force", false, "Re-sync chunks regardless of checkpoint freshness")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "statsync - checkpointed statistical matrix ingestion\n\n")
		fmt.Fprintf(os.Stderr, "Usage: statsync [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  statsync --mode provision --matrix POP107A --data-dir /data/statsync\n")
		fmt.Fprintf(os.Stderr, "  statsync --mode sync --matrix POP107A --source-dir /exports\n")
		fmt.Fprintf(os.Stderr, "  statsync --mode status --matrix POP107A\n")
		fmt.Fprintf(os.Stderr, "  statsync --mode resync --matrix POP107A\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STATSYNC_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  STATSYNC_DATABASE_PATH   SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  STATSYNC_ARCHIVE_TYPE    Archive backend (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  STATSYNC_S3_BUCKET       Archive bucket for the s3 backend\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("statsync version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if matrixID == "" {
		log.Fatal("--matrix is required")
	}

	cfg, err := loadConfig(configFile, dataDir, force)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A termination signal cancels the run; completed chunks stay
	// checkpointed and the next run resumes from the gap.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	application, err := app.New(ctx, cfg, ingest.NewFileFetcher(sourceDir))
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	defer application.Close()

	if err := run(ctx, application, mode, matrixID, chunkHash); err != nil {
		log.Fatalf("%s failed: %v", mode, err)
	}
}

func run(ctx context.Context, application *app.App, mode, matrixID, chunkHash string) error {
	switch mode {
	case "sync":
		report, err := application.SyncMatrix(ctx, matrixID)
		if err != nil {
			return err
		}
		printReport(report)
		return nil

	case "status":
		status, err := application.Status(ctx, matrixID)
		if err != nil {
			return err
		}
		printStatus(status)
		return nil

	case "resync":
		return application.ForceResync(ctx, matrixID)

	case "replay":
		if chunkHash == "" {
			return fmt.Errorf("--chunk is required for replay")
		}
		report, err := application.ReplayChunk(ctx, matrixID, chunkHash)
		if err != nil {
			return err
		}
		printReport(report)
		return nil

	case "provision":
		if err := application.ProvisionPartition(ctx, matrixID); err != nil {
			return err
		}
		log.Printf("Provisioned fact partition for matrix %s", matrixID)
		return nil
	}
	return fmt.Errorf("unknown mode %q", mode)
}

func printReport(r *ingest.SyncReport) {
	log.Printf("Run %s for matrix %s:", r.RunID, r.MatrixID)
	log.Printf("  Chunks:     %d synced, %d skipped", r.ChunksSynced, r.ChunksSkipped)
	log.Printf("  Rows:       %d seen, %d inserted, %d updated", r.RowsSeen, r.RowsInserted, r.RowsUpdated)
	log.Printf("  Unresolved: %d labels", r.Unresolved)
	log.Printf("  Duration:   %s", r.Duration)
}

func printStatus(s *app.MatrixStatus) {
	log.Printf("Matrix %s:", s.MatrixID)
	log.Printf("  Partition:   exists=%v, %d fact rows", s.PartitionExists, s.FactRows)
	log.Printf("  Checkpoints: %d chunks, %d rows", s.Checkpoints.ChunkCount, s.Checkpoints.TotalRows)
	if s.Checkpoints.ChunkCount > 0 {
		log.Printf("  Synced:      oldest %s, newest %s", s.Checkpoints.OldestSync, s.Checkpoints.NewestSync)
	}
	log.Printf("  Mappings:    %d total, %d unresolvable", s.MappingsTotal, s.MappingsUnresolved)
	if s.Runtime != nil {
		log.Printf("  This run:    %d chunks synced, %d skipped", s.Runtime.ChunksSynced, s.Runtime.ChunksSkipped)
	}
}

// loadConfig layers configuration: file, then environment, then flags.
func loadConfig(configFile, dataDir string, force bool) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if force {
		cfg.Sync.ForceRefresh = true
	}

	return cfg, nil
}
