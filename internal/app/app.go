// Package app wires configuration, store, resolver, checkpoints, archive,
// and ingester into the statsync runtime.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/statsync/statsync/internal/archive"
	"github.com/statsync/statsync/internal/checkpoint"
	"github.com/statsync/statsync/internal/config"
	"github.com/statsync/statsync/internal/ingest"
	"github.com/statsync/statsync/internal/observability"
	"github.com/statsync/statsync/internal/resolve"
	"github.com/statsync/statsync/internal/store"
)

// App holds the assembled statsync components for one configuration.
type App struct {
	cfg *config.Config

	st          *store.Store
	resolver    *resolve.Resolver
	checkpoints *checkpoint.Store
	archive     *archive.ChunkArchive
	stats       *observability.SyncStats
	ingester    *ingest.Ingester
}

// New creates the application: validates configuration, opens the store,
// seeds territories on first start, and wires the ingestion pipeline around
// the given fetcher.
func New(ctx context.Context, cfg *config.Config, fetcher ingest.Fetcher) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	st, err := store.Open(cfg.Database.Path, store.Options{ReadPoolSize: cfg.Database.ReadPoolSize})
	if err != nil {
		return nil, err
	}

	if err := seedTerritories(ctx, st, cfg.Seed.TerritoriesCSV); err != nil {
		st.Close()
		return nil, err
	}

	arch, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		st.Close()
		return nil, err
	}

	resolver, err := resolve.New(ctx, st, resolve.Options{
		PrefilterExpectedKeys: cfg.Resolver.PrefilterExpectedKeys,
		PrefilterFPR:          cfg.Resolver.PrefilterFPR,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	checkpoints := checkpoint.New(st)
	stats := observability.NewSyncStats()
	ingester := ingest.New(st, resolver, checkpoints, arch, fetcher, stats, ingest.Options{
		BatchSize:   cfg.Sync.BatchSize,
		MaxChunkAge: cfg.Sync.MaxChunkAge,
	})

	return &App{
		cfg:         cfg,
		st:          st,
		resolver:    resolver,
		checkpoints: checkpoints,
		archive:     arch,
		stats:       stats,
		ingester:    ingester,
	}, nil
}

// seedTerritories loads the territory table from the seed CSV on an empty
// database. A populated table is left untouched.
func seedTerritories(ctx context.Context, st *store.Store, csvPath string) error {
	n, err := st.CountTerritories(ctx)
	if err != nil {
		return err
	}
	if n > 0 || csvPath == "" {
		return nil
	}

	loaded, err := st.LoadTerritorySeed(ctx, csvPath)
	if err != nil {
		return fmt.Errorf("seed territories: %w", err)
	}
	log.Printf("app: seeded %d territories from %s", loaded, csvPath)
	return nil
}

// SyncMatrix syncs one matrix, honoring the configured force-refresh flag.
func (a *App) SyncMatrix(ctx context.Context, matrixID string) (*ingest.SyncReport, error) {
	return a.ingester.SyncMatrix(ctx, matrixID, a.cfg.Sync.ForceRefresh)
}

// ForceResync clears a matrix's checkpoints so the next sync re-ingests
// every chunk. Fact rows stay in place; re-ingestion upserts over them.
func (a *App) ForceResync(ctx context.Context, matrixID string) error {
	cleared, err := a.checkpoints.Clear(ctx, matrixID)
	if err != nil {
		return err
	}
	log.Printf("app: cleared %d checkpoints for matrix %s", cleared, matrixID)
	return nil
}

// ReplayChunk re-ingests one archived chunk by hash.
func (a *App) ReplayChunk(ctx context.Context, matrixID, chunkHash string) (*ingest.SyncReport, error) {
	return a.ingester.ReplayChunk(ctx, matrixID, chunkHash)
}

// MatrixStatus is the operational status of one matrix.
type MatrixStatus struct {
	MatrixID           string
	PartitionExists    bool
	FactRows           int64
	Checkpoints        *checkpoint.Summary
	MappingsTotal      int64
	MappingsUnresolved int64
	Runtime            *observability.MatrixStats
}

// Status reports the durable and in-process state of one matrix.
func (a *App) Status(ctx context.Context, matrixID string) (*MatrixStatus, error) {
	status := &MatrixStatus{MatrixID: matrixID}

	exists, err := a.st.PartitionExists(ctx, matrixID)
	if err != nil {
		return nil, err
	}
	status.PartitionExists = exists
	if exists {
		if status.FactRows, err = a.st.CountStatistics(ctx, matrixID); err != nil {
			return nil, err
		}
	}

	if status.Checkpoints, err = a.checkpoints.Summarize(ctx, matrixID); err != nil {
		return nil, err
	}
	if status.MappingsTotal, status.MappingsUnresolved, err = a.st.CountLabelMappings(ctx); err != nil {
		return nil, err
	}
	status.Runtime = a.stats.Snapshot(matrixID)
	return status, nil
}

// ProvisionPartition creates a matrix's fact partition. Normal sync never
// creates partitions; this is the explicit provisioning entry point.
func (a *App) ProvisionPartition(ctx context.Context, matrixID string) error {
	return a.st.EnsurePartition(ctx, matrixID)
}

// Store exposes the underlying store for tooling.
func (a *App) Store() *store.Store { return a.st }

// Close releases the store connections.
func (a *App) Close() error {
	return a.st.Close()
}
