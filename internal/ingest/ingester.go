// Package ingest drives the chunked, checkpointed sync of statistical
// matrices: fetch chunks, resolve labels to canonical ids, upsert fact rows,
// and checkpoint each chunk by its signature hash.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/statsync/statsync/internal/archive"
	"github.com/statsync/statsync/internal/checkpoint"
	syncerrors "github.com/statsync/statsync/internal/errors"
	"github.com/statsync/statsync/internal/observability"
	"github.com/statsync/statsync/internal/resolve"
	"github.com/statsync/statsync/internal/store"
	"github.com/statsync/statsync/pkg/types"
)

// Options tunes ingestion behavior.
type Options struct {
	// BatchSize is the number of fact rows upserted per transaction.
	BatchSize int

	// MaxChunkAge re-syncs chunks whose checkpoint is older than this.
	// Zero means a synced chunk is permanently fresh.
	MaxChunkAge time.Duration
}

// Ingester syncs matrices chunk by chunk. Archive is optional; when nil,
// fetched chunks are ingested without being archived.
type Ingester struct {
	st          *store.Store
	resolver    *resolve.Resolver
	checkpoints *checkpoint.Store
	archive     *archive.ChunkArchive
	fetcher     Fetcher
	stats       *observability.SyncStats
	opts        Options
}

// New creates an ingester.
func New(st *store.Store, resolver *resolve.Resolver, checkpoints *checkpoint.Store,
	arch *archive.ChunkArchive, fetcher Fetcher, stats *observability.SyncStats, opts Options) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Ingester{
		st:          st,
		resolver:    resolver,
		checkpoints: checkpoints,
		archive:     arch,
		fetcher:     fetcher,
		stats:       stats,
		opts:        opts,
	}
}

// SyncReport summarizes one sync run.
type SyncReport struct {
	RunID         string
	MatrixID      string
	ChunksSynced  int
	ChunksSkipped int
	RowsSeen      int
	RowsInserted  int
	RowsUpdated   int
	Unresolved    int
	Duration      time.Duration
}

// SyncMatrix syncs every chunk of a matrix. Chunks with a fresh checkpoint
// are skipped unless force is set. Each chunk commits and checkpoints
// independently, so a failure or cancellation mid-run keeps all completed
// chunks; the next run resumes from the gap.
func (i *Ingester) SyncMatrix(ctx context.Context, matrixID string, force bool) (*SyncReport, error) {
	started := time.Now()
	report := &SyncReport{
		RunID:    uuid.New().String(),
		MatrixID: matrixID,
	}
	i.stats.RecordRun(matrixID, report.RunID)

	// The fact partition is provisioned out of band. Its absence is fatal
	// for the whole run, so fail before fetching anything.
	exists, err := i.st.PartitionExists(ctx, matrixID)
	if err != nil {
		return report, err
	}
	if !exists {
		return report, syncerrors.New(syncerrors.ErrCategoryStore, syncerrors.CodePartitionMissing,
			fmt.Sprintf("fact partition for matrix %s does not exist; provision it before syncing", matrixID))
	}

	chunks, err := i.fetcher.FetchChunks(ctx, matrixID)
	if err != nil {
		return report, err
	}
	log.Printf("ingest: matrix %s: run %s over %d chunks", matrixID, report.RunID, len(chunks))

	for idx := range chunks {
		chunk := &chunks[idx]
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}

		need, hash, err := i.checkpoints.ShouldSync(ctx, matrixID, chunk.Signature, i.opts.MaxChunkAge, force)
		if err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		if !need {
			report.ChunksSkipped++
			i.stats.RecordSkip(matrixID)
			continue
		}

		if err := i.syncChunk(ctx, matrixID, hash, chunk, report); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
	}

	report.Duration = time.Since(started)
	log.Printf("ingest: matrix %s: run %s done: %d synced, %d skipped, %d rows (%d inserted, %d updated, %d unresolved labels) in %s",
		matrixID, report.RunID, report.ChunksSynced, report.ChunksSkipped,
		report.RowsSeen, report.RowsInserted, report.RowsUpdated, report.Unresolved, report.Duration)
	return report, nil
}

// ReplayChunk re-ingests an archived chunk by hash, bypassing the fetcher.
// Used to rebuild fact rows after a partition reset without hitting the
// upstream source.
func (i *Ingester) ReplayChunk(ctx context.Context, matrixID, chunkHash string) (*SyncReport, error) {
	report := &SyncReport{
		RunID:    uuid.New().String(),
		MatrixID: matrixID,
	}
	if i.archive == nil {
		return report, syncerrors.New(syncerrors.ErrCategoryArchive, syncerrors.CodeArchiveRead,
			"chunk replay requires a configured archive")
	}

	chunk, err := i.archive.LoadChunk(ctx, matrixID, chunkHash)
	if err != nil {
		return report, syncerrors.Wrap(syncerrors.ErrCategoryArchive, syncerrors.CodeArchiveRead,
			fmt.Sprintf("load archived chunk %s/%s", matrixID, chunkHash), err)
	}

	started := time.Now()
	if err := i.syncChunk(ctx, matrixID, chunkHash, chunk, report); err != nil {
		report.Duration = time.Since(started)
		return report, err
	}
	report.Duration = time.Since(started)
	return report, nil
}

func (i *Ingester) syncChunk(ctx context.Context, matrixID, hash string, chunk *types.Chunk, report *SyncReport) error {
	chunkStart := time.Now()

	if i.archive != nil {
		// Archiving is best effort: a dead archive backend must not stall
		// ingestion, and the chunk can be re-archived on the next forced run.
		if err := i.archive.SaveChunk(ctx, hash, chunk); err != nil {
			log.Printf("ingest: matrix %s: archive chunk %s: %v", matrixID, hash, err)
		}
	}

	facts, unresolved, err := i.resolveRows(ctx, matrixID, chunk.Rows)
	if err != nil {
		return err
	}

	result, err := i.st.UpsertStatistics(ctx, matrixID, facts, i.opts.BatchSize)
	if err != nil {
		return err
	}

	// Checkpoint only after the chunk's rows are durable. A crash between
	// upsert and checkpoint re-syncs the chunk, which the upsert absorbs.
	err = i.checkpoints.Save(ctx, &checkpoint.Checkpoint{
		MatrixID:  matrixID,
		ChunkHash: hash,
		Signature: chunk.Signature,
		RowCount:  len(chunk.Rows),
	})
	if err != nil {
		return err
	}

	report.ChunksSynced++
	report.RowsSeen += len(chunk.Rows)
	report.RowsInserted += result.Inserted
	report.RowsUpdated += result.Updated
	report.Unresolved += unresolved
	i.stats.RecordChunk(matrixID, len(chunk.Rows), result.Inserted, result.Updated, time.Since(chunkStart))
	return nil
}

// resolveRows turns raw labeled rows into fact rows. An unresolved label
// leaves a null reference in the fact row rather than dropping the row or
// failing the chunk; the mapping table records the gap for later repair.
func (i *Ingester) resolveRows(ctx context.Context, matrixID string, rows []types.RawRow) ([]types.Statistic, int, error) {
	facts := make([]types.Statistic, 0, len(rows))
	unresolved := 0

	for idx := range rows {
		row := &rows[idx]

		var territoryID, timePeriodID, unitID *int64
		var classValueIDs []int64

		if row.TerritoryLabel != "" || row.TerritoryAlt != "" {
			res, err := i.resolver.Resolve(ctx, types.ContextTerritory, row.TerritoryLabel, row.TerritoryAlt, "")
			if err != nil {
				return nil, unresolved, err
			}
			if res.Unresolvable {
				unresolved++
				i.stats.RecordUnresolved(matrixID, types.ContextTerritory)
			}
			territoryID = res.EntityID
		}

		if row.TimePeriodLabel != "" {
			res, err := i.resolver.Resolve(ctx, types.ContextTimePeriod, row.TimePeriodLabel, "", "")
			if err != nil {
				return nil, unresolved, err
			}
			if res.Unresolvable {
				unresolved++
				i.stats.RecordUnresolved(matrixID, types.ContextTimePeriod)
			}
			timePeriodID = res.EntityID
		}

		for _, cl := range row.Classifications {
			res, err := i.resolver.Resolve(ctx, types.ContextClassification, cl.Label, "", cl.TypeCode)
			if err != nil {
				return nil, unresolved, err
			}
			if res.Unresolvable {
				unresolved++
				i.stats.RecordUnresolved(matrixID, types.ContextClassification)
				continue
			}
			classValueIDs = append(classValueIDs, *res.EntityID)
		}

		if row.UnitLabel != "" {
			res, err := i.resolver.Resolve(ctx, types.ContextUnit, row.UnitLabel, "", "")
			if err != nil {
				return nil, unresolved, err
			}
			if res.Unresolvable {
				unresolved++
				i.stats.RecordUnresolved(matrixID, types.ContextUnit)
			}
			unitID = res.EntityID
		}

		facts = append(facts, types.Statistic{
			NaturalKey:    NaturalKey(matrixID, territoryID, timePeriodID, classValueIDs, unitID),
			MatrixID:      matrixID,
			TerritoryID:   territoryID,
			TimePeriodID:  timePeriodID,
			ClassValueIDs: classValueIDs,
			UnitID:        unitID,
			Value:         row.Value,
		})
	}
	return facts, unresolved, nil
}
