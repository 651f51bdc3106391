package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/statsync/statsync/internal/config"
	"github.com/statsync/statsync/internal/ingest"
	"github.com/statsync/statsync/pkg/types"
)

const appSeedCSV = `id,code,siruta_code,level,parent_code,name_ro
1,RO,,NATIONAL,,Romania
2,RO1,,NUTS1,RO,Macroregiunea unu
3,RO11,,NUTS2,RO1,Nord-Vest
4,CJ,,NUTS3,RO11,Cluj
`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()

	seedPath := filepath.Join(dir, "territories.csv")
	if err := os.WriteFile(seedPath, []byte(appSeedCSV), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	chunkDir := filepath.Join(dir, "chunks")
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Seed.TerritoriesCSV = seedPath

	a, err := New(context.Background(), cfg, ingest.NewFileFetcher(chunkDir))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, chunkDir
}

func writeAppChunk(t *testing.T, chunkDir string, chunk *types.Chunk) {
	t.Helper()
	dir := filepath.Join(chunkDir, chunk.MatrixID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunk-000.json"), data, 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
}

func TestAppSyncStatusAndResync(t *testing.T) {
	a, chunkDir := newTestApp(t)
	ctx := context.Background()

	v := 340000.0
	writeAppChunk(t, chunkDir, &types.Chunk{
		MatrixID:  "POP107A",
		Signature: "103518:4102|9685",
		Rows: []types.RawRow{
			{
				TerritoryLabel:  "Cluj",
				TimePeriodLabel: "Anul 2020",
				UnitLabel:       "Numar persoane",
				Value:           &v,
			},
		},
	})

	if err := a.ProvisionPartition(ctx, "POP107A"); err != nil {
		t.Fatalf("provision: %v", err)
	}

	report, err := a.SyncMatrix(ctx, "POP107A")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.ChunksSynced != 1 || report.RowsInserted != 1 {
		t.Errorf("report = %+v, want 1 chunk, 1 inserted row", report)
	}

	status, err := a.Status(ctx, "POP107A")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.PartitionExists {
		t.Error("status reports missing partition")
	}
	if status.FactRows != 1 {
		t.Errorf("fact rows = %d, want 1", status.FactRows)
	}
	if status.Checkpoints.ChunkCount != 1 {
		t.Errorf("checkpoint count = %d, want 1", status.Checkpoints.ChunkCount)
	}
	if status.MappingsTotal == 0 {
		t.Error("no label mappings recorded")
	}
	if status.Runtime == nil || status.Runtime.ChunksSynced != 1 {
		t.Errorf("runtime stats = %+v, want 1 synced chunk", status.Runtime)
	}

	// Resync: checkpoints cleared, next run re-ingests and converges.
	if err := a.ForceResync(ctx, "POP107A"); err != nil {
		t.Fatalf("force resync: %v", err)
	}
	status, err = a.Status(ctx, "POP107A")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Checkpoints.ChunkCount != 0 {
		t.Errorf("checkpoints after resync = %d, want 0", status.Checkpoints.ChunkCount)
	}
	if status.FactRows != 1 {
		t.Errorf("fact rows after resync = %d, want untouched 1", status.FactRows)
	}

	report, err = a.SyncMatrix(ctx, "POP107A")
	if err != nil {
		t.Fatalf("re-sync: %v", err)
	}
	if report.ChunksSynced != 1 || report.RowsUpdated != 1 || report.RowsInserted != 0 {
		t.Errorf("re-sync report = %+v, want 1 chunk, 1 updated row", report)
	}
}

func TestAppSeedsOnlyOnce(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	n, err := a.Store().CountTerritories(ctx)
	if err != nil {
		t.Fatalf("count territories: %v", err)
	}
	if n != 4 {
		t.Errorf("seeded territories = %d, want 4", n)
	}

	// A second app over the same database must not re-seed or fail.
	cfg := config.DefaultConfig()
	cfg.DataDir = a.cfg.DataDir
	cfg.Seed.TerritoriesCSV = a.cfg.Seed.TerritoriesCSV

	b, err := New(ctx, cfg, ingest.NewFileFetcher(filepath.Join(a.cfg.DataDir, "none")))
	if err != nil {
		t.Fatalf("second app: %v", err)
	}
	defer b.Close()

	n, err = b.Store().CountTerritories(ctx)
	if err != nil {
		t.Fatalf("count territories: %v", err)
	}
	if n != 4 {
		t.Errorf("territories after second start = %d, want 4", n)
	}
}
