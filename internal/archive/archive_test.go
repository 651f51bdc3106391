package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/statsync/statsync/internal/checkpoint"
	"github.com/statsync/statsync/pkg/types"
)

func newTestArchive(t *testing.T) *ChunkArchive {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	return NewChunkArchive(storage)
}

func testChunk() *types.Chunk {
	v := 1234.5
	return &types.Chunk{
		MatrixID:  "POP107A",
		Signature: "103518:4102:9685|103518:4103:9685",
		Rows: []types.RawRow{
			{
				TerritoryLabel:  "38731 Ripiceni",
				TimePeriodLabel: "Anul 2020",
				UnitLabel:       "Numar persoane",
				Value:           &v,
			},
			{
				TerritoryLabel:  "Cluj",
				TimePeriodLabel: "Anul 2020",
				UnitLabel:       "Numar persoane",
				Value:           nil,
			},
		},
	}
}

func TestChunkRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	chunk := testChunk()
	hash := checkpoint.ChunkHash(chunk.Signature)
	if err := a.SaveChunk(ctx, hash, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	got, err := a.LoadChunk(ctx, "POP107A", hash)
	if err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	if got.MatrixID != chunk.MatrixID || got.Signature != chunk.Signature {
		t.Errorf("chunk identity corrupted: %+v", got)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(got.Rows))
	}
	if got.Rows[0].Value == nil || *got.Rows[0].Value != 1234.5 {
		t.Errorf("row value corrupted: %v", got.Rows[0].Value)
	}
	if got.Rows[1].Value != nil {
		t.Errorf("missing-value marker lost: %v", got.Rows[1].Value)
	}
}

func TestLoadMissingChunk(t *testing.T) {
	a := newTestArchive(t)

	_, err := a.LoadChunk(context.Background(), "POP107A", "deadbeef")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestHasAndListChunks(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	chunk := testChunk()
	hash := checkpoint.ChunkHash(chunk.Signature)

	ok, err := a.HasChunk(ctx, "POP107A", hash)
	if err != nil {
		t.Fatalf("has chunk: %v", err)
	}
	if ok {
		t.Error("unarchived chunk reported present")
	}

	if err := a.SaveChunk(ctx, hash, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	other := testChunk()
	other.Signature = "different"
	otherHash := checkpoint.ChunkHash(other.Signature)
	if err := a.SaveChunk(ctx, otherHash, other); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	ok, err = a.HasChunk(ctx, "POP107A", hash)
	if err != nil {
		t.Fatalf("has chunk: %v", err)
	}
	if !ok {
		t.Error("archived chunk reported absent")
	}

	hashes, err := a.ListChunks(ctx, "POP107A")
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(hashes) != 2 {
		t.Errorf("listed %d chunks, want 2", len(hashes))
	}
	found := map[string]bool{}
	for _, h := range hashes {
		found[h] = true
	}
	if !found[hash] || !found[otherHash] {
		t.Errorf("listed hashes %v missing %s or %s", hashes, hash, otherHash)
	}

	// Other matrices list empty.
	hashes, err = a.ListChunks(ctx, "SOM101B")
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("unrelated matrix lists %v", hashes)
	}
}

func TestSaveChunkOverwrites(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	chunk := testChunk()
	hash := checkpoint.ChunkHash(chunk.Signature)
	if err := a.SaveChunk(ctx, hash, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	if err := a.SaveChunk(ctx, hash, chunk); err != nil {
		t.Fatalf("re-save chunk: %v", err)
	}

	got, err := a.LoadChunk(ctx, "POP107A", hash)
	if err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	if len(got.Rows) != len(chunk.Rows) {
		t.Errorf("row count = %d after overwrite, want %d", len(got.Rows), len(chunk.Rows))
	}
}

func TestLocalStorageDeleteIdempotent(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	ctx := context.Background()

	if err := storage.Put(ctx, "a/b/c.bin", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := storage.Delete(ctx, "a/b/c.bin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := storage.Delete(ctx, "a/b/c.bin"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	ok, err := storage.Exists(ctx, "a/b/c.bin")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Error("deleted object reported present")
	}
}
