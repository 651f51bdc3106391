// Package checkpoint tracks which matrix chunks have been synced, keyed by a
// content hash of the chunk signature. Signatures encode the selection-id
// list of a chunk and can run to several kilobytes, so the hash is the key
// and the signature is stored compressed for audit only.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang/snappy"

	syncerrors "github.com/statsync/statsync/internal/errors"
	"github.com/statsync/statsync/internal/store"
)

// Checkpoint records one successfully synced chunk.
type Checkpoint struct {
	MatrixID   string
	ChunkHash  string
	Signature  string
	RowCount   int
	LastSynced time.Time
}

// Summary aggregates a matrix's checkpoints for the status surface.
type Summary struct {
	MatrixID   string
	ChunkCount int64
	TotalRows  int64
	OldestSync time.Time
	NewestSync time.Time
}

// Store persists checkpoints in the shared database. The single-writer
// connection serializes saves; reads go through the read pool.
type Store struct {
	st *store.Store
}

// New creates a checkpoint store over the shared database.
func New(st *store.Store) *Store {
	return &Store{st: st}
}

// ChunkHash returns the fixed-length content hash of a chunk signature.
// Equal signatures always hash equal, so re-encounters of a chunk find their
// checkpoint regardless of signature size.
func ChunkHash(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}

// Get returns the checkpoint for a chunk, or nil when it was never synced.
func (c *Store) Get(ctx context.Context, matrixID, chunkHash string) (*Checkpoint, error) {
	var cp Checkpoint
	var compressed []byte
	var syncedAt int64

	err := c.st.ReadDB().QueryRowContext(ctx, `
		SELECT matrix_id, chunk_hash, chunk_signature, row_count, last_synced_at
		FROM sync_checkpoints
		WHERE matrix_id = ? AND chunk_hash = ?`, matrixID, chunkHash).Scan(
		&cp.MatrixID, &cp.ChunkHash, &compressed, &cp.RowCount, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: select: %w", err)
	}

	signature, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decode signature: %w", err)
	}
	cp.Signature = string(signature)
	cp.LastSynced = time.Unix(syncedAt, 0).UTC()
	return &cp, nil
}

// Save records a chunk as synced, replacing any earlier checkpoint for the
// same chunk so last_synced_at and row_count reflect the latest pass.
func (c *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.ChunkHash == "" {
		cp.ChunkHash = ChunkHash(cp.Signature)
	}
	syncedAt := cp.LastSynced
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC()
	}

	compressed := snappy.Encode(nil, []byte(cp.Signature))
	_, err := c.st.WriteDB().ExecContext(ctx, `
		INSERT INTO sync_checkpoints (matrix_id, chunk_hash, chunk_signature, row_count, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(matrix_id, chunk_hash) DO UPDATE SET
			chunk_signature = excluded.chunk_signature,
			row_count = excluded.row_count,
			last_synced_at = excluded.last_synced_at`,
		cp.MatrixID, cp.ChunkHash, compressed, cp.RowCount, syncedAt.Unix())
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCategoryCheckpoint, syncerrors.CodeCheckpointWrite,
			fmt.Sprintf("save checkpoint %s/%s", cp.MatrixID, cp.ChunkHash), err)
	}
	return nil
}

// ShouldSync decides whether a chunk needs ingestion. A chunk is synced when
// forced, when it has no checkpoint, or when its checkpoint is older than
// maxAge. maxAge <= 0 disables age-based resync. The chunk hash is returned
// so callers reuse it for the eventual Save.
func (c *Store) ShouldSync(ctx context.Context, matrixID, signature string, maxAge time.Duration, force bool) (bool, string, error) {
	hash := ChunkHash(signature)
	if force {
		return true, hash, nil
	}

	cp, err := c.Get(ctx, matrixID, hash)
	if err != nil {
		return false, hash, err
	}
	if cp == nil {
		return true, hash, nil
	}
	if maxAge > 0 && time.Since(cp.LastSynced) > maxAge {
		return true, hash, nil
	}
	return false, hash, nil
}

// Summarize aggregates checkpoint state for one matrix. A matrix with no
// checkpoints returns a zero-count summary, not an error.
func (c *Store) Summarize(ctx context.Context, matrixID string) (*Summary, error) {
	var s Summary
	var oldest, newest sql.NullInt64

	err := c.st.ReadDB().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(row_count), 0), MIN(last_synced_at), MAX(last_synced_at)
		FROM sync_checkpoints
		WHERE matrix_id = ?`, matrixID).Scan(&s.ChunkCount, &s.TotalRows, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: summarize %s: %w", matrixID, err)
	}

	s.MatrixID = matrixID
	if oldest.Valid {
		s.OldestSync = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		s.NewestSync = time.Unix(newest.Int64, 0).UTC()
	}
	return &s, nil
}

// Clear deletes every checkpoint for a matrix, forcing a full resync on the
// next run. Fact rows are untouched; re-ingestion upserts over them.
func (c *Store) Clear(ctx context.Context, matrixID string) (int64, error) {
	res, err := c.st.WriteDB().ExecContext(ctx,
		`DELETE FROM sync_checkpoints WHERE matrix_id = ?`, matrixID)
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCategoryCheckpoint, syncerrors.CodeCheckpointWrite,
			fmt.Sprintf("clear checkpoints for %s", matrixID), err)
	}
	return res.RowsAffected()
}
