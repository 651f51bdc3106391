// Package observability provides sync statistics tracking for ingestion
// monitoring and the operational status surface.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/statsync/statsync/pkg/types"
)

// SyncStats tracks per-matrix ingestion counters: rows seen, rows inserted
// and updated, unresolved labels by context type, and run durations.
type SyncStats struct {
	mu       sync.RWMutex
	matrices map[string]*MatrixStats
}

// MatrixStats holds accumulated counters for one matrix.
type MatrixStats struct {
	MatrixID      string
	ChunksSynced  int64
	ChunksSkipped int64
	RowsSeen      int64
	RowsInserted  int64
	RowsUpdated   int64
	Unresolved    map[types.ContextType]int64
	TotalDuration time.Duration
	LastSyncedAt  time.Time
	LastRunID     string
}

// NewSyncStats creates a new sync statistics tracker.
func NewSyncStats() *SyncStats {
	return &SyncStats{matrices: make(map[string]*MatrixStats)}
}

func (s *SyncStats) matrix(matrixID string) *MatrixStats {
	m, ok := s.matrices[matrixID]
	if !ok {
		m = &MatrixStats{
			MatrixID:   matrixID,
			Unresolved: make(map[types.ContextType]int64),
		}
		s.matrices[matrixID] = m
	}
	return m
}

// RecordChunk records the outcome of one synced chunk.
// This method is O(1) and thread-safe.
func (s *SyncStats) RecordChunk(matrixID string, rowsSeen, inserted, updated int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.matrix(matrixID)
	m.ChunksSynced++
	m.RowsSeen += int64(rowsSeen)
	m.RowsInserted += int64(inserted)
	m.RowsUpdated += int64(updated)
	m.TotalDuration += duration
	m.LastSyncedAt = time.Now()
}

// RecordSkip records a chunk skipped because its checkpoint was fresh.
func (s *SyncStats) RecordSkip(matrixID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrix(matrixID).ChunksSkipped++
}

// RecordUnresolved records one unresolved label by context type.
func (s *SyncStats) RecordUnresolved(matrixID string, contextType types.ContextType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrix(matrixID).Unresolved[contextType]++
}

// RecordRun tags a matrix with the id of its latest sync run.
func (s *SyncStats) RecordRun(matrixID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrix(matrixID).LastRunID = runID
}

// Snapshot returns a deep copy of one matrix's counters, or nil when the
// matrix was never synced in this process.
func (s *SyncStats) Snapshot(matrixID string) *MatrixStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matrices[matrixID]
	if !ok {
		return nil
	}
	return copyMatrixStats(m)
}

// SnapshotAll returns deep copies of every matrix's counters, sorted by
// matrix id for stable output.
func (s *SyncStats) SnapshotAll() []MatrixStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MatrixStats, 0, len(s.matrices))
	for _, m := range s.matrices {
		out = append(out, *copyMatrixStats(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatrixID < out[j].MatrixID })
	return out
}

// UnresolvedTotal sums unresolved labels across context types for a matrix.
func (s *SyncStats) UnresolvedTotal(matrixID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matrices[matrixID]
	if !ok {
		return 0
	}
	var total int64
	for _, n := range m.Unresolved {
		total += n
	}
	return total
}

func copyMatrixStats(m *MatrixStats) *MatrixStats {
	c := *m
	c.Unresolved = make(map[types.ContextType]int64, len(m.Unresolved))
	for k, v := range m.Unresolved {
		c.Unresolved[k] = v
	}
	return &c
}
