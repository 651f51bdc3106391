package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	syncerrors "github.com/statsync/statsync/internal/errors"
	"github.com/statsync/statsync/pkg/types"
)

// matrixIDPattern constrains matrix ids to identifier-safe characters since
// the id is spliced into the partition table name.
var matrixIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// PartitionTable returns the fact partition table name for a matrix.
func PartitionTable(matrixID string) (string, error) {
	if !matrixIDPattern.MatchString(matrixID) {
		return "", syncerrors.New(syncerrors.ErrCategoryValidation, syncerrors.CodeInvalidMatrixID,
			fmt.Sprintf("matrix id %q is not a valid identifier", matrixID))
	}
	return "statistics_" + strings.ToLower(matrixID), nil
}

// PartitionExists reports whether the fact partition for a matrix has been
// provisioned.
func (s *Store) PartitionExists(ctx context.Context, matrixID string) (bool, error) {
	table, err := PartitionTable(matrixID)
	if err != nil {
		return false, err
	}
	var n int
	err = s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check partition: %w", err)
	}
	return n > 0, nil
}

// EnsurePartition provisions the fact partition for a matrix. This belongs to
// the external provisioning process (and tests); the ingest path never calls
// it — a missing partition there is a fatal provisioning gap.
func (s *Store) EnsurePartition(ctx context.Context, matrixID string) error {
	table, err := PartitionTable(matrixID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		natural_key TEXT PRIMARY KEY,
		matrix_id TEXT NOT NULL,
		territory_id INTEGER,
		time_period_id INTEGER,
		classification_value_ids TEXT NOT NULL DEFAULT '[]',
		unit_id INTEGER,
		value REAL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`, table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: provision partition %s: %w", table, err)
	}
	return nil
}

// UpsertResult reports the outcome of one batched upsert call.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// UpsertStatistics writes fact rows into the matrix's partition, batched to
// bound transaction size. Each row's natural-key hash is the conflict target:
// on conflict the value and updated_at are overwritten and created_at is left
// untouched, so re-ingesting a chunk converges instead of duplicating.
//
// A missing partition fails fast with a non-retryable PARTITION_MISSING
// error; it signals a provisioning gap, not a transient fault.
func (s *Store) UpsertStatistics(ctx context.Context, matrixID string, rows []types.Statistic, batchSize int) (UpsertResult, error) {
	var result UpsertResult
	table, err := PartitionTable(matrixID)
	if err != nil {
		return result, err
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	exists, err := s.PartitionExists(ctx, matrixID)
	if err != nil {
		return result, err
	}
	if !exists {
		return result, syncerrors.New(syncerrors.ErrCategoryStore, syncerrors.CodePartitionMissing,
			fmt.Sprintf("partition %s does not exist; provision it before syncing matrix %s", table, matrixID))
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		inserted, updated, err := s.upsertBatch(ctx, table, batch)
		if err != nil {
			return result, syncerrors.Wrap(syncerrors.ErrCategoryIngest, syncerrors.CodeUpsertFailed,
				fmt.Sprintf("batch %d-%d for matrix %s", start, end, matrixID), err)
		}
		result.Inserted += inserted
		result.Updated += updated
	}
	return result, nil
}

// upsertBatch writes one batch in a single transaction and reports how many
// rows were new versus overwritten.
func (s *Store) upsertBatch(ctx context.Context, table string, batch []types.Statistic) (inserted, updated int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Count pre-existing keys so insert/update counts are exact; the write
	// lock is held, so no concurrent writer can invalidate the count.
	existing, err := countExistingKeys(ctx, tx, table, batch)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (natural_key, matrix_id, territory_id, time_period_id,
			classification_value_ids, unit_id, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`, table))
	if err != nil {
		return 0, 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range batch {
		row := &batch[i]
		classIDs, err := json.Marshal(classIDsOrEmpty(row.ClassValueIDs))
		if err != nil {
			return 0, 0, fmt.Errorf("encode classification ids: %w", err)
		}
		var value interface{}
		if row.Value != nil {
			value = *row.Value
		}
		if _, err := stmt.ExecContext(ctx,
			row.NaturalKey, row.MatrixID,
			idArg(row.TerritoryID), idArg(row.TimePeriodID),
			string(classIDs), idArg(row.UnitID),
			value, now, now); err != nil {
			return 0, 0, fmt.Errorf("upsert %s: %w", row.NaturalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return len(batch) - existing, existing, nil
}

func countExistingKeys(ctx context.Context, tx *sql.Tx, table string, batch []types.Statistic) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
	args := make([]interface{}, len(batch))
	for i := range batch {
		args[i] = batch[i].NaturalKey
	}
	var n int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE natural_key IN (%s)`, table, placeholders), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count existing keys: %w", err)
	}
	return n, nil
}

// GetStatistic reads one fact row by natural key. Returns nil when absent.
func (s *Store) GetStatistic(ctx context.Context, matrixID, naturalKey string) (*types.Statistic, error) {
	table, err := PartitionTable(matrixID)
	if err != nil {
		return nil, err
	}

	var st types.Statistic
	var territory, period, unit sql.NullInt64
	var value sql.NullFloat64
	var classIDs string
	var createdAt, updatedAt int64

	err = s.readDB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT natural_key, matrix_id, territory_id, time_period_id,
		       classification_value_ids, unit_id, value, created_at, updated_at
		FROM %s WHERE natural_key = ?`, table), naturalKey).Scan(
		&st.NaturalKey, &st.MatrixID, &territory, &period,
		&classIDs, &unit, &value, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select statistic: %w", err)
	}

	if territory.Valid {
		st.TerritoryID = &territory.Int64
	}
	if period.Valid {
		st.TimePeriodID = &period.Int64
	}
	if unit.Valid {
		st.UnitID = &unit.Int64
	}
	if value.Valid {
		st.Value = &value.Float64
	}
	if err := json.Unmarshal([]byte(classIDs), &st.ClassValueIDs); err != nil {
		return nil, fmt.Errorf("store: decode classification ids: %w", err)
	}
	st.CreatedAt = time.Unix(createdAt, 0).UTC()
	st.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &st, nil
}

// CountStatistics returns the number of fact rows in a matrix's partition.
func (s *Store) CountStatistics(ctx context.Context, matrixID string) (int64, error) {
	table, err := PartitionTable(matrixID)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.readDB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count statistics: %w", err)
	}
	return n, nil
}

func classIDsOrEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
