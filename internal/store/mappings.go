package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	syncerrors "github.com/statsync/statsync/internal/errors"
	"github.com/statsync/statsync/pkg/types"
)

// GetLabelMapping looks up the durable resolution record for a key.
// Returns nil when no outcome has been recorded.
func (s *Store) GetLabelMapping(ctx context.Context, normalizedLabel string, contextType types.ContextType, contextHint string) (*types.LabelMapping, error) {
	var m types.LabelMapping
	var territory, period, classValue, unit sql.NullInt64
	var unresolvable int
	var createdAt int64
	var method string

	err := s.readDB.QueryRowContext(ctx, `
		SELECT id, normalized_label, context_type, context_hint,
		       territory_id, time_period_id, classification_value_id, unit_id,
		       method, confidence, unresolvable, reason, created_at
		FROM label_mappings
		WHERE normalized_label = ? AND context_type = ? AND context_hint = ?`,
		normalizedLabel, string(contextType), contextHint).Scan(
		&m.ID, &m.NormalizedLabel, &m.ContextType, &m.ContextHint,
		&territory, &period, &classValue, &unit,
		&method, &m.Confidence, &unresolvable, &m.Reason, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select label mapping: %w", err)
	}

	m.Method = types.ResolutionMethod(method)
	m.Unresolvable = unresolvable != 0
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	if territory.Valid {
		m.TerritoryID = &territory.Int64
	}
	if period.Valid {
		m.TimePeriodID = &period.Int64
	}
	if classValue.Valid {
		m.ClassValueID = &classValue.Int64
	}
	if unit.Valid {
		m.UnitID = &unit.Int64
	}
	return &m, nil
}

// InsertLabelMapping persists a resolution outcome, including unresolvable
// ones. The insert silently no-ops on a duplicate key so concurrent or
// repeated resolution attempts never error and always converge to the
// first-ever recorded outcome. Returns a DUPLICATE_MAPPING error (benign,
// detectable via errors.IsDuplicateMapping) when the row already existed.
func (s *Store) InsertLabelMapping(ctx context.Context, m *types.LabelMapping) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO label_mappings
			(normalized_label, context_type, context_hint,
			 territory_id, time_period_id, classification_value_id, unit_id,
			 method, confidence, unresolvable, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.NormalizedLabel, string(m.ContextType), m.ContextHint,
		idArg(m.TerritoryID), idArg(m.TimePeriodID), idArg(m.ClassValueID), idArg(m.UnitID),
		string(m.Method), m.Confidence, boolToInt(m.Unresolvable), m.Reason,
		time.Now().Unix())
	s.mu.Unlock()
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCategoryStore, syncerrors.CodeStoreUnavailable,
			"insert label mapping", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if affected == 0 {
		// Expected benign conflict: an equivalent row already exists for this
		// key, written by an earlier call or a concurrent resolver.
		return syncerrors.New(syncerrors.ErrCategoryStore, syncerrors.CodeDuplicateMapping,
			fmt.Sprintf("mapping exists for %s/%s/%q", m.ContextType, m.ContextHint, m.NormalizedLabel))
	}
	return nil
}

// CountLabelMappings returns total and unresolvable mapping counts, for
// operational status.
func (s *Store) CountLabelMappings(ctx context.Context) (total, unresolvable int64, err error) {
	err = s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(unresolvable), 0) FROM label_mappings`).Scan(&total, &unresolvable)
	if err != nil {
		return 0, 0, fmt.Errorf("store: count label mappings: %w", err)
	}
	return total, unresolvable, nil
}

// ListMappingKeys streams every persisted mapping key to fn, in no particular
// order. Used to warm the resolver's negative-lookup prefilter at startup.
func (s *Store) ListMappingKeys(ctx context.Context, fn func(normalizedLabel string, contextType types.ContextType, contextHint string)) error {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT normalized_label, context_type, context_hint FROM label_mappings`)
	if err != nil {
		return fmt.Errorf("store: list mapping keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label, ctxType, hint string
		if err := rows.Scan(&label, &ctxType, &hint); err != nil {
			return fmt.Errorf("store: scan mapping key: %w", err)
		}
		fn(label, types.ContextType(ctxType), hint)
	}
	return rows.Err()
}

// ClearMappings deletes mapping rows for a context type and hint, the
// explicit cache-clearing escape hatch. Normal operation never deletes
// mapping rows.
func (s *Store) ClearMappings(ctx context.Context, contextType types.ContextType, contextHint string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM label_mappings WHERE context_type = ? AND context_hint = ?`,
		string(contextType), contextHint)
	if err != nil {
		return 0, fmt.Errorf("store: clear mappings: %w", err)
	}
	return res.RowsAffected()
}

func idArg(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
