package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/statsync/statsync/pkg/types"
)

// GetOrCreateTimePeriod returns the id of the canonical time period matching
// p's (year, quarter, month, periodicity), creating the row on first sight.
// Concurrent creators converge via insert-or-ignore on the unique key.
func (s *Store) GetOrCreateTimePeriod(ctx context.Context, p *types.TimePeriod) (int64, error) {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO time_periods (year, quarter, month, periodicity, label, period_start, period_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Year, p.Quarter, p.Month, string(p.Periodicity), p.Label,
		p.PeriodStart.Unix(), p.PeriodEnd.Unix())
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: insert time period: %w", err)
	}

	var id int64
	err = s.readDB.QueryRowContext(ctx, `
		SELECT id FROM time_periods
		WHERE year = ? AND quarter = ? AND month = ? AND periodicity = ?`,
		p.Year, p.Quarter, p.Month, string(p.Periodicity)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: select time period: %w", err)
	}
	return id, nil
}

// GetOrCreateClassificationType returns the id of the classification type
// with the given code, creating it named after the code on first sight.
func (s *Store) GetOrCreateClassificationType(ctx context.Context, code, name string) (int64, error) {
	if name == "" {
		name = code
	}
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO classification_types (code, name) VALUES (?, ?)`, code, name)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: insert classification type: %w", err)
	}

	var id int64
	err = s.readDB.QueryRowContext(ctx,
		`SELECT id FROM classification_types WHERE code = ?`, code).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: select classification type: %w", err)
	}
	return id, nil
}

// GetClassificationValue looks up a value under a type by normalized name.
// Returns nil when absent.
func (s *Store) GetClassificationValue(ctx context.Context, typeID int64, normalizedName string) (*types.ClassificationValue, error) {
	var v types.ClassificationValue
	var code sql.NullString
	var parent sql.NullInt64
	err := s.readDB.QueryRowContext(ctx, `
		SELECT id, type_id, COALESCE(code, ''), name, parent_id
		FROM classification_values WHERE type_id = ? AND normalized_name = ?`,
		typeID, normalizedName).Scan(&v.ID, &v.TypeID, &code, &v.Name, &parent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select classification value: %w", err)
	}
	v.Code = code.String
	if parent.Valid {
		v.ParentID = &parent.Int64
	}
	return &v, nil
}

// GetOrCreateClassificationValue returns the id of the classification value
// with the given normalized name under typeID, creating it on first sight.
// parentID may be nil for flat types or root values.
func (s *Store) GetOrCreateClassificationValue(ctx context.Context, typeID int64, name, normalizedName string, parentID *int64) (int64, error) {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO classification_values (type_id, name, normalized_name, parent_id)
		VALUES (?, ?, ?, ?)`,
		typeID, name, normalizedName, parentArg(parentID))
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: insert classification value: %w", err)
	}

	var id int64
	err = s.readDB.QueryRowContext(ctx, `
		SELECT id FROM classification_values WHERE type_id = ? AND normalized_name = ?`,
		typeID, normalizedName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: select classification value: %w", err)
	}
	return id, nil
}

// GetOrCreateUnit returns the id of the unit of measure with the given
// normalized name, creating it on first sight.
func (s *Store) GetOrCreateUnit(ctx context.Context, name, normalizedName string) (int64, error) {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO units_of_measure (name, normalized_name) VALUES (?, ?)`,
		name, normalizedName)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: insert unit: %w", err)
	}

	var id int64
	err = s.readDB.QueryRowContext(ctx,
		`SELECT id FROM units_of_measure WHERE normalized_name = ?`, normalizedName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: select unit: %w", err)
	}
	return id, nil
}

func parentArg(parentID *int64) interface{} {
	if parentID == nil {
		return nil
	}
	return *parentID
}
