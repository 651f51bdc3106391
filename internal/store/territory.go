package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/statsync/statsync/pkg/types"
)

const territoryColumns = `id, code, siruta_code, level, parent_id, path, name_ro, COALESCE(name_en, '')`

func scanTerritory(row *sql.Row) (*types.Territory, error) {
	var t types.Territory
	var siruta, path sql.NullString
	var parent sql.NullInt64
	err := row.Scan(&t.ID, &t.Code, &siruta, &t.Level, &parent, &path, &t.NameRO, &t.NameEN)
	if err != nil {
		return nil, err
	}
	t.SirutaCode = siruta.String
	t.Path = path.String
	if parent.Valid {
		t.ParentID = &parent.Int64
	}
	return &t, nil
}

// GetTerritoryByCode looks up a territory by its primary code (RO, RO1, CJ,
// or a SIRUTA code used as primary code at LAU level).
func (s *Store) GetTerritoryByCode(ctx context.Context, code string) (*types.Territory, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+territoryColumns+` FROM territories WHERE code = ?`, code)
	t, err := scanTerritory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: territory by code %q: %w", code, err)
	}
	return t, nil
}

// GetTerritoryBySiruta looks up a territory by its external SIRUTA code.
func (s *Store) GetTerritoryBySiruta(ctx context.Context, siruta string) (*types.Territory, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+territoryColumns+` FROM territories WHERE siruta_code = ?`, siruta)
	t, err := scanTerritory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: territory by siruta %q: %w", siruta, err)
	}
	return t, nil
}

// CountTerritories returns the number of seeded territories.
func (s *Store) CountTerritories(ctx context.Context) (int64, error) {
	var n int64
	err := s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM territories`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count territories: %w", err)
	}
	return n, nil
}

// LoadTerritorySeed loads the territory table from a seed CSV with columns
// id, code, siruta_code, level, parent_code, name_ro (extra columns are
// ignored). Rows are sorted parent-first in the seed, so paths resolve in one
// pass. The load is idempotent: existing codes are left untouched.
func (s *Store) LoadTerritorySeed(ctx context.Context, csvPath string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("store: open territory seed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("store: read seed header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"id", "code", "level", "parent_code", "name_ro"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("store: seed file missing column %q", required)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin seed tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO territories (id, code, siruta_code, level, parent_id, path, name_ro)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare seed insert: %w", err)
	}
	defer stmt.Close()

	// code -> (id, path), filled as parent rows are seen.
	type seeded struct {
		id   int64
		path string
	}
	byCode := map[string]seeded{}

	loaded := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("store: read seed row: %w", err)
		}

		id, err := strconv.ParseInt(rec[col["id"]], 10, 64)
		if err != nil {
			return loaded, fmt.Errorf("store: bad territory id %q: %w", rec[col["id"]], err)
		}
		code := rec[col["code"]]
		level := rec[col["level"]]
		nameRO := rec[col["name_ro"]]
		var siruta string
		if i, ok := col["siruta_code"]; ok {
			siruta = rec[i]
		}

		var parentID interface{}
		path := code
		if pc := rec[col["parent_code"]]; pc != "" {
			parent, ok := byCode[pc]
			if !ok {
				return loaded, fmt.Errorf("store: seed row %q references unknown parent %q", code, pc)
			}
			parentID = parent.id
			path = parent.path + "." + code
		}

		if _, err := stmt.ExecContext(ctx, id, code, nullIfEmpty(siruta), level, parentID, path, nameRO); err != nil {
			return loaded, fmt.Errorf("store: insert territory %q: %w", code, err)
		}
		byCode[code] = seeded{id: id, path: path}
		loaded++
	}

	if err := tx.Commit(); err != nil {
		return loaded, fmt.Errorf("store: commit seed: %w", err)
	}
	committed = true
	return loaded, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
