// Package store provides the SQLite-backed relational store for canonical
// entities, label mappings, sync checkpoints, and matrix fact partitions.
package store

// Schema contains the SQL definitions for the statsync database. Fact
// partitions (statistics_<matrix>) are intentionally absent: they are
// provisioned out of band per matrix, and ingestion fails fast when one is
// missing.

// CreateTerritoriesTableSQL creates the territory reference table. Rows are
// seeded externally and read-only for this engine.
const CreateTerritoriesTableSQL = `
CREATE TABLE IF NOT EXISTS territories (
    id INTEGER PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    siruta_code TEXT,
    level TEXT NOT NULL,
    parent_id INTEGER,
    path TEXT,
    name_ro TEXT NOT NULL,
    name_en TEXT,
    FOREIGN KEY (parent_id) REFERENCES territories(id)
)`

// CreateTimePeriodsTableSQL creates the time period table. Quarter and month
// are 0 (not NULL) when inapplicable so the uniqueness constraint holds.
const CreateTimePeriodsTableSQL = `
CREATE TABLE IF NOT EXISTS time_periods (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    year INTEGER NOT NULL,
    quarter INTEGER NOT NULL DEFAULT 0,
    month INTEGER NOT NULL DEFAULT 0,
    periodicity TEXT NOT NULL,
    label TEXT NOT NULL,
    period_start INTEGER NOT NULL,
    period_end INTEGER NOT NULL,
    UNIQUE (year, quarter, month, periodicity)
)`

// CreateClassificationTypesTableSQL creates the classification type table.
const CreateClassificationTypesTableSQL = `
CREATE TABLE IF NOT EXISTS classification_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
)`

// CreateClassificationValuesTableSQL creates the classification value table.
// Values are created on demand under a type; normalized_name carries the
// dedup key within the type.
const CreateClassificationValuesTableSQL = `
CREATE TABLE IF NOT EXISTS classification_values (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type_id INTEGER NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    parent_id INTEGER,
    UNIQUE (type_id, normalized_name),
    FOREIGN KEY (type_id) REFERENCES classification_types(id),
    FOREIGN KEY (parent_id) REFERENCES classification_values(id)
)`

// CreateUnitsTableSQL creates the unit of measure table.
const CreateUnitsTableSQL = `
CREATE TABLE IF NOT EXISTS units_of_measure (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL UNIQUE
)`

// CreateLabelMappingsTableSQL creates the durable resolution cache and audit
// trail. The unique key makes concurrent resolution attempts converge on the
// first-ever recorded outcome per (label, context, hint).
const CreateLabelMappingsTableSQL = `
CREATE TABLE IF NOT EXISTS label_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    normalized_label TEXT NOT NULL,
    context_type TEXT NOT NULL,
    context_hint TEXT NOT NULL DEFAULT '',
    territory_id INTEGER,
    time_period_id INTEGER,
    classification_value_id INTEGER,
    unit_id INTEGER,
    method TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    unresolvable INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    UNIQUE (normalized_label, context_type, context_hint)
)`

// CreateSyncCheckpointsTableSQL creates the per-chunk checkpoint table.
// The chunk signature can exceed index key-size limits by a wide margin, so
// the primary key uses its fixed-length content hash; the signature itself is
// stored snappy-compressed, unindexed, for audit.
const CreateSyncCheckpointsTableSQL = `
CREATE TABLE IF NOT EXISTS sync_checkpoints (
    matrix_id TEXT NOT NULL,
    chunk_hash TEXT NOT NULL,
    chunk_signature BLOB NOT NULL,
    row_count INTEGER NOT NULL,
    last_synced_at INTEGER NOT NULL,
    PRIMARY KEY (matrix_id, chunk_hash)
)`

// CreateIndexesSQL creates secondary indexes for hot lookups.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_territories_siruta ON territories(siruta_code)
		WHERE siruta_code IS NOT NULL AND siruta_code != ''`,
	`CREATE INDEX IF NOT EXISTS idx_class_values_type ON classification_values(type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_matrix ON sync_checkpoints(matrix_id)`,
}

// AllSchemaSQL returns all schema statements in dependency order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateTerritoriesTableSQL,
		CreateTimePeriodsTableSQL,
		CreateClassificationTypesTableSQL,
		CreateClassificationValuesTableSQL,
		CreateUnitsTableSQL,
		CreateLabelMappingsTableSQL,
		CreateSyncCheckpointsTableSQL,
	}
	return append(stmts, CreateIndexesSQL...)
}
