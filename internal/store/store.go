package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database behind the ingestion engine. It keeps a
// single-writer connection (WAL mode) for all mutations and a small read pool
// for lookups, mirroring SQLite's one-writer concurrency model.
type Store struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

// Options tunes store construction.
type Options struct {
	// ReadPoolSize is the maximum number of concurrent read connections.
	ReadPoolSize int
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{ReadPoolSize: 4}
}

// Open opens (creating if needed) the statsync database at dbPath and applies
// the schema.
func Open(dbPath string, opts Options) (*Store, error) {
	if opts.ReadPoolSize <= 0 {
		opts.ReadPoolSize = DefaultOptions().ReadPoolSize
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(opts.ReadPoolSize)
	readDB.SetMaxIdleConns(opts.ReadPoolSize)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("store: failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// WriteDB exposes the single-writer connection for components owning their
// own tables (checkpoint store).
func (s *Store) WriteDB() *sql.DB { return s.db }

// ReadDB exposes the read pool.
func (s *Store) ReadDB() *sql.DB { return s.readDB }

// Ping verifies both connections are usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: write connection: %w", err)
	}
	if err := s.readDB.PingContext(ctx); err != nil {
		return fmt.Errorf("store: read connection: %w", err)
	}
	return nil
}

// Close closes both database connections.
func (s *Store) Close() error {
	var firstErr error
	if err := s.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
