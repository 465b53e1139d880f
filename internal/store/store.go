// Package store persists recipes and their classification metadata in
// SQLite. Metadata is stored as one JSON document per recipe (the whole
// RecipeClassificationRecord) and replaced atomically on write; queries
// descend into the per-step array with json1. This trades some query
// expressiveness for atomic versioned writes and immunity to index-drift
// between a steps table and a metadata table.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"mise/internal/logging"
)

// Store owns the SQLite database. It implements both the recipe-store
// boundary consumed by the orchestrator and the metadata store exposed to
// downstream features.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}
	// Metadata deletion cascades from recipe deletion.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to enable foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("store initialized at %s", path)
	return s, nil
}

// initialize creates the required tables and indexes.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cuisine TEXT NOT NULL DEFAULT '',
		declared_difficulty TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS instruction_steps (
		recipe_id TEXT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
		step_index INTEGER NOT NULL,
		step_text TEXT NOT NULL,
		PRIMARY KEY (recipe_id, step_index)
	);

	CREATE TABLE IF NOT EXISTS instruction_metadata (
		recipe_id TEXT PRIMARY KEY REFERENCES recipes(id) ON DELETE CASCADE,
		document TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		model_used TEXT NOT NULL,
		confidence REAL NOT NULL,
		generated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metadata_confidence ON instruction_metadata(confidence);
	CREATE INDEX IF NOT EXISTS idx_metadata_schema ON instruction_metadata(schema_version);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
