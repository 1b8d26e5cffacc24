// Package store provides the SQLite persistence layer for notes, tags,
// chunk embeddings, and the FTS5 lexical index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps a single SQLite connection. A Store is effectively
// single-owner: the pool is capped at one connection so all operations
// serialize on it. Callers that need concurrent access open a fresh Store
// on the same database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path, loads sqlite-vec, and
// initialises the schema and FTS index. It fails if the sqlite-vec
// extension is not available, since vector search cannot degrade.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The store contract is a single-owner handle; one connection keeps
	// SQLite writes serialized and transaction state unambiguous.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initialise(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a private in-memory database for testing.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: ":memory:"}
	if err := s.initialise(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialise() error {
	var vecVersion string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec is required for vector search but could not be loaded: %w", err)
	}
	slog.Debug("sqlite-vec loaded", "version", vecVersion)

	if err := s.migrateLegacyEmbeddings(); err != nil {
		return err
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := s.migrateFavouriteColumn(); err != nil {
		return err
	}
	return s.initFTS()
}

// migrateLegacyEmbeddings drops a pre-blob note_embeddings table that stored
// vectors as JSON text. Those vectors cannot be converted; embeddings must be
// regenerated, which callers observe as an empty index.
func (s *Store) migrateLegacyEmbeddings() error {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM pragma_table_info('note_embeddings') WHERE name = 'vector_json'").Scan(&one)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspecting note_embeddings schema: %w", err)
	}

	slog.Info("migrating embeddings from TEXT to BLOB format, re-index required")
	if _, err := s.db.Exec("DROP TABLE note_embeddings"); err != nil {
		return fmt.Errorf("dropping legacy note_embeddings: %w", err)
	}
	return nil
}

// migrateFavouriteColumn adds is_favourite for databases created before the
// column existed.
func (s *Store) migrateFavouriteColumn() error {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM pragma_table_info('notes') WHERE name = 'is_favourite'").Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("inspecting notes schema: %w", err)
	}

	slog.Info("adding is_favourite column to notes")
	if _, err := s.db.Exec("ALTER TABLE notes ADD COLUMN is_favourite INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding is_favourite column: %w", err)
	}
	return nil
}

// initFTS creates the FTS5 table and sync triggers, and populates the index
// from existing notes when the table did not exist yet.
func (s *Store) initFTS() error {
	var newlyCreated bool
	if rows, err := s.db.Query("SELECT * FROM notes_fts LIMIT 0"); err != nil {
		newlyCreated = true
		slog.Info("FTS5 index not found, creating and populating")
	} else {
		rows.Close()
	}

	if _, err := s.db.Exec(ftsSQL); err != nil {
		return fmt.Errorf("creating FTS index: %w", err)
	}
	if newlyCreated {
		if _, err := s.db.Exec("INSERT INTO notes_fts(notes_fts) VALUES('rebuild')"); err != nil {
			return fmt.Errorf("rebuilding FTS index: %w", err)
		}
	}
	return nil
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
