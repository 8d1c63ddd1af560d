package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("DB")

// Store wraps the SQLite connection and is passed by injection to every
// component that persists state. There is deliberately no package-level
// singleton: each test opens its own store against t.TempDir().
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// all pending migrations.
func Open(path string) (*Store, error) {
	if err := ensureDatabaseDirectory(path); err != nil {
		return nil, err
	}

	// WAL mode, foreign keys, and a busy timeout for the single-writer pool
	dsn := path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=-64000"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("database initialized")

	return &Store{db: conn}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for callers with one-off queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureDatabaseDirectory creates the directory for the database file if it doesn't exist
func ensureDatabaseDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		logger.Info().Str("dir", dir).Msg("created database directory")
	}
	return nil
}

// Transaction executes a function within a database transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
