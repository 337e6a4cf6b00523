package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const SchemaVersion = 1

var schemaSQLite = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	genre TEXT NOT NULL,
	file_name TEXT NOT NULL,
	cover_file TEXT NOT NULL DEFAULT '',
	date_added DATETIME NOT NULL,
	last_read_index INTEGER NOT NULL DEFAULT 0,
	last_read_page INTEGER NOT NULL DEFAULT 0,
	last_read_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_books_file_name ON books(file_name);
CREATE INDEX IF NOT EXISTS idx_books_date_added ON books(date_added);
`

// DB is the catalog database.
type DB struct {
	*sqlx.DB
	path string
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenDB opens the catalog at path, creating the file and its schema when
// missing.
func OpenDB(path string) (*DB, error) {
	create := !Exists(path)

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps concurrent imports from hitting SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path}
	if _, err := db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("optimizing database: %w", err)
	}

	if create {
		if err := db.CreateSchema(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return db, nil
}

func (db *DB) CreateSchema() error {
	if _, err := db.Exec(schemaSQLite); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	if _, err := db.Exec("INSERT INTO schema_info (version) VALUES (?)", SchemaVersion); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}

func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.Get(&version, "SELECT version FROM schema_info LIMIT 1"); err != nil {
		return 0, err
	}
	return version, nil
}

func (db *DB) Path() string {
	return db.path
}
