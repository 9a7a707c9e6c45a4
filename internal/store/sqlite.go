package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iammorganparry/clive/apps/recall/internal/config"
)

// ErrNotFound is returned when an update or delete targets a missing row.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sqlx.DB
	mode config.StorageMode
}

const pragmas = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON"

// Open creates or opens the database for the given storage mode. File mode
// creates the parent directory of dbPath; memory mode ignores dbPath and
// keeps everything for the lifetime of the returned DB.
func Open(mode config.StorageMode, dbPath string) (*DB, error) {
	var dsn string
	switch mode {
	case config.StorageMemory:
		dsn = fmt.Sprintf("file:recall-%s?mode=memory&cache=shared&_foreign_keys=ON", uuid.NewString())
	case config.StorageSQLite, "":
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = dbPath + "?" + pragmas
		mode = config.StorageSQLite
	default:
		return nil, &config.Error{Key: "storage mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, mode: mode}, nil
}

// Mode reports which storage mode the database was opened with.
func (db *DB) Mode() config.StorageMode {
	return db.mode
}

func initSchema(db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  importance TEXT NOT NULL DEFAULT 'medium',
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS active_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  filename TEXT NOT NULL UNIQUE,
  action TEXT NOT NULL,
  importance TEXT NOT NULL DEFAULT 'medium',
  metadata TEXT,
  last_accessed TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_active_files_last_accessed ON active_files(last_accessed);

CREATE TABLE IF NOT EXISTS milestones (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  importance TEXT NOT NULL DEFAULT 'medium',
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  content TEXT NOT NULL,
  reasoning TEXT NOT NULL DEFAULT '',
  importance TEXT NOT NULL DEFAULT 'medium',
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS requirements (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  content TEXT NOT NULL,
  importance TEXT NOT NULL DEFAULT 'medium',
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  actor TEXT NOT NULL,
  action TEXT NOT NULL,
  content TEXT NOT NULL,
  context TEXT NOT NULL DEFAULT '',
  importance TEXT NOT NULL DEFAULT 'low',
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at);

CREATE TABLE IF NOT EXISTS code_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL UNIQUE,
  language TEXT NOT NULL,
  size INTEGER NOT NULL DEFAULT 0,
  last_indexed TIMESTAMP NOT NULL,
  created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS code_snippets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL,
  symbol_name TEXT NOT NULL,
  symbol_kind TEXT NOT NULL,
  start_line INTEGER NOT NULL,
  end_line INTEGER NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  FOREIGN KEY (file_id) REFERENCES code_files(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_code_snippets_file_id ON code_snippets(file_id);

CREATE TABLE IF NOT EXISTS fingerprints (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  content_id TEXT NOT NULL,
  content_type TEXT NOT NULL,
  vector BLOB NOT NULL,
  metadata TEXT,
  created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_content ON fingerprints(content_type, content_id);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema changes. Each migration is
// idempotent so it is safe to call on every database open.
func runMigrations(db *sqlx.DB) error {
	// v1: fingerprints record their dimension count explicitly.
	hasDims, err := columnExists(db, "fingerprints", "dimensions")
	if err != nil {
		return fmt.Errorf("check dimensions column: %w", err)
	}
	if !hasDims {
		migrations := []string{
			`ALTER TABLE fingerprints ADD COLUMN dimensions INTEGER NOT NULL DEFAULT 0`,
			`UPDATE fingerprints SET dimensions = length(vector) / 4`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v1: %w", err)
			}
		}
	}

	// v2: snippets carry their own language so message-derived snippets
	// can differ from the synthetic file they hang off.
	hasLang, err := columnExists(db, "code_snippets", "language")
	if err != nil {
		return fmt.Errorf("check language column: %w", err)
	}
	if !hasLang {
		migrations := []string{
			`ALTER TABLE code_snippets ADD COLUMN language TEXT NOT NULL DEFAULT 'text'`,
			`UPDATE code_snippets SET language = (SELECT language FROM code_files WHERE code_files.id = code_snippets.file_id)`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v2: %w", err)
			}
		}
	}

	return nil
}

// Counts returns the number of rows in each domain table, keyed by table name.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	tables := []string{"messages", "active_files", "milestones", "decisions", "requirements", "episodes", "code_files", "code_snippets", "fingerprints"}
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+t); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}

// columnExists checks if a column exists in a table. It closes the rows
// cursor before returning, avoiding deadlocks with MaxOpenConns(1).
func columnExists(db *sqlx.DB, table, column string) (bool, error) {
	var names []string
	err := db.Select(&names,
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE name = ?", table),
		column,
	)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}
