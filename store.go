package pagekit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// PageStore persists the singleton PageData document.
//
// Load returns the stored document as a JSON object exactly as it was
// last written, so fields added to PageData after it was saved show up as
// absent and get their defaults from MergePageData.
type PageStore interface {
	Load(ctx context.Context) (doc json.RawMessage, found bool, err error)
	Save(ctx context.Context, p PageData) error
	Ping(ctx context.Context) error
	Close() error
}

const pageDocumentKey = "page-data"

// SQLiteStore keeps the page document in a local SQLite database. It is
// used when no MONGO_URI is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path, ensures the
// data directory exists, and runs schema migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the public GET (which also writes) run alongside admin saves;
	// busy_timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`)
	return err
}

// currentStoreVersion is the latest table layout. Increment when adding migrations.
const currentStoreVersion = 1

// migrate applies incremental table migrations based on a version stored
// in the settings table.
func (s *SQLiteStore) migrate() error {
	verStr, err := s.getSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}

	if version < 1 {
		version = 1
	}

	if version != currentStoreVersion {
		return fmt.Errorf("unknown schema version %d", version)
	}
	return s.setSetting("schema_version", strconv.Itoa(version))
}

func (s *SQLiteStore) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) setSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Load returns the stored page document, or found=false if none exists.
func (s *SQLiteStore) Load(ctx context.Context) (json.RawMessage, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, pageDocumentKey).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(body), true, nil
}

// Save upserts the page document.
func (s *SQLiteStore) Save(ctx context.Context, p PageData) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
		pageDocumentKey, string(body), p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// saveRaw writes body verbatim. Tests use it to seed documents written by
// older versions of the schema.
func (s *SQLiteStore) saveRaw(ctx context.Context, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
		pageDocumentKey, body, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
