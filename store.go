package arya

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// historyTimeLayout has a fixed width so created_at sorts as text.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// HistoryKind tells what produced a history entry.
type HistoryKind string

const (
	HistoryUpload  HistoryKind = "upload"
	HistoryPublish HistoryKind = "publish"
	HistoryGallery HistoryKind = "gallery"
	HistoryDelete  HistoryKind = "delete"
)

// HistoryEntry is one recorded upload, publish or delete.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Kind      HistoryKind `json:"kind"`
	Name      string      `json:"name"`
	Path      string      `json:"path,omitempty"`
	URL       string      `json:"url,omitempty"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Store wraps the SQLite database holding settings (the credential backend)
// and the activity history.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the HTTP handlers read settings while a write is in flight;
	// busy_timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS history_created_at ON history (created_at DESC);
`)
	return err
}

// GetSetting returns the value stored under key, or "" when absent.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// RecordHistory stores e, filling ID and CreatedAt when empty.
func (s *Store) RecordHistory(e HistoryEntry) (HistoryEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.Exec(`INSERT INTO history (id, kind, name, path, url, success, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Name, e.Path, e.URL, success, e.Error, e.CreatedAt.UTC().Format(historyTimeLayout))
	if err != nil {
		return e, fmt.Errorf("record history: %w", err)
	}
	return e, nil
}

// ListHistory returns up to limit entries, newest first. An empty kind
// matches every kind.
func (s *Store) ListHistory(kind HistoryKind, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
SELECT id, kind, name, path, url, success, error, created_at FROM history
WHERE ? = '' OR kind = ?
ORDER BY created_at DESC LIMIT ?`, string(kind), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e       HistoryEntry
			kindStr string
			success int
			created string
		)
		if err := rows.Scan(&e.ID, &kindStr, &e.Name, &e.Path, &e.URL, &success, &e.Error, &created); err != nil {
			return nil, err
		}
		e.Kind = HistoryKind(kindStr)
		e.Success = success == 1
		if t, err := time.Parse(historyTimeLayout, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
