// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/iim0663418/cardstore/internal/fingerprint"
	"github.com/iim0663418/cardstore/internal/types"

	// Import SQLite driver
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Convert :memory: to shared memory URL for consistent behavior across connections
	dbPath := path
	if path == ":memory:" {
		dbPath = "file::memory:?cache=shared"
	}

	// Ensure directory exists (skip for memory databases)
	if !strings.Contains(dbPath, ":memory:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for concurrency, foreign keys on, busy timeout so parallel writers
	// wait for locks instead of failing immediately
	connStr := dbPath
	if strings.Contains(dbPath, "?") {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	return &SQLiteStorage{db: db, dbPath: absPath}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// GetCard retrieves a card by ID. Returns nil, nil when the card does not exist.
func (s *SQLiteStorage) GetCard(ctx context.Context, id string) (*types.CardRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, fields, created_at, modified_at, version
		FROM cards WHERE id = ?
	`, id)

	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return card, nil
}

// PutCard inserts or replaces a card. The fingerprint column is recomputed
// on every write so the index never serves stale normalization rules.
func (s *SQLiteStorage) PutCard(ctx context.Context, card *types.CardRecord) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}

	fieldsJSON, err := json.Marshal(card.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields for %s: %w", card.ID, err)
	}

	fp := fingerprint.Generate(card.Fields)
	fpValue := fp.Value
	if fp.Degraded {
		// Degraded fingerprints are unique per call; indexing them would
		// produce phantom duplicate groups
		fpValue = ""
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (id, kind, fields, fingerprint, created_at, modified_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			fields = excluded.fields,
			fingerprint = excluded.fingerprint,
			modified_at = excluded.modified_at,
			version = excluded.version
	`, card.ID, string(card.Kind), string(fieldsJSON), fpValue, card.CreatedAt, card.ModifiedAt, card.Version)
	if err != nil {
		return fmt.Errorf("failed to put card %s: %w", card.ID, err)
	}
	return nil
}

// DeleteCard removes a card and (via cascade) its version history
func (s *SQLiteStorage) DeleteCard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete card %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// ListCards returns all cards ordered by ID for stable output
func (s *SQLiteStorage) ListCards(ctx context.Context) ([]*types.CardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fields, created_at, modified_at, version
		FROM cards ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// FindByFingerprint returns all cards sharing a content fingerprint
func (s *SQLiteStorage) FindByFingerprint(ctx context.Context, fp string) ([]*types.CardRecord, error) {
	if fp == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fields, created_at, modified_at, version
		FROM cards WHERE fingerprint = ? ORDER BY modified_at DESC
	`, fp)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint index: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// SetMetadata stores an internal key-value pair
func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata retrieves an internal key-value pair. Missing keys return "".
func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// scanner abstracts sql.Row and sql.Rows for card scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row scanner) (*types.CardRecord, error) {
	var card types.CardRecord
	var kind, fieldsJSON string

	if err := row.Scan(&card.ID, &kind, &fieldsJSON, &card.CreatedAt, &card.ModifiedAt, &card.Version); err != nil {
		return nil, err
	}

	card.Kind = types.CardKind(kind)
	if err := json.Unmarshal([]byte(fieldsJSON), &card.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields for %s: %w", card.ID, err)
	}
	return &card, nil
}

func collectCards(rows *sql.Rows) ([]*types.CardRecord, error) {
	var cards []*types.CardRecord
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}
