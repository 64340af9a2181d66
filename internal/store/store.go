// Package store persists the conversation transcript so a restart can
// warm the working history and mood.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/normanking/cortexcompanion/internal/history"
)

// TranscriptStore persists turns as they complete. The working history
// buffer stays in memory; this is the durable copy.
type TranscriptStore interface {
	SaveTurn(ctx context.Context, turn history.Turn) error
	RecentTurns(ctx context.Context, limit int) ([]history.Turn, error)
	SaveMood(ctx context.Context, accumulator float64) error
	LoadMood(ctx context.Context) (float64, error)
	Clear(ctx context.Context) error
	Close() error
}

// SQLiteStore implements TranscriptStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// runs migrations. The parent directory is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at DESC);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value REAL NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveTurn appends one turn to the transcript.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn history.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (role, content, created_at) VALUES (?, ?, ?)`,
		string(turn.Role), turn.Content, ts,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit turns in chronological order.
func (s *SQLiteStore) RecentTurns(ctx context.Context, limit int) ([]history.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		var (
			role    string
			content string
			created time.Time
		)
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, history.Turn{
			Role:      history.Role(role),
			Content:   content,
			Timestamp: created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// Newest first in the query, oldest first for the caller.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveMood persists the mood accumulator.
func (s *SQLiteStore) SaveMood(ctx context.Context, accumulator float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES ('mood', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		accumulator,
	)
	if err != nil {
		return fmt.Errorf("save mood: %w", err)
	}
	return nil
}

// LoadMood returns the persisted accumulator, or zero when none exists.
func (s *SQLiteStore) LoadMood(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value float64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = 'mood'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load mood: %w", err)
	}
	return value, nil
}

// Clear wipes the transcript and persisted state.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state`); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
