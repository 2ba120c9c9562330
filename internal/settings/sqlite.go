package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Keys used in the key-value table.
const (
	keyAPIKey       = "apiKey"
	keySystemPrompt = "systemPrompt"
	keyUserPrompt   = "userPrompt"
	keyFormat       = "format"
	keyHistory      = "history"
)

// SQLiteStore keeps settings as rows of a key-value table.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out Settings
	if s.db == nil {
		return out, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return out, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, fmt.Errorf("scan settings: %w", err)
		}
		switch k {
		case keyAPIKey:
			out.APIKey = v
		case keySystemPrompt:
			out.SystemPrompt = v
		case keyUserPrompt:
			out.UserPrompt = v
		case keyFormat:
			out.Format = v
		case keyHistory:
			if err := json.Unmarshal([]byte(v), &out.History); err != nil {
				return Settings{}, fmt.Errorf("decode history: %w", err)
			}
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, in Settings) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	history, err := json.Marshal(in.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	values := [][2]string{
		{keyAPIKey, in.APIKey},
		{keySystemPrompt, in.SystemPrompt},
		{keyUserPrompt, in.UserPrompt},
		{keyFormat, in.Format},
		{keyHistory, string(history)},
	}
	for _, kv := range values {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save %s: %w", kv[0], err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*FileStore)(nil)
