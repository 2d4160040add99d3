// Package memorylog is the append-only record of completed novelty checks,
// keyed by (user, project). Appending is an optional side effect of a check;
// a write failure never affects the returned response — callers log and move
// on.
package memorylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Entry struct {
	ID         int64           `db:"id"`
	UserID     string          `db:"user_id"`
	ProjectID  string          `db:"project_id"`
	Kind       string          `db:"kind"`
	Content    json.RawMessage `db:"content"`
	Importance float64         `db:"importance"`
	CreatedAt  time.Time       `db:"-"`
}

const KindNoveltyCheck = "novelty_check"

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	project_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	importance REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_entries_scope
	ON memory_entries (user_id, project_id, created_at);
`

type Store struct {
	db *sqlx.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Kind == "" {
		e.Kind = KindNoveltyCheck
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO memory_entries
		(user_id, project_id, kind, content, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.ProjectID, e.Kind, string(e.Content), e.Importance,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("memory append: %w", err)
	}
	return nil
}

// List returns entries for (user, project), newest first.
func (s *Store) List(ctx context.Context, userID, projectID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, project_id, kind, content, importance, created_at
		FROM memory_entries WHERE user_id = ? AND project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var content, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Kind, &content, &e.Importance, &createdAt); err != nil {
			return nil, fmt.Errorf("memory scan: %w", err)
		}
		e.Content = json.RawMessage(content)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
