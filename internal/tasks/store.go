// Package tasks keeps a local ledger of the export operations submitted to the
// remote platform.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("task not found")

// Task is one submitted export.
type Task struct {
	Name        string    `csv:"operation"`
	Description string    `csv:"description"`
	Product     string    `csv:"product"`
	Window      string    `csv:"window"`
	Destination string    `csv:"destination"`
	RequestID   string    `csv:"request_id"`
	State       string    `csv:"state"`
	Error       string    `csv:"error"`
	CreatedAt   time.Time `csv:"created_at"`
	UpdatedAt   time.Time `csv:"updated_at"`
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS export_tasks (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	product     TEXT NOT NULL,
	time_window TEXT NOT NULL,
	destination TEXT NOT NULL,
	request_id  TEXT NOT NULL,
	state       TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS export_tasks_state ON export_tasks (state)`,
}

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts a task or replaces the mutable fields of an existing one.
func (s *Store) Save(ctx context.Context, t Task) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO export_tasks (
	name, description, product, time_window, destination, request_id, state, error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
	state = excluded.state,
	error = excluded.error,
	updated_at = excluded.updated_at
`,
		t.Name,
		t.Description,
		t.Product,
		t.Window,
		t.Destination,
		t.RequestID,
		t.State,
		t.Error,
		t.CreatedAt.UnixMilli(),
		t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.Name, err)
	}
	return nil
}

// UpdateState records the latest state reported by the platform.
func (s *Store) UpdateState(ctx context.Context, name, state, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE export_tasks SET state = ?, error = ?, updated_at = ? WHERE name = ?
`, state, errMsg, s.now().UTC().UnixMilli(), name)
	if err != nil {
		return fmt.Errorf("update task %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (Task, error) {
	row := s.db.QueryRowContext(ctx, selectTasks+` WHERE name = ?`, name)
	t, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", name, err)
	}
	return t, nil
}

// List returns tasks oldest first, restricted to states when any is given.
func (s *Store) List(ctx context.Context, states ...string) ([]Task, error) {
	query := selectTasks
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (?` + strings.Repeat(`, ?`, len(states)-1) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

const selectTasks = `
SELECT name, description, product, time_window, destination, request_id, state, error, created_at, updated_at
FROM export_tasks`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Task, error) {
	var t Task
	var created, updated int64
	err := row.Scan(
		&t.Name,
		&t.Description,
		&t.Product,
		&t.Window,
		&t.Destination,
		&t.RequestID,
		&t.State,
		&t.Error,
		&created,
		&updated,
	)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return t, nil
}
