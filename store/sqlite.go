// ABOUTME: SQLite row store for threads, thread messages, and builds.
// ABOUTME: Each write touches rows of a single thread or build; messages are append-only.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// SQLite is the durable store.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			shape_ids TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS threads_page_updated ON threads(page_id, updated_at);

		CREATE TABLE IF NOT EXISTS thread_messages (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq),
			FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			status TEXT NOT NULL,
			plan TEXT,
			selected_shapes TEXT NOT NULL DEFAULT '[]',
			result TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			completed_at TEXT
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateThread inserts a thread together with its initial messages.
func (s *SQLite) CreateThread(ctx context.Context, t Thread) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	shapes, err := encodeIDs(t.ShapeIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO threads (id, page_id, shape_ids, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.PageID, shapes, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	if err := insertMessages(ctx, tx, t.ID, 0, t.Messages, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendMessages adds msgs to the end of a thread and bumps its updated_at.
func (s *SQLite) AppendMessages(ctx context.Context, threadID string, msgs ...Message) error {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, formatTime(now), threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM thread_messages WHERE thread_id = ?`, threadID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	if err := insertMessages(ctx, tx, threadID, next, msgs, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, threadID string, seq int, msgs []Message, now time.Time) error {
	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO thread_messages (thread_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			threadID, seq, string(m.Role), m.Content, formatTime(ts),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		seq++
	}
	return nil
}

// GetThread loads a thread and its messages in order.
func (s *SQLite) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, page_id, shape_ids, created_at, updated_at FROM threads WHERE id = ?`, id)
	return s.loadThread(ctx, row)
}

// LatestThreadForPage returns the most recently updated thread of a page.
func (s *SQLite) LatestThreadForPage(ctx context.Context, pageID string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, page_id, shape_ids, created_at, updated_at FROM threads
		 WHERE page_id = ? ORDER BY updated_at DESC, rowid DESC LIMIT 1`, pageID)
	return s.loadThread(ctx, row)
}

func (s *SQLite) loadThread(ctx context.Context, row *sql.Row) (*Thread, error) {
	var t Thread
	var shapes, created, updated string
	if err := row.Scan(&t.ID, &t.PageID, &shapes, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	t.ShapeIDs = decodeIDs(shapes)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM thread_messages WHERE thread_id = ? ORDER BY seq`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	t.Messages = []Message{}
	for rows.Next() {
		var m Message
		var role, ts string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.Timestamp = parseTime(ts)
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &t, nil
}

// CreateBuild inserts a new build row.
func (s *SQLite) CreateBuild(ctx context.Context, b Build) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	shapes, err := encodeIDs(b.SelectedShapes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO builds (id, page_id, status, plan, selected_shapes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.PageID, string(b.Status), nullString(b.Plan), shapes, formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// GetBuild loads one build.
func (s *SQLite) GetBuild(ctx context.Context, id string) (*Build, error) {
	var b Build
	var status, shapes, created string
	var plan, result, errText, completed sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, page_id, status, plan, selected_shapes, result, error, created_at, completed_at
		 FROM builds WHERE id = ?`, id,
	).Scan(&b.ID, &b.PageID, &status, &plan, &shapes, &result, &errText, &created, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan build: %w", err)
	}
	b.Status = BuildStatus(status)
	b.Plan = plan.String
	b.Result = result.String
	b.Error = errText.String
	b.SelectedShapes = decodeIDs(shapes)
	b.CreatedAt = parseTime(created)
	if completed.Valid {
		t := parseTime(completed.String)
		b.CompletedAt = &t
	}
	return &b, nil
}

// UpdateBuild applies u to a build.
func (s *SQLite) UpdateBuild(ctx context.Context, id string, u BuildUpdate) error {
	var completed any
	if u.Complete {
		completed = formatTime(s.now())
	}
	var status any
	if u.Status != "" {
		status = string(u.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET
			status = COALESCE(?, status),
			plan = COALESCE(?, plan),
			result = COALESCE(?, result),
			error = COALESCE(?, error),
			completed_at = COALESCE(?, completed_at)
		 WHERE id = ?`,
		status, ptrString(u.Plan), ptrString(u.Result), ptrString(u.Error), completed, id,
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	return nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(s string) []string {
	ids := []string{}
	_ = json.Unmarshal([]byte(s), &ids)
	return ids
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptrString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
