package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ CheckpointStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			documents JSON,
			status TEXT,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS doc_results (
			run_id TEXT,
			doc_path TEXT,
			success INTEGER,
			error TEXT,
			outline_tokens INTEGER,
			doc_tokens INTEGER,
			duration_ms INTEGER,
			validation_status TEXT,
			recorded_at TEXT,
			PRIMARY KEY (run_id, doc_path)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, docs []string) (*Run, error) {
	if docs == nil {
		docs = []string{}
	}
	run := &Run{
		ID:        uuid.NewString(),
		Documents: append([]string(nil), docs...),
		Status:    RunRunning,
		StartedAt: s.now().UTC(),
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, documents, status, started_at, finished_at) VALUES (?, ?, ?, ?, '')`,
		run.ID, string(docsJSON), run.Status, formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, documents, status, started_at, finished_at FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, documents, status, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, r DocResult) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doc_results (run_id, doc_path, success, error, outline_tokens, doc_tokens, duration_ms, validation_status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, doc_path) DO UPDATE SET
			success=excluded.success,
			error=excluded.error,
			outline_tokens=excluded.outline_tokens,
			doc_tokens=excluded.doc_tokens,
			duration_ms=excluded.duration_ms,
			validation_status=excluded.validation_status,
			recorded_at=excluded.recorded_at
	`, runID, r.DocPath, r.Success, r.Error, r.OutlineTokens, r.DocTokens, r.Duration.Milliseconds(), r.ValidationStatus, formatTime(r.RecordedAt))
	return err
}

func (s *SQLiteStore) CompletedResults(ctx context.Context, runID string) (map[string]DocResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_path, success, error, outline_tokens, doc_tokens, duration_ms, validation_status, recorded_at
		FROM doc_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DocResult)
	for rows.Next() {
		var r DocResult
		var durationMS int64
		var recorded string
		if err := rows.Scan(&r.DocPath, &r.Success, &r.Error, &r.OutlineTokens, &r.DocTokens, &durationMS, &r.ValidationStatus, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.RecordedAt = parseTime(recorded)
		out[r.DocPath] = r
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, formatTime(s.now().UTC()), runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var docsJSON, started, finished string
	if err := row.Scan(&run.ID, &docsJSON, &run.Status, &started, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(docsJSON), &run.Documents); err != nil {
		return nil, fmt.Errorf("decode documents of run %s: %w", run.ID, err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
