package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
)

// Run is one batch regeneration. Documents is the ordered list the run was
// started with; a resumed run replays exactly this list.
type Run struct {
	ID         string
	Documents  []string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// DocResult is the checkpointed outcome of one document within a run.
type DocResult struct {
	DocPath          string
	Success          bool
	Error            string
	OutlineTokens    int
	DocTokens        int
	Duration         time.Duration
	ValidationStatus string
	RecordedAt       time.Time
}

// CheckpointStore persists batch runs so an interrupted run can resume.
type CheckpointStore interface {
	// CreateRun starts a new run over docs.
	CreateRun(ctx context.Context, docs []string) (*Run, error)

	// LoadRun returns the run with the given ID or ErrRunNotFound.
	LoadRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// RecordResult upserts the result of one document.
	RecordResult(ctx context.Context, runID string, r DocResult) error

	// CompletedResults returns every result recorded for the run, keyed by document.
	CompletedResults(ctx context.Context, runID string) (map[string]DocResult, error)

	// FinishRun marks the run with a terminal status.
	FinishRun(ctx context.Context, runID, status string) error

	Close() error
}
