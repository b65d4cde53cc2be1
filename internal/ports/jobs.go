package ports

import (
	"context"
	"encoding/json"
	"time"
)

type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is a fire-and-forget unit of background work. Handlers must be
// idempotent: a job may run more than once.
type Job struct {
	Kind    string
	Payload any
	RunAt   time.Time
}

type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}

type JobRecord struct {
	ID          uint64
	Kind        string
	Payload     json.RawMessage
	State       JobState
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type JobStore interface {
	JobQueue
	// ClaimDue moves up to limit due pending jobs to running.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]JobRecord, error)
	MarkDone(ctx context.Context, jobID uint64, attempts int) error
	MarkRetry(ctx context.Context, jobID uint64, attempts int, runAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, jobID uint64, attempts int, lastErr string) error
	CountByState(ctx context.Context) (map[JobState]int64, error)
}
