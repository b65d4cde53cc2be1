package report

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatusName string

const (
	TaskStatusNew                   TaskStatusName = "new"
	TaskStatusCompleted             TaskStatusName = "completed"
	TaskStatusCompletedWithFeedback TaskStatusName = "completed_with_feedback"
)

type TaskResolution string

const (
	TaskResolutionResolved   TaskResolution = "resolved"
	TaskResolutionUnresolved TaskResolution = "unresolved"
	TaskResolutionCancelled  TaskResolution = "cancelled"
	TaskResolutionNotFound   TaskResolution = "not_found"
)

// Task is a unit of work dispatched to an external application.
type Task struct {
	ID               uint64
	UUID             uuid.UUID
	ReportID         uint64
	ApplicationID    uint64
	TaskType         string
	Title            string
	Message          string
	StatusID         *uint64
	Status           *TaskStatus
	Resolution       *TaskResolution
	AdditionalInfo   map[string]any
	TaskURL          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
	DeletedAt        *time.Time
	HandlingDuration *time.Duration
}

// IsOpen reports whether the task is neither closed nor soft-deleted.
func (t Task) IsOpen() bool {
	return t.ClosedAt == nil && t.DeletedAt == nil
}

func (t Task) CurrentStatusName() TaskStatusName {
	if t.Status == nil {
		return ""
	}
	return t.Status.Name
}

// Close stamps closedAt, the handling duration and the resolution.
func (t *Task) Close(closedAt time.Time, resolution TaskResolution) {
	closed := closedAt
	t.ClosedAt = &closed
	res := resolution
	t.Resolution = &res
	if !t.CreatedAt.IsZero() {
		d := closedAt.Sub(t.CreatedAt)
		if d < 0 {
			d = 0
		}
		t.HandlingDuration = &d
	}
}

type TaskStatus struct {
	ID        uint64
	TaskID    uint64
	Name      TaskStatusName
	CreatedAt time.Time
}

type TaskEvent struct {
	ID                  uint64
	UUID                uuid.UUID
	TaskID              uint64
	TaskStatusID        *uint64
	Resolution          *TaskResolution
	DescriptionInternal string
	Actor               string
	AdditionalInfo      map[string]any
	CreatedAt           time.Time
	ClosedAt            *time.Time
	DeletedAt           *time.Time
}

func IsKnownTaskStatus(name TaskStatusName) bool {
	switch name {
	case TaskStatusNew, TaskStatusCompleted, TaskStatusCompletedWithFeedback:
		return true
	default:
		return false
	}
}

// IsCompletionStatus reports whether name closes a task.
func IsCompletionStatus(name TaskStatusName) bool {
	return name == TaskStatusCompleted || name == TaskStatusCompletedWithFeedback
}

func IsValidTaskResolution(res TaskResolution) bool {
	switch res {
	case TaskResolutionResolved, TaskResolutionUnresolved, TaskResolutionCancelled, TaskResolutionNotFound:
		return true
	default:
		return false
	}
}

// CompletionResolution falls back to resolved for missing or unknown input.
func CompletionResolution(res *TaskResolution) TaskResolution {
	if res == nil || !IsValidTaskResolution(*res) {
		return TaskResolutionResolved
	}
	return *res
}

// HasOpenTaskOfType enforces at most one open task per task type.
func HasOpenTaskOfType(tasks []Task, taskType string) bool {
	for _, task := range tasks {
		if task.TaskType == taskType && task.IsOpen() {
			return true
		}
	}
	return false
}

func CountOpenTasks(tasks []Task) int {
	count := 0
	for _, task := range tasks {
		if task.IsOpen() {
			count++
		}
	}
	return count
}

// IsLatestTaskEvent compares by creation time; ties go to the higher id.
func IsLatestTaskEvent(candidate TaskEvent, events []TaskEvent) bool {
	for _, other := range events {
		if other.ID == candidate.ID {
			continue
		}
		if other.CreatedAt.After(candidate.CreatedAt) {
			return false
		}
		if other.CreatedAt.Equal(candidate.CreatedAt) && other.ID > candidate.ID {
			return false
		}
	}
	return true
}
