package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
)

type TaskRepository interface {
	GetTask(ctx context.Context, taskID uint64) (report.Task, error)
	GetTaskByUUID(ctx context.Context, taskUUID uuid.UUID) (report.Task, error)
	ListTasks(ctx context.Context, reportID uint64) ([]report.Task, error)

	// LockTask and LockOpenTasks fail with report.ErrTaskInUse instead of
	// waiting for a concurrent transaction.
	LockTask(ctx context.Context, taskID uint64) (report.Task, error)
	LockOpenTasks(ctx context.Context, reportID uint64) ([]report.Task, error)

	CreateTask(ctx context.Context, task report.Task) (report.Task, error)
	UpdateTask(ctx context.Context, task report.Task) error
	UpdateTasks(ctx context.Context, tasks []report.Task) error

	CreateTaskStatus(ctx context.Context, status report.TaskStatus) (report.TaskStatus, error)
	CreateTaskStatuses(ctx context.Context, statuses []report.TaskStatus) ([]report.TaskStatus, error)

	CreateTaskEvent(ctx context.Context, event report.TaskEvent) (report.TaskEvent, error)
	CreateTaskEvents(ctx context.Context, events []report.TaskEvent) ([]report.TaskEvent, error)
	UpdateTaskEvent(ctx context.Context, event report.TaskEvent) error
	ListTaskEvents(ctx context.Context, taskID uint64) ([]report.TaskEvent, error)
	TaskEventExistsAt(ctx context.Context, taskID uint64, createdAt time.Time) (bool, error)

	UpsertApplication(ctx context.Context, app report.Application) (report.Application, error)
	GetApplication(ctx context.Context, applicationID uint64) (report.Application, error)
	ListApplications(ctx context.Context) ([]report.Application, error)
}
