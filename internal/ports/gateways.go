package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
)

type TaskPayload struct {
	TaskUUID       uuid.UUID
	TaskURL        string
	ReportURL      string
	TaskType       string
	Title          string
	Message        string
	Actor          string
	Description    string
	AdditionalInfo map[string]any
}

// ExternalTask is the application's acknowledgement of a created task.
type ExternalTask struct {
	URL       string
	CreatedAt *time.Time
}

type ApplicationGateway interface {
	CreateTask(ctx context.Context, app report.Application, payload TaskPayload) (ExternalTask, error)
	DeleteTask(ctx context.Context, app report.Application, taskURL string, actor string) error
	NotifyReportChanged(ctx context.Context, app report.Application, reportURL string, changeType string) error
	NotifySignalReportClosed(ctx context.Context, app report.Application, signalURL string) error
}

type Subject struct {
	URL      string
	Name     string
	Priority string
}

type SubjectCatalog interface {
	Lookup(ctx context.Context, subjectURL string) (Subject, error)
}

type FileInfo struct {
	MimeType string
	IsImage  bool
}

// FileStore resolves attachment paths relative to its media root.
type FileStore interface {
	Inspect(ctx context.Context, path string) (FileInfo, error)
	Remove(ctx context.Context, path string) error
}
