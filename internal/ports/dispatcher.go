package ports

import (
	"context"

	"morcore/internal/domain/report"
)

// Dispatcher receives committed mutations. It is called after commit,
// once per mutation; implementations schedule follow-up work and must not
// assume the caller waits for or inspects the outcome beyond logging.
type Dispatcher interface {
	OnReportCreated(ctx context.Context, event report.ReportCreated) error
	OnSignalAttached(ctx context.Context, event report.SignalAttached) error
	OnStatusChanged(ctx context.Context, event report.StatusChanged) error
	OnReportClosed(ctx context.Context, event report.StatusChanged) error
	OnUrgencyChanged(ctx context.Context, event report.UrgencyChanged) error
	OnEventAdded(ctx context.Context, event report.EventAdded) error
	OnTaskCreated(ctx context.Context, event report.TaskCreated) error
	OnTaskStatusChanged(ctx context.Context, event report.TaskStatusChanged) error
	OnTaskDeleted(ctx context.Context, event report.TaskDeleted) error
	OnReportDeleted(ctx context.Context, event report.ReportDeleted) error
}
