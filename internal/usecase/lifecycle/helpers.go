package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

const (
	inProgressDescription = "The report is being handled."
	reopenedDescription   = "Report reopened because the external party could not resolve the task"
)

// ReportURL is the public URL of a report as sent to external applications.
func ReportURL(baseURL string, reportUUID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/reports/%s/", strings.TrimRight(baseURL, "/"), reportUUID)
}

func (s *Service) ReportURL(reportUUID uuid.UUID) string {
	return ReportURL(s.cfg.BaseURL, reportUUID)
}

// TaskURL is the public URL of a task.
func TaskURL(baseURL string, taskUUID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/tasks/%s/", strings.TrimRight(baseURL, "/"), taskUUID)
}

func (s *Service) logCtx(ctx context.Context, op string) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "usecase.lifecycle"), slog.String("op", op))
}

// clean strips markup from user supplied text.
func (s *Service) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func validateUrgency(urgency float64) error {
	if math.IsNaN(urgency) || urgency < 0 || urgency > 1 {
		return fmt.Errorf("%w: %v", report.ErrInvalidUrgency, urgency)
	}
	return nil
}

// dispatch hands a committed mutation to the dispatcher. Failures and panics
// are logged and never reach the caller.
func (s *Service) dispatch(ctx context.Context, event string, fn func(ports.Dispatcher) error) {
	if s.dispatcher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "dispatcher panicked", slog.String("event", event), slog.Any("panic", r))
		}
	}()
	if err := fn(s.dispatcher); err != nil {
		logging.Error(ctx, "dispatch domain event failed", slog.String("event", event), slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) lockReportByUUID(ctx context.Context, reportUUID uuid.UUID) (report.Report, error) {
	current, err := s.reports.GetReportByUUID(ctx, reportUUID)
	if err != nil {
		return report.Report{}, err
	}
	return s.reports.LockReport(ctx, current.ID)
}

// moveStatusTx records a new current status on a locked report. Moving to a
// non-terminal status clears the close fields.
func (s *Service) moveStatusTx(ctx context.Context, item *report.Report, name report.StatusName, at time.Time) (report.Status, error) {
	status, err := s.reports.CreateStatus(ctx, report.Status{ReportID: item.ID, Name: name, CreatedAt: at})
	if err != nil {
		return report.Status{}, err
	}
	item.StatusID = &status.ID
	item.Status = &status
	if !report.IsTerminal(name) {
		item.ClosedAt = nil
		item.Resolution = nil
		item.CloseReason = nil
	}
	if err := s.reports.UpdateReport(ctx, *item); err != nil {
		return report.Status{}, err
	}
	return status, nil
}

// enterReviewIfIdleTx moves an open report to review once none of its tasks
// are open. The returned status is nil when nothing changed.
func (s *Service) enterReviewIfIdleTx(ctx context.Context, item *report.Report, at time.Time) (*report.Status, error) {
	if item.IsClosed() || item.CurrentStatusName() == report.StatusReview {
		return nil, nil
	}
	tasks, err := s.tasks.ListTasks(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if report.CountOpenTasks(tasks) > 0 {
		return nil, nil
	}
	status, err := s.moveStatusTx(ctx, item, report.StatusReview, at)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// reopenTx reopens a closed report after an external party could not
// resolve one of its tasks.
func (s *Service) reopenTx(ctx context.Context, item *report.Report, taskID uint64, actor string, description string, at time.Time) (report.ReportEvent, error) {
	status, err := s.moveStatusTx(ctx, item, report.StatusOpen, at)
	if err != nil {
		return report.ReportEvent{}, err
	}
	text := reopenedDescription
	if description != "" {
		text += ": " + description
	}
	return s.reports.CreateEvent(ctx, report.ReportEvent{
		UUID:                uuid.New(),
		ReportID:            item.ID,
		Type:                report.EventReportReopened,
		CreatedAt:           at,
		StatusID:            &status.ID,
		DescriptionInternal: text,
		Actor:               actor,
		TaskID:              &taskID,
	})
}

func attachmentsFor(owner report.AttachmentOwner, in []report.Attachment, at time.Time) []report.Attachment {
	out := make([]report.Attachment, 0, len(in))
	for _, a := range in {
		if strings.TrimSpace(a.File) == "" {
			continue
		}
		a.ID = 0
		if a.UUID == uuid.Nil {
			a.UUID = uuid.New()
		}
		a.Owner = owner
		if a.CreatedAt.IsZero() {
			a.CreatedAt = at
		}
		out = append(out, a)
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
