package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/ports"
)

// ChangeUrgency sets the urgency of an open report.
func (s *Service) ChangeUrgency(ctx context.Context, input ChangeUrgencyInput) (report.Report, error) {
	if err := s.ready(ctx); err != nil {
		return report.Report{}, err
	}
	if err := validateUrgency(input.Urgency); err != nil {
		return report.Report{}, err
	}
	ctx = s.logCtx(ctx, "change_urgency")

	var changed report.UrgencyChanged
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockReportByUUID(txCtx, input.ReportUUID)
		if err != nil {
			return err
		}
		if item.IsClosed() {
			return report.ErrReportClosed
		}

		previous := item.Urgency
		item.Urgency = input.Urgency
		if err := s.reports.UpdateReport(txCtx, item); err != nil {
			return err
		}

		urgency := input.Urgency
		event, err := s.reports.CreateEvent(txCtx, report.ReportEvent{
			UUID:                uuid.New(),
			ReportID:            item.ID,
			Type:                report.EventUrgencyChanged,
			CreatedAt:           s.now(),
			StatusID:            item.StatusID,
			Urgency:             &urgency,
			DescriptionInternal: s.clean(input.DescriptionInternal),
			Actor:               s.clean(input.Actor),
		})
		if err != nil {
			return err
		}

		changed = report.UrgencyChanged{Report: item, Previous: previous, Current: urgency, Event: event}
		return nil
	}); err != nil {
		return report.Report{}, err
	}

	s.dispatch(ctx, "urgency_changed", func(d ports.Dispatcher) error { return d.OnUrgencyChanged(ctx, changed) })
	return changed.Report, nil
}

// ChangeStatus moves a report to another status. Closing force-closes the
// open tasks of the report; any other status clears the close fields.
func (s *Service) ChangeStatus(ctx context.Context, input ChangeStatusInput) (report.Report, error) {
	if err := s.ready(ctx); err != nil {
		return report.Report{}, err
	}
	next, err := report.ParseStatusName(string(input.Status))
	if err != nil {
		return report.Report{}, err
	}
	if input.Resolution != nil && *input.Resolution != report.ResolutionResolved && *input.Resolution != report.ResolutionUnresolved {
		return report.Report{}, fmt.Errorf("%w: %q", report.ErrInvalidResolution, *input.Resolution)
	}
	ctx = s.logCtx(ctx, "change_status")
	actor := s.clean(input.Actor)

	var changed report.StatusChanged
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockReportByUUID(txCtx, input.ReportUUID)
		if err != nil {
			return err
		}
		current := item.CurrentStatusName()
		if !report.IsTransitionAllowed(current, next) {
			return fmt.Errorf("%w: %s -> %s", report.ErrStatusTransitionNotAllowed, current, next)
		}

		previous := item.Status
		now := s.now()
		status, err := s.moveStatusTx(txCtx, &item, next, now)
		if err != nil {
			return err
		}

		var forceClosed []report.Task
		if report.IsTerminal(next) {
			forceClosed, err = s.forceCloseTasksTx(txCtx, item, actor, now)
			if err != nil {
				return err
			}
			closedAt := s.now()
			item.ClosedAt = &closedAt
			item.Resolution = input.Resolution
			if input.CloseReason != nil {
				reason := s.clean(*input.CloseReason)
				item.CloseReason = &reason
			}
			if err := s.reports.UpdateReport(txCtx, item); err != nil {
				return err
			}
			now = closedAt
		}

		event, err := s.reports.CreateEvent(txCtx, report.ReportEvent{
			UUID:                uuid.New(),
			ReportID:            item.ID,
			Type:                report.EventStatusChanged,
			CreatedAt:           now,
			StatusID:            &status.ID,
			DescriptionInternal: s.clean(input.DescriptionInternal),
			DescriptionExternal: s.clean(input.DescriptionExternal),
			Actor:               actor,
			Resolution:          item.Resolution,
			CloseReason:         item.CloseReason,
		})
		if err != nil {
			return err
		}

		changed = report.StatusChanged{
			Report:           item,
			Previous:         previous,
			Current:          status,
			Event:            event,
			ForceClosedTasks: forceClosed,
		}
		return nil
	}); err != nil {
		return report.Report{}, err
	}

	logging.Info(ctx, "report status changed",
		slog.String("report_uuid", changed.Report.UUID.String()),
		slog.String("status", string(changed.Current.Name)),
		slog.Int("force_closed_tasks", len(changed.ForceClosedTasks)))
	if changed.Closed() {
		s.dispatch(ctx, "report_closed", func(d ports.Dispatcher) error { return d.OnReportClosed(ctx, changed) })
	} else {
		s.dispatch(ctx, "status_changed", func(d ports.Dispatcher) error { return d.OnStatusChanged(ctx, changed) })
	}
	return changed.Report, nil
}

// forceCloseTasksTx cancels every open task of a closing report with one
// bulk write per table.
func (s *Service) forceCloseTasksTx(ctx context.Context, item report.Report, actor string, at time.Time) ([]report.Task, error) {
	tasks, err := s.tasks.LockOpenTasks(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	statuses := make([]report.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, report.TaskStatus{TaskID: task.ID, Name: report.TaskStatusCompleted, CreatedAt: at})
	}
	statuses, err = s.tasks.CreateTaskStatuses(ctx, statuses)
	if err != nil {
		return nil, err
	}

	cancelled := report.TaskResolutionCancelled
	taskEvents := make([]report.TaskEvent, 0, len(tasks))
	for i := range tasks {
		status := statuses[i]
		tasks[i].StatusID = &status.ID
		tasks[i].Status = &status
		tasks[i].Close(at, cancelled)
		taskEvents = append(taskEvents, report.TaskEvent{
			UUID:         uuid.New(),
			TaskID:       tasks[i].ID,
			TaskStatusID: &status.ID,
			Resolution:   &cancelled,
			Actor:        actor,
			CreatedAt:    at,
		})
	}
	if err := s.tasks.UpdateTasks(ctx, tasks); err != nil {
		return nil, err
	}
	taskEvents, err = s.tasks.CreateTaskEvents(ctx, taskEvents)
	if err != nil {
		return nil, err
	}

	reportEvents := make([]report.ReportEvent, 0, len(taskEvents))
	for i, te := range taskEvents {
		taskID := tasks[i].ID
		taskEventID := te.ID
		reportEvents = append(reportEvents, report.ReportEvent{
			UUID:        uuid.New(),
			ReportID:    item.ID,
			Type:        report.EventTaskStatusChanged,
			CreatedAt:   at,
			Actor:       actor,
			TaskID:      &taskID,
			TaskEventID: &taskEventID,
		})
	}
	if _, err := s.reports.CreateEvents(ctx, reportEvents); err != nil {
		return nil, err
	}
	return tasks, nil
}

// AddEvent appends a free event to an open report, optionally with a new
// primary location and attachments.
func (s *Service) AddEvent(ctx context.Context, input AddEventInput) (report.ReportEvent, error) {
	if err := s.ready(ctx); err != nil {
		return report.ReportEvent{}, err
	}
	eventType := input.Type
	if eventType == "" {
		eventType = report.EventStandard
		if input.Location != nil {
			eventType = report.EventLocationCreated
		}
	}
	if !report.IsKnownEventType(eventType) {
		return report.ReportEvent{}, fmt.Errorf("%w: unknown type %q", report.ErrInvalidEvent, eventType)
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return report.ReportEvent{}, err
		}
	}
	ctx = s.logCtx(ctx, "add_event")

	var added report.EventAdded
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reports.GetReportByUUID(txCtx, input.ReportUUID)
		if err != nil {
			return err
		}
		if item.IsClosed() {
			return report.ErrReportClosed
		}
		now := s.now()

		var location *report.Location
		if input.Location != nil {
			existing, err := s.reports.ListLocations(txCtx, item.ID)
			if err != nil {
				return err
			}
			if err := s.reports.DemoteLocations(txCtx, item.ID); err != nil {
				return err
			}
			loc := *input.Location
			loc.ID = 0
			loc.SignalID = nil
			loc.ReportID = &item.ID
			loc.Weight = report.NextLocationWeight(existing)
			loc.Primary = true
			loc.CreatedAt = now
			created, err := s.reports.CreateLocation(txCtx, loc)
			if err != nil {
				return err
			}
			location = &created
		}

		event := report.ReportEvent{
			UUID:                uuid.New(),
			ReportID:            item.ID,
			Type:                eventType,
			CreatedAt:           now,
			StatusID:            item.StatusID,
			DescriptionInternal: s.clean(input.DescriptionInternal),
			DescriptionExternal: s.clean(input.DescriptionExternal),
			Actor:               s.clean(input.Actor),
		}
		if location != nil {
			event.LocationID = &location.ID
		}
		event, err = s.reports.CreateEvent(txCtx, event)
		if err != nil {
			return err
		}
		attachments, err := s.reports.CreateAttachments(txCtx, attachmentsFor(report.ReportEventOwner(event.ID), input.Attachments, now))
		if err != nil {
			return err
		}

		if location != nil || (item.ThumbnailAttachmentID == nil && len(attachments) > 0) {
			item, err = s.reports.LockReport(txCtx, item.ID)
			if err != nil {
				return err
			}
			if item.ThumbnailAttachmentID == nil {
				if thumb, ok := report.SelectThumbnail(attachments); ok {
					item.ThumbnailAttachmentID = &thumb.ID
				}
			}
			if location != nil {
				item.ReferenceLocationID = &location.ID
			}
			if err := s.reports.UpdateReport(txCtx, item); err != nil {
				return err
			}
		}

		added = report.EventAdded{Report: item, Event: event, Location: location, Attachments: attachments}
		return nil
	}); err != nil {
		return report.ReportEvent{}, err
	}

	s.dispatch(ctx, "event_added", func(d ports.Dispatcher) error { return d.OnEventAdded(ctx, added) })
	return added.Event, nil
}

// DeleteReport removes a report with everything it owns. Stored files are
// handed to the dispatcher for removal after commit.
func (s *Service) DeleteReport(ctx context.Context, reportUUID uuid.UUID) (report.ReportDeleted, error) {
	if err := s.ready(ctx); err != nil {
		return report.ReportDeleted{}, err
	}
	ctx = s.logCtx(ctx, "delete_report")

	var deleted report.ReportDeleted
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockReportByUUID(txCtx, reportUUID)
		if err != nil {
			return err
		}
		attachments, err := s.reports.ListReportAttachments(txCtx, item.ID)
		if err != nil {
			return err
		}
		counts, err := s.reports.DeleteReportCascade(txCtx, item.ID)
		if err != nil {
			return err
		}
		deleted = report.ReportDeleted{
			ReportID:   item.ID,
			ReportUUID: item.UUID,
			FilePaths:  report.CollectFilePaths(attachments),
			Deleted:    counts,
		}
		return nil
	}); err != nil {
		return report.ReportDeleted{}, err
	}

	logging.Info(ctx, "report deleted",
		slog.String("report_uuid", deleted.ReportUUID.String()),
		slog.Int("files", len(deleted.FilePaths)),
		slog.String("rows", summarizeCounts(deleted.Deleted)))
	s.dispatch(ctx, "report_deleted", func(d ports.Dispatcher) error { return d.OnReportDeleted(ctx, deleted) })
	return deleted, nil
}

func summarizeCounts(counts map[string]int64) string {
	parts := make([]string, 0, len(counts))
	for _, table := range []string{"reports", "signals", "report_events", "tasks", "task_events", "attachments", "locations"} {
		if n, ok := counts[table]; ok && n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", table, n))
		}
	}
	return strings.Join(parts, " ")
}
