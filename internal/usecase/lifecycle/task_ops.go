package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// CreateTask dispatches a task of a type to the application serving it.
// The report moves to in_progress when it is not there yet.
func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput) (report.Task, error) {
	if err := s.ready(ctx); err != nil {
		return report.Task{}, err
	}
	taskType := strings.TrimSpace(input.TaskType)
	title := s.clean(input.Title)
	if taskType == "" || title == "" {
		return report.Task{}, fmt.Errorf("%w: task type and title are required", report.ErrInvalidTask)
	}
	ctx = s.logCtx(ctx, "create_task")
	actor := s.clean(input.Actor)

	var created report.TaskCreated
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockReportByUUID(txCtx, input.ReportUUID)
		if err != nil {
			return err
		}
		if item.IsClosed() {
			return report.ErrReportClosed
		}
		if item.IsPaused() {
			return fmt.Errorf("%w: %w", report.ErrReportClosed, report.ErrReportPaused)
		}

		apps, err := s.tasks.ListApplications(txCtx)
		if err != nil {
			return err
		}
		app, ok := report.MatchApplication(apps, taskType)
		if !ok {
			return fmt.Errorf("%w: %s", report.ErrApplicationNotFound, taskType)
		}

		existing, err := s.tasks.ListTasks(txCtx, item.ID)
		if err != nil {
			return err
		}
		if report.HasOpenTaskOfType(existing, taskType) {
			return fmt.Errorf("%w: %s", report.ErrTaskAlreadyExistsForType, taskType)
		}

		now := s.now()
		message := s.clean(input.Message)
		task, err := s.tasks.CreateTask(txCtx, report.Task{
			UUID:           uuid.New(),
			ReportID:       item.ID,
			ApplicationID:  app.ID,
			TaskType:       taskType,
			Title:          title,
			Message:        message,
			AdditionalInfo: input.AdditionalInfo,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}
		status, err := s.tasks.CreateTaskStatus(txCtx, report.TaskStatus{TaskID: task.ID, Name: report.TaskStatusNew, CreatedAt: now})
		if err != nil {
			return err
		}
		task.StatusID = &status.ID
		task.Status = &status
		if err := s.tasks.UpdateTask(txCtx, task); err != nil {
			return err
		}
		taskEvent, err := s.tasks.CreateTaskEvent(txCtx, report.TaskEvent{
			UUID:                uuid.New(),
			TaskID:              task.ID,
			TaskStatusID:        &status.ID,
			DescriptionInternal: message,
			Actor:               actor,
			CreatedAt:           now,
		})
		if err != nil {
			return err
		}

		event := report.ReportEvent{
			UUID:        uuid.New(),
			ReportID:    item.ID,
			Type:        report.EventTaskCreated,
			CreatedAt:   now,
			Actor:       actor,
			TaskID:      &task.ID,
			TaskEventID: &taskEvent.ID,
		}
		statusChanged := false
		if item.CurrentStatusName() != report.StatusInProgress {
			reportStatus, err := s.moveStatusTx(txCtx, &item, report.StatusInProgress, now)
			if err != nil {
				return err
			}
			event.Type = report.EventStatusChanged
			event.StatusID = &reportStatus.ID
			event.DescriptionExternal = inProgressDescription
			statusChanged = true
		}
		event, err = s.reports.CreateEvent(txCtx, event)
		if err != nil {
			return err
		}

		created = report.TaskCreated{Report: item, Task: task, TaskEvent: taskEvent, Event: event, StatusChanged: statusChanged}
		return nil
	}); err != nil {
		return report.Task{}, err
	}

	logging.Info(ctx, "task created",
		slog.String("report_uuid", created.Report.UUID.String()),
		slog.String("task_uuid", created.Task.UUID.String()),
		slog.String("task_type", created.Task.TaskType))
	s.dispatch(ctx, "task_created", func(d ports.Dispatcher) error { return d.OnTaskCreated(ctx, created) })
	return created.Task, nil
}

// TaskStatusNotification records an event reported by the application that
// owns a task. Deliveries are deduplicated by (task, upstream time) and a
// late event never overrides the status set by a later one.
func (s *Service) TaskStatusNotification(ctx context.Context, input TaskNotificationInput) (TaskNotificationResult, error) {
	if err := s.ready(ctx); err != nil {
		return TaskNotificationResult{}, err
	}
	if input.Status != nil && !report.IsKnownTaskStatus(*input.Status) {
		return TaskNotificationResult{}, fmt.Errorf("%w: unknown task status %q", report.ErrInvalidTask, *input.Status)
	}
	ctx = logging.WithAttrs(s.logCtx(ctx, "task_status_notification"), slog.String("task_uuid", input.TaskUUID.String()))

	at := input.CreatedAt.UTC()
	if input.CreatedAt.IsZero() {
		at = s.now()
	}

	task, err := s.tasks.GetTaskByUUID(ctx, input.TaskUUID)
	if err != nil {
		return TaskNotificationResult{}, err
	}
	if seen, err := s.tasks.TaskEventExistsAt(ctx, task.ID, at); err != nil {
		return TaskNotificationResult{}, err
	} else if seen {
		logging.Warn(ctx, "task event already recorded, discarding notification", slog.Time("created_at", at))
		return TaskNotificationResult{Task: task, Discarded: true}, nil
	}

	actor := s.clean(input.Actor)
	description := s.clean(input.DescriptionInternal)
	var (
		result  TaskNotificationResult
		changed report.TaskStatusChanged
	)
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reports.LockReport(txCtx, task.ReportID)
		if err != nil {
			return err
		}
		locked, err := s.tasks.LockTask(txCtx, task.ID)
		if err != nil {
			return err
		}
		if seen, err := s.tasks.TaskEventExistsAt(txCtx, locked.ID, at); err != nil {
			return err
		} else if seen {
			result = TaskNotificationResult{Report: item, Task: locked, Discarded: true}
			return nil
		}

		var status *report.TaskStatus
		if input.Status != nil {
			created, err := s.tasks.CreateTaskStatus(txCtx, report.TaskStatus{TaskID: locked.ID, Name: *input.Status, CreatedAt: at})
			if err != nil {
				return err
			}
			status = &created
		}

		taskEvent := report.TaskEvent{
			UUID:                uuid.New(),
			TaskID:              locked.ID,
			Resolution:          input.Resolution,
			DescriptionInternal: description,
			Actor:               actor,
			AdditionalInfo:      input.AdditionalInfo,
			CreatedAt:           at,
		}
		if status != nil {
			taskEvent.TaskStatusID = &status.ID
		}
		taskEvent, err = s.tasks.CreateTaskEvent(txCtx, taskEvent)
		if err != nil {
			return err
		}
		attachments, err := s.reports.CreateAttachments(txCtx, attachmentsFor(report.TaskEventOwner(taskEvent.ID), input.Attachments, at))
		if err != nil {
			return err
		}
		if item.ThumbnailAttachmentID == nil {
			if thumb, ok := report.SelectThumbnail(attachments); ok {
				item.ThumbnailAttachmentID = &thumb.ID
				if err := s.reports.UpdateReport(txCtx, item); err != nil {
					return err
				}
			}
		}

		history, err := s.tasks.ListTaskEvents(txCtx, locked.ID)
		if err != nil {
			return err
		}
		if status != nil && report.IsLatestTaskEvent(taskEvent, history) {
			locked.StatusID = &status.ID
			locked.Status = status
			if report.IsCompletionStatus(status.Name) {
				locked.Close(at, report.CompletionResolution(input.Resolution))
			}
			if err := s.tasks.UpdateTask(txCtx, locked); err != nil {
				return err
			}
		} else if status != nil {
			logging.Warn(txCtx, "out of order task event, status not applied", slog.Time("created_at", at))
		}

		reopened := false
		if item.IsClosed() && input.ResolutionRevised {
			if _, err := s.reopenTx(txCtx, &item, locked.ID, actor, description, at); err != nil {
				return err
			}
			reopened = true
		}

		event := report.ReportEvent{
			UUID:        uuid.New(),
			ReportID:    item.ID,
			Type:        report.EventTaskNotification,
			CreatedAt:   at,
			Actor:       actor,
			TaskID:      &locked.ID,
			TaskEventID: &taskEvent.ID,
		}
		if status != nil {
			event.Type = report.EventTaskStatusChanged
		}
		review, err := s.enterReviewIfIdleTx(txCtx, &item, at)
		if err != nil {
			return err
		}
		if review != nil {
			event.Type = report.EventStatusChanged
			event.StatusID = &review.ID
		}
		event, err = s.reports.CreateEvent(txCtx, event)
		if err != nil {
			return err
		}

		result = TaskNotificationResult{Report: item, Task: locked, TaskEvent: taskEvent, Reopened: reopened}
		changed = report.TaskStatusChanged{
			Report:       item,
			Task:         locked,
			TaskEvent:    taskEvent,
			Event:        event,
			Notification: true,
			Reopened:     reopened,
			Attachments:  attachments,
		}
		return nil
	}); err != nil {
		return TaskNotificationResult{}, err
	}

	if result.Discarded {
		logging.Warn(ctx, "task event already recorded, discarding notification", slog.Time("created_at", at))
		return result, nil
	}
	s.dispatch(ctx, "task_notification", func(d ports.Dispatcher) error { return d.OnTaskStatusChanged(ctx, changed) })
	return result, nil
}

// ChangeTaskStatus sets the status of a task on behalf of an operator.
func (s *Service) ChangeTaskStatus(ctx context.Context, input ChangeTaskStatusInput) (report.Task, error) {
	if err := s.ready(ctx); err != nil {
		return report.Task{}, err
	}
	if !report.IsKnownTaskStatus(input.Status) {
		return report.Task{}, fmt.Errorf("%w: unknown task status %q", report.ErrInvalidTask, input.Status)
	}
	ctx = logging.WithAttrs(s.logCtx(ctx, "change_task_status"), slog.String("task_uuid", input.TaskUUID.String()))

	task, err := s.tasks.GetTaskByUUID(ctx, input.TaskUUID)
	if err != nil {
		return report.Task{}, err
	}
	if !task.IsOpen() && !input.ExternallyUnresolved {
		return report.Task{}, report.ErrTaskClosed
	}

	actor := s.clean(input.Actor)
	description := s.clean(input.DescriptionInternal)
	var changed report.TaskStatusChanged
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reports.LockReport(txCtx, task.ReportID)
		if err != nil {
			return err
		}
		locked, err := s.tasks.LockTask(txCtx, task.ID)
		if err != nil {
			return err
		}
		if !locked.IsOpen() && !input.ExternallyUnresolved {
			return report.ErrTaskClosed
		}
		if locked.CurrentStatusName() == input.Status {
			return fmt.Errorf("%w: %s", report.ErrTaskStatusUnchanged, input.Status)
		}

		now := s.now()
		status, err := s.tasks.CreateTaskStatus(txCtx, report.TaskStatus{TaskID: locked.ID, Name: input.Status, CreatedAt: now})
		if err != nil {
			return err
		}
		locked.StatusID = &status.ID
		locked.Status = &status

		taskEvent := report.TaskEvent{
			UUID:                uuid.New(),
			TaskID:              locked.ID,
			TaskStatusID:        &status.ID,
			DescriptionInternal: description,
			Actor:               actor,
			CreatedAt:           now,
		}
		if report.IsCompletionStatus(input.Status) {
			resolution := report.CompletionResolution(input.Resolution)
			locked.Close(now, resolution)
			taskEvent.Resolution = &resolution
		}
		if err := s.tasks.UpdateTask(txCtx, locked); err != nil {
			return err
		}
		taskEvent, err = s.tasks.CreateTaskEvent(txCtx, taskEvent)
		if err != nil {
			return err
		}

		reopened := false
		if item.IsClosed() && input.ExternallyUnresolved {
			if _, err := s.reopenTx(txCtx, &item, locked.ID, actor, description, now); err != nil {
				return err
			}
			reopened = true
		}

		event := report.ReportEvent{
			UUID:        uuid.New(),
			ReportID:    item.ID,
			Type:        report.EventTaskStatusChanged,
			CreatedAt:   now,
			Actor:       actor,
			TaskID:      &locked.ID,
			TaskEventID: &taskEvent.ID,
		}
		review, err := s.enterReviewIfIdleTx(txCtx, &item, now)
		if err != nil {
			return err
		}
		if review != nil {
			event.Type = report.EventStatusChanged
			event.StatusID = &review.ID
		}
		event, err = s.reports.CreateEvent(txCtx, event)
		if err != nil {
			return err
		}

		changed = report.TaskStatusChanged{Report: item, Task: locked, TaskEvent: taskEvent, Event: event, Reopened: reopened}
		return nil
	}); err != nil {
		return report.Task{}, err
	}

	s.dispatch(ctx, "task_status_changed", func(d ports.Dispatcher) error { return d.OnTaskStatusChanged(ctx, changed) })
	return changed.Task, nil
}

// DeleteTask soft-deletes a task. Locks are taken report first, then task.
func (s *Service) DeleteTask(ctx context.Context, input DeleteTaskInput) (report.Task, error) {
	if err := s.ready(ctx); err != nil {
		return report.Task{}, err
	}
	ctx = logging.WithAttrs(s.logCtx(ctx, "delete_task"), slog.String("task_uuid", input.TaskUUID.String()))

	task, err := s.tasks.GetTaskByUUID(ctx, input.TaskUUID)
	if err != nil {
		return report.Task{}, err
	}

	actor := s.clean(input.Actor)
	var deleted report.TaskDeleted
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reports.LockReport(txCtx, task.ReportID)
		if err != nil {
			return err
		}
		locked, err := s.tasks.LockTask(txCtx, task.ID)
		if err != nil {
			return err
		}
		if locked.DeletedAt != nil {
			return fmt.Errorf("%w: already deleted", report.ErrTaskClosed)
		}

		now := s.now()
		taskEvent, err := s.tasks.CreateTaskEvent(txCtx, report.TaskEvent{
			UUID:      uuid.New(),
			TaskID:    locked.ID,
			Actor:     actor,
			CreatedAt: now,
			ClosedAt:  &now,
			DeletedAt: &now,
		})
		if err != nil {
			return err
		}
		locked.DeletedAt = &now
		if err := s.tasks.UpdateTask(txCtx, locked); err != nil {
			return err
		}

		event := report.ReportEvent{
			UUID:        uuid.New(),
			ReportID:    item.ID,
			Type:        report.EventTaskDeleted,
			CreatedAt:   now,
			Actor:       actor,
			TaskID:      &locked.ID,
			TaskEventID: &taskEvent.ID,
		}
		review, err := s.enterReviewIfIdleTx(txCtx, &item, now)
		if err != nil {
			return err
		}
		if review != nil {
			event.Type = report.EventStatusChanged
			event.StatusID = &review.ID
		}
		event, err = s.reports.CreateEvent(txCtx, event)
		if err != nil {
			return err
		}

		deleted = report.TaskDeleted{Report: item, Task: locked, TaskEvent: taskEvent, Event: event}
		return nil
	}); err != nil {
		return report.Task{}, err
	}

	s.dispatch(ctx, "task_deleted", func(d ports.Dispatcher) error { return d.OnTaskDeleted(ctx, deleted) })
	return deleted.Task, nil
}

// RegisterExternalTask creates the task in its application and stores the
// returned URL. A task that already has one is left alone.
func (s *Service) RegisterExternalTask(ctx context.Context, taskID uint64) (report.Task, error) {
	if err := s.ready(ctx); err != nil {
		return report.Task{}, err
	}
	if s.gateway == nil {
		return report.Task{}, errors.New("application gateway is required")
	}
	ctx = logging.WithAttrs(s.logCtx(ctx, "register_external_task"), slog.Uint64("task_id", taskID))

	var registered report.Task
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		task, err := s.tasks.LockTask(txCtx, taskID)
		if err != nil {
			return err
		}
		registered = task
		if task.TaskURL != "" {
			return nil
		}

		history, err := s.tasks.ListTaskEvents(txCtx, task.ID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("%w: task %s", report.ErrTaskEventMissing, task.UUID)
		}
		first := history[0]

		app, err := s.tasks.GetApplication(txCtx, task.ApplicationID)
		if err != nil {
			return err
		}
		item, err := s.reports.GetReport(txCtx, task.ReportID)
		if err != nil {
			return err
		}

		external, err := s.gateway.CreateTask(txCtx, app, ports.TaskPayload{
			TaskUUID:       task.UUID,
			TaskURL:        TaskURL(s.cfg.BaseURL, task.UUID),
			ReportURL:      s.ReportURL(item.UUID),
			TaskType:       task.TaskType,
			Title:          task.Title,
			Message:        task.Message,
			Actor:          first.Actor,
			Description:    first.DescriptionInternal,
			AdditionalInfo: task.AdditionalInfo,
		})
		if err != nil {
			return errs.Wrapf(err, "create task in %s", app.Name)
		}
		if strings.TrimSpace(external.URL) == "" {
			return fmt.Errorf("%w: %s returned no task url", report.ErrUpstream, app.Name)
		}

		task.TaskURL = external.URL
		if external.CreatedAt != nil {
			task.CreatedAt = external.CreatedAt.UTC()
		}
		if err := s.tasks.UpdateTask(txCtx, task); err != nil {
			return err
		}
		first.AdditionalInfo = copyMap(first.AdditionalInfo)
		first.AdditionalInfo["task_url"] = external.URL
		if err := s.tasks.UpdateTaskEvent(txCtx, first); err != nil {
			return err
		}
		registered = task
		return nil
	}); err != nil {
		return report.Task{}, err
	}

	logging.Info(ctx, "external task registered", slog.String("task_url", registered.TaskURL))
	return registered, nil
}

