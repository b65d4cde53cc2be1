package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"morcore/internal/domain/report"
)

func TestCreateTaskMovesReportInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")

	task := createTask(t, env, item.UUID, testTaskType)
	if task.CurrentStatusName() != report.TaskStatusNew || !task.IsOpen() {
		t.Fatalf("task = %+v, want open task with status new", task)
	}

	got, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.CurrentStatusName() != report.StatusInProgress {
		t.Fatalf("status = %q, want in_progress", got.CurrentStatusName())
	}
	events, err := env.reports.ListEvents(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	last := events[len(events)-1]
	if last.Type != report.EventStatusChanged || last.DescriptionExternal != inProgressDescription {
		t.Fatalf("last event = %+v, want status_changed with external description", last)
	}

	second := createTask(t, env, item.UUID, "https://fixer.example.org/api/v1/taaktype/2/")
	if second.ID == task.ID {
		t.Fatalf("second task reused id %d", task.ID)
	}
	if types := eventTypes(t, env, item.ID); types[len(types)-1] != report.EventTaskCreated {
		t.Fatalf("events = %v, want trailing task_created", types)
	}
}

func TestCreateTaskRejectsDuplicateType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	createTask(t, env, item.UUID, testTaskType)

	_, err := env.svc.CreateTask(ctx, CreateTaskInput{ReportUUID: item.UUID, TaskType: testTaskType, Title: "Again"})
	if !errors.Is(err, report.ErrTaskAlreadyExistsForType) {
		t.Fatalf("CreateTask() error = %v, want ErrTaskAlreadyExistsForType", err)
	}

	tasks, err := env.tasks.ListTasks(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
}

func TestCreateTaskAllowsTypeAgainAfterClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	if _, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{TaskUUID: task.UUID, Status: report.TaskStatusCompleted}); err != nil {
		t.Fatalf("ChangeTaskStatus() error = %v", err)
	}
	createTask(t, env, item.UUID, testTaskType)
}

func TestCreateTaskRejectsPausedReportAndUnknownApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")

	_, err := env.svc.CreateTask(ctx, CreateTaskInput{ReportUUID: item.UUID, TaskType: "https://unknown.example.org/type/1/", Title: "Repair"})
	if !errors.Is(err, report.ErrApplicationNotFound) {
		t.Fatalf("CreateTask() error = %v, want ErrApplicationNotFound", err)
	}

	if _, err := env.svc.ChangeStatus(ctx, ChangeStatusInput{ReportUUID: item.UUID, Status: report.StatusPaused}); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	_, err = env.svc.CreateTask(ctx, CreateTaskInput{ReportUUID: item.UUID, TaskType: testTaskType, Title: "Repair"})
	if !errors.Is(err, report.ErrReportClosed) || !errors.Is(err, report.ErrReportPaused) {
		t.Fatalf("CreateTask() error = %v, want closed and paused", err)
	}
}

func TestTaskStatusNotificationDiscardsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	status := report.TaskStatusCompleted
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	input := TaskNotificationInput{TaskUUID: task.UUID, CreatedAt: at, Status: &status, Actor: "fixer"}

	first, err := env.svc.TaskStatusNotification(ctx, input)
	if err != nil {
		t.Fatalf("TaskStatusNotification() error = %v", err)
	}
	if first.Discarded {
		t.Fatalf("first notification discarded")
	}
	second, err := env.svc.TaskStatusNotification(ctx, input)
	if err != nil {
		t.Fatalf("TaskStatusNotification() second error = %v", err)
	}
	if !second.Discarded {
		t.Fatalf("second notification not discarded")
	}

	history, err := env.tasks.ListTaskEvents(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListTaskEvents() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(task events) = %d, want 2", len(history))
	}
}

func TestTaskStatusNotificationCompletesTaskAndEntersReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	status := report.TaskStatusCompleted
	resolution := report.TaskResolutionNotFound
	result, err := env.svc.TaskStatusNotification(ctx, TaskNotificationInput{
		TaskUUID:    task.UUID,
		CreatedAt:   time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Status:      &status,
		Resolution:  &resolution,
		Attachments: []report.Attachment{{File: "tasks/after.jpg"}},
	})
	if err != nil {
		t.Fatalf("TaskStatusNotification() error = %v", err)
	}
	if result.Task.IsOpen() || *result.Task.Resolution != report.TaskResolutionNotFound {
		t.Fatalf("task = %+v, want closed with not_found", result.Task)
	}
	if result.Report.CurrentStatusName() != report.StatusReview {
		t.Fatalf("report status = %q, want review", result.Report.CurrentStatusName())
	}

	attachments, err := env.reports.ListAttachments(ctx, report.TaskEventOwner(result.TaskEvent.ID))
	if err != nil {
		t.Fatalf("ListAttachments() error = %v", err)
	}
	if len(attachments) != 1 {
		t.Fatalf("len(attachments) = %d, want 1", len(attachments))
	}
}

func TestTaskStatusNotificationOutOfOrderKeepsLatestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	completed := report.TaskStatusCompleted
	if _, err := env.svc.TaskStatusNotification(ctx, TaskNotificationInput{
		TaskUUID:  task.UUID,
		CreatedAt: time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC),
		Status:    &completed,
	}); err != nil {
		t.Fatalf("TaskStatusNotification() error = %v", err)
	}

	feedback := report.TaskStatusCompletedWithFeedback
	late, err := env.svc.TaskStatusNotification(ctx, TaskNotificationInput{
		TaskUUID:  task.UUID,
		CreatedAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Status:    &feedback,
	})
	if err != nil {
		t.Fatalf("TaskStatusNotification() late error = %v", err)
	}
	if late.Task.CurrentStatusName() != report.TaskStatusCompleted {
		t.Fatalf("task status = %q, want completed", late.Task.CurrentStatusName())
	}
}

func TestTaskStatusNotificationReopensClosedReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)
	if _, err := env.svc.ChangeStatus(ctx, ChangeStatusInput{ReportUUID: item.UUID, Status: report.StatusClosed}); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}

	result, err := env.svc.TaskStatusNotification(ctx, TaskNotificationInput{
		TaskUUID:            task.UUID,
		CreatedAt:           time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC),
		ResolutionRevised:   true,
		DescriptionInternal: "not fixed after all",
	})
	if err != nil {
		t.Fatalf("TaskStatusNotification() error = %v", err)
	}
	if !result.Reopened || result.Report.IsClosed() || result.Report.ClosedAt != nil {
		t.Fatalf("result = %+v, want reopened report", result)
	}
	if got := countType(eventTypes(t, env, item.ID), report.EventReportReopened); got != 1 {
		t.Fatalf("report_reopened events = %d, want 1", got)
	}
}

func TestChangeTaskStatusRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	if _, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{TaskUUID: task.UUID, Status: report.TaskStatusNew}); !errors.Is(err, report.ErrTaskStatusUnchanged) {
		t.Fatalf("ChangeTaskStatus() error = %v, want ErrTaskStatusUnchanged", err)
	}
	if _, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{TaskUUID: task.UUID, Status: "lost"}); !errors.Is(err, report.ErrInvalidTask) {
		t.Fatalf("ChangeTaskStatus() error = %v, want ErrInvalidTask", err)
	}

	closed, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{TaskUUID: task.UUID, Status: report.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("ChangeTaskStatus() error = %v", err)
	}
	if closed.IsOpen() || *closed.Resolution != report.TaskResolutionResolved || closed.HandlingDuration == nil {
		t.Fatalf("task = %+v, want resolved with handling duration", closed)
	}
	if _, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{TaskUUID: task.UUID, Status: report.TaskStatusNew}); !errors.Is(err, report.ErrTaskClosed) {
		t.Fatalf("ChangeTaskStatus() error = %v, want ErrTaskClosed", err)
	}

	got, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.CurrentStatusName() != report.StatusReview {
		t.Fatalf("status = %q, want review", got.CurrentStatusName())
	}
}

func TestChangeTaskStatusExternallyUnresolvedReopens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)
	if _, err := env.svc.ChangeStatus(ctx, ChangeStatusInput{ReportUUID: item.UUID, Status: report.StatusClosed}); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}

	if _, err := env.svc.ChangeTaskStatus(ctx, ChangeTaskStatusInput{
		TaskUUID:             task.UUID,
		Status:               report.TaskStatusNew,
		ExternallyUnresolved: true,
	}); err != nil {
		t.Fatalf("ChangeTaskStatus() error = %v", err)
	}
	got, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.IsClosed() {
		t.Fatalf("report still closed: %+v", got)
	}
}

func TestDeleteTaskEntersReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	deleted, err := env.svc.DeleteTask(ctx, DeleteTaskInput{TaskUUID: task.UUID, Actor: "operator"})
	if err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatalf("task = %+v, want deleted_at", deleted)
	}
	got, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.CurrentStatusName() != report.StatusReview {
		t.Fatalf("status = %q, want review", got.CurrentStatusName())
	}

	if _, err := env.svc.DeleteTask(ctx, DeleteTaskInput{TaskUUID: task.UUID}); !errors.Is(err, report.ErrTaskClosed) {
		t.Fatalf("DeleteTask() twice error = %v, want ErrTaskClosed", err)
	}
}

func TestRegisterExternalTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	upstream := time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC)
	env.gateway.url = "https://fixer.example.org/api/v1/taak/77/"
	env.gateway.at = &upstream

	registered, err := env.svc.RegisterExternalTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("RegisterExternalTask() error = %v", err)
	}
	if registered.TaskURL != env.gateway.url || !registered.CreatedAt.Equal(upstream) {
		t.Fatalf("task = %+v, want url and upstream created_at", registered)
	}
	if len(env.gateway.created) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(env.gateway.created))
	}
	payload := env.gateway.created[0]
	if payload.ReportURL != "https://mor.example.org/api/v1/reports/"+item.UUID.String()+"/" || payload.Actor != "operator" {
		t.Fatalf("payload = %+v", payload)
	}

	history, err := env.tasks.ListTaskEvents(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListTaskEvents() error = %v", err)
	}
	if history[0].AdditionalInfo["task_url"] != env.gateway.url {
		t.Fatalf("first task event info = %v, want task_url", history[0].AdditionalInfo)
	}

	if _, err := env.svc.RegisterExternalTask(ctx, task.ID); err != nil {
		t.Fatalf("RegisterExternalTask() again error = %v", err)
	}
	if len(env.gateway.created) != 1 {
		t.Fatalf("gateway calls = %d, want still 1", len(env.gateway.created))
	}
}

func TestRegisterExternalTaskRequiresURL(t *testing.T) {
	env := newTestEnv(t)
	item := ingestNew(t, env, "1")
	task := createTask(t, env, item.UUID, testTaskType)

	_, err := env.svc.RegisterExternalTask(context.Background(), task.ID)
	if !errors.Is(err, report.ErrUpstream) {
		t.Fatalf("RegisterExternalTask() error = %v, want ErrUpstream", err)
	}
}
