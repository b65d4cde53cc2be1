package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
	"morcore/internal/usecase/lifecycle"
)

type fakeLifecycle struct {
	apps        []report.Application
	tasks       map[uuid.UUID]report.Task
	reports     map[uuid.UUID]lifecycle.ReportDetail
	attachments map[uint64]report.Attachment
	inspected   map[uint64]ports.FileInfo
	refreshErr  error
	registered  []uint64
}

func (f *fakeLifecycle) RefreshDerivedState(_ context.Context, reportID uint64) (lifecycle.DerivedState, error) {
	return lifecycle.DerivedState{ReportID: reportID}, f.refreshErr
}

func (f *fakeLifecycle) RegisterExternalTask(_ context.Context, taskID uint64) (report.Task, error) {
	f.registered = append(f.registered, taskID)
	return report.Task{ID: taskID}, nil
}

func (f *fakeLifecycle) GetReport(_ context.Context, reportUUID uuid.UUID) (lifecycle.ReportDetail, error) {
	detail, ok := f.reports[reportUUID]
	if !ok {
		return lifecycle.ReportDetail{}, report.ErrReportNotFound
	}
	return detail, nil
}

func (f *fakeLifecycle) GetTask(_ context.Context, taskUUID uuid.UUID) (lifecycle.TaskDetail, error) {
	task, ok := f.tasks[taskUUID]
	if !ok {
		return lifecycle.TaskDetail{}, report.ErrTaskNotFound
	}
	return lifecycle.TaskDetail{Task: task}, nil
}

func (f *fakeLifecycle) ListApplications(context.Context) ([]report.Application, error) {
	return f.apps, nil
}

func (f *fakeLifecycle) GetAttachment(_ context.Context, attachmentID uint64) (report.Attachment, error) {
	a, ok := f.attachments[attachmentID]
	if !ok {
		return report.Attachment{}, report.ErrAttachmentNotFound
	}
	return a, nil
}

func (f *fakeLifecycle) InspectAttachment(_ context.Context, attachmentID uint64, info ports.FileInfo) error {
	if f.inspected == nil {
		f.inspected = make(map[uint64]ports.FileInfo)
	}
	f.inspected[attachmentID] = info
	return nil
}

type fakeGateway struct {
	notified []string
	deleted  []string
	closed   []string
	err      error
}

func (g *fakeGateway) CreateTask(context.Context, report.Application, ports.TaskPayload) (ports.ExternalTask, error) {
	return ports.ExternalTask{}, nil
}

func (g *fakeGateway) DeleteTask(_ context.Context, app report.Application, taskURL string, actor string) error {
	g.deleted = append(g.deleted, app.Name+" "+taskURL+" "+actor)
	return g.err
}

func (g *fakeGateway) NotifyReportChanged(_ context.Context, app report.Application, reportURL string, changeType string) error {
	g.notified = append(g.notified, app.Name+" "+changeType)
	return g.err
}

func (g *fakeGateway) NotifySignalReportClosed(_ context.Context, app report.Application, signalURL string) error {
	g.closed = append(g.closed, app.Name+" "+signalURL)
	return g.err
}

type fakeFiles struct {
	removed []string
}

func (f *fakeFiles) Inspect(context.Context, string) (ports.FileInfo, error) {
	return ports.FileInfo{MimeType: "image/png", IsImage: true}, nil
}

func (f *fakeFiles) Remove(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type memoryQueue struct {
	jobs []ports.Job
}

func (q *memoryQueue) Enqueue(_ context.Context, job ports.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

var testApps = []report.Application{
	{ID: 1, Name: "fixer", BaseURL: "https://fixer.example.org"},
	{ID: 2, Name: "intake", BaseURL: "https://intake.example.org"},
}

func TestNotifyReportChangedFansOutPerApplication(t *testing.T) {
	lc := &fakeLifecycle{apps: testApps}
	gateway := &fakeGateway{}
	queue := &memoryQueue{}
	h := NewHandlers(lc, gateway, &fakeFiles{}, queue)
	ctx := context.Background()

	err := h.NotifyReportChanged(ctx, rawPayload(t, NotifyReportChangedPayload{ReportURL: "https://mor/r/1/", ChangeType: ChangeClosed}))
	if err != nil {
		t.Fatalf("NotifyReportChanged() error = %v", err)
	}
	if len(queue.jobs) != 2 || len(gateway.notified) != 0 {
		t.Fatalf("queued = %d notified = %d, want 2 and 0", len(queue.jobs), len(gateway.notified))
	}

	for _, job := range queue.jobs {
		if err := h.NotifyReportChanged(ctx, rawPayload(t, job.Payload)); err != nil {
			t.Fatalf("NotifyReportChanged() per app error = %v", err)
		}
	}
	if len(gateway.notified) != 2 || gateway.notified[0] != "fixer afgesloten" {
		t.Fatalf("notified = %v", gateway.notified)
	}
}

func TestNotifyReportChangedUnknownApplicationIsPermanent(t *testing.T) {
	h := NewHandlers(&fakeLifecycle{apps: testApps}, &fakeGateway{}, &fakeFiles{}, &memoryQueue{})

	err := h.NotifyReportChanged(context.Background(), rawPayload(t, NotifyReportChangedPayload{ApplicationID: 9, ReportURL: "u", ChangeType: "c"}))
	if !isPermanent(err) || !errors.Is(err, report.ErrApplicationNotFound) {
		t.Fatalf("NotifyReportChanged() error = %v, want permanent not found", err)
	}
}

func TestNotifyReportClosedFansOutPerSignal(t *testing.T) {
	reportUUID := uuid.New()
	lc := &fakeLifecycle{
		apps: testApps,
		reports: map[uuid.UUID]lifecycle.ReportDetail{
			reportUUID: {Signals: []report.Signal{
				{SignalURL: "https://intake.example.org/api/v1/signaal/1/"},
				{SignalURL: "https://unknown.example.org/api/v1/signaal/2/"},
			}},
		},
	}
	gateway := &fakeGateway{}
	queue := &memoryQueue{}
	h := NewHandlers(lc, gateway, &fakeFiles{}, queue)
	ctx := context.Background()

	if err := h.NotifyReportClosed(ctx, rawPayload(t, NotifyReportClosedPayload{ReportUUID: reportUUID})); err != nil {
		t.Fatalf("NotifyReportClosed() error = %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("queued = %d, want 2", len(queue.jobs))
	}
	for _, job := range queue.jobs {
		if err := h.NotifyReportClosed(ctx, rawPayload(t, job.Payload)); err != nil {
			t.Fatalf("NotifyReportClosed() per signal error = %v", err)
		}
	}
	if len(gateway.closed) != 1 || gateway.closed[0] != "intake https://intake.example.org/api/v1/signaal/1/" {
		t.Fatalf("closed notifications = %v", gateway.closed)
	}
}

func TestDeleteExternalTask(t *testing.T) {
	withURL := report.Task{UUID: uuid.New(), ApplicationID: 1, TaskURL: "https://fixer.example.org/api/v1/taak/3/"}
	withoutURL := report.Task{UUID: uuid.New(), ApplicationID: 1}
	lc := &fakeLifecycle{apps: testApps, tasks: map[uuid.UUID]report.Task{withURL.UUID: withURL, withoutURL.UUID: withoutURL}}
	gateway := &fakeGateway{}
	h := NewHandlers(lc, gateway, &fakeFiles{}, &memoryQueue{})
	ctx := context.Background()

	if err := h.DeleteExternalTask(ctx, rawPayload(t, DeleteExternalTaskPayload{TaskUUID: withoutURL.UUID})); err != nil {
		t.Fatalf("DeleteExternalTask() without url error = %v", err)
	}
	if err := h.DeleteExternalTask(ctx, rawPayload(t, DeleteExternalTaskPayload{TaskUUID: withURL.UUID, Actor: "operator"})); err != nil {
		t.Fatalf("DeleteExternalTask() error = %v", err)
	}
	if len(gateway.deleted) != 1 || gateway.deleted[0] != "fixer https://fixer.example.org/api/v1/taak/3/ operator" {
		t.Fatalf("deleted = %v", gateway.deleted)
	}

	err := h.DeleteExternalTask(ctx, rawPayload(t, DeleteExternalTaskPayload{TaskUUID: uuid.New()}))
	if !isPermanent(err) {
		t.Fatalf("DeleteExternalTask() unknown task error = %v, want permanent", err)
	}
}

func TestUpstreamFailureIsRetried(t *testing.T) {
	task := report.Task{UUID: uuid.New(), ApplicationID: 1, TaskURL: "https://fixer.example.org/api/v1/taak/3/"}
	lc := &fakeLifecycle{apps: testApps, tasks: map[uuid.UUID]report.Task{task.UUID: task}}
	gateway := &fakeGateway{err: report.ErrUpstream}
	h := NewHandlers(lc, gateway, &fakeFiles{}, &memoryQueue{})

	err := h.DeleteExternalTask(context.Background(), rawPayload(t, DeleteExternalTaskPayload{TaskUUID: task.UUID}))
	if err == nil || isPermanent(err) {
		t.Fatalf("DeleteExternalTask() error = %v, want retryable", err)
	}
}

func TestInspectAttachmentAndRemoveFile(t *testing.T) {
	lc := &fakeLifecycle{attachments: map[uint64]report.Attachment{4: {ID: 4, File: "a.png"}}}
	files := &fakeFiles{}
	h := NewHandlers(lc, &fakeGateway{}, files, &memoryQueue{})
	ctx := context.Background()

	if err := h.InspectAttachment(ctx, rawPayload(t, InspectAttachmentPayload{AttachmentID: 4})); err != nil {
		t.Fatalf("InspectAttachment() error = %v", err)
	}
	if info := lc.inspected[4]; info.MimeType != "image/png" || !info.IsImage {
		t.Fatalf("inspected = %+v", lc.inspected)
	}
	if err := h.InspectAttachment(ctx, rawPayload(t, InspectAttachmentPayload{AttachmentID: 5})); !isPermanent(err) {
		t.Fatalf("InspectAttachment() missing error = %v, want permanent", err)
	}

	if err := h.RemoveFile(ctx, rawPayload(t, RemoveFilePayload{Path: "a.png"})); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if len(files.removed) != 1 {
		t.Fatalf("removed = %v", files.removed)
	}
	if err := h.RemoveFile(ctx, rawPayload(t, RemoveFilePayload{})); !isPermanent(err) {
		t.Fatalf("RemoveFile() empty path error = %v, want permanent", err)
	}
}

func TestRefreshAndRegisterHandlers(t *testing.T) {
	lc := &fakeLifecycle{refreshErr: report.ErrReportNotFound}
	h := NewHandlers(lc, &fakeGateway{}, &fakeFiles{}, &memoryQueue{})
	ctx := context.Background()

	if err := h.RefreshDerivedState(ctx, rawPayload(t, RefreshDerivedStatePayload{ReportID: 1})); !isPermanent(err) {
		t.Fatalf("RefreshDerivedState() error = %v, want permanent for missing report", err)
	}
	if err := h.CreateExternalTask(ctx, rawPayload(t, CreateExternalTaskPayload{TaskID: 8})); err != nil {
		t.Fatalf("CreateExternalTask() error = %v", err)
	}
	if len(lc.registered) != 1 || lc.registered[0] != 8 {
		t.Fatalf("registered = %v", lc.registered)
	}
	if err := h.CreateExternalTask(ctx, json.RawMessage(`{`)); !isPermanent(err) {
		t.Fatalf("CreateExternalTask() bad payload error = %v, want permanent", err)
	}
}
