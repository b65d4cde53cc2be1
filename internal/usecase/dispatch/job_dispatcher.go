package dispatch

import (
	"context"
	"errors"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
	"morcore/internal/usecase/jobs"
	"morcore/internal/usecase/lifecycle"
)

// JobDispatcher turns committed mutations into queued follow-up work:
// application notifications, external task calls, attachment inspection,
// derived-state refresh and file removal.
type JobDispatcher struct {
	queue   ports.JobQueue
	baseURL string
}

var _ ports.Dispatcher = (*JobDispatcher)(nil)

func NewJobDispatcher(queue ports.JobQueue, baseURL string) *JobDispatcher {
	return &JobDispatcher{queue: queue, baseURL: baseURL}
}

func (d *JobDispatcher) OnReportCreated(ctx context.Context, event report.ReportCreated) error {
	b := d.batch(event.Report)
	b.inspect(event.Signal.Attachments)
	b.notify(jobs.ChangeSignalCreated)
	b.refresh()
	return b.flush(ctx)
}

func (d *JobDispatcher) OnSignalAttached(ctx context.Context, event report.SignalAttached) error {
	b := d.batch(event.Report)
	b.inspect(event.Signal.Attachments)
	b.notify(jobs.ChangeSignalCreated)
	b.refresh()
	return b.flush(ctx)
}

func (d *JobDispatcher) OnStatusChanged(ctx context.Context, event report.StatusChanged) error {
	if event.Closed() {
		return d.OnReportClosed(ctx, event)
	}
	b := d.batch(event.Report)
	b.notify(jobs.ChangeStatusChanged)
	return b.flush(ctx)
}

// OnReportClosed notifies applications, removes force-closed tasks from the
// applications that own them and, for closed (not cancelled) reports, tells
// the signal sources.
func (d *JobDispatcher) OnReportClosed(ctx context.Context, event report.StatusChanged) error {
	b := d.batch(event.Report)
	b.notify(jobs.ChangeClosed)
	for _, task := range event.ForceClosedTasks {
		if task.TaskURL == "" {
			continue
		}
		b.add(jobs.KindDeleteExternalTask, jobs.DeleteExternalTaskPayload{TaskUUID: task.UUID, Actor: event.Event.Actor})
	}
	if event.Current.Name == report.StatusClosed {
		b.add(jobs.KindNotifyReportClosed, jobs.NotifyReportClosedPayload{ReportUUID: event.Report.UUID})
	}
	return b.flush(ctx)
}

func (d *JobDispatcher) OnUrgencyChanged(ctx context.Context, event report.UrgencyChanged) error {
	b := d.batch(event.Report)
	b.notify(jobs.ChangeUrgencyChanged)
	return b.flush(ctx)
}

func (d *JobDispatcher) OnEventAdded(ctx context.Context, event report.EventAdded) error {
	b := d.batch(event.Report)
	b.inspect(event.Attachments)
	b.notify(jobs.ChangeEventAdded)
	if event.Location != nil {
		b.refresh()
	}
	return b.flush(ctx)
}

func (d *JobDispatcher) OnTaskCreated(ctx context.Context, event report.TaskCreated) error {
	b := d.batch(event.Report)
	b.add(jobs.KindCreateExternalTask, jobs.CreateExternalTaskPayload{TaskID: event.Task.ID})
	b.notify(jobs.ChangeTaskCreated)
	return b.flush(ctx)
}

func (d *JobDispatcher) OnTaskStatusChanged(ctx context.Context, event report.TaskStatusChanged) error {
	b := d.batch(event.Report)
	b.inspect(event.Attachments)
	b.notify(jobs.ChangeTaskNotification)
	return b.flush(ctx)
}

func (d *JobDispatcher) OnTaskDeleted(ctx context.Context, event report.TaskDeleted) error {
	b := d.batch(event.Report)
	b.add(jobs.KindDeleteExternalTask, jobs.DeleteExternalTaskPayload{TaskUUID: event.Task.UUID, Actor: event.TaskEvent.Actor})
	b.notify(jobs.ChangeTaskDeleted)
	return b.flush(ctx)
}

func (d *JobDispatcher) OnReportDeleted(ctx context.Context, event report.ReportDeleted) error {
	b := d.batch(report.Report{ID: event.ReportID, UUID: event.ReportUUID})
	for _, path := range event.FilePaths {
		b.add(jobs.KindRemoveFile, jobs.RemoveFilePayload{Path: path, ReportURL: b.reportURL})
	}
	b.notify(jobs.ChangeReportDeleted)
	return b.flush(ctx)
}

func (d *JobDispatcher) batch(item report.Report) *batch {
	return &batch{
		queue:     d.queue,
		reportID:  item.ID,
		reportURL: lifecycle.ReportURL(d.baseURL, item.UUID),
	}
}

type batch struct {
	queue     ports.JobQueue
	reportID  uint64
	reportURL string
	jobs      []ports.Job
}

func (b *batch) add(kind string, payload any) {
	b.jobs = append(b.jobs, ports.Job{Kind: kind, Payload: payload})
}

func (b *batch) notify(changeType string) {
	b.add(jobs.KindNotifyReportChanged, jobs.NotifyReportChangedPayload{ReportURL: b.reportURL, ChangeType: changeType})
}

func (b *batch) refresh() {
	b.add(jobs.KindRefreshDerivedState, jobs.RefreshDerivedStatePayload{ReportID: b.reportID})
}

func (b *batch) inspect(attachments []report.Attachment) {
	for _, a := range attachments {
		if a.ID == 0 || a.File == "" {
			continue
		}
		b.add(jobs.KindInspectAttachment, jobs.InspectAttachmentPayload{AttachmentID: a.ID})
	}
}

// flush enqueues every job, continuing past failures.
func (b *batch) flush(ctx context.Context) error {
	if b.queue == nil {
		return errors.New("job queue is required")
	}
	var failed []error
	for _, job := range b.jobs {
		if err := b.queue.Enqueue(ctx, job); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}
