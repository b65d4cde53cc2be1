package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
	"morcore/internal/usecase/lifecycle"
)

// Lifecycle is the part of the lifecycle service the handlers drive.
type Lifecycle interface {
	RefreshDerivedState(ctx context.Context, reportID uint64) (lifecycle.DerivedState, error)
	RegisterExternalTask(ctx context.Context, taskID uint64) (report.Task, error)
	GetReport(ctx context.Context, reportUUID uuid.UUID) (lifecycle.ReportDetail, error)
	GetTask(ctx context.Context, taskUUID uuid.UUID) (lifecycle.TaskDetail, error)
	ListApplications(ctx context.Context) ([]report.Application, error)
	GetAttachment(ctx context.Context, attachmentID uint64) (report.Attachment, error)
	InspectAttachment(ctx context.Context, attachmentID uint64, info ports.FileInfo) error
}

// Handlers implements the job kinds scheduled by the job dispatcher.
type Handlers struct {
	lifecycle Lifecycle
	gateway   ports.ApplicationGateway
	files     ports.FileStore
	queue     ports.JobQueue
}

func NewHandlers(lc Lifecycle, gateway ports.ApplicationGateway, files ports.FileStore, queue ports.JobQueue) *Handlers {
	return &Handlers{lifecycle: lc, gateway: gateway, files: files, queue: queue}
}

// RegisterAll registers every handler on the runner.
func (h *Handlers) RegisterAll(r *Runner) {
	r.Register(KindRefreshDerivedState, h.RefreshDerivedState)
	r.Register(KindNotifyReportChanged, h.NotifyReportChanged)
	r.Register(KindCreateExternalTask, h.CreateExternalTask)
	r.Register(KindDeleteExternalTask, h.DeleteExternalTask)
	r.Register(KindNotifyReportClosed, h.NotifyReportClosed)
	r.Register(KindInspectAttachment, h.InspectAttachment)
	r.Register(KindRemoveFile, h.RemoveFile)
}

func (h *Handlers) RefreshDerivedState(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[RefreshDerivedStatePayload](raw)
	if err != nil {
		return err
	}
	_, err = h.lifecycle.RefreshDerivedState(ctx, payload.ReportID)
	return permanentFor(err)
}

func (h *Handlers) NotifyReportChanged(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[NotifyReportChangedPayload](raw)
	if err != nil {
		return err
	}
	if payload.ReportURL == "" || payload.ChangeType == "" {
		return backoff.Permanent(errors.New("report url and change type are required"))
	}

	apps, err := h.lifecycle.ListApplications(ctx)
	if err != nil {
		return err
	}
	if payload.ApplicationID == 0 {
		for _, app := range apps {
			if err := h.queue.Enqueue(ctx, ports.Job{
				Kind: KindNotifyReportChanged,
				Payload: NotifyReportChangedPayload{
					ApplicationID: app.ID,
					ReportURL:     payload.ReportURL,
					ChangeType:    payload.ChangeType,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	}

	app, ok := applicationByID(apps, payload.ApplicationID)
	if !ok {
		return backoff.Permanent(fmt.Errorf("%w: id %d", report.ErrApplicationNotFound, payload.ApplicationID))
	}
	return h.gateway.NotifyReportChanged(ctx, app, payload.ReportURL, payload.ChangeType)
}

func (h *Handlers) CreateExternalTask(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[CreateExternalTaskPayload](raw)
	if err != nil {
		return err
	}
	_, err = h.lifecycle.RegisterExternalTask(ctx, payload.TaskID)
	return permanentFor(err)
}

func (h *Handlers) DeleteExternalTask(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[DeleteExternalTaskPayload](raw)
	if err != nil {
		return err
	}
	detail, err := h.lifecycle.GetTask(ctx, payload.TaskUUID)
	if err != nil {
		return permanentFor(err)
	}
	if detail.Task.TaskURL == "" {
		logging.Info(ctx, "task has no external url, nothing to delete", slog.String("task_uuid", payload.TaskUUID.String()))
		return nil
	}

	apps, err := h.lifecycle.ListApplications(ctx)
	if err != nil {
		return err
	}
	app, ok := applicationByID(apps, detail.Task.ApplicationID)
	if !ok {
		return backoff.Permanent(fmt.Errorf("%w: id %d", report.ErrApplicationNotFound, detail.Task.ApplicationID))
	}
	return h.gateway.DeleteTask(ctx, app, detail.Task.TaskURL, payload.Actor)
}

func (h *Handlers) NotifyReportClosed(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[NotifyReportClosedPayload](raw)
	if err != nil {
		return err
	}

	if payload.SignalURL == "" {
		detail, err := h.lifecycle.GetReport(ctx, payload.ReportUUID)
		if err != nil {
			return permanentFor(err)
		}
		for _, signal := range detail.Signals {
			if signal.SignalURL == "" {
				continue
			}
			if err := h.queue.Enqueue(ctx, ports.Job{
				Kind:    KindNotifyReportClosed,
				Payload: NotifyReportClosedPayload{ReportUUID: payload.ReportUUID, SignalURL: signal.SignalURL},
			}); err != nil {
				return err
			}
		}
		return nil
	}

	apps, err := h.lifecycle.ListApplications(ctx)
	if err != nil {
		return err
	}
	app, ok := report.MatchApplication(apps, payload.SignalURL)
	if !ok {
		logging.Warn(ctx, "no application serves the signal source, report closed notification skipped",
			slog.String("signal_url", payload.SignalURL))
		return nil
	}
	return h.gateway.NotifySignalReportClosed(ctx, app, payload.SignalURL)
}

func (h *Handlers) InspectAttachment(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[InspectAttachmentPayload](raw)
	if err != nil {
		return err
	}
	attachment, err := h.lifecycle.GetAttachment(ctx, payload.AttachmentID)
	if err != nil {
		return permanentFor(err)
	}
	info, err := h.files.Inspect(ctx, attachment.File)
	if err != nil {
		return errs.Wrapf(err, "inspect %s", attachment.File)
	}
	return permanentFor(h.lifecycle.InspectAttachment(ctx, attachment.ID, info))
}

func (h *Handlers) RemoveFile(ctx context.Context, raw json.RawMessage) error {
	payload, err := decode[RemoveFilePayload](raw)
	if err != nil {
		return err
	}
	if payload.Path == "" {
		return backoff.Permanent(errors.New("file path is required"))
	}
	return h.files.Remove(ctx, payload.Path)
}

func applicationByID(apps []report.Application, id uint64) (report.Application, bool) {
	for _, app := range apps {
		if app.ID == id {
			return app, true
		}
	}
	return report.Application{}, false
}
