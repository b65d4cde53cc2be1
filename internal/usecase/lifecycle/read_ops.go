package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
)

// ReportDetail is a report with its history.
type ReportDetail struct {
	Report    report.Report
	Statuses  []report.Status
	Events    []report.ReportEvent
	Tasks     []report.Task
	Signals   []report.Signal
	Locations []report.Location
}

type TaskDetail struct {
	Task   report.Task
	Events []report.TaskEvent
}

func (s *Service) GetReport(ctx context.Context, reportUUID uuid.UUID) (ReportDetail, error) {
	if err := s.ready(ctx); err != nil {
		return ReportDetail{}, err
	}

	item, err := s.reports.GetReportByUUID(ctx, reportUUID)
	if err != nil {
		return ReportDetail{}, err
	}
	detail := ReportDetail{Report: item}
	if detail.Statuses, err = s.reports.ListStatuses(ctx, item.ID); err != nil {
		return ReportDetail{}, err
	}
	if detail.Events, err = s.reports.ListEvents(ctx, item.ID); err != nil {
		return ReportDetail{}, err
	}
	if detail.Tasks, err = s.tasks.ListTasks(ctx, item.ID); err != nil {
		return ReportDetail{}, err
	}
	if detail.Signals, err = s.reports.ListSignals(ctx, item.ID); err != nil {
		return ReportDetail{}, err
	}
	if detail.Locations, err = s.reports.ListLocations(ctx, item.ID); err != nil {
		return ReportDetail{}, err
	}
	return detail, nil
}

func (s *Service) ListReports(ctx context.Context, filter ports.ReportFilter) ([]report.Report, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.reports.ListReports(ctx, filter)
}

func (s *Service) GetTask(ctx context.Context, taskUUID uuid.UUID) (TaskDetail, error) {
	if err := s.ready(ctx); err != nil {
		return TaskDetail{}, err
	}

	task, err := s.tasks.GetTaskByUUID(ctx, taskUUID)
	if err != nil {
		return TaskDetail{}, err
	}
	events, err := s.tasks.ListTaskEvents(ctx, task.ID)
	if err != nil {
		return TaskDetail{}, err
	}
	return TaskDetail{Task: task, Events: events}, nil
}

// ListApplications returns the registered task applications.
func (s *Service) ListApplications(ctx context.Context) ([]report.Application, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.tasks.ListApplications(ctx)
}

// SyncApplications upserts applications by name.
func (s *Service) SyncApplications(ctx context.Context, apps []report.Application) ([]report.Application, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	synced := make([]report.Application, 0, len(apps))
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		for _, app := range apps {
			stored, err := s.tasks.UpsertApplication(txCtx, app)
			if err != nil {
				return err
			}
			synced = append(synced, stored)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return synced, nil
}

// InspectAttachment stores the detected mime type of an attachment.
func (s *Service) InspectAttachment(ctx context.Context, attachmentID uint64, info ports.FileInfo) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.reports.GetAttachment(ctx, attachmentID); err != nil {
		return err
	}
	return s.reports.UpdateAttachmentInspection(ctx, attachmentID, info.MimeType, info.IsImage)
}

func (s *Service) GetAttachment(ctx context.Context, attachmentID uint64) (report.Attachment, error) {
	if err := s.ready(ctx); err != nil {
		return report.Attachment{}, err
	}
	return s.reports.GetAttachment(ctx, attachmentID)
}
