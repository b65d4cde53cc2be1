package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
)

type ReportFilter struct {
	Statuses []report.StatusName
	OpenOnly bool
	Limit    int
}

// DedupQuery narrows the reports a signal may be attached to.
type DedupQuery struct {
	Subject      string
	CreatedAfter time.Time
}

type DedupCandidate struct {
	Report   report.Report
	Location *report.Location
}

// DerivedUpdate writes only the non-nil derived columns.
type DerivedUpdate struct {
	SearchText          *string
	ThumbnailID         *uint64
	ReferenceLocationID *uint64
}

type ReportReadRepository interface {
	GetReport(ctx context.Context, reportID uint64) (report.Report, error)
	GetReportByUUID(ctx context.Context, reportUUID uuid.UUID) (report.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]report.Report, error)
	ListStatuses(ctx context.Context, reportID uint64) ([]report.Status, error)
	ListEvents(ctx context.Context, reportID uint64) ([]report.ReportEvent, error)
	FindEventBySignal(ctx context.Context, signalID uint64) (report.ReportEvent, bool, error)
	ListDedupCandidates(ctx context.Context, query DedupQuery) ([]DedupCandidate, error)

	GetSignalByUUID(ctx context.Context, signalUUID uuid.UUID) (report.Signal, error)
	FindSignalBySource(ctx context.Context, sourceID string, sourceSignalID string) (report.Signal, bool, error)
	ListSignals(ctx context.Context, reportID uint64) ([]report.Signal, error)

	GetLocation(ctx context.Context, locationID uint64) (report.Location, error)
	ListLocations(ctx context.Context, reportID uint64) ([]report.Location, error)

	GetAttachment(ctx context.Context, attachmentID uint64) (report.Attachment, error)
	ListAttachments(ctx context.Context, owners ...report.AttachmentOwner) ([]report.Attachment, error)
	ListReportAttachments(ctx context.Context, reportID uint64) ([]report.Attachment, error)
}

type ReportRepository interface {
	ReportReadRepository

	// LockReport claims the report row without waiting and fails with
	// report.ErrReportInUse when another transaction holds it.
	LockReport(ctx context.Context, reportID uint64) (report.Report, error)

	CreateReport(ctx context.Context, r report.Report) (report.Report, error)
	UpdateReport(ctx context.Context, r report.Report) error
	UpdateDerived(ctx context.Context, reportID uint64, update DerivedUpdate) error
	DeleteReportCascade(ctx context.Context, reportID uint64) (map[string]int64, error)

	CreateStatus(ctx context.Context, status report.Status) (report.Status, error)
	CreateEvent(ctx context.Context, event report.ReportEvent) (report.ReportEvent, error)
	CreateEvents(ctx context.Context, events []report.ReportEvent) ([]report.ReportEvent, error)
	BackdateEvent(ctx context.Context, eventID uint64, createdAt time.Time) error

	// LockSignal serialises report creation for one signal; a held lock
	// fails with report.ErrReportInUse.
	LockSignal(ctx context.Context, signalID uint64) (report.Signal, error)
	CreateSignal(ctx context.Context, signal report.Signal) (report.Signal, error)
	LinkSignal(ctx context.Context, signalID uint64, reportID uint64) error

	CreateLocation(ctx context.Context, location report.Location) (report.Location, error)
	DemoteLocations(ctx context.Context, reportID uint64) error

	CreateAttachments(ctx context.Context, attachments []report.Attachment) ([]report.Attachment, error)
	UpdateAttachmentInspection(ctx context.Context, attachmentID uint64, mimeType string, isImage bool) error
}
