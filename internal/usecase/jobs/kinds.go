package jobs

import "github.com/google/uuid"

// Job kinds stored in the queue.
const (
	KindRefreshDerivedState = "report.refresh_derived_state"
	KindNotifyReportChanged = "application.notify_report_changed"
	KindCreateExternalTask  = "task.create_external"
	KindDeleteExternalTask  = "task.delete_external"
	KindNotifyReportClosed  = "signal.notify_report_closed"
	KindInspectAttachment   = "attachment.inspect"
	KindRemoveFile          = "file.remove"
)

// Change types sent to applications with a report changed notification.
const (
	ChangeSignalCreated    = "signaal_aangemaakt"
	ChangeStatusChanged    = "status_aangepast"
	ChangeUrgencyChanged   = "urgentie_aangepast"
	ChangeClosed           = "afgesloten"
	ChangeEventAdded       = "gebeurtenis_toegevoegd"
	ChangeReportDeleted    = "melding_verwijderd"
	ChangeTaskCreated      = "taakopdracht_aangemaakt"
	ChangeTaskNotification = "taakopdracht_notificatie"
	ChangeTaskDeleted      = "taakopdracht_verwijderd"
)

type RefreshDerivedStatePayload struct {
	ReportID uint64 `json:"report_id"`
}

// NotifyReportChangedPayload without an application id fans out into one
// job per registered application.
type NotifyReportChangedPayload struct {
	ApplicationID uint64 `json:"application_id,omitempty"`
	ReportURL     string `json:"report_url"`
	ChangeType    string `json:"change_type"`
}

type CreateExternalTaskPayload struct {
	TaskID uint64 `json:"task_id"`
}

type DeleteExternalTaskPayload struct {
	TaskUUID uuid.UUID `json:"task_uuid"`
	Actor    string    `json:"actor,omitempty"`
}

// NotifyReportClosedPayload without a signal url fans out into one job per
// signal of the report.
type NotifyReportClosedPayload struct {
	ReportUUID uuid.UUID `json:"report_uuid"`
	SignalURL  string    `json:"signal_url,omitempty"`
}

type InspectAttachmentPayload struct {
	AttachmentID uint64 `json:"attachment_id"`
}

type RemoveFilePayload struct {
	Path      string `json:"path"`
	ReportURL string `json:"report_url,omitempty"`
}
