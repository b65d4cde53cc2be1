package report

import (
	"time"

	"github.com/google/uuid"
)

type Resolution string

const (
	ResolutionResolved   Resolution = "resolved"
	ResolutionUnresolved Resolution = "unresolved"
)

// Report is the deduplicated unit of work built from one or more signals.
type Report struct {
	ID                    uint64
	UUID                  uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
	OriginalCreatedAt     time.Time
	ClosedAt              *time.Time
	Urgency               float64
	Meta                  map[string]any
	MetaExtended          map[string]any
	Resolution            *Resolution
	CloseReason           *string
	StatusID              *uint64
	Status                *Status
	ReferenceLocationID   *uint64
	ThumbnailAttachmentID *uint64
	SearchText            string
	Subjects              []string
}

// CurrentStatusName returns an empty name for a report without status.
func (r Report) CurrentStatusName() StatusName {
	if r.Status == nil {
		return ""
	}
	return r.Status.Name
}

func (r Report) IsClosed() bool {
	if r.Status != nil {
		return IsTerminal(r.Status.Name)
	}
	return r.ClosedAt != nil
}

func (r Report) IsPaused() bool {
	return r.Status != nil && IsPausedStatus(r.Status.Name)
}

// PrimarySubject is the subject used for deduplication.
func (r Report) PrimarySubject() string {
	if len(r.Subjects) == 0 {
		return ""
	}
	return r.Subjects[0]
}

// Status is one row per transition; the report points at the latest one.
type Status struct {
	ID        uint64
	ReportID  uint64
	Name      StatusName
	CreatedAt time.Time
}

type EventType string

const (
	EventStandard          EventType = "standard"
	EventStatusChanged     EventType = "status_changed"
	EventReportCreated     EventType = "report_created"
	EventTaskCreated       EventType = "task_created"
	EventTaskDeleted       EventType = "task_deleted"
	EventTaskNotification  EventType = "task_notification"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventLocationCreated   EventType = "location_created"
	EventSignalAttached    EventType = "signal_attached"
	EventUrgencyChanged    EventType = "urgency_changed"
	EventReportReopened    EventType = "report_reopened"
)

var eventTypes = map[EventType]struct{}{
	EventStandard:          {},
	EventStatusChanged:     {},
	EventReportCreated:     {},
	EventTaskCreated:       {},
	EventTaskDeleted:       {},
	EventTaskNotification:  {},
	EventTaskStatusChanged: {},
	EventLocationCreated:   {},
	EventSignalAttached:    {},
	EventUrgencyChanged:    {},
	EventReportReopened:    {},
}

func IsKnownEventType(t EventType) bool {
	_, ok := eventTypes[t]
	return ok
}

// ReportEvent is an append-only history row of a report.
type ReportEvent struct {
	ID                  uint64
	UUID                uuid.UUID
	ReportID            uint64
	Type                EventType
	CreatedAt           time.Time
	StatusID            *uint64
	Urgency             *float64
	DescriptionInternal string
	DescriptionExternal string
	Actor               string
	TaskID              *uint64
	TaskEventID         *uint64
	LocationID          *uint64
	SignalID            *uint64
	Resolution          *Resolution
	CloseReason         *string
}

// Signal is one external report; ReportID stays nil until it is attached.
type Signal struct {
	ID                uint64
	UUID              uuid.UUID
	SignalURL         string
	SourceID          string
	SourceSignalID    string
	OriginalCreatedAt time.Time
	CreatedAt         time.Time
	Urgency           float64
	Description       string
	Meta              map[string]any
	MetaExtended      map[string]any
	ReportID          *uint64
	Reporter          *Reporter
	Subjects          []string
	Locations         []Location
	Attachments       []Attachment
}

type Reporter struct {
	ID        uint64
	SignalID  uint64
	FirstName string
	LastName  string
	Name      string
	Email     string
	Phone     string
}

// Application is an external field-service system that owns tasks.
type Application struct {
	ID            uint64
	Name          string
	BaseURL       string
	ValidBaseURLs []string
	Username      string
	Password      string
	TaskTypes     []string
}
