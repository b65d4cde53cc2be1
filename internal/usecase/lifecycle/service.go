package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// Config holds the tunables of the lifecycle rules.
type Config struct {
	BaseURL               string
	DefaultUrgency        float64
	HighPriorityName      string
	HighPriorityUrgency   float64
	InitialLocationWeight float64
	DedupEnabled          bool
	DedupMaxDistance      float64
	DedupWindow           time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:               "http://localhost:8000",
		DefaultUrgency:        0.2,
		HighPriorityName:      "high",
		HighPriorityUrgency:   0.5,
		InitialLocationWeight: 0.25,
		DedupEnabled:          true,
		DedupMaxDistance:      25,
		DedupWindow:           72 * time.Hour,
	}
}

type Service struct {
	reports    ports.ReportRepository
	tasks      ports.TaskRepository
	uow        ports.UnitOfWork
	dispatcher ports.Dispatcher
	subjects   ports.SubjectCatalog
	gateway    ports.ApplicationGateway
	policy     report.MatchPolicy
	cfg        Config
	sanitizer  *bluemonday.Policy
	now        func() time.Time
}

type Option func(*Service)

func WithDispatcher(d ports.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithSubjectCatalog(c ports.SubjectCatalog) Option {
	return func(s *Service) { s.subjects = c }
}

func WithApplicationGateway(g ports.ApplicationGateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithMatchPolicy replaces the proximity policy built from Config.
func WithMatchPolicy(p report.MatchPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the lifecycle operations with repositories and a unit of work.
func NewService(reports ports.ReportRepository, tasks ports.TaskRepository, uow ports.UnitOfWork, cfg Config, opts ...Option) *Service {
	s := &Service{
		reports: reports,
		tasks:   tasks,
		uow:     uow,
		cfg:     cfg,
		policy: report.ProximityPolicy{
			MaxDistanceMeters: cfg.DedupMaxDistance,
			Window:            cfg.DedupWindow,
		},
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SignalInput struct {
	SignalURL         string
	SourceID          string
	SourceSignalID    string
	OriginalCreatedAt time.Time
	Urgency           *float64
	Description       string
	Meta              map[string]any
	MetaExtended      map[string]any
	Reporter          *report.Reporter
	Subjects          []string
	Locations         []report.Location
	Attachments       []report.Attachment
}

// AttachResult describes what happened to a signal. Replayed is set when
// the signal had already been processed.
type AttachResult struct {
	Report    report.Report
	Signal    report.Signal
	Event     report.ReportEvent
	Created   bool
	Duplicate bool
	Replayed  bool
}

// SignalCandidate is the part of a signal the duplicate resolver looks at.
type SignalCandidate struct {
	Subjects  []string
	Locations []report.Location
	CreatedAt time.Time
}

type ChangeUrgencyInput struct {
	ReportUUID          uuid.UUID
	Urgency             float64
	Actor               string
	DescriptionInternal string
}

type ChangeStatusInput struct {
	ReportUUID          uuid.UUID
	Status              report.StatusName
	Actor               string
	DescriptionInternal string
	DescriptionExternal string
	Resolution          *report.Resolution
	CloseReason         *string
}

type AddEventInput struct {
	ReportUUID          uuid.UUID
	Type                report.EventType
	Actor               string
	DescriptionInternal string
	DescriptionExternal string
	Location            *report.Location
	Attachments         []report.Attachment
}

type CreateTaskInput struct {
	ReportUUID     uuid.UUID
	TaskType       string
	Title          string
	Message        string
	Actor          string
	AdditionalInfo map[string]any
}

// TaskNotificationInput is a status report from the application owning a
// task. CreatedAt is the upstream event time and the deduplication key.
type TaskNotificationInput struct {
	TaskUUID            uuid.UUID
	CreatedAt           time.Time
	Status              *report.TaskStatusName
	Resolution          *report.TaskResolution
	ResolutionRevised   bool
	Actor               string
	DescriptionInternal string
	AdditionalInfo      map[string]any
	Attachments         []report.Attachment
}

type TaskNotificationResult struct {
	Report    report.Report
	Task      report.Task
	TaskEvent report.TaskEvent
	Reopened  bool
	Discarded bool
}

type ChangeTaskStatusInput struct {
	TaskUUID             uuid.UUID
	Status               report.TaskStatusName
	Resolution           *report.TaskResolution
	ExternallyUnresolved bool
	Actor                string
	DescriptionInternal  string
}

type DeleteTaskInput struct {
	TaskUUID uuid.UUID
	Actor    string
}

// DerivedState is what RefreshDerivedState wrote back.
type DerivedState struct {
	ReportID            uint64
	SearchText          string
	ThumbnailID         *uint64
	ReferenceLocationID *uint64
}

func (s *Service) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.reports == nil {
		return errors.New("report repository is required")
	}
	if s.tasks == nil {
		return errors.New("task repository is required")
	}
	if s.uow == nil {
		return errors.New("unit of work is required")
	}
	return nil
}
