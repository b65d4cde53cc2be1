package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Report struct {
	ID                    uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	UUID                  uuid.UUID         `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	CreatedAt             time.Time         `gorm:"column:created_at;not null;index"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;not null"`
	OriginalCreatedAt     time.Time         `gorm:"column:original_created_at;not null"`
	ClosedAt              *time.Time        `gorm:"column:closed_at"`
	Urgency               float64           `gorm:"column:urgency;type:double precision;not null;default:0.2"`
	Meta                  datatypes.JSONMap `gorm:"column:meta"`
	MetaExtended          datatypes.JSONMap `gorm:"column:meta_extended"`
	Resolution            *string           `gorm:"column:resolution;type:text"`
	CloseReason           *string           `gorm:"column:close_reason;type:text"`
	StatusID              *uint64           `gorm:"column:status_id;index"`
	ReferenceLocationID   *uint64           `gorm:"column:reference_location_id"`
	ThumbnailAttachmentID *uint64           `gorm:"column:thumbnail_attachment_id"`
	SearchText            string            `gorm:"column:search_text;type:text;not null;default:''"`
}

func (Report) TableName() string {
	return "reports"
}

type ReportSubject struct {
	ReportID   uint64 `gorm:"column:report_id;primaryKey"`
	SubjectURL string `gorm:"column:subject_url;type:varchar(512);primaryKey"`
	Position   int    `gorm:"column:position;not null;default:0"`
}

func (ReportSubject) TableName() string {
	return "report_subjects"
}

type Status struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ReportID  uint64    `gorm:"column:report_id;not null;index"`
	Name      string    `gorm:"column:name;type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Status) TableName() string {
	return "statuses"
}

type ReportEvent struct {
	ID                  uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UUID                uuid.UUID `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	ReportID            uint64    `gorm:"column:report_id;not null;index"`
	Type                string    `gorm:"column:event_type;type:varchar(32);not null"`
	CreatedAt           time.Time `gorm:"column:created_at;not null;index"`
	StatusID            *uint64   `gorm:"column:status_id"`
	Urgency             *float64  `gorm:"column:urgency;type:double precision"`
	DescriptionInternal string    `gorm:"column:description_internal;type:text;not null;default:''"`
	DescriptionExternal string    `gorm:"column:description_external;type:text;not null;default:''"`
	Actor               string    `gorm:"column:actor;type:text;not null;default:''"`
	TaskID              *uint64   `gorm:"column:task_id;index"`
	TaskEventID         *uint64   `gorm:"column:task_event_id"`
	LocationID          *uint64   `gorm:"column:location_id"`
	SignalID            *uint64   `gorm:"column:signal_id;index"`
	Resolution          *string   `gorm:"column:resolution;type:text"`
	CloseReason         *string   `gorm:"column:close_reason;type:text"`
}

func (ReportEvent) TableName() string {
	return "report_events"
}
