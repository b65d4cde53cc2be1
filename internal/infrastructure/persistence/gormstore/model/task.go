package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Task struct {
	ID                      uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	UUID                    uuid.UUID         `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	ReportID                uint64            `gorm:"column:report_id;not null;index:idx_task_report_type"`
	ApplicationID           uint64            `gorm:"column:application_id;not null;index"`
	TaskType                string            `gorm:"column:task_type;type:varchar(512);not null;index:idx_task_report_type"`
	Title                   string            `gorm:"column:title;type:text;not null"`
	Message                 string            `gorm:"column:message;type:text;not null;default:''"`
	StatusID                *uint64           `gorm:"column:status_id"`
	Resolution              *string           `gorm:"column:resolution;type:text"`
	AdditionalInfo          datatypes.JSONMap `gorm:"column:additional_info"`
	TaskURL                 string            `gorm:"column:task_url;type:text;not null;default:''"`
	CreatedAt               time.Time         `gorm:"column:created_at;not null"`
	UpdatedAt               time.Time         `gorm:"column:updated_at;not null"`
	ClosedAt                *time.Time        `gorm:"column:closed_at"`
	DeletedAt               *time.Time        `gorm:"column:deleted_at"`
	HandlingDurationSeconds *int64            `gorm:"column:handling_duration_seconds"`
}

func (Task) TableName() string {
	return "tasks"
}

type TaskStatus struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID    uint64    `gorm:"column:task_id;not null;index"`
	Name      string    `gorm:"column:name;type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (TaskStatus) TableName() string {
	return "task_statuses"
}

type TaskEvent struct {
	ID                  uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	UUID                uuid.UUID         `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	TaskID              uint64            `gorm:"column:task_id;not null;index:idx_task_event_time"`
	TaskStatusID        *uint64           `gorm:"column:task_status_id"`
	Resolution          *string           `gorm:"column:resolution;type:text"`
	DescriptionInternal string            `gorm:"column:description_internal;type:text;not null;default:''"`
	Actor               string            `gorm:"column:actor;type:text;not null;default:''"`
	AdditionalInfo      datatypes.JSONMap `gorm:"column:additional_info"`
	CreatedAt           time.Time         `gorm:"column:created_at;not null;index:idx_task_event_time"`
	ClosedAt            *time.Time        `gorm:"column:closed_at"`
	DeletedAt           *time.Time        `gorm:"column:deleted_at"`
}

func (TaskEvent) TableName() string {
	return "task_events"
}

type Application struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string         `gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
	BaseURL       string         `gorm:"column:base_url;type:text;not null"`
	ValidBaseURLs datatypes.JSON `gorm:"column:valid_base_urls"`
	Username      string         `gorm:"column:username;type:text;not null;default:''"`
	Password      string         `gorm:"column:password;type:text;not null;default:''"`
	TaskTypes     datatypes.JSON `gorm:"column:task_types"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null"`
}

func (Application) TableName() string {
	return "applications"
}
