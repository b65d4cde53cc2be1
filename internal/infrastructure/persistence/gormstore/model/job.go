package model

import (
	"time"

	"gorm.io/datatypes"
)

type Job struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Kind        string         `gorm:"column:kind;type:varchar(64);not null;index"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	State       string         `gorm:"column:state;type:varchar(16);not null;index:idx_job_due"`
	Attempts    int            `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int            `gorm:"column:max_attempts;not null"`
	RunAt       time.Time      `gorm:"column:run_at;not null;index:idx_job_due"`
	LastError   string         `gorm:"column:last_error;type:text;not null;default:''"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (Job) TableName() string {
	return "jobs"
}

type CacheEntry struct {
	Key       string     `gorm:"column:key;type:varchar(255);primaryKey"`
	Value     string     `gorm:"column:value;type:text;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}

type SchemaMeta struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key;type:varchar(255);uniqueIndex;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
