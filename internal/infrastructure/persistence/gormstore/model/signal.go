package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Signal struct {
	ID                uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	UUID              uuid.UUID         `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	SignalURL         string            `gorm:"column:signal_url;type:text;not null;default:''"`
	SourceID          string            `gorm:"column:source_id;type:varchar(255);not null;uniqueIndex:idx_signal_source"`
	SourceSignalID    string            `gorm:"column:source_signal_id;type:varchar(255);not null;uniqueIndex:idx_signal_source"`
	OriginalCreatedAt time.Time         `gorm:"column:original_created_at;not null"`
	CreatedAt         time.Time         `gorm:"column:created_at;not null"`
	Urgency           float64           `gorm:"column:urgency;type:double precision;not null"`
	Description       string            `gorm:"column:description;type:text;not null;default:''"`
	Meta              datatypes.JSONMap `gorm:"column:meta"`
	MetaExtended      datatypes.JSONMap `gorm:"column:meta_extended"`
	ReportID          *uint64           `gorm:"column:report_id;index"`
}

func (Signal) TableName() string {
	return "signals"
}

type SignalSubject struct {
	SignalID   uint64 `gorm:"column:signal_id;primaryKey"`
	SubjectURL string `gorm:"column:subject_url;type:varchar(512);primaryKey"`
	Position   int    `gorm:"column:position;not null;default:0"`
}

func (SignalSubject) TableName() string {
	return "signal_subjects"
}

type Reporter struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	SignalID  uint64 `gorm:"column:signal_id;not null;uniqueIndex"`
	FirstName string `gorm:"column:first_name;type:text;not null;default:''"`
	LastName  string `gorm:"column:last_name;type:text;not null;default:''"`
	Name      string `gorm:"column:name;type:text;not null;default:''"`
	Email     string `gorm:"column:email;type:text;not null;default:''"`
	Phone     string `gorm:"column:phone;type:text;not null;default:''"`
}

func (Reporter) TableName() string {
	return "reporters"
}
