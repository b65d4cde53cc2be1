package model

import (
	"time"

	"github.com/google/uuid"
)

type Location struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ReportID    *uint64   `gorm:"column:report_id;index"`
	SignalID    *uint64   `gorm:"column:signal_id;index"`
	Type        string    `gorm:"column:location_type;type:varchar(16);not null"`
	Street      string    `gorm:"column:street;type:text;not null;default:''"`
	HouseNumber *int      `gorm:"column:house_number"`
	HouseLetter string    `gorm:"column:house_letter;type:text;not null;default:''"`
	Suffix      string    `gorm:"column:suffix;type:text;not null;default:''"`
	Postcode    string    `gorm:"column:postcode;type:text;not null;default:''"`
	City        string    `gorm:"column:city;type:text;not null;default:''"`
	District    string    `gorm:"column:district;type:text;not null;default:''"`
	Cemetery    string    `gorm:"column:cemetery;type:text;not null;default:''"`
	GraveNumber string    `gorm:"column:grave_number;type:text;not null;default:''"`
	Section     string    `gorm:"column:section;type:text;not null;default:''"`
	LamppostID  string    `gorm:"column:lamppost_id;type:text;not null;default:''"`
	Lat         *float64  `gorm:"column:lat;type:double precision"`
	Lon         *float64  `gorm:"column:lon;type:double precision"`
	Weight      float64   `gorm:"column:weight;type:double precision;not null;default:0.2"`
	IsPrimary   bool      `gorm:"column:is_primary;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (Location) TableName() string {
	return "locations"
}

type Attachment struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UUID       uuid.UUID `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	OwnerKind  string    `gorm:"column:owner_kind;type:varchar(16);not null;index:idx_attachment_owner"`
	OwnerID    uint64    `gorm:"column:owner_id;not null;index:idx_attachment_owner"`
	File       string    `gorm:"column:file;type:text;not null"`
	Image      string    `gorm:"column:image;type:text;not null;default:''"`
	ImageThumb string    `gorm:"column:image_thumb;type:text;not null;default:''"`
	MimeType   string    `gorm:"column:mime_type;type:text;not null;default:''"`
	IsImage    bool      `gorm:"column:is_image;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (Attachment) TableName() string {
	return "attachments"
}
