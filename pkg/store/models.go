package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names follow the logical schema
// contract consumed by reporting and the presentation layer.
type BookingModel struct {
	ID              string    `gorm:"primaryKey"`
	ExpertID        string    `gorm:"not null;index:idx_bookings_expert_date"`
	SeekerID        string    `gorm:"not null;index"`
	Date            time.Time `gorm:"type:date;not null;index:idx_bookings_expert_date"`
	StartTime       time.Time `gorm:"not null"`
	EndTime         time.Time `gorm:"not null"`
	SessionType     string    `gorm:"size:10;not null"`
	Status          string    `gorm:"size:20;not null;index"`
	Amount          float64   `gorm:"type:numeric(10,2);not null"`
	Notes           string    `gorm:"type:text"`
	RejectionReason string    `gorm:"type:text"`
	SeekerRead      bool      `gorm:"not null;default:false"`
	ExpertRead      bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookingModel) TableName() string { return "bookings" }

type AvailabilityModel struct {
	ExpertID  string `gorm:"primaryKey;size:64"`
	DayOfWeek int    `gorm:"primaryKey"`
	StartTime string `gorm:"size:5;not null"`
	EndTime   string `gorm:"size:5;not null"`
}

func (AvailabilityModel) TableName() string { return "availability" }

type NotificationModel struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	UserID     string         `gorm:"not null;index"`
	Type       string         `gorm:"size:30;not null"`
	Message    string         `gorm:"type:text;not null"`
	RelatedID  *string        `gorm:"index"`
	Data       datatypes.JSON `gorm:"type:jsonb"`
	ReadStatus bool           `gorm:"not null;default:false"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

func (NotificationModel) TableName() string { return "notifications" }
