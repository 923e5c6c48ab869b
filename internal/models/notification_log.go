package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationStatus string

const (
	NotificationSent     NotificationStatus = "sent"
	NotificationFailed   NotificationStatus = "failed"
	NotificationMockSent NotificationStatus = "mock-sent"
)

// NotificationLog records one happy-code delivery attempt. The code itself is never stored.
type NotificationLog struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ComplaintID  uuid.UUID          `gorm:"type:uuid;index;not null" json:"complaint_id"`
	Channel      string             `gorm:"size:20;not null" json:"channel"`
	Recipient    string             `gorm:"size:255" json:"recipient"`
	Subject      string             `gorm:"type:text" json:"subject,omitempty"`
	Status       NotificationStatus `gorm:"size:20;not null" json:"status"`
	Provider     string             `gorm:"size:50" json:"provider"` // smtp | mock
	ErrorMessage string             `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (l *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
