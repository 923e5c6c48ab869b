package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Engineer mirrors the external engineer directory. Rows are synced by the
// directory service; this service only reads them.
type Engineer struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Engineer) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Reporter mirrors the external end-user directory.
type Reporter struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Reporter) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// EngineerWorkload counts the non-terminal complaints bound to an engineer.
type EngineerWorkload struct {
	EngineerID       uuid.UUID `gorm:"type:uuid;primary_key" json:"engineer_id"`
	ActiveComplaints int64     `gorm:"not null;default:0" json:"active_complaints"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WorkloadEvent is published after a write changes an engineer's workload.
type WorkloadEvent struct {
	EngineerID  uuid.UUID     `json:"engineer_id"`
	ComplaintID uuid.UUID     `json:"complaint_id"`
	Delta       int64         `json:"delta"`
	Action      HistoryAction `json:"action"`
	At          time.Time     `json:"at"`
}
