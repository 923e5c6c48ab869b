package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IssueType is an entry of the per-complaint-type issue catalog
// (e.g. WIFI > "No internet", CCTV > "Camera offline").
type IssueType struct {
	ID            uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ComplaintType ComplaintType  `gorm:"size:10;not null;index" json:"complaint_type"`
	Name          string         `gorm:"not null;size:100" json:"name"`
	Description   string         `gorm:"size:500" json:"description"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	SortOrder     int            `gorm:"default:0" json:"sort_order"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (i *IssueType) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

type IssueTypeResponse struct {
	ID            uuid.UUID     `json:"id"`
	ComplaintType ComplaintType `json:"complaint_type"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	SortOrder     int           `json:"sort_order"`
}

func ToIssueTypeResponse(i *IssueType) IssueTypeResponse {
	return IssueTypeResponse{
		ID:            i.ID,
		ComplaintType: i.ComplaintType,
		Name:          i.Name,
		Description:   i.Description,
		SortOrder:     i.SortOrder,
	}
}
