package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// MaxAttachments bounds the intake attachment list.
const MaxAttachments = 4

type ComplaintType string

const (
	ComplaintTypeWIFI ComplaintType = "WIFI"
	ComplaintTypeCCTV ComplaintType = "CCTV"
)

// ComplaintTypes lists the complaint types in reporting order.
var ComplaintTypes = []ComplaintType{ComplaintTypeWIFI, ComplaintTypeCCTV}

func (t ComplaintType) Valid() bool {
	return t == ComplaintTypeWIFI || t == ComplaintTypeCCTV
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, candidate := range Priorities {
		if p == candidate {
			return true
		}
	}
	return false
}

// Complaint is the durable record of a reported WIFI/CCTV issue.
type Complaint struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Type        ComplaintType   `gorm:"size:10;not null;index" json:"type"`
	Title       string          `gorm:"size:200;not null" json:"title"`
	IssueTypeID uuid.UUID       `gorm:"type:uuid;index;not null" json:"issue_type_id"`
	IssueType   *IssueType      `gorm:"foreignKey:IssueTypeID" json:"issue_type,omitempty"`
	Description string          `gorm:"type:text" json:"description"`
	Priority    Priority        `gorm:"size:10;not null;index" json:"priority"`
	Status      ComplaintStatus `gorm:"size:20;not null;index" json:"status"`
	PhoneNumber string          `gorm:"size:20" json:"phone_number"`

	Attachments           pq.StringArray `gorm:"type:text[]" json:"attachments"`
	ResolutionAttachments pq.StringArray `gorm:"type:text[]" json:"resolution_attachments"`
	ResolutionNotes       string         `gorm:"type:text" json:"resolution_notes"`

	// OTP (happy code); only the bcrypt hash is persisted
	OtpHash       string     `gorm:"size:100" json:"-"`
	OtpIssuedAt   *time.Time `json:"otp_issued_at"`
	OtpVerified   bool       `gorm:"default:false" json:"otp_verified"`
	OtpVerifiedAt *time.Time `json:"otp_verified_at"`

	// Relationships
	ReporterID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"reporter_id"`
	EngineerID   *uuid.UUID `gorm:"type:uuid;index" json:"engineer_id"`
	AssignedByID *uuid.UUID `gorm:"type:uuid" json:"assigned_by_id"`

	IsReComplaint bool `gorm:"default:false" json:"is_re_complaint"`
	ReopenCount   int  `gorm:"default:0" json:"reopen_count"`

	// Version is bumped by every write and guards compare-and-set updates
	Version int64 `gorm:"not null;default:1" json:"version"`

	ResolutionDate        *time.Time `json:"resolution_date"`
	ResolutionTimeInHours *float64   `gorm:"type:decimal(12,2)" json:"resolution_time_in_hours"`

	// Soft delete marker; complaints are never physically removed
	RemovedAt   *time.Time `gorm:"index" json:"removed_at"`
	RemovedByID *uuid.UUID `gorm:"type:uuid" json:"removed_by_id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Code is the human-facing display code, e.g. "WIFI-3AF". Never used for lookup.
func (c *Complaint) Code() string {
	return ComplaintCode(c.ID, c.Type)
}

func ComplaintCode(id uuid.UUID, complaintType ComplaintType) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("%s-%s", complaintType, strings.ToUpper(hex[len(hex)-3:]))
}

func (c *Complaint) HasEngineer() bool {
	return c.EngineerID != nil && *c.EngineerID != uuid.Nil
}

func (c *Complaint) IsRemoved() bool {
	return c.RemovedAt != nil
}

func (c *Complaint) HasOtp() bool {
	return c.OtpHash != ""
}

// Clone returns a deep copy safe to mutate before a compare-and-set write.
func (c *Complaint) Clone() *Complaint {
	clone := *c
	clone.IssueType = nil
	clone.Attachments = append(pq.StringArray(nil), c.Attachments...)
	clone.ResolutionAttachments = append(pq.StringArray(nil), c.ResolutionAttachments...)
	clone.OtpIssuedAt = copyTime(c.OtpIssuedAt)
	clone.OtpVerifiedAt = copyTime(c.OtpVerifiedAt)
	clone.ResolutionDate = copyTime(c.ResolutionDate)
	clone.RemovedAt = copyTime(c.RemovedAt)
	clone.EngineerID = copyUUID(c.EngineerID)
	clone.AssignedByID = copyUUID(c.AssignedByID)
	clone.RemovedByID = copyUUID(c.RemovedByID)
	if c.ResolutionTimeInHours != nil {
		hours := *c.ResolutionTimeInHours
		clone.ResolutionTimeInHours = &hours
	}
	return &clone
}

// CheckInvariants reports the first structural rule the complaint breaks.
func (c *Complaint) CheckInvariants() error {
	if c.HasEngineer() && !c.Status.AllowsEngineer() {
		return fmt.Errorf("status %s cannot carry an engineer", c.Status)
	}
	if !c.HasEngineer() && c.Status.RequiresEngineer() {
		return fmt.Errorf("status %s requires an engineer", c.Status)
	}
	if c.Status == StatusResolved && !c.OtpVerified {
		return fmt.Errorf("resolved complaint must have a verified otp")
	}
	if len(c.Attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments are allowed", MaxAttachments)
	}
	return nil
}

// Columns returns every mutable column for a full compare-and-set update.
func (c *Complaint) Columns() map[string]interface{} {
	return map[string]interface{}{
		"type":                     c.Type,
		"title":                    c.Title,
		"issue_type_id":            c.IssueTypeID,
		"description":              c.Description,
		"priority":                 c.Priority,
		"status":                   c.Status,
		"phone_number":             c.PhoneNumber,
		"attachments":              c.Attachments,
		"resolution_attachments":   c.ResolutionAttachments,
		"resolution_notes":         c.ResolutionNotes,
		"otp_hash":                 c.OtpHash,
		"otp_issued_at":            c.OtpIssuedAt,
		"otp_verified":             c.OtpVerified,
		"otp_verified_at":          c.OtpVerifiedAt,
		"engineer_id":              c.EngineerID,
		"assigned_by_id":           c.AssignedByID,
		"is_re_complaint":          c.IsReComplaint,
		"reopen_count":             c.ReopenCount,
		"version":                  c.Version,
		"resolution_date":          c.ResolutionDate,
		"resolution_time_in_hours": c.ResolutionTimeInHours,
		"removed_at":               c.RemovedAt,
		"removed_by_id":            c.RemovedByID,
		"updated_at":               c.UpdatedAt,
	}
}

// ResolutionHours is the elapsed time between creation and resolution, rounded to minutes.
func ResolutionHours(createdAt, resolvedAt time.Time) float64 {
	hours := resolvedAt.Sub(createdAt).Round(time.Minute).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Request types

type ComplaintCreateRequest struct {
	Type        ComplaintType `json:"type" validate:"required,oneof=WIFI CCTV"`
	Title       string        `json:"title" validate:"required,min=3,max=200"`
	IssueTypeID string        `json:"issue_type_id" validate:"required,uuid"`
	Description string        `json:"description" validate:"max=4000"`
	Priority    Priority      `json:"priority" validate:"required,oneof=low medium high urgent"`
	ReporterID  string        `json:"reporter_id" validate:"required,uuid"`
	PhoneNumber string        `json:"phone_number" validate:"omitempty,max=20"`
	Attachments []string      `json:"attachments" validate:"dive,required"`
}

// ComplaintUpdateRequest is the explicit edit path for otherwise immutable fields.
type ComplaintUpdateRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string        `json:"description" validate:"omitempty,max=4000"`
	Priority    *Priority      `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Type        *ComplaintType `json:"type" validate:"omitempty,oneof=WIFI CCTV"`
	IssueTypeID *string        `json:"issue_type_id" validate:"omitempty,uuid"`
	Remarks     string         `json:"remarks" validate:"max=1000"`
}

type AssignEngineerRequest struct {
	EngineerID string    `json:"engineer_id" validate:"required,uuid"`
	Priority   *Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

type ReassignEngineerRequest struct {
	EngineerID string `json:"engineer_id" validate:"required,uuid"`
	Remarks    string `json:"remarks" validate:"max=1000"`
}

type TransitionRequest struct {
	Status                ComplaintStatus `json:"status" validate:"required"`
	Remarks               string          `json:"remarks" validate:"max=1000"`
	ReComplaint           bool            `json:"re_complaint"`
	EngineerID            *string         `json:"engineer_id" validate:"omitempty,uuid"`
	ResolutionAttachments []string        `json:"resolution_attachments" validate:"dive,required"`
	ResolutionNotes       string          `json:"resolution_notes" validate:"max=4000"`
}

type StatusOverrideRequest struct {
	Status  ComplaintStatus `json:"status" validate:"required"`
	Remarks string          `json:"remarks" validate:"required,max=1000"`
}

type VerifyOtpRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

type ComplaintFilter struct {
	Status         *ComplaintStatus `json:"status"`
	Priority       *Priority        `json:"priority"`
	Type           *ComplaintType   `json:"type"`
	ReporterID     *uuid.UUID       `json:"reporter_id"`
	EngineerID     *uuid.UUID       `json:"engineer_id"`
	IncludeRemoved bool             `json:"include_removed"`
	Page           int              `json:"page"`
	Limit          int              `json:"limit"`
}

// Normalize applies the pagination defaults.
func (f *ComplaintFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

// Response types

type ComplaintResponse struct {
	ID                    uuid.UUID       `json:"id"`
	Code                  string          `json:"code"`
	Type                  ComplaintType   `json:"type"`
	Title                 string          `json:"title"`
	IssueTypeID           uuid.UUID       `json:"issue_type_id"`
	IssueTypeName         string          `json:"issue_type_name,omitempty"`
	Description           string          `json:"description"`
	Priority              Priority        `json:"priority"`
	Status                ComplaintStatus `json:"status"`
	DisplayStatus         ComplaintStatus `json:"display_status"`
	PhoneNumber           string          `json:"phone_number"`
	Attachments           []string        `json:"attachments"`
	ResolutionAttachments []string        `json:"resolution_attachments"`
	ResolutionNotes       string          `json:"resolution_notes,omitempty"`
	OtpIssued             bool            `json:"otp_issued"`
	OtpVerified           bool            `json:"otp_verified"`
	OtpVerifiedAt         *time.Time      `json:"otp_verified_at"`
	ReporterID            uuid.UUID       `json:"reporter_id"`
	EngineerID            *uuid.UUID      `json:"engineer_id"`
	AssignedByID          *uuid.UUID      `json:"assigned_by_id"`
	IsReComplaint         bool            `json:"is_re_complaint"`
	ReopenCount           int             `json:"reopen_count"`
	Version               int64           `json:"version"`
	ResolutionDate        *time.Time      `json:"resolution_date"`
	ResolutionTimeInHours *float64        `json:"resolution_time_in_hours"`
	Removed               bool            `json:"removed"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type ComplaintDetailResponse struct {
	ComplaintResponse
	History []StatusHistoryResponse `json:"history"`
}

func ToComplaintResponse(c *Complaint) ComplaintResponse {
	resp := ComplaintResponse{
		ID:                    c.ID,
		Code:                  c.Code(),
		Type:                  c.Type,
		Title:                 c.Title,
		IssueTypeID:           c.IssueTypeID,
		Description:           c.Description,
		Priority:              c.Priority,
		Status:                c.Status,
		DisplayStatus:         DisplayStatus(c.Status, c.HasEngineer()),
		PhoneNumber:           c.PhoneNumber,
		Attachments:           append([]string{}, c.Attachments...),
		ResolutionAttachments: append([]string{}, c.ResolutionAttachments...),
		ResolutionNotes:       c.ResolutionNotes,
		OtpIssued:             c.HasOtp(),
		OtpVerified:           c.OtpVerified,
		OtpVerifiedAt:         c.OtpVerifiedAt,
		ReporterID:            c.ReporterID,
		EngineerID:            c.EngineerID,
		AssignedByID:          c.AssignedByID,
		IsReComplaint:         c.IsReComplaint,
		ReopenCount:           c.ReopenCount,
		Version:               c.Version,
		ResolutionDate:        c.ResolutionDate,
		ResolutionTimeInHours: c.ResolutionTimeInHours,
		Removed:               c.IsRemoved(),
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
	if c.IssueType != nil {
		resp.IssueTypeName = c.IssueType.Name
	}
	return resp
}
