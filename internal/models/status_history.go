package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryAction tags the kind of write recorded by a ledger entry.
type HistoryAction string

const (
	HistoryActionCreated       HistoryAction = "created"
	HistoryActionAssigned      HistoryAction = "assigned"
	HistoryActionReassigned    HistoryAction = "reassigned"
	HistoryActionStarted       HistoryAction = "started"
	HistoryActionVisited       HistoryAction = "visited"
	HistoryActionOtpIssued     HistoryAction = "otp_issued"
	HistoryActionOtpVerified   HistoryAction = "otp_verified"
	HistoryActionResolved      HistoryAction = "resolved"
	HistoryActionNotResolved   HistoryAction = "not_resolved"
	HistoryActionReopened      HistoryAction = "reopened"
	HistoryActionAdminOverride HistoryAction = "admin_override"
	HistoryActionEdited        HistoryAction = "edited"
	HistoryActionRemoved       HistoryAction = "removed"
)

type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadAssignment
	payloadOtp
	payloadResolution
	payloadReopen
	payloadOverride
	payloadEdit
	payloadOptionalOtp
)

var actionPayloads = map[HistoryAction]payloadKind{
	HistoryActionCreated:       payloadNone,
	HistoryActionAssigned:      payloadAssignment,
	HistoryActionReassigned:    payloadAssignment,
	HistoryActionStarted:       payloadNone,
	HistoryActionVisited:       payloadOptionalOtp,
	HistoryActionOtpIssued:     payloadOtp,
	HistoryActionOtpVerified:   payloadOtp,
	HistoryActionResolved:      payloadResolution,
	HistoryActionNotResolved:   payloadNone,
	HistoryActionReopened:      payloadReopen,
	HistoryActionAdminOverride: payloadOverride,
	HistoryActionEdited:        payloadEdit,
	HistoryActionRemoved:       payloadNone,
}

func (a HistoryAction) Valid() bool {
	_, ok := actionPayloads[a]
	return ok
}

type AssignmentDetails struct {
	EngineerID         uuid.UUID  `json:"engineer_id"`
	PreviousEngineerID *uuid.UUID `json:"previous_engineer_id,omitempty"`
	AssignedByID       *uuid.UUID `json:"assigned_by_id,omitempty"`
	PriorityOverride   *Priority  `json:"priority_override,omitempty"`
}

// OtpDetails never carries the code itself.
type OtpDetails struct {
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type ResolutionDetails struct {
	ResolutionAttachments []string `json:"resolution_attachments,omitempty"`
	ResolutionNotes       string   `json:"resolution_notes,omitempty"`
	ResolutionTimeInHours float64  `json:"resolution_time_in_hours"`
}

type ReopenDetails struct {
	ReleasedEngineerID *uuid.UUID `json:"released_engineer_id,omitempty"`
	Cycle              int        `json:"cycle"`
}

type OverrideDetails struct {
	ReleasedEngineerID *uuid.UUID `json:"released_engineer_id,omitempty"`
}

type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type EditDetails struct {
	Changes []FieldChange `json:"changes"`
}

// HistoryMetadata is a tagged variant: Action selects which payload is present.
type HistoryMetadata struct {
	Action     HistoryAction      `json:"action"`
	Assignment *AssignmentDetails `json:"assignment,omitempty"`
	Otp        *OtpDetails        `json:"otp,omitempty"`
	Resolution *ResolutionDetails `json:"resolution,omitempty"`
	Reopen     *ReopenDetails     `json:"reopen,omitempty"`
	Override   *OverrideDetails   `json:"override,omitempty"`
	Edit       *EditDetails       `json:"edit,omitempty"`
}

func (m HistoryMetadata) present() []payloadKind {
	var kinds []payloadKind
	if m.Assignment != nil {
		kinds = append(kinds, payloadAssignment)
	}
	if m.Otp != nil {
		kinds = append(kinds, payloadOtp)
	}
	if m.Resolution != nil {
		kinds = append(kinds, payloadResolution)
	}
	if m.Reopen != nil {
		kinds = append(kinds, payloadReopen)
	}
	if m.Override != nil {
		kinds = append(kinds, payloadOverride)
	}
	if m.Edit != nil {
		kinds = append(kinds, payloadEdit)
	}
	return kinds
}

// Validate checks that exactly the payload required by Action is set.
func (m HistoryMetadata) Validate() error {
	want, ok := actionPayloads[m.Action]
	if !ok {
		return fmt.Errorf("unknown history action %q", m.Action)
	}

	present := m.present()
	switch want {
	case payloadNone:
		if len(present) > 0 {
			return fmt.Errorf("action %s carries no payload", m.Action)
		}
	case payloadOptionalOtp:
		if len(present) > 1 || (len(present) == 1 && present[0] != payloadOtp) {
			return fmt.Errorf("action %s only accepts an otp payload", m.Action)
		}
	default:
		if len(present) != 1 || present[0] != want {
			return fmt.Errorf("action %s requires exactly its own payload", m.Action)
		}
	}

	if m.Assignment != nil && m.Assignment.EngineerID == uuid.Nil {
		return fmt.Errorf("assignment payload requires an engineer id")
	}
	if m.Edit != nil && len(m.Edit.Changes) == 0 {
		return fmt.Errorf("edit payload requires at least one change")
	}
	return nil
}

// StatusHistoryEntry is one immutable ledger record. Sequence is the complaint
// version produced by the write, so (complaint_id, sequence) is unique and gapless.
type StatusHistoryEntry struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	ComplaintID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_history_complaint_sequence,priority:1" json:"complaint_id"`
	Sequence       int64            `gorm:"not null;uniqueIndex:idx_history_complaint_sequence,priority:2" json:"sequence"`
	Status         ComplaintStatus  `gorm:"size:20;not null;index" json:"status"`
	PreviousStatus *ComplaintStatus `gorm:"size:20" json:"previous_status"`
	Action         HistoryAction    `gorm:"size:30;not null;index" json:"action"`
	UpdatedByID    *uuid.UUID       `gorm:"type:uuid;index" json:"updated_by_id"`
	Remarks        *string          `gorm:"type:text" json:"remarks"`
	Metadata       datatypes.JSON   `gorm:"type:jsonb" json:"metadata"`
	UpdatedAt      time.Time        `gorm:"not null;index" json:"updated_at"`
}

func (StatusHistoryEntry) TableName() string {
	return "status_history_entries"
}

func (h *StatusHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// NewHistoryEntry builds a validated entry; sequence is assigned by the store.
func NewHistoryEntry(complaintID uuid.UUID, status ComplaintStatus, previous *ComplaintStatus, updatedBy *uuid.UUID, remarks string, metadata HistoryMetadata, at time.Time) (*StatusHistoryEntry, error) {
	entry := &StatusHistoryEntry{
		ComplaintID:    complaintID,
		Status:         status,
		PreviousStatus: previous,
		UpdatedByID:    updatedBy,
		UpdatedAt:      at,
	}
	if remarks != "" {
		entry.Remarks = &remarks
	}
	if err := entry.SetMetadata(metadata); err != nil {
		return nil, err
	}
	return entry, nil
}

func (h *StatusHistoryEntry) SetMetadata(metadata HistoryMetadata) error {
	if err := metadata.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	h.Action = metadata.Action
	h.Metadata = datatypes.JSON(data)
	return nil
}

func (h *StatusHistoryEntry) DecodeMetadata() (HistoryMetadata, error) {
	var metadata HistoryMetadata
	if len(h.Metadata) == 0 {
		return HistoryMetadata{Action: h.Action}, nil
	}
	if err := json.Unmarshal(h.Metadata, &metadata); err != nil {
		return metadata, fmt.Errorf("decode history metadata: %w", err)
	}
	return metadata, nil
}

type StatusHistoryResponse struct {
	ID             uuid.UUID        `json:"id"`
	Sequence       int64            `json:"sequence"`
	Status         ComplaintStatus  `json:"status"`
	PreviousStatus *ComplaintStatus `json:"previous_status"`
	Action         HistoryAction    `json:"action"`
	UpdatedByID    *uuid.UUID       `json:"updated_by_id"`
	Remarks        *string          `json:"remarks"`
	Metadata       HistoryMetadata  `json:"metadata"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func ToStatusHistoryResponse(h *StatusHistoryEntry) StatusHistoryResponse {
	metadata, err := h.DecodeMetadata()
	if err != nil {
		metadata = HistoryMetadata{Action: h.Action}
	}
	return StatusHistoryResponse{
		ID:             h.ID,
		Sequence:       h.Sequence,
		Status:         h.Status,
		PreviousStatus: h.PreviousStatus,
		Action:         h.Action,
		UpdatedByID:    h.UpdatedByID,
		Remarks:        h.Remarks,
		Metadata:       metadata,
		UpdatedAt:      h.UpdatedAt,
	}
}

func ToStatusHistoryResponses(entries []StatusHistoryEntry) []StatusHistoryResponse {
	responses := make([]StatusHistoryResponse, len(entries))
	for i := range entries {
		responses[i] = ToStatusHistoryResponse(&entries[i])
	}
	return responses
}
