package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// ReporterDirectory is the outbound end-user lookup.
type ReporterDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reporter, error)
}

// IssueTypeCatalog resolves issue-type references.
type IssueTypeCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.IssueType, error)
}

// AttachmentStore confirms that opaque file references exist. Implemented by storage.MinIOStorage.
type AttachmentStore interface {
	FileExists(ctx context.Context, objectName string) (bool, error)
}

type TransitionResult struct {
	Complaint    *models.Complaint `json:"complaint"`
	OtpIssued    bool              `json:"otp_issued"`
	OtpDelivered bool              `json:"otp_delivered"`
}

type ComplaintService interface {
	// Complaint CRUD
	CreateComplaint(ctx context.Context, req *models.ComplaintCreateRequest, actor Actor) (*models.Complaint, error)
	GetComplaint(ctx context.Context, id uuid.UUID, actor Actor) (*models.Complaint, []models.StatusHistoryEntry, error)
	ListComplaints(ctx context.Context, filter *models.ComplaintFilter, actor Actor) ([]models.Complaint, int64, error)
	ListHistory(ctx context.Context, id uuid.UUID, afterSequence int64, limit int, actor Actor) ([]models.StatusHistoryEntry, error)
	UpdateComplaint(ctx context.Context, id uuid.UUID, req *models.ComplaintUpdateRequest, actor Actor) (*models.Complaint, error)
	DeleteComplaint(ctx context.Context, id uuid.UUID, remarks string, actor Actor) (*models.Complaint, error)

	// State transitions
	Transition(ctx context.Context, id uuid.UUID, req *models.TransitionRequest, actor Actor) (*TransitionResult, error)
	OverrideStatus(ctx context.Context, id uuid.UUID, req *models.StatusOverrideRequest, actor Actor) (*models.Complaint, error)
}

type ComplaintServiceConfig struct {
	DefaultRegion string
}

type complaintService struct {
	lifecycle    *Lifecycle
	assignment   AssignmentService
	verification VerificationService
	reporters    ReporterDirectory
	issueTypes   IssueTypeCatalog
	attachments  AttachmentStore
	region       string
}

func NewComplaintService(
	lifecycle *Lifecycle,
	assignment AssignmentService,
	verification VerificationService,
	reporters ReporterDirectory,
	issueTypes IssueTypeCatalog,
	attachments AttachmentStore,
	cfg ComplaintServiceConfig,
) ComplaintService {
	region := strings.ToUpper(cfg.DefaultRegion)
	if region == "" {
		region = "IN"
	}
	return &complaintService{
		lifecycle:    lifecycle,
		assignment:   assignment,
		verification: verification,
		reporters:    reporters,
		issueTypes:   issueTypes,
		attachments:  attachments,
		region:       region,
	}
}

// Complaint CRUD

func (s *complaintService) CreateComplaint(ctx context.Context, req *models.ComplaintCreateRequest, actor Actor) (*models.Complaint, error) {
	if len(req.Attachments) > models.MaxAttachments {
		return nil, fmt.Errorf("%w: %d files given, at most %d allowed", ErrAttachmentLimitExceeded, len(req.Attachments), models.MaxAttachments)
	}
	if !req.Type.Valid() {
		return nil, validationError("unknown complaint type %q", req.Type)
	}
	if !req.Priority.Valid() {
		return nil, validationError("unknown priority %q", req.Priority)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validationError("title is required")
	}

	reporterID, err := uuid.Parse(req.ReporterID)
	if err != nil {
		return nil, validationError("invalid reporter id")
	}
	issueTypeID, err := uuid.Parse(req.IssueTypeID)
	if err != nil {
		return nil, validationError("invalid issue type id")
	}

	reporter, err := s.reporters.FindByID(ctx, reporterID)
	if err != nil {
		return nil, lookupError(err, ErrReporterNotFound)
	}
	issueType, err := s.resolveIssueType(ctx, issueTypeID, req.Type)
	if err != nil {
		return nil, err
	}

	phone := req.PhoneNumber
	if phone == "" {
		phone = reporter.Phone
	}
	if phone, err = s.normalizePhone(phone); err != nil {
		return nil, err
	}

	if err := s.checkAttachments(ctx, req.Attachments); err != nil {
		return nil, err
	}

	now := s.lifecycle.now()
	complaint := &models.Complaint{
		ID:          uuid.New(),
		Type:        req.Type,
		Title:       title,
		IssueTypeID: issueType.ID,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      models.StatusPending,
		PhoneNumber: phone,
		Attachments: pq.StringArray(append([]string{}, req.Attachments...)),
		ReporterID:  reporter.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry, err := models.NewHistoryEntry(complaint.ID, complaint.Status, nil, actor.ID, "", models.HistoryMetadata{Action: models.HistoryActionCreated}, now)
	if err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.lifecycle.complaints.Create(ctx, complaint, entry); err != nil {
		return nil, storageError(err)
	}
	s.lifecycle.invalidate(ctx, complaint.ID)

	complaint.IssueType = issueType
	return complaint, nil
}

func (s *complaintService) resolveIssueType(ctx context.Context, id uuid.UUID, complaintType models.ComplaintType) (*models.IssueType, error) {
	issueType, err := s.issueTypes.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrIssueTypeNotFound)
	}
	if !issueType.IsActive {
		return nil, fmt.Errorf("%w: issue type %s is inactive", ErrIssueTypeNotFound, id)
	}
	if issueType.ComplaintType != complaintType {
		return nil, validationError("issue type %q belongs to %s, not %s", issueType.Name, issueType.ComplaintType, complaintType)
	}
	return issueType, nil
}

// normalizePhone validates a contact number and formats it as E.164.
func (s *complaintService) normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	parsed, err := libphonenumber.Parse(phone, s.region)
	if err != nil || !libphonenumber.IsValidNumber(parsed) {
		return "", validationError("invalid phone number %q", phone)
	}
	return libphonenumber.Format(parsed, libphonenumber.E164), nil
}

func (s *complaintService) checkAttachments(ctx context.Context, refs []string) error {
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			return validationError("empty attachment reference")
		}
		if s.attachments == nil {
			continue
		}
		exists, err := s.attachments.FileExists(ctx, ref)
		if err != nil {
			return storageError(err)
		}
		if !exists {
			return validationError("attachment %s not found", ref)
		}
	}
	return nil
}

func (s *complaintService) GetComplaint(ctx context.Context, id uuid.UUID, actor Actor) (*models.Complaint, []models.StatusHistoryEntry, error) {
	complaint, err := s.lifecycle.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, nil, lookupError(err, ErrNotFound)
	}
	if err := checkCanView(complaint, actor); err != nil {
		return nil, nil, err
	}
	history, err := s.lifecycle.history.ListFor(ctx, id, 0, 0)
	if err != nil {
		return nil, nil, storageError(err)
	}
	return complaint, history, nil
}

func (s *complaintService) ListComplaints(ctx context.Context, filter *models.ComplaintFilter, actor Actor) ([]models.Complaint, int64, error) {
	if err := scopeFilter(filter, actor); err != nil {
		return nil, 0, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, validationError("unknown status %q", *filter.Status)
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, 0, validationError("unknown priority %q", *filter.Priority)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, 0, validationError("unknown complaint type %q", *filter.Type)
	}

	filter.Normalize()
	complaints, total, err := s.lifecycle.complaints.List(ctx, filter)
	if err != nil {
		return nil, 0, storageError(err)
	}
	return complaints, total, nil
}

func (s *complaintService) ListHistory(ctx context.Context, id uuid.UUID, afterSequence int64, limit int, actor Actor) ([]models.StatusHistoryEntry, error) {
	complaint, err := s.lifecycle.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrNotFound)
	}
	if err := checkCanView(complaint, actor); err != nil {
		return nil, err
	}
	if afterSequence < 0 {
		afterSequence = 0
	}
	if limit > 500 {
		limit = 500
	}
	history, err := s.lifecycle.history.ListFor(ctx, id, afterSequence, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return history, nil
}

func (s *complaintService) UpdateComplaint(ctx context.Context, id uuid.UUID, req *models.ComplaintUpdateRequest, actor Actor) (*models.Complaint, error) {
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, validationError("unknown priority %q", *req.Priority)
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, validationError("unknown complaint type %q", *req.Type)
	}
	var issueTypeID *uuid.UUID
	if req.IssueTypeID != nil {
		parsed, err := uuid.Parse(*req.IssueTypeID)
		if err != nil {
			return nil, validationError("invalid issue type id")
		}
		issueTypeID = &parsed
	}

	var resolved *models.IssueType
	result, err := s.lifecycle.mutate(ctx, "update", id, func(c *models.Complaint, now time.Time) (*change, error) {
		if c.Status.IsTerminal() {
			return nil, &TransitionError{From: c.Status, To: c.Status, Reason: "closed complaints cannot be edited"}
		}

		var changes []models.FieldChange
		record := func(field, from, to string) {
			if from != to {
				changes = append(changes, models.FieldChange{Field: field, From: from, To: to})
			}
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			record("title", c.Title, title)
			c.Title = title
		}
		if req.Description != nil {
			record("description", c.Description, *req.Description)
			c.Description = *req.Description
		}
		if req.Priority != nil {
			record("priority", string(c.Priority), string(*req.Priority))
			c.Priority = *req.Priority
		}
		if req.Type != nil {
			record("type", string(c.Type), string(*req.Type))
			c.Type = *req.Type
		}
		if issueTypeID != nil {
			record("issue_type_id", c.IssueTypeID.String(), issueTypeID.String())
			c.IssueTypeID = *issueTypeID
		}

		if len(changes) == 0 {
			return nil, validationError("no changes requested")
		}

		issueType, err := s.resolveIssueType(ctx, c.IssueTypeID, c.Type)
		if err != nil {
			return nil, err
		}
		resolved = issueType

		return &change{
			complaint: c,
			actor:     actor,
			remarks:   req.Remarks,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionEdited, Edit: &models.EditDetails{Changes: changes}},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	result.complaint.IssueType = resolved
	return result.complaint, nil
}

// DeleteComplaint soft-deletes: the complaint and its history stay readable.
func (s *complaintService) DeleteComplaint(ctx context.Context, id uuid.UUID, remarks string, actor Actor) (*models.Complaint, error) {
	result, err := s.lifecycle.mutate(ctx, "delete", id, func(c *models.Complaint, now time.Time) (*change, error) {
		removedAt := now
		c.RemovedAt = &removedAt
		c.RemovedByID = actor.ID
		return &change{
			complaint: c,
			actor:     actor,
			remarks:   remarks,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionRemoved},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.complaint, nil
}

// State transitions

func (s *complaintService) Transition(ctx context.Context, id uuid.UUID, req *models.TransitionRequest, actor Actor) (*TransitionResult, error) {
	target := req.Status
	if !target.Valid() {
		return nil, validationError("unknown status %q", target)
	}

	if target == models.StatusAssigned {
		if actor.Role != RoleAdmin {
			return nil, &TransitionError{From: models.StatusPending, To: target, Reason: "only an admin may assign an engineer"}
		}
		return s.transitionToAssigned(ctx, id, req, actor)
	}

	if target == models.StatusResolved {
		if err := s.checkAttachments(ctx, req.ResolutionAttachments); err != nil {
			return nil, err
		}
	}

	var code string
	result, err := s.lifecycle.mutate(ctx, "transition", id, func(c *models.Complaint, now time.Time) (*change, error) {
		if !models.CanTransition(c.Status, target) {
			return nil, &TransitionError{From: c.Status, To: target, Reason: "transition not allowed"}
		}
		if err := checkEngineerActor(c, target, actor); err != nil {
			return nil, err
		}

		ch := &change{complaint: c, actor: actor, remarks: strings.TrimSpace(req.Remarks)}
		switch target {
		case models.StatusInProgress:
			ch.metadata = models.HistoryMetadata{Action: models.HistoryActionStarted}

		case models.StatusVisited:
			ch.metadata = models.HistoryMetadata{Action: models.HistoryActionVisited}
			if !c.HasOtp() && s.verification != nil {
				issued, err := s.verification.stamp(c, now)
				if err != nil {
					return nil, err
				}
				code = issued
				ch.metadata.Otp = &models.OtpDetails{IssuedAt: c.OtpIssuedAt}
			}

		case models.StatusResolved:
			if !c.OtpVerified {
				return nil, &TransitionError{From: c.Status, To: target, Reason: "otp has not been verified"}
			}
			hours := resolutionHours(c.CreatedAt, now)
			resolvedAt := now
			c.ResolutionDate = &resolvedAt
			c.ResolutionTimeInHours = &hours
			c.ResolutionAttachments = pq.StringArray(append([]string{}, req.ResolutionAttachments...))
			c.ResolutionNotes = req.ResolutionNotes
			ch.metadata = models.HistoryMetadata{
				Action: models.HistoryActionResolved,
				Resolution: &models.ResolutionDetails{
					ResolutionAttachments: append([]string(nil), req.ResolutionAttachments...),
					ResolutionNotes:       req.ResolutionNotes,
					ResolutionTimeInHours: hours,
				},
			}

		case models.StatusNotResolved:
			if ch.remarks == "" {
				return nil, &TransitionError{From: c.Status, To: target, Reason: "a failure remark is required"}
			}
			ch.metadata = models.HistoryMetadata{Action: models.HistoryActionNotResolved}

		case models.StatusPending:
			if !req.ReComplaint {
				return nil, &TransitionError{From: c.Status, To: target, Reason: "re-complaint flag is required to reopen"}
			}
			released := c.EngineerID
			c.EngineerID = nil
			c.AssignedByID = nil
			c.IsReComplaint = true
			c.ReopenCount++
			// The code survives the reopen; the new cycle must confirm it again.
			c.OtpVerified = false
			c.OtpVerifiedAt = nil
			ch.metadata = models.HistoryMetadata{
				Action: models.HistoryActionReopened,
				Reopen: &models.ReopenDetails{ReleasedEngineerID: released, Cycle: c.ReopenCount + 1},
			}
		}

		c.Status = target
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	res := &TransitionResult{Complaint: result.complaint}
	if code != "" {
		res.OtpIssued = true
		if err := s.verification.deliver(ctx, result.complaint, code); err == nil {
			res.OtpDelivered = true
		}
	}
	return res, nil
}

func (s *complaintService) transitionToAssigned(ctx context.Context, id uuid.UUID, req *models.TransitionRequest, actor Actor) (*TransitionResult, error) {
	if req.EngineerID == nil {
		return nil, &TransitionError{From: models.StatusPending, To: models.StatusAssigned, Reason: "an engineer reference is required"}
	}
	engineerID, err := uuid.Parse(*req.EngineerID)
	if err != nil {
		return nil, validationError("invalid engineer id")
	}
	complaint, err := s.assignment.Assign(ctx, id, engineerID, nil, actor)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Complaint: complaint}, nil
}

// checkEngineerActor keeps field steps to admins, the system and the
// engineer bound to the complaint.
func checkEngineerActor(c *models.Complaint, target models.ComplaintStatus, actor Actor) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleEngineer:
	default:
		return &TransitionError{From: c.Status, To: target, Reason: fmt.Sprintf("role %q may not change complaint status", actor.Role)}
	}
	if target == models.StatusPending {
		return &TransitionError{From: c.Status, To: target, Reason: "engineers cannot reopen complaints"}
	}
	if actor.ID == nil || !c.HasEngineer() || *c.EngineerID != *actor.ID {
		return &TransitionError{From: c.Status, To: target, Reason: "only the assigned engineer may progress this complaint"}
	}
	return nil
}

// OverrideStatus is the administrative status-set. It may skip states but
// must still leave the complaint structurally valid.
func (s *complaintService) OverrideStatus(ctx context.Context, id uuid.UUID, req *models.StatusOverrideRequest, actor Actor) (*models.Complaint, error) {
	target := req.Status
	if !target.Valid() {
		return nil, validationError("unknown status %q", target)
	}
	remarks := strings.TrimSpace(req.Remarks)
	if remarks == "" {
		return nil, validationError("remarks are required for an override")
	}

	result, err := s.lifecycle.mutate(ctx, "override", id, func(c *models.Complaint, now time.Time) (*change, error) {
		if c.Status == target {
			return nil, &TransitionError{From: c.Status, To: target, Reason: "complaint is already in this status"}
		}

		details := &models.OverrideDetails{}
		if target == models.StatusPending && c.HasEngineer() {
			details.ReleasedEngineerID = c.EngineerID
			c.EngineerID = nil
			c.AssignedByID = nil
		}
		if target.RequiresEngineer() && !c.HasEngineer() {
			return nil, &TransitionError{From: c.Status, To: target, Reason: "no engineer is assigned"}
		}

		switch {
		case target == models.StatusResolved:
			if !c.OtpVerified {
				return nil, &TransitionError{From: c.Status, To: target, Reason: "otp has not been verified"}
			}
			hours := resolutionHours(c.CreatedAt, now)
			resolvedAt := now
			c.ResolutionDate = &resolvedAt
			c.ResolutionTimeInHours = &hours
		case c.Status == models.StatusResolved:
			c.ResolutionDate = nil
			c.ResolutionTimeInHours = nil
		}

		c.Status = target
		return &change{
			complaint: c,
			actor:     actor,
			remarks:   remarks,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionAdminOverride, Override: details},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.complaint, nil
}

func resolutionHours(createdAt, resolvedAt time.Time) float64 {
	return decimal.NewFromFloat(models.ResolutionHours(createdAt, resolvedAt)).Round(2).InexactFloat64()
}
