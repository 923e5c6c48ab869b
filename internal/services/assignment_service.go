package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
)

// EngineerDirectory is the outbound engineer lookup.
type EngineerDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Engineer, error)
}

type AssignmentService interface {
	Assign(ctx context.Context, complaintID, engineerID uuid.UUID, priorityOverride *models.Priority, actor Actor) (*models.Complaint, error)
	Reassign(ctx context.Context, complaintID, engineerID uuid.UUID, remarks string, actor Actor) (*models.Complaint, error)
	ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error)
}

// WorkloadLister is implemented by repository.EngineerRepository.
type WorkloadLister interface {
	ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error)
}

type assignmentService struct {
	lifecycle *Lifecycle
	engineers EngineerDirectory
	workloads WorkloadLister
}

func NewAssignmentService(lifecycle *Lifecycle, engineers EngineerDirectory, workloads WorkloadLister) AssignmentService {
	return &assignmentService{
		lifecycle: lifecycle,
		engineers: engineers,
		workloads: workloads,
	}
}

func (s *assignmentService) activeEngineer(ctx context.Context, id uuid.UUID) (*models.Engineer, error) {
	engineer, err := s.engineers.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrEngineerNotFound)
	}
	if !engineer.IsActive {
		return nil, ErrEngineerNotFound
	}
	return engineer, nil
}

func (s *assignmentService) Assign(ctx context.Context, complaintID, engineerID uuid.UUID, priorityOverride *models.Priority, actor Actor) (*models.Complaint, error) {
	if priorityOverride != nil && !priorityOverride.Valid() {
		return nil, validationError("unknown priority %q", *priorityOverride)
	}
	if _, err := s.activeEngineer(ctx, engineerID); err != nil {
		return nil, err
	}

	result, err := s.lifecycle.mutate(ctx, "assign", complaintID, func(c *models.Complaint, now time.Time) (*change, error) {
		if c.Status != models.StatusPending {
			return nil, &TransitionError{From: c.Status, To: models.StatusAssigned, Reason: "complaint is not pending"}
		}

		details := &models.AssignmentDetails{EngineerID: engineerID, AssignedByID: actor.ID}
		if priorityOverride != nil && *priorityOverride != c.Priority {
			override := *priorityOverride
			details.PriorityOverride = &override
			c.Priority = override
		}

		id := engineerID
		c.EngineerID = &id
		c.AssignedByID = actor.ID
		c.Status = models.StatusAssigned
		// A confirmation given to the previous engineer does not carry over.
		c.OtpVerified = false
		c.OtpVerifiedAt = nil

		return &change{
			complaint: c,
			actor:     actor,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionAssigned, Assignment: details},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.complaint, nil
}

func (s *assignmentService) Reassign(ctx context.Context, complaintID, engineerID uuid.UUID, remarks string, actor Actor) (*models.Complaint, error) {
	if _, err := s.activeEngineer(ctx, engineerID); err != nil {
		return nil, err
	}

	result, err := s.lifecycle.mutate(ctx, "reassign", complaintID, func(c *models.Complaint, now time.Time) (*change, error) {
		if !c.HasEngineer() {
			return nil, ErrNoCurrentAssignment
		}
		if !c.Status.AllowsReassignment() {
			return nil, &TransitionError{From: c.Status, To: models.StatusAssigned, Reason: "complaint can no longer be reassigned"}
		}
		if *c.EngineerID == engineerID {
			return nil, &TransitionError{From: c.Status, To: models.StatusAssigned, Reason: "engineer is already assigned"}
		}

		previous := *c.EngineerID
		id := engineerID
		c.EngineerID = &id
		c.AssignedByID = actor.ID
		c.Status = models.StatusAssigned
		// A confirmation given to the previous engineer does not carry over.
		c.OtpVerified = false
		c.OtpVerifiedAt = nil

		return &change{
			complaint: c,
			actor:     actor,
			remarks:   remarks,
			metadata: models.HistoryMetadata{
				Action: models.HistoryActionReassigned,
				Assignment: &models.AssignmentDetails{
					EngineerID:         engineerID,
					PreviousEngineerID: &previous,
					AssignedByID:       actor.ID,
				},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.complaint, nil
}

func (s *assignmentService) ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error) {
	workloads, err := s.workloads.ListWorkloads(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return workloads, nil
}
