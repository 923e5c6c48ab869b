package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/database"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/repository"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ispops/backend/internal/services")

// WorkloadChannel carries models.WorkloadEvent payloads.
const WorkloadChannel = "engineer:workload"

// Locker serialises writers per key. Implemented by database.RedisLocker.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// EventPublisher is implemented by database.RedisStore.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// CacheInvalidator is told about every committed write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEngineer Role = "engineer"
	RoleUser     Role = "user"
	RoleSystem   Role = "system"
)

// Actor is the caller identity recorded as updatedBy on ledger entries.
// A nil ID is a system-initiated write.
type Actor struct {
	ID   *uuid.UUID
	Role Role
}

func NewActor(id uuid.UUID, role string) Actor {
	return Actor{ID: &id, Role: Role(role)}
}

type LifecycleDeps struct {
	Complaints repository.ComplaintRepository
	History    repository.StatusHistoryRepository
	Locker     Locker
	Events     EventPublisher
	Cache      CacheInvalidator
	Logger     *logrus.Logger
	Retry      RetryPolicy
	Clock      func() time.Time
}

// Lifecycle owns the guarded write path shared by the complaint, assignment
// and verification services: lock, fresh read, guard, compare-and-set, ledger append.
type Lifecycle struct {
	complaints repository.ComplaintRepository
	history    repository.StatusHistoryRepository
	locker     Locker
	events     EventPublisher
	cache      CacheInvalidator
	logger     *logrus.Logger
	retry      RetryPolicy
	now        func() time.Time
}

func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	lc := &Lifecycle{
		complaints: deps.Complaints,
		history:    deps.History,
		locker:     deps.Locker,
		events:     deps.Events,
		cache:      deps.Cache,
		logger:     deps.Logger,
		retry:      deps.Retry,
		now:        deps.Clock,
	}
	if lc.logger == nil {
		lc.logger = config.GetLogger()
	}
	if lc.retry.Attempts == 0 {
		lc.retry = DefaultRetryPolicy()
	}
	if lc.now == nil {
		lc.now = func() time.Time { return time.Now().UTC() }
	}
	return lc
}

// change describes the next state produced by a guard function.
type change struct {
	complaint *models.Complaint
	actor     Actor
	remarks   string
	metadata  models.HistoryMetadata
}

// mutateFunc receives a private copy of the current complaint and the write
// timestamp. Returning a nil change makes the operation a successful no-op.
type mutateFunc func(current *models.Complaint, now time.Time) (*change, error)

type mutationResult struct {
	complaint *models.Complaint
	entry     *models.StatusHistoryEntry
	changed   bool
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("complaint:%s", id)
}

func (l *Lifecycle) mutate(ctx context.Context, op string, id uuid.UUID, fn mutateFunc) (*mutationResult, error) {
	ctx, span := tracer.Start(ctx, "complaint."+op, trace.WithAttributes(attribute.String("complaint.id", id.String())))
	defer span.End()

	var result *mutationResult
	err := l.retry.Do(ctx, func(attempt int) error {
		res, err := l.attempt(ctx, id, fn)
		if errors.Is(err, ErrConcurrentModification) {
			l.logger.WithFields(logrus.Fields{
				"module":       "lifecycle",
				"operation":    op,
				"complaint_id": id,
				"attempt":      attempt,
			}).Warn("compare-and-set lost, retrying with fresh state")
		}
		result = res
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if KindOf(err) == KindEnvironment {
			config.LogError(l.logger, "lifecycle", op, "complaint write failed", map[string]interface{}{"complaint_id": id}, err)
		}
		return nil, err
	}
	return result, nil
}

func (l *Lifecycle) attempt(ctx context.Context, id uuid.UUID, fn mutateFunc) (*mutationResult, error) {
	if l.locker != nil {
		release, err := l.locker.Acquire(ctx, lockKey(id))
		if errors.Is(err, database.ErrLockBusy) {
			return nil, ErrConcurrentModification
		}
		if err != nil {
			return nil, storageError(err)
		}
		defer release()
	}

	current, err := l.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrNotFound)
	}

	if current.IsRemoved() {
		return nil, &TransitionError{From: current.Status, To: current.Status, Reason: "complaint has been removed"}
	}

	now := l.now()
	ch, err := fn(current.Clone(), now)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return &mutationResult{complaint: current}, nil
	}

	next := ch.complaint
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if err := next.CheckInvariants(); err != nil {
		return nil, &TransitionError{From: current.Status, To: next.Status, Reason: err.Error()}
	}

	previous := current.Status
	entry, err := models.NewHistoryEntry(current.ID, next.Status, &previous, ch.actor.ID, ch.remarks, ch.metadata, now)
	if err != nil {
		return nil, validationError("%v", err)
	}

	deltas := workloadDeltas(current, next)
	err = l.complaints.Apply(ctx, &repository.Mutation{
		Complaint:       next,
		ExpectedVersion: current.Version,
		Entry:           entry,
		Workload:        deltas,
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil, ErrConcurrentModification
	}
	if err != nil {
		return nil, storageError(err)
	}

	next.IssueType = current.IssueType
	l.afterCommit(ctx, next, entry, deltas)
	return &mutationResult{complaint: next, entry: entry, changed: true}, nil
}

// afterCommit runs the side effects of a committed write. Failures are logged;
// the write itself has already succeeded.
func (l *Lifecycle) afterCommit(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry, deltas []repository.WorkloadDelta) {
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx); err != nil {
			config.LogError(l.logger, "lifecycle", "afterCommit", "analytics cache invalidation failed", complaint.ID, err)
		}
	}

	if l.events == nil {
		return
	}
	for _, delta := range deltas {
		event := models.WorkloadEvent{
			EngineerID:  delta.EngineerID,
			ComplaintID: complaint.ID,
			Delta:       delta.Delta,
			Action:      entry.Action,
			At:          entry.UpdatedAt,
		}
		if err := l.events.Publish(ctx, WorkloadChannel, event); err != nil {
			config.LogError(l.logger, "lifecycle", "afterCommit", "workload event publish failed", event, err)
		}
	}
}

// activeEngineer is the engineer whose workload includes c, if any.
func activeEngineer(c *models.Complaint) *uuid.UUID {
	if !c.HasEngineer() || c.Status.IsTerminal() || c.IsRemoved() {
		return nil
	}
	return c.EngineerID
}

func workloadDeltas(before, after *models.Complaint) []repository.WorkloadDelta {
	was, is := activeEngineer(before), activeEngineer(after)
	if was != nil && is != nil && *was == *is {
		return nil
	}

	var deltas []repository.WorkloadDelta
	if was != nil {
		deltas = append(deltas, repository.WorkloadDelta{EngineerID: *was, Delta: -1})
	}
	if is != nil {
		deltas = append(deltas, repository.WorkloadDelta{EngineerID: *is, Delta: 1})
	}
	return deltas
}

func (l *Lifecycle) invalidate(ctx context.Context, id uuid.UUID) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx); err != nil {
		config.LogError(l.logger, "lifecycle", "invalidate", "analytics cache invalidation failed", id, err)
	}
}
