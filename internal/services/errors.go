package services

import (
	"errors"
	"fmt"

	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/repository"
)

var (
	ErrNotFound                = errors.New("complaint not found")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrEngineerNotFound        = errors.New("engineer not found")
	ErrNoCurrentAssignment     = errors.New("complaint has no current assignment")
	ErrOtpMismatch             = errors.New("otp mismatch")
	ErrAttachmentLimitExceeded = errors.New("attachment limit exceeded")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrValidation              = errors.New("validation failed")
	ErrReporterNotFound        = errors.New("reporter not found")
	ErrIssueTypeNotFound       = errors.New("issue type not found")
	ErrStorageUnavailable      = errors.New("storage unavailable")
	ErrOtpDeliveryFailed       = errors.New("otp delivery failed")
	ErrForbidden               = errors.New("not permitted for this caller")
)

// TransitionError names the offending from/to pair of a rejected state change.
type TransitionError struct {
	From   models.ComplaintStatus
	To     models.ComplaintStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type ErrorKind string

const (
	KindClient      ErrorKind = "client"
	KindEnvironment ErrorKind = "environment"
)

var clientErrors = []error{
	ErrNotFound,
	ErrInvalidTransition,
	ErrEngineerNotFound,
	ErrNoCurrentAssignment,
	ErrOtpMismatch,
	ErrAttachmentLimitExceeded,
	ErrConcurrentModification,
	ErrValidation,
	ErrReporterNotFound,
	ErrIssueTypeNotFound,
	ErrForbidden,
}

// KindOf separates caller mistakes from environment failures. Unknown errors
// are environment failures.
func KindOf(err error) ErrorKind {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return KindClient
		}
	}
	return KindEnvironment
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// lookupError maps a repository read failure, using notFound for a missing row.
func lookupError(err, notFound error) error {
	if errors.Is(err, repository.ErrRecordNotFound) {
		return notFound
	}
	return storageError(err)
}
