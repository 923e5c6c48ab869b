package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// OtpIssue is the result of issuing a happy code. Code is for out-of-band
// delivery only and is never serialised.
type OtpIssue struct {
	ComplaintID uuid.UUID `json:"complaint_id"`
	IssuedAt    time.Time `json:"issued_at"`
	Delivered   bool      `json:"delivered"`
	Code        string    `json:"-"`
}

type VerificationService interface {
	IssueOtp(ctx context.Context, complaintID uuid.UUID, actor Actor) (*OtpIssue, error)
	VerifyOtp(ctx context.Context, complaintID uuid.UUID, code string, actor Actor) (*models.Complaint, error)

	// used by the visited transition, which issues the first code in the same write
	stamp(c *models.Complaint, now time.Time) (string, error)
	deliver(ctx context.Context, complaint *models.Complaint, code string) error
}

type OtpPolicy struct {
	Length   int
	HashCost int
}

func (p OtpPolicy) normalized() OtpPolicy {
	if p.Length < 4 || p.Length > 10 {
		p.Length = 6
	}
	if p.HashCost < bcrypt.MinCost || p.HashCost > bcrypt.MaxCost {
		p.HashCost = bcrypt.DefaultCost
	}
	return p
}

type verificationService struct {
	lifecycle *Lifecycle
	notifier  OtpNotifier
	reporters ReporterDirectory
	policy    OtpPolicy
}

func NewVerificationService(lifecycle *Lifecycle, notifier OtpNotifier, reporters ReporterDirectory, policy OtpPolicy) VerificationService {
	return &verificationService{
		lifecycle: lifecycle,
		notifier:  notifier,
		reporters: reporters,
		policy:    policy.normalized(),
	}
}

// GenerateOtp draws a numeric code of the given length from crypto/rand.
func GenerateOtp(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// stamp generates a fresh code and stores its hash on c.
func (s *verificationService) stamp(c *models.Complaint, now time.Time) (string, error) {
	code, err := GenerateOtp(s.policy.Length)
	if err != nil {
		return "", storageError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.policy.HashCost)
	if err != nil {
		return "", storageError(err)
	}
	issuedAt := now
	c.OtpHash = string(hash)
	c.OtpIssuedAt = &issuedAt
	c.OtpVerified = false
	c.OtpVerifiedAt = nil
	return code, nil
}

func (s *verificationService) IssueOtp(ctx context.Context, complaintID uuid.UUID, actor Actor) (*OtpIssue, error) {
	var code string
	result, err := s.lifecycle.mutate(ctx, "issue_otp", complaintID, func(c *models.Complaint, now time.Time) (*change, error) {
		if !c.Status.AllowsOtpIssue() {
			return nil, &TransitionError{From: c.Status, To: c.Status, Reason: "otp can only be issued while the complaint is being worked"}
		}
		if c.OtpVerified {
			return nil, &TransitionError{From: c.Status, To: c.Status, Reason: "otp already verified"}
		}

		var err error
		if code, err = s.stamp(c, now); err != nil {
			return nil, err
		}
		return &change{
			complaint: c,
			actor:     actor,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionOtpIssued, Otp: &models.OtpDetails{IssuedAt: c.OtpIssuedAt}},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	issue := &OtpIssue{ComplaintID: complaintID, IssuedAt: *result.complaint.OtpIssuedAt, Code: code}
	if err := s.deliver(ctx, result.complaint, code); err != nil {
		return issue, err
	}
	issue.Delivered = true
	return issue, nil
}

// deliver sends the plaintext code to the reporting user.
func (s *verificationService) deliver(ctx context.Context, complaint *models.Complaint, code string) error {
	err := s.send(ctx, complaint, code)
	if err != nil {
		config.LogError(s.lifecycle.logger, "verification", "deliver", "otp delivery failed", complaint.ID, err)
		return fmt.Errorf("%w: %w", ErrOtpDeliveryFailed, err)
	}
	return nil
}

func (s *verificationService) send(ctx context.Context, complaint *models.Complaint, code string) error {
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}
	reporter, err := s.reporters.FindByID(ctx, complaint.ReporterID)
	if err != nil {
		return lookupError(err, ErrReporterNotFound)
	}
	return s.notifier.SendOtp(ctx, reporter, complaint, code)
}

func (s *verificationService) VerifyOtp(ctx context.Context, complaintID uuid.UUID, code string, actor Actor) (*models.Complaint, error) {
	submitted := strings.TrimSpace(code)
	if submitted == "" {
		return nil, ErrOtpMismatch
	}

	result, err := s.lifecycle.mutate(ctx, "verify_otp", complaintID, func(c *models.Complaint, now time.Time) (*change, error) {
		if !c.HasOtp() {
			return nil, &TransitionError{From: c.Status, To: c.Status, Reason: "no otp has been issued"}
		}

		err := bcrypt.CompareHashAndPassword([]byte(c.OtpHash), []byte(submitted))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrOtpMismatch
		}
		if err != nil {
			return nil, storageError(err)
		}
		if c.OtpVerified {
			return nil, nil
		}

		verifiedAt := now
		c.OtpVerified = true
		c.OtpVerifiedAt = &verifiedAt
		return &change{
			complaint: c,
			actor:     actor,
			metadata:  models.HistoryMetadata{Action: models.HistoryActionOtpVerified, Otp: &models.OtpDetails{VerifiedAt: &verifiedAt}},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.complaint, nil
}
