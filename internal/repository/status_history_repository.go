package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"gorm.io/gorm"
)

// StatusHistoryRepository is the read side of the ledger. Entries are only
// written through ComplaintRepository so store and ledger stay in one transaction.
type StatusHistoryRepository interface {
	// ListFor returns entries with sequence > afterSequence, oldest first. limit <= 0 means all.
	ListFor(ctx context.Context, complaintID uuid.UUID, afterSequence int64, limit int) ([]models.StatusHistoryEntry, error)
}

type statusHistoryRepository struct {
	db *gorm.DB
}

func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) ListFor(ctx context.Context, complaintID uuid.UUID, afterSequence int64, limit int) ([]models.StatusHistoryEntry, error) {
	var entries []models.StatusHistoryEntry
	query := r.db.WithContext(ctx).
		Where("complaint_id = ? AND sequence > ?", complaintID, afterSequence).
		Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

