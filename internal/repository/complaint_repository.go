package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkloadDelta adjusts an engineer's active complaint counter.
type WorkloadDelta struct {
	EngineerID uuid.UUID
	Delta      int64
}

// Mutation is one all-or-nothing write: the new complaint state, guarded by
// ExpectedVersion, plus the ledger entry and workload changes it implies.
type Mutation struct {
	Complaint       *models.Complaint
	ExpectedVersion int64
	Entry           *models.StatusHistoryEntry
	Workload        []WorkloadDelta
}

type ComplaintRepository interface {
	Create(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	List(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error)
	Apply(ctx context.Context, mutation *Mutation) error

	// Snapshot reads everything analytics needs for window in one repeatable-read transaction.
	Snapshot(ctx context.Context, window models.AnalyticsPeriod) (*models.AnalyticsSnapshot, error)
}

type complaintRepository struct {
	db *gorm.DB
}

func NewComplaintRepository(db *gorm.DB) ComplaintRepository {
	return &complaintRepository{db: db}
}

func (r *complaintRepository) Create(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(complaint).Error; err != nil {
			return err
		}
		entry.ComplaintID = complaint.ID
		entry.Sequence = complaint.Version
		return tx.Create(entry).Error
	}))
}

func (r *complaintRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	var complaint models.Complaint
	err := r.db.WithContext(ctx).
		Preload("IssueType", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		First(&complaint, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &complaint, nil
}

func (r *complaintRepository) List(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error) {
	var complaints []models.Complaint
	var total int64

	filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.Complaint{})

	if !filter.IncludeRemoved {
		query = query.Where("removed_at IS NULL")
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", *filter.Priority)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ReporterID != nil {
		query = query.Where("reporter_id = ?", *filter.ReporterID)
	}
	if filter.EngineerID != nil {
		query = query.Where("engineer_id = ?", *filter.EngineerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := query.
		Preload("IssueType", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&complaints).Error
	if err != nil {
		return nil, 0, err
	}

	return complaints, total, nil
}

func (r *complaintRepository) Apply(ctx context.Context, mutation *Mutation) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Complaint{}).
			Where("id = ? AND version = ?", mutation.Complaint.ID, mutation.ExpectedVersion).
			Updates(mutation.Complaint.Columns())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		mutation.Entry.ComplaintID = mutation.Complaint.ID
		mutation.Entry.Sequence = mutation.Complaint.Version
		if err := tx.Create(mutation.Entry).Error; err != nil {
			return err
		}

		for _, delta := range mutation.Workload {
			if err := adjustWorkload(tx, delta, mutation.Complaint.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	}))
}

func adjustWorkload(tx *gorm.DB, delta WorkloadDelta, at time.Time) error {
	row := models.EngineerWorkload{
		EngineerID:       delta.EngineerID,
		ActiveComplaints: max(delta.Delta, 0),
		UpdatedAt:        at,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "engineer_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"active_complaints": gorm.Expr("GREATEST(engineer_workloads.active_complaints + ?, 0)", delta.Delta),
			"updated_at":        at,
		}),
	}).Create(&row).Error
}

func (r *complaintRepository) Snapshot(ctx context.Context, window models.AnalyticsPeriod) (*models.AnalyticsSnapshot, error) {
	snapshot := &models.AnalyticsSnapshot{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("removed_at IS NULL AND created_at < ?", window.To).
			Where("(created_at >= ? OR resolution_date >= ? OR id IN (?))", window.From, window.From,
				tx.Model(&models.StatusHistoryEntry{}).
					Select("complaint_id").
					Where("updated_at >= ? AND updated_at < ?", window.From, window.To)).
			Order("created_at ASC, id ASC").
			Find(&snapshot.Complaints).Error
		if err != nil {
			return err
		}

		err = tx.
			Joins("JOIN complaints ON complaints.id = status_history_entries.complaint_id AND complaints.removed_at IS NULL").
			Where("status_history_entries.updated_at >= ? AND status_history_entries.updated_at < ?", window.From, window.To).
			Order("status_history_entries.updated_at ASC, status_history_entries.sequence ASC").
			Find(&snapshot.History).Error
		if err != nil {
			return err
		}

		if err := tx.Order("name ASC, id ASC").Find(&snapshot.Engineers).Error; err != nil {
			return err
		}
		return tx.Unscoped().Order("sort_order ASC, name ASC").Find(&snapshot.IssueTypes).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
