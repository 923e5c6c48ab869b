package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"gorm.io/gorm"
)

type IssueTypeRepository interface {
	Create(ctx context.Context, issueType *models.IssueType) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.IssueType, error)
	List(ctx context.Context, complaintType *models.ComplaintType, activeOnly bool) ([]models.IssueType, error)
	Count(ctx context.Context) (int64, error)
}

type issueTypeRepository struct {
	db *gorm.DB
}

func NewIssueTypeRepository(db *gorm.DB) IssueTypeRepository {
	return &issueTypeRepository{db: db}
}

func (r *issueTypeRepository) Create(ctx context.Context, issueType *models.IssueType) error {
	return r.db.WithContext(ctx).Create(issueType).Error
}

func (r *issueTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.IssueType, error) {
	var issueType models.IssueType
	if err := r.db.WithContext(ctx).First(&issueType, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &issueType, nil
}

func (r *issueTypeRepository) List(ctx context.Context, complaintType *models.ComplaintType, activeOnly bool) ([]models.IssueType, error) {
	var issueTypes []models.IssueType
	query := r.db.WithContext(ctx).Order("complaint_type ASC, sort_order ASC, name ASC")

	if complaintType != nil {
		query = query.Where("complaint_type = ?", *complaintType)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Find(&issueTypes).Error; err != nil {
		return nil, err
	}
	return issueTypes, nil
}

func (r *issueTypeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IssueType{}).Count(&count).Error
	return count, err
}
