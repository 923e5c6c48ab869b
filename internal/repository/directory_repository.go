package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"gorm.io/gorm"
)

type EngineerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Engineer, error)
	List(ctx context.Context, activeOnly bool) ([]models.Engineer, error)
	ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error)
}

type engineerRepository struct {
	db *gorm.DB
}

func NewEngineerRepository(db *gorm.DB) EngineerRepository {
	return &engineerRepository{db: db}
}

func (r *engineerRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Engineer, error) {
	var engineer models.Engineer
	if err := r.db.WithContext(ctx).First(&engineer, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &engineer, nil
}

func (r *engineerRepository) List(ctx context.Context, activeOnly bool) ([]models.Engineer, error) {
	var engineers []models.Engineer
	query := r.db.WithContext(ctx).Order("name ASC, id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&engineers).Error; err != nil {
		return nil, err
	}
	return engineers, nil
}

func (r *engineerRepository) ListWorkloads(ctx context.Context) ([]models.EngineerWorkload, error) {
	var workloads []models.EngineerWorkload
	err := r.db.WithContext(ctx).
		Order("active_complaints DESC, engineer_id ASC").
		Find(&workloads).Error
	if err != nil {
		return nil, err
	}
	return workloads, nil
}

type ReporterRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reporter, error)
}

type reporterRepository struct {
	db *gorm.DB
}

func NewReporterRepository(db *gorm.DB) ReporterRepository {
	return &reporterRepository{db: db}
}

func (r *reporterRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reporter, error) {
	var reporter models.Reporter
	if err := r.db.WithContext(ctx).First(&reporter, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &reporter, nil
}
