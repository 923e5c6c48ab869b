package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"gorm.io/gorm"
)

type NotificationLogRepository interface {
	Create(ctx context.Context, log *models.NotificationLog) error
	ListForComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.NotificationLog, error)
}

type notificationLogRepository struct {
	db *gorm.DB
}

func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

func (r *notificationLogRepository) Create(
	ctx context.Context,
	log *models.NotificationLog,
) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *notificationLogRepository) ListForComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
