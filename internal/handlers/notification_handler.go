package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/pkg/utils"
)

type NotificationLogLister interface {
	ListForComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.NotificationLog, error)
}

// NotificationHandler exposes the happy-code delivery audit to admins.
type NotificationHandler struct {
	logs NotificationLogLister
}

func NewNotificationHandler(logs NotificationLogLister) *NotificationHandler {
	return &NotificationHandler{logs: logs}
}

func (h *NotificationHandler) ListForComplaint(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	logs, err := h.logs.ListForComplaint(c.UserContext(), id)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list notifications")
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Notifications retrieved", logs)
}
