package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/pkg/utils"
)

type IssueTypeLister interface {
	List(ctx context.Context, complaintType *models.ComplaintType, activeOnly bool) ([]models.IssueType, error)
}

type EngineerLister interface {
	List(ctx context.Context, activeOnly bool) ([]models.Engineer, error)
}

// CatalogHandler serves the reference data complaint forms are built from.
type CatalogHandler struct {
	issueTypes IssueTypeLister
	engineers  EngineerLister
}

func NewCatalogHandler(issueTypes IssueTypeLister, engineers EngineerLister) *CatalogHandler {
	return &CatalogHandler{issueTypes: issueTypes, engineers: engineers}
}

func (h *CatalogHandler) ListIssueTypes(c *fiber.Ctx) error {
	var complaintType *models.ComplaintType
	if t := models.ComplaintType(c.Query("type")); t != "" {
		if !t.Valid() {
			return utils.CodedErrorResponse(c, fiber.StatusBadRequest, "validation_failed", "type must be WIFI or CCTV")
		}
		complaintType = &t
	}

	issueTypes, err := h.issueTypes.List(c.UserContext(), complaintType, !c.QueryBool("include_inactive"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list issue types")
	}

	responses := make([]models.IssueTypeResponse, len(issueTypes))
	for i := range issueTypes {
		responses[i] = models.ToIssueTypeResponse(&issueTypes[i])
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Issue types retrieved", responses)
}

func (h *CatalogHandler) ListEngineers(c *fiber.Ctx) error {
	engineers, err := h.engineers.List(c.UserContext(), !c.QueryBool("include_inactive"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list engineers")
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Engineers retrieved", engineers)
}
