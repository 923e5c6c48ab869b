package handlers

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ispops/backend/internal/middleware"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/services"
	"github.com/ispops/backend/pkg/utils"
)

type ComplaintHandler struct {
	service      services.ComplaintService
	assignment   services.AssignmentService
	verification services.VerificationService
	validator    *validator.Validate
}

func NewComplaintHandler(service services.ComplaintService, assignment services.AssignmentService, verification services.VerificationService) *ComplaintHandler {
	return &ComplaintHandler{
		service:      service,
		assignment:   assignment,
		verification: verification,
		validator:    validator.New(),
	}
}

// actorFrom falls back to an anonymous actor, which every role check rejects.
func actorFrom(c *fiber.Ctx) services.Actor {
	userID, ok := middleware.UserID(c)
	if !ok {
		return services.Actor{}
	}
	return services.NewActor(userID, middleware.Role(c))
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// bind parses and validates req. When ok is false the error response has
// already been written.
func (h *ComplaintHandler) bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return false, utils.CodedErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	return true, nil
}

// Complaint CRUD

func (h *ComplaintHandler) CreateComplaint(c *fiber.Ctx) error {
	var req models.ComplaintCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	// Checked ahead of the validator so the caller sees the specific failure.
	if len(req.Attachments) > models.MaxAttachments {
		return respondError(c, "CreateComplaint", services.ErrAttachmentLimitExceeded)
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.CodedErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	complaint, err := h.service.CreateComplaint(c.UserContext(), &req, actorFrom(c))
	if err != nil {
		return respondError(c, "CreateComplaint", err)
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, "Complaint created", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) GetComplaint(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	complaint, history, err := h.service.GetComplaint(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return respondError(c, "GetComplaint", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint retrieved", models.ComplaintDetailResponse{
		ComplaintResponse: models.ToComplaintResponse(complaint),
		History:           models.ToStatusHistoryResponses(history),
	})
}

func (h *ComplaintHandler) ListComplaints(c *fiber.Ctx) error {
	filter := &models.ComplaintFilter{}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil {
			filter.Page = p
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	if status := c.Query("status"); status != "" {
		s := models.ComplaintStatus(status)
		filter.Status = &s
	}
	if priority := c.Query("priority"); priority != "" {
		p := models.Priority(priority)
		filter.Priority = &p
	}
	if complaintType := c.Query("type"); complaintType != "" {
		t := models.ComplaintType(complaintType)
		filter.Type = &t
	}
	if reporterID := c.Query("reporter_id"); reporterID != "" {
		if id, err := uuid.Parse(reporterID); err == nil {
			filter.ReporterID = &id
		}
	}
	if engineerID := c.Query("engineer_id"); engineerID != "" {
		if id, err := uuid.Parse(engineerID); err == nil {
			filter.EngineerID = &id
		}
	}
	if middleware.Role(c) == string(services.RoleAdmin) {
		filter.IncludeRemoved = c.QueryBool("include_removed")
	}

	complaints, total, err := h.service.ListComplaints(c.UserContext(), filter, actorFrom(c))
	if err != nil {
		return respondError(c, "ListComplaints", err)
	}

	responses := make([]models.ComplaintResponse, len(complaints))
	for i := range complaints {
		responses[i] = models.ToComplaintResponse(&complaints[i])
	}

	return utils.PaginatedSuccessResponse(c, responses, filter.Page, filter.Limit, total)
}

func (h *ComplaintHandler) UpdateComplaint(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.ComplaintUpdateRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	complaint, err := h.service.UpdateComplaint(c.UserContext(), id, &req, actorFrom(c))
	if err != nil {
		return respondError(c, "UpdateComplaint", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint updated", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) DeleteComplaint(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	complaint, err := h.service.DeleteComplaint(c.UserContext(), id, c.Query("remarks"), actorFrom(c))
	if err != nil {
		return respondError(c, "DeleteComplaint", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint removed", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ListHistory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	after, _ := strconv.ParseInt(c.Query("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit", "100"))

	history, err := h.service.ListHistory(c.UserContext(), id, after, limit, actorFrom(c))
	if err != nil {
		return respondError(c, "ListHistory", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "History retrieved", models.ToStatusHistoryResponses(history))
}

// Assignment

func (h *ComplaintHandler) AssignEngineer(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.AssignEngineerRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	engineerID, _ := uuid.Parse(req.EngineerID)

	complaint, err := h.assignment.Assign(c.UserContext(), id, engineerID, req.Priority, actorFrom(c))
	if err != nil {
		return respondError(c, "AssignEngineer", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Engineer assigned", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ReassignEngineer(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.ReassignEngineerRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	engineerID, _ := uuid.Parse(req.EngineerID)

	complaint, err := h.assignment.Reassign(c.UserContext(), id, engineerID, req.Remarks, actorFrom(c))
	if err != nil {
		return respondError(c, "ReassignEngineer", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Engineer reassigned", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ListWorkloads(c *fiber.Ctx) error {
	workloads, err := h.assignment.ListWorkloads(c.UserContext())
	if err != nil {
		return respondError(c, "ListWorkloads", err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Workloads retrieved", workloads)
}

// Lifecycle

func (h *ComplaintHandler) Transition(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.TransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.Transition(c.UserContext(), id, &req, actorFrom(c))
	if err != nil {
		return respondError(c, "Transition", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Status updated", fiber.Map{
		"complaint":     models.ToComplaintResponse(result.Complaint),
		"otp_issued":    result.OtpIssued,
		"otp_delivered": result.OtpDelivered,
	})
}

func (h *ComplaintHandler) OverrideStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.StatusOverrideRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	complaint, err := h.service.OverrideStatus(c.UserContext(), id, &req, actorFrom(c))
	if err != nil {
		return respondError(c, "OverrideStatus", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Status overridden", models.ToComplaintResponse(complaint))
}

// Verification

func (h *ComplaintHandler) IssueOtp(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	issue, err := h.verification.IssueOtp(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return respondError(c, "IssueOtp", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Verification code sent to the customer", issue)
}

func (h *ComplaintHandler) VerifyOtp(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	var req models.VerifyOtpRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	complaint, err := h.verification.VerifyOtp(c.UserContext(), id, req.Code, actorFrom(c))
	if err != nil {
		return respondError(c, "VerifyOtp", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Verification code accepted", models.ToComplaintResponse(complaint))
}
