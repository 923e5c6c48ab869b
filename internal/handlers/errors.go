package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/services"
	"github.com/ispops/backend/pkg/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first target the error matches wins.
var errorMappings = []errorMapping{
	{services.ErrAttachmentLimitExceeded, fiber.StatusBadRequest, "attachment_limit_exceeded"},
	{services.ErrValidation, fiber.StatusBadRequest, "validation_failed"},
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrForbidden, fiber.StatusForbidden, "forbidden"},
	{services.ErrEngineerNotFound, fiber.StatusUnprocessableEntity, "engineer_not_found"},
	{services.ErrReporterNotFound, fiber.StatusUnprocessableEntity, "reporter_not_found"},
	{services.ErrIssueTypeNotFound, fiber.StatusUnprocessableEntity, "issue_type_not_found"},
	{services.ErrOtpMismatch, fiber.StatusUnprocessableEntity, "otp_mismatch"},
	{services.ErrNoCurrentAssignment, fiber.StatusConflict, "no_current_assignment"},
	{services.ErrInvalidTransition, fiber.StatusConflict, "invalid_transition"},
	{services.ErrConcurrentModification, fiber.StatusConflict, "concurrent_modification"},
	{services.ErrOtpDeliveryFailed, fiber.StatusBadGateway, "otp_delivery_failed"},
	{services.ErrStorageUnavailable, fiber.StatusServiceUnavailable, "storage_unavailable"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "internal_error"
}

// respondError writes err as a coded JSON error. Environment failures are
// logged and their detail withheld from the caller.
func respondError(c *fiber.Ctx, op string, err error) error {
	status, code := statusFor(err)
	if services.KindOf(err) == services.KindEnvironment {
		config.LogError(config.GetLogger(), "handlers", op, "request failed", c.Path(), err)
		return utils.CodedErrorResponse(c, status, code, "The service is temporarily unable to complete this request")
	}
	return utils.CodedErrorResponse(c, status, code, err.Error())
}
