package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/ispops/backend/internal/storage"
	"github.com/ispops/backend/pkg/utils"
)

type AttachmentUploader interface {
	UploadAttachment(ctx context.Context, file io.Reader, filename, contentType string, size int64, folder string) (string, error)
	GetFileURL(ctx context.Context, objectName string) (string, error)
}

type AttachmentHandler struct {
	storage AttachmentUploader
}

func NewAttachmentHandler(storage AttachmentUploader) *AttachmentHandler {
	return &AttachmentHandler{storage: storage}
}

// Upload stores one file and returns the reference to pass in a complaint's
// attachments or a resolution's evidence list.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No file uploaded")
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read file")
	}
	defer src.Close()

	folder := storage.ComplaintFolder
	if c.FormValue("purpose") == "resolution" {
		folder = storage.ResolutionFolder
	}

	ref, err := h.storage.UploadAttachment(c.UserContext(), src, file.Filename, file.Header.Get("Content-Type"), file.Size, folder)
	switch {
	case errors.Is(err, storage.ErrUnsupportedFile), errors.Is(err, storage.ErrFileTooLarge):
		return utils.CodedErrorResponse(c, fiber.StatusBadRequest, "invalid_attachment", err.Error())
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to upload file")
	}

	data := fiber.Map{"reference": ref, "file_name": file.Filename, "size": file.Size}
	if url, err := h.storage.GetFileURL(c.UserContext(), ref); err == nil {
		data["url"] = url
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, "Attachment uploaded", data)
}
