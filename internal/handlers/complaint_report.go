package handlers

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/pkg/utils"
	"github.com/jung-kurt/gofpdf"
)

const reportTimeLayout = "2006-01-02 15:04"

// GenerateReport renders the job sheet of a complaint: its details, the
// resolution and the full status timeline.
func (h *ComplaintHandler) GenerateReport(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid ID")
	}

	complaint, history, err := h.service.GetComplaint(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return respondError(c, "GenerateReport", err)
	}

	generatedAt := time.Now().UTC()
	filename := fmt.Sprintf("complaint_%s_%s", complaint.Code(), generatedAt.Format("20060102"))

	switch c.Query("format", "pdf") {
	case "pdf":
		data, err := RenderComplaintReport(complaint, history, generatedAt)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate PDF")
		}
		c.Set("Content-Type", "application/pdf")
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		return c.Send(data)

	case "json":
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", filename))
		return c.JSON(fiber.Map{
			"generated_at": generatedAt.Format(time.RFC3339),
			"complaint":    models.ToComplaintResponse(complaint),
			"history":      models.ToStatusHistoryResponses(history),
		})

	default:
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid format. Use 'pdf' or 'json'")
	}
}

func RenderComplaintReport(complaint *models.Complaint, history []models.StatusHistoryEntry, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.Cell(0, 10, "COMPLAINT JOB SHEET")
	pdf.Ln(12)

	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 6, "Generated: "+generatedAt.Format(reportTimeLayout)+" UTC")
	pdf.Ln(10)
	pdf.SetTextColor(0, 0, 0)

	section := func(title string) {
		pdf.SetFont("Arial", "B", 14)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 8, title, "", 1, "L", true, 0, "")
		pdf.Ln(2)
	}
	row := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont("Arial", "", 10)
		pdf.Cell(45, 6, label+":")
		pdf.SetFont("Arial", "B", 10)
		pdf.MultiCell(0, 6, value, "", "L", false)
	}

	section("Complaint Details")
	row("Complaint", complaint.Code())
	row("Title", complaint.Title)
	row("Type", string(complaint.Type))
	if complaint.IssueType != nil {
		row("Issue", complaint.IssueType.Name)
	}
	row("Priority", string(complaint.Priority))
	row("Status", string(models.DisplayStatus(complaint.Status, complaint.HasEngineer())))
	row("Contact", complaint.PhoneNumber)
	if complaint.EngineerID != nil {
		row("Engineer", complaint.EngineerID.String())
	}
	if complaint.IsReComplaint {
		row("Re-complaint", fmt.Sprintf("yes, reopened %d time(s)", complaint.ReopenCount))
	}
	row("Created", complaint.CreatedAt.UTC().Format(reportTimeLayout))
	row("Updated", complaint.UpdatedAt.UTC().Format(reportTimeLayout))
	if complaint.IsRemoved() {
		row("Removed", complaint.RemovedAt.UTC().Format(reportTimeLayout))
	}
	pdf.Ln(4)

	if complaint.Description != "" {
		section("Description")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, complaint.Description, "", "L", false)
		pdf.Ln(4)
	}

	if len(complaint.Attachments) > 0 {
		section(fmt.Sprintf("Attachments (%d)", len(complaint.Attachments)))
		pdf.SetFont("Arial", "", 10)
		for i, ref := range complaint.Attachments {
			pdf.Cell(0, 6, fmt.Sprintf("%d. %s", i+1, ref))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	if complaint.Status == models.StatusResolved {
		section("Resolution")
		if complaint.ResolutionDate != nil {
			row("Resolved", complaint.ResolutionDate.UTC().Format(reportTimeLayout))
		}
		if complaint.ResolutionTimeInHours != nil {
			row("Time to resolve", fmt.Sprintf("%.2f hours", *complaint.ResolutionTimeInHours))
		}
		if complaint.OtpVerifiedAt != nil {
			row("Customer confirmed", complaint.OtpVerifiedAt.UTC().Format(reportTimeLayout))
		}
		row("Notes", complaint.ResolutionNotes)
		if len(complaint.ResolutionAttachments) > 0 {
			row("Evidence", strings.Join(complaint.ResolutionAttachments, ", "))
		}
		pdf.Ln(4)
	}

	if len(history) > 0 {
		section(fmt.Sprintf("Status Timeline (%d)", len(history)))
		for _, entry := range history {
			from := "-"
			if entry.PreviousStatus != nil {
				from = string(*entry.PreviousStatus)
			}

			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(0, 6, fmt.Sprintf("%d. %s: %s -> %s", entry.Sequence, entry.Action, from, entry.Status))
			pdf.Ln(6)

			pdf.SetFont("Arial", "", 9)
			pdf.Cell(30, 5, "At:")
			pdf.Cell(0, 5, entry.UpdatedAt.UTC().Format(reportTimeLayout))
			pdf.Ln(5)
			if entry.UpdatedByID != nil {
				pdf.Cell(30, 5, "By:")
				pdf.Cell(0, 5, entry.UpdatedByID.String())
				pdf.Ln(5)
			}
			if entry.Remarks != nil && *entry.Remarks != "" {
				pdf.Cell(30, 5, "Remarks:")
				pdf.MultiCell(0, 5, *entry.Remarks, "", "L", false)
			}
			pdf.Ln(3)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
