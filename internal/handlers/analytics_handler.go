package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/services"
	"github.com/ispops/backend/pkg/utils"
	"github.com/xuri/excelize/v2"
)

type AnalyticsHandler struct {
	service services.AnalyticsService
}

func NewAnalyticsHandler(service services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

func parseBound(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC3339", value)
}

func parseAnalyticsQuery(c *fiber.Ctx) (models.AnalyticsQuery, error) {
	var query models.AnalyticsQuery
	var err error
	if query.From, err = parseBound(c.Query("from")); err != nil {
		return query, err
	}
	if query.To, err = parseBound(c.Query("to")); err != nil {
		return query, err
	}
	if days := c.Query("days"); days != "" {
		if query.Days, err = strconv.Atoi(days); err != nil {
			return query, fmt.Errorf("invalid days %q", days)
		}
	}
	return query, nil
}

func (h *AnalyticsHandler) GetAnalytics(c *fiber.Ctx) error {
	query, err := parseAnalyticsQuery(c)
	if err != nil {
		return utils.CodedErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	result, err := h.service.GetAnalytics(c.UserContext(), query)
	if err != nil {
		return respondError(c, "GetAnalytics", err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Analytics retrieved", result)
}

func (h *AnalyticsHandler) ExportAnalytics(c *fiber.Ctx) error {
	query, err := parseAnalyticsQuery(c)
	if err != nil {
		return utils.CodedErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	result, err := h.service.GetAnalytics(c.UserContext(), query)
	if err != nil {
		return respondError(c, "ExportAnalytics", err)
	}

	f, err := BuildAnalyticsWorkbook(result)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build workbook")
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to write workbook")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=analytics_%s_%s.xlsx",
		result.Period.From.Format("20060102"), result.Period.To.Format("20060102")))
	return c.Send(buf.Bytes())
}

// BuildAnalyticsWorkbook lays each dashboard section out on its own sheet.
func BuildAnalyticsWorkbook(a *models.Analytics) (*excelize.File, error) {
	f := excelize.NewFile()

	kpiRows := [][]interface{}{
		{"Period from", a.Period.From.Format("2006-01-02")},
		{"Period to", a.Period.To.Format("2006-01-02")},
		{},
		{"KPI", "Value", "Previous", "Change %", "Trend"},
	}
	for _, k := range []struct {
		name string
		kpi  models.KPI
	}{
		{"Total complaints", a.KPIs.TotalComplaints},
		{"Resolution rate %", a.KPIs.ResolutionRate},
		{"Avg resolution time (h)", a.KPIs.AvgResolutionTime},
		{"Pending issues", a.KPIs.PendingIssues},
	} {
		kpiRows = append(kpiRows, []interface{}{k.name, k.kpi.Value, k.kpi.PreviousValue, k.kpi.Change, string(k.kpi.Trend)})
	}

	var distRows [][]interface{}
	distRows = append(distRows, []interface{}{"Dimension", "Key", "Count", "Percentage"})
	for _, d := range []struct {
		name  string
		items []models.DistributionItem
	}{
		{"status", a.StatusDistribution},
		{"type", a.TypeDistribution},
		{"priority", a.PriorityDistribution},
	} {
		for _, item := range d.items {
			distRows = append(distRows, []interface{}{d.name, item.Key, item.Count, item.Percentage})
		}
	}

	trendRows := [][]interface{}{{"Date", "New", "Resolved", "Pending"}}
	for _, b := range a.Trends {
		trendRows = append(trendRows, []interface{}{b.Date, b.NewComplaints, b.Resolved, b.Pending})
	}

	issueRows := [][]interface{}{{"Issue type", "Category", "Count", "Percentage"}}
	for _, r := range a.TopIssueTypes {
		issueRows = append(issueRows, []interface{}{r.Name, string(r.ComplaintType), r.Count, r.Percentage})
	}

	engineerRows := [][]interface{}{{"Engineer", "Email", "Assigned", "Resolved", "Avg resolution time (h)"}}
	for _, e := range a.EngineerPerformance {
		engineerRows = append(engineerRows, []interface{}{e.Name, e.Email, e.Assigned, e.Resolved, e.AvgResolutionTime})
	}

	activityRows := [][]interface{}{{"When", "Complaint", "Title", "Action", "Status"}}
	for _, item := range a.RecentActivity {
		activityRows = append(activityRows, []interface{}{item.UpdatedAt.UTC().Format(time.RFC3339), item.Code, item.Title, string(item.Action), string(item.Status)})
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{"KPIs", kpiRows},
		{"Distributions", distRows},
		{"Trends", trendRows},
		{"Top Issues", issueRows},
		{"Engineers", engineerRows},
		{"Recent Activity", activityRows},
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}
		for r, row := range sheet.rows {
			if len(row) == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(sheet.name, cell, &row); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}
