package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ispops/backend/internal/middleware"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/services"
	"github.com/ispops/backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockComplaintService struct {
	mock.Mock
}

func (m *MockComplaintService) CreateComplaint(ctx context.Context, req *models.ComplaintCreateRequest, actor services.Actor) (*models.Complaint, error) {
	args := m.Called(ctx, req, actor)
	complaint, _ := args.Get(0).(*models.Complaint)
	return complaint, args.Error(1)
}

func (m *MockComplaintService) GetComplaint(ctx context.Context, id uuid.UUID, actor services.Actor) (*models.Complaint, []models.StatusHistoryEntry, error) {
	args := m.Called(ctx, id, actor)
	complaint, _ := args.Get(0).(*models.Complaint)
	history, _ := args.Get(1).([]models.StatusHistoryEntry)
	return complaint, history, args.Error(2)
}

func (m *MockComplaintService) ListComplaints(ctx context.Context, filter *models.ComplaintFilter, actor services.Actor) ([]models.Complaint, int64, error) {
	args := m.Called(ctx, filter, actor)
	complaints, _ := args.Get(0).([]models.Complaint)
	return complaints, args.Get(1).(int64), args.Error(2)
}

func (m *MockComplaintService) ListHistory(ctx context.Context, id uuid.UUID, afterSequence int64, limit int, actor services.Actor) ([]models.StatusHistoryEntry, error) {
	args := m.Called(ctx, id, afterSequence, limit, actor)
	history, _ := args.Get(0).([]models.StatusHistoryEntry)
	return history, args.Error(1)
}

func (m *MockComplaintService) UpdateComplaint(ctx context.Context, id uuid.UUID, req *models.ComplaintUpdateRequest, actor services.Actor) (*models.Complaint, error) {
	args := m.Called(ctx, id, req, actor)
	complaint, _ := args.Get(0).(*models.Complaint)
	return complaint, args.Error(1)
}

func (m *MockComplaintService) DeleteComplaint(ctx context.Context, id uuid.UUID, remarks string, actor services.Actor) (*models.Complaint, error) {
	args := m.Called(ctx, id, remarks, actor)
	complaint, _ := args.Get(0).(*models.Complaint)
	return complaint, args.Error(1)
}

func (m *MockComplaintService) Transition(ctx context.Context, id uuid.UUID, req *models.TransitionRequest, actor services.Actor) (*services.TransitionResult, error) {
	args := m.Called(ctx, id, req, actor)
	result, _ := args.Get(0).(*services.TransitionResult)
	return result, args.Error(1)
}

func (m *MockComplaintService) OverrideStatus(ctx context.Context, id uuid.UUID, req *models.StatusOverrideRequest, actor services.Actor) (*models.Complaint, error) {
	args := m.Called(ctx, id, req, actor)
	complaint, _ := args.Get(0).(*models.Complaint)
	return complaint, args.Error(1)
}

type stubAnalytics struct {
	result *models.Analytics
	err    error
	query  models.AnalyticsQuery
}

func (s *stubAnalytics) GetAnalytics(_ context.Context, query models.AnalyticsQuery) (*models.Analytics, error) {
	s.query = query
	return s.result, s.err
}

func (s *stubAnalytics) Refresh(context.Context) error    { return nil }
func (s *stubAnalytics) Invalidate(context.Context) error { return nil }

var adminID = uuid.MustParse("5b0c6f2e-52f4-4a59-9a0e-6f1b0d7f1a10")

// withActor stands in for the auth middleware.
func withActor(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, adminID)
		c.Locals(middleware.LocalRole, role)
		return c.Next()
	}
}

func newComplaintApp(service services.ComplaintService) *fiber.App {
	return newComplaintAppAs(service, "admin")
}

func newComplaintAppAs(service services.ComplaintService, role string) *fiber.App {
	h := NewComplaintHandler(service, nil, nil)
	app := fiber.New()
	app.Use(withActor(role))
	app.Post("/complaints", h.CreateComplaint)
	app.Get("/complaints", h.ListComplaints)
	app.Get("/complaints/:id", h.GetComplaint)
	app.Get("/complaints/:id/history", h.ListHistory)
	app.Get("/complaints/:id/report", h.GenerateReport)
	app.Post("/complaints/:id/transition", h.Transition)
	return app
}

func sampleComplaint() *models.Complaint {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	engineer := uuid.New()
	return &models.Complaint{
		ID:          uuid.New(),
		Type:        models.ComplaintTypeWIFI,
		Title:       "No internet since morning",
		IssueTypeID: uuid.New(),
		Description: "Router lights blink red",
		Priority:    models.PriorityHigh,
		Status:      models.StatusInProgress,
		PhoneNumber: "+919876543210",
		Attachments: []string{"complaints/2026/03/a.jpg"},
		ReporterID:  uuid.New(),
		EngineerID:  &engineer,
		Version:     3,
		CreatedAt:   created,
		UpdatedAt:   created.Add(time.Hour),
	}
}

func decode(t *testing.T, resp *http.Response) utils.Response {
	t.Helper()
	var body utils.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: title", services.ErrValidation), 400, "validation_failed"},
		{"attachments", services.ErrAttachmentLimitExceeded, 400, "attachment_limit_exceeded"},
		{"not found", services.ErrNotFound, 404, "not_found"},
		{"forbidden", services.ErrForbidden, 403, "forbidden"},
		{"engineer", services.ErrEngineerNotFound, 422, "engineer_not_found"},
		{"otp mismatch", services.ErrOtpMismatch, 422, "otp_mismatch"},
		{"transition", fmt.Errorf("%w: resolved is terminal", services.ErrInvalidTransition), 409, "invalid_transition"},
		{"concurrent", services.ErrConcurrentModification, 409, "concurrent_modification"},
		{"unassigned", services.ErrNoCurrentAssignment, 409, "no_current_assignment"},
		{"delivery", services.ErrOtpDeliveryFailed, 502, "otp_delivery_failed"},
		{"storage", services.ErrStorageUnavailable, 503, "storage_unavailable"},
		{"unknown", errors.New("boom"), 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestCreateComplaint_TooManyAttachmentsRejectedBeforeService(t *testing.T) {
	// Arrange
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	payload := map[string]interface{}{
		"type":          "WIFI",
		"title":         "Slow speed",
		"issue_type_id": uuid.New().String(),
		"priority":      "low",
		"reporter_id":   uuid.New().String(),
		"attachments":   []string{"a", "b", "c", "d", "e"},
	}
	raw, _ := json.Marshal(payload)

	// Act
	req := httptest.NewRequest(http.MethodPost, "/complaints", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "attachment_limit_exceeded", decode(t, resp).Code)
	service.AssertNotCalled(t, "CreateComplaint", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateComplaint_PassesActorAndReturnsCreated(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	created := sampleComplaint()
	created.Status = models.StatusPending
	created.EngineerID = nil

	service.On("CreateComplaint", mock.Anything, mock.MatchedBy(func(r *models.ComplaintCreateRequest) bool {
		return r.Title == "Slow speed" && len(r.Attachments) == 1
	}), services.NewActor(adminID, "admin")).Return(created, nil)

	raw, _ := json.Marshal(map[string]interface{}{
		"type":          "WIFI",
		"title":         "Slow speed",
		"issue_type_id": uuid.New().String(),
		"priority":      "low",
		"reporter_id":   uuid.New().String(),
		"attachments":   []string{"complaints/2026/03/x.png"},
	})
	req := httptest.NewRequest(http.MethodPost, "/complaints", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, created.ID.String(), data["id"])
	assert.Equal(t, "pending", data["status"])
	service.AssertExpectations(t)
}

func TestCreateComplaint_ValidationFailure(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)

	req := httptest.NewRequest(http.MethodPost, "/complaints", strings.NewReader(`{"type":"FIBER","title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", decode(t, resp).Code)
}

func TestTransition_InvalidTransitionIsConflict(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	id := uuid.New()

	service.On("Transition", mock.Anything, id, mock.AnythingOfType("*models.TransitionRequest"), mock.Anything).
		Return(nil, fmt.Errorf("%w: pending -> resolved", services.ErrInvalidTransition))

	req := httptest.NewRequest(http.MethodPost, "/complaints/"+id.String()+"/transition", strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "invalid_transition", body.Code)
	assert.Contains(t, body.Error, "pending -> resolved")
}

func TestTransition_EnvironmentErrorDetailWithheld(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	id := uuid.New()

	service.On("Transition", mock.Anything, id, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: dial tcp 10.0.0.5:5432", services.ErrStorageUnavailable))

	req := httptest.NewRequest(http.MethodPost, "/complaints/"+id.String()+"/transition", strings.NewReader(`{"status":"visited"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.NotContains(t, decode(t, resp).Error, "10.0.0.5")
}

func TestGetComplaint_InvalidID(t *testing.T) {
	app := newComplaintApp(new(MockComplaintService))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/complaints/not-a-uuid", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGenerateReport_PDF(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	complaint := sampleComplaint()
	history := []models.StatusHistoryEntry{
		{ComplaintID: complaint.ID, Sequence: 1, Status: models.StatusPending, Action: models.HistoryActionCreated, UpdatedAt: complaint.CreatedAt},
	}
	service.On("GetComplaint", mock.Anything, complaint.ID, mock.Anything).Return(complaint, history, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/complaints/"+complaint.ID.String()+"/report", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	data, _ := io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestGenerateReport_UnknownFormat(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintApp(service)
	complaint := sampleComplaint()
	service.On("GetComplaint", mock.Anything, complaint.ID, mock.Anything).Return(complaint, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/complaints/"+complaint.ID.String()+"/report?format=docx", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRenderComplaintReport_ResolvedWithTimeline(t *testing.T) {
	complaint := sampleComplaint()
	resolvedAt := complaint.CreatedAt.Add(3 * time.Hour)
	hours := 3.0
	complaint.Status = models.StatusResolved
	complaint.ResolutionDate = &resolvedAt
	complaint.ResolutionTimeInHours = &hours
	complaint.OtpVerified = true
	complaint.OtpVerifiedAt = &resolvedAt
	complaint.ResolutionNotes = "Replaced the ONT"

	var history []models.StatusHistoryEntry
	for i, status := range []models.ComplaintStatus{models.StatusPending, models.StatusAssigned, models.StatusInProgress, models.StatusVisited, models.StatusResolved} {
		history = append(history, models.StatusHistoryEntry{
			ComplaintID: complaint.ID,
			Sequence:    int64(i + 1),
			Status:      status,
			Action:      models.HistoryActionEdited,
			UpdatedAt:   complaint.CreatedAt.Add(time.Duration(i) * 30 * time.Minute),
		})
	}

	data, err := RenderComplaintReport(complaint, history, resolvedAt)

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestOtpIssue_CodeNeverSerialised(t *testing.T) {
	app := fiber.New()
	app.Get("/otp", func(c *fiber.Ctx) error {
		return utils.SuccessResponse(c, fiber.StatusOK, "sent", &services.OtpIssue{
			ComplaintID: uuid.New(),
			IssuedAt:    time.Now(),
			Delivered:   true,
			Code:        "481516",
		})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/otp", nil))
	require.NoError(t, err)

	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "481516")
	assert.Contains(t, string(raw), `"delivered":true`)
}

func TestBuildAnalyticsWorkbook_Sheets(t *testing.T) {
	a := &models.Analytics{
		Period: models.AnalyticsPeriod{
			From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		KPIs: models.KPISet{
			TotalComplaints: models.KPI{Value: 10, PreviousValue: 5, Change: 100, Trend: models.TrendUp},
			ResolutionRate:  models.KPI{Value: 70, Trend: models.TrendUp},
		},
		StatusDistribution: []models.DistributionItem{
			{Key: "resolved", Count: 7, Percentage: 70},
			{Key: "pending", Count: 3, Percentage: 30},
		},
		Trends: []models.TrendBucket{{Date: "2026-03-07", NewComplaints: 2, Resolved: 1, Pending: 3}},
	}

	f, err := BuildAnalyticsWorkbook(a)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"KPIs", "Distributions", "Trends", "Top Issues", "Engineers", "Recent Activity"}, f.GetSheetList())

	value, err := f.GetCellValue("KPIs", "A5")
	require.NoError(t, err)
	assert.Equal(t, "Total complaints", value)

	rows, err := f.GetRows("Distributions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"status", "resolved", "7", "70"}, rows[1])

	trend, err := f.GetCellValue("Trends", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-07", trend)
}

func TestAnalyticsHandler_QueryParsing(t *testing.T) {
	stub := &stubAnalytics{result: &models.Analytics{}}
	app := fiber.New()
	app.Get("/analytics", NewAnalyticsHandler(stub).GetAnalytics)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/analytics?from=2026-03-01&to=2026-03-08T00:00:00Z", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, stub.query.From)
	require.NotNil(t, stub.query.To)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), stub.query.From.UTC())
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), stub.query.To.UTC())
}

func TestAnalyticsHandler_BadBound(t *testing.T) {
	app := fiber.New()
	app.Get("/analytics", NewAnalyticsHandler(&stubAnalytics{}).GetAnalytics)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/analytics?from=yesterday", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsHandler_Export(t *testing.T) {
	stub := &stubAnalytics{result: &models.Analytics{
		Period: models.AnalyticsPeriod{
			From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		},
	}}
	app := fiber.New()
	app.Get("/analytics/export", NewAnalyticsHandler(stub).ExportAnalytics)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/analytics/export", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "analytics_20260301_20260308.xlsx")
	data, _ := io.ReadAll(resp.Body)
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		})
		app := fiber.New()
		app.Get("/ready", h.Ready)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("one check fails", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
			"minio":    func(context.Context) error { return errors.New("connection refused") },
		})
		app := fiber.New()
		app.Get("/ready", h.Ready)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "degraded", body["status"])
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "ok", checks["postgres"])
		assert.Equal(t, "connection refused", checks["minio"])
	})
}

func isUser(a services.Actor) bool {
	return a.Role == services.RoleUser && a.ID != nil && *a.ID == adminID
}

func TestTransition_UserCallerRejected(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintAppAs(service, "user")
	id := uuid.New()

	service.On("Transition", mock.Anything, id, mock.AnythingOfType("*models.TransitionRequest"), mock.MatchedBy(isUser)).
		Return(nil, &services.TransitionError{From: models.StatusPending, To: models.StatusAssigned, Reason: "only an admin may assign an engineer"})

	body := fmt.Sprintf(`{"status":"assigned","engineer_id":"%s"}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/complaints/"+id.String()+"/transition", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decode(t, resp).Code)
	service.AssertExpectations(t)
}

func TestReads_UserCallerScoped(t *testing.T) {
	service := new(MockComplaintService)
	app := newComplaintAppAs(service, "user")
	id := uuid.New()

	service.On("GetComplaint", mock.Anything, id, mock.MatchedBy(isUser)).Return(nil, nil, services.ErrForbidden)
	service.On("ListHistory", mock.Anything, id, int64(0), 100, mock.MatchedBy(isUser)).Return(nil, services.ErrForbidden)
	service.On("ListComplaints", mock.Anything, mock.AnythingOfType("*models.ComplaintFilter"), mock.MatchedBy(isUser)).
		Return([]models.Complaint{}, int64(0), nil)

	for _, path := range []string{"/complaints/" + id.String(), "/complaints/" + id.String() + "/history", "/complaints/" + id.String() + "/report"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/complaints?reporter_id="+uuid.New().String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	service.AssertExpectations(t)
}
