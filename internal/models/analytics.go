package models

import (
	"time"

	"github.com/google/uuid"
)

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
)

// AnalyticsPeriod is the half-open window [From, To).
type AnalyticsPeriod struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p AnalyticsPeriod) Length() time.Duration {
	return p.To.Sub(p.From)
}

// Previous returns the equal-length window ending where p starts.
func (p AnalyticsPeriod) Previous() AnalyticsPeriod {
	return AnalyticsPeriod{From: p.From.Add(-p.Length()), To: p.From}
}

func (p AnalyticsPeriod) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

type KPI struct {
	Value         float64        `json:"value"`
	PreviousValue float64        `json:"previous_value"`
	Change        float64        `json:"change"`
	Trend         TrendDirection `json:"trend"`
}

type KPISet struct {
	TotalComplaints   KPI `json:"total_complaints"`
	ResolutionRate    KPI `json:"resolution_rate"`
	AvgResolutionTime KPI `json:"avg_resolution_time"`
	PendingIssues     KPI `json:"pending_issues"`
}

type DistributionItem struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type TrendBucket struct {
	Date          string `json:"date"`
	NewComplaints int64  `json:"new_complaints"`
	Resolved      int64  `json:"resolved"`
	Pending       int64  `json:"pending"`
}

type IssueTypeRank struct {
	IssueTypeID   uuid.UUID     `json:"issue_type_id"`
	Name          string        `json:"name"`
	ComplaintType ComplaintType `json:"complaint_type"`
	Count         int64         `json:"count"`
	Percentage    float64       `json:"percentage"`
}

type EngineerPerformance struct {
	EngineerID        uuid.UUID `json:"engineer_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Assigned          int64     `json:"assigned"`
	Resolved          int64     `json:"resolved"`
	AvgResolutionTime float64   `json:"avg_resolution_time"`
}

type ActivityItem struct {
	ComplaintID    uuid.UUID        `json:"complaint_id"`
	Code           string           `json:"code"`
	Title          string           `json:"title"`
	Sequence       int64            `json:"sequence"`
	Status         ComplaintStatus  `json:"status"`
	PreviousStatus *ComplaintStatus `json:"previous_status"`
	Action         HistoryAction    `json:"action"`
	UpdatedByID    *uuid.UUID       `json:"updated_by_id"`
	Remarks        *string          `json:"remarks"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Analytics struct {
	Period               AnalyticsPeriod       `json:"period"`
	KPIs                 KPISet                `json:"kpis"`
	StatusDistribution   []DistributionItem    `json:"status_distribution"`
	TypeDistribution     []DistributionItem    `json:"type_distribution"`
	PriorityDistribution []DistributionItem    `json:"priority_distribution"`
	Trends               []TrendBucket         `json:"trends"`
	TopIssueTypes        []IssueTypeRank       `json:"top_issue_types"`
	EngineerPerformance  []EngineerPerformance `json:"engineer_performance"`
	RecentActivity       []ActivityItem        `json:"recent_activity"`
}

// AnalyticsSnapshot is a consistent point-in-time read of store and ledger.
type AnalyticsSnapshot struct {
	Complaints []Complaint
	History    []StatusHistoryEntry
	Engineers  []Engineer
	IssueTypes []IssueType
}

type AnalyticsQuery struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
	Days int        `json:"days"`
}
