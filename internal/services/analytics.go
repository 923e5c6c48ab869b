package services

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"github.com/shopspring/decimal"
)

// AggregateOptions sizes the ranked views and the trend window.
type AggregateOptions struct {
	TrendDays      int
	TopIssueTypes  int
	RecentActivity int
}

func (o AggregateOptions) normalized() AggregateOptions {
	if o.TrendDays <= 0 {
		o.TrendDays = 7
	}
	if o.TopIssueTypes <= 0 {
		o.TopIssueTypes = 5
	}
	if o.RecentActivity <= 0 {
		o.RecentActivity = 10
	}
	return o
}

// TrendStart is the first day bucket of the trailing trend window ending with period.
func TrendStart(period models.AnalyticsPeriod, days int) time.Time {
	last := dayOf(period.To.Add(-time.Nanosecond))
	return last.AddDate(0, 0, -(days - 1))
}

// SnapshotWindow covers everything Aggregate reads for period.
func SnapshotWindow(period models.AnalyticsPeriod, trendDays int) models.AnalyticsPeriod {
	from := period.Previous().From
	if start := TrendStart(period, trendDays); start.Before(from) {
		from = start
	}
	return models.AnalyticsPeriod{From: from, To: period.To}
}

// Aggregate is a pure function of its inputs: the same snapshot and period
// always produce the same result.
func Aggregate(snapshot *models.AnalyticsSnapshot, period models.AnalyticsPeriod, opts AggregateOptions) *models.Analytics {
	opts = opts.normalized()
	complaints := visibleComplaints(snapshot.Complaints)
	current := createdIn(complaints, period)
	previous := createdIn(complaints, period.Previous())

	return &models.Analytics{
		Period:               period,
		KPIs:                 buildKPIs(current, previous),
		StatusDistribution:   statusDistribution(current),
		TypeDistribution:     typeDistribution(current),
		PriorityDistribution: priorityDistribution(current),
		Trends:               dailyTrends(complaints, period, opts.TrendDays),
		TopIssueTypes:        topIssueTypes(current, snapshot.IssueTypes, opts.TopIssueTypes),
		EngineerPerformance:  engineerPerformance(complaints, snapshot.History, snapshot.Engineers, period),
		RecentActivity:       recentActivity(complaints, snapshot.History, period, opts.RecentActivity),
	}
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

func visibleComplaints(all []models.Complaint) []models.Complaint {
	out := make([]models.Complaint, 0, len(all))
	for _, c := range all {
		if !c.IsRemoved() {
			out = append(out, c)
		}
	}
	return out
}

func createdIn(complaints []models.Complaint, period models.AnalyticsPeriod) []models.Complaint {
	var out []models.Complaint
	for _, c := range complaints {
		if period.Contains(c.CreatedAt) {
			out = append(out, c)
		}
	}
	return out
}

// KPIs

type periodMetrics struct {
	total          float64
	resolutionRate float64
	avgResolution  float64
	pending        float64
}

func measure(complaints []models.Complaint) periodMetrics {
	var m periodMetrics
	var resolved, timed int64
	hours := decimal.Zero

	for _, c := range complaints {
		m.total++
		if c.Status == models.StatusResolved {
			resolved++
			if c.ResolutionTimeInHours != nil {
				timed++
				hours = hours.Add(decimal.NewFromFloat(*c.ResolutionTimeInHours))
			}
		}
		if c.Status.IsOpen() {
			m.pending++
		}
	}

	if m.total > 0 {
		m.resolutionRate = decimal.NewFromInt(resolved * 100).
			Div(decimal.NewFromFloat(m.total)).
			Round(1).InexactFloat64()
	}
	if timed > 0 {
		m.avgResolution = hours.Div(decimal.NewFromInt(timed)).Round(1).InexactFloat64()
	}
	return m
}

func newKPI(current, previous float64) models.KPI {
	kpi := models.KPI{Value: current, PreviousValue: previous, Trend: models.TrendUp}
	if current < previous {
		kpi.Trend = models.TrendDown
	}
	switch {
	case previous != 0:
		kpi.Change = decimal.NewFromFloat(current - previous).
			Div(decimal.NewFromFloat(previous)).
			Mul(decimal.NewFromInt(100)).
			Round(1).InexactFloat64()
	case current > 0:
		kpi.Change = 100
	}
	return kpi
}

func buildKPIs(current, previous []models.Complaint) models.KPISet {
	cur, prev := measure(current), measure(previous)
	return models.KPISet{
		TotalComplaints:   newKPI(cur.total, prev.total),
		ResolutionRate:    newKPI(cur.resolutionRate, prev.resolutionRate),
		AvgResolutionTime: newKPI(cur.avgResolution, prev.avgResolution),
		PendingIssues:     newKPI(cur.pending, prev.pending),
	}
}

// Distributions

// tenthPercentages splits 100.0 across counts by largest remainder so that
// the rounded shares always sum to exactly 100.0 (or all zero when total is 0).
func tenthPercentages(counts []int64) []float64 {
	var total int64
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}

	const units = 1000
	tenths := make([]int64, len(counts))
	remainders := make([]int64, len(counts))
	var assigned int64
	for i, c := range counts {
		tenths[i] = c * units / total
		remainders[i] = c * units % total
		assigned += tenths[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := int64(0); i < units-assigned; i++ {
		tenths[order[i]]++
	}

	for i, t := range tenths {
		out[i] = decimal.New(t, -1).InexactFloat64()
	}
	return out
}

func distribution(keys []string, counts []int64) []models.DistributionItem {
	percentages := tenthPercentages(counts)
	items := make([]models.DistributionItem, len(keys))
	for i, key := range keys {
		items[i] = models.DistributionItem{Key: key, Count: counts[i], Percentage: percentages[i]}
	}
	return items
}

func statusDistribution(complaints []models.Complaint) []models.DistributionItem {
	keys := make([]string, len(models.ComplaintStatuses))
	counts := make([]int64, len(models.ComplaintStatuses))
	index := map[models.ComplaintStatus]int{}
	for i, s := range models.ComplaintStatuses {
		keys[i] = string(s)
		index[s] = i
	}
	for _, c := range complaints {
		if i, ok := index[c.Status]; ok {
			counts[i]++
		}
	}
	return distribution(keys, counts)
}

func typeDistribution(complaints []models.Complaint) []models.DistributionItem {
	keys := make([]string, len(models.ComplaintTypes))
	counts := make([]int64, len(models.ComplaintTypes))
	index := map[models.ComplaintType]int{}
	for i, t := range models.ComplaintTypes {
		keys[i] = string(t)
		index[t] = i
	}
	for _, c := range complaints {
		if i, ok := index[c.Type]; ok {
			counts[i]++
		}
	}
	return distribution(keys, counts)
}

func priorityDistribution(complaints []models.Complaint) []models.DistributionItem {
	keys := make([]string, len(models.Priorities))
	counts := make([]int64, len(models.Priorities))
	index := map[models.Priority]int{}
	for i, p := range models.Priorities {
		keys[i] = string(p)
		index[p] = i
	}
	for _, c := range complaints {
		if i, ok := index[c.Priority]; ok {
			counts[i]++
		}
	}
	return distribution(keys, counts)
}

// Trends

// dailyTrends buckets creations and resolutions per UTC day. Pending is
// new minus resolved and is deliberately not clamped at zero.
func dailyTrends(complaints []models.Complaint, period models.AnalyticsPeriod, days int) []models.TrendBucket {
	start := TrendStart(period, days)
	buckets := make([]models.TrendBucket, days)
	index := make(map[time.Time]int, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		buckets[i].Date = day.Format("2006-01-02")
		index[day] = i
	}

	for _, c := range complaints {
		if i, ok := index[dayOf(c.CreatedAt)]; ok && c.CreatedAt.Before(period.To) {
			buckets[i].NewComplaints++
		}
		if c.ResolutionDate != nil && c.Status == models.StatusResolved {
			if i, ok := index[dayOf(*c.ResolutionDate)]; ok && c.ResolutionDate.Before(period.To) {
				buckets[i].Resolved++
			}
		}
	}

	for i := range buckets {
		buckets[i].Pending = buckets[i].NewComplaints - buckets[i].Resolved
	}
	return buckets
}

// Ranked views

func topIssueTypes(complaints []models.Complaint, catalog []models.IssueType, limit int) []models.IssueTypeRank {
	names := make(map[uuid.UUID]models.IssueType, len(catalog))
	for _, it := range catalog {
		names[it.ID] = it
	}

	counts := map[uuid.UUID]int64{}
	for _, c := range complaints {
		counts[c.IssueTypeID]++
	}

	ranks := make([]models.IssueTypeRank, 0, len(counts))
	for id, count := range counts {
		rank := models.IssueTypeRank{IssueTypeID: id, Count: count}
		if it, ok := names[id]; ok {
			rank.Name = it.Name
			rank.ComplaintType = it.ComplaintType
		}
		if len(complaints) > 0 {
			rank.Percentage = round1(float64(count) * 100 / float64(len(complaints)))
		}
		ranks = append(ranks, rank)
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Count != ranks[j].Count {
			return ranks[i].Count > ranks[j].Count
		}
		if ranks[i].Name != ranks[j].Name {
			return ranks[i].Name < ranks[j].Name
		}
		return ranks[i].IssueTypeID.String() < ranks[j].IssueTypeID.String()
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

func engineerPerformance(complaints []models.Complaint, history []models.StatusHistoryEntry, engineers []models.Engineer, period models.AnalyticsPeriod) []models.EngineerPerformance {
	visible := make(map[uuid.UUID]bool, len(complaints))
	for _, c := range complaints {
		visible[c.ID] = true
	}

	assigned := map[uuid.UUID]map[uuid.UUID]bool{}
	for _, entry := range history {
		if !period.Contains(entry.UpdatedAt) || !visible[entry.ComplaintID] {
			continue
		}
		if entry.Action != models.HistoryActionAssigned && entry.Action != models.HistoryActionReassigned {
			continue
		}
		meta, err := entry.DecodeMetadata()
		if err != nil || meta.Assignment == nil {
			continue
		}
		set, ok := assigned[meta.Assignment.EngineerID]
		if !ok {
			set = map[uuid.UUID]bool{}
			assigned[meta.Assignment.EngineerID] = set
		}
		set[entry.ComplaintID] = true
	}

	type tally struct {
		resolved int64
		timed    int64
		hours    decimal.Decimal
	}
	resolved := map[uuid.UUID]*tally{}
	for _, c := range complaints {
		if c.Status != models.StatusResolved || !c.HasEngineer() || c.ResolutionDate == nil || !period.Contains(*c.ResolutionDate) {
			continue
		}
		t, ok := resolved[*c.EngineerID]
		if !ok {
			t = &tally{hours: decimal.Zero}
			resolved[*c.EngineerID] = t
		}
		t.resolved++
		if c.ResolutionTimeInHours != nil {
			t.timed++
			t.hours = t.hours.Add(decimal.NewFromFloat(*c.ResolutionTimeInHours))
		}
	}

	directory := make(map[uuid.UUID]models.Engineer, len(engineers))
	for _, e := range engineers {
		directory[e.ID] = e
	}
	ids := map[uuid.UUID]bool{}
	for id := range assigned {
		ids[id] = true
	}
	for id := range resolved {
		ids[id] = true
	}

	out := make([]models.EngineerPerformance, 0, len(ids))
	for id := range ids {
		perf := models.EngineerPerformance{EngineerID: id, Assigned: int64(len(assigned[id]))}
		if e, ok := directory[id]; ok {
			perf.Name = e.Name
			perf.Email = e.Email
		}
		if t, ok := resolved[id]; ok {
			perf.Resolved = t.resolved
			if t.timed > 0 {
				perf.AvgResolutionTime = t.hours.Div(decimal.NewFromInt(t.timed)).Round(1).InexactFloat64()
			}
		}
		out = append(out, perf)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Resolved != b.Resolved {
			return a.Resolved > b.Resolved
		}
		if a.Assigned != b.Assigned {
			return a.Assigned > b.Assigned
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.EngineerID.String() < b.EngineerID.String()
	})
	return out
}

func recentActivity(complaints []models.Complaint, history []models.StatusHistoryEntry, period models.AnalyticsPeriod, limit int) []models.ActivityItem {
	byID := make(map[uuid.UUID]models.Complaint, len(complaints))
	for _, c := range complaints {
		byID[c.ID] = c
	}

	var entries []models.StatusHistoryEntry
	for _, entry := range history {
		if _, ok := byID[entry.ComplaintID]; ok && period.Contains(entry.UpdatedAt) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.ComplaintID != b.ComplaintID {
			return a.ComplaintID.String() < b.ComplaintID.String()
		}
		return a.Sequence > b.Sequence
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	items := make([]models.ActivityItem, len(entries))
	for i, entry := range entries {
		c := byID[entry.ComplaintID]
		items[i] = models.ActivityItem{
			ComplaintID:    entry.ComplaintID,
			Code:           c.Code(),
			Title:          c.Title,
			Sequence:       entry.Sequence,
			Status:         entry.Status,
			PreviousStatus: entry.PreviousStatus,
			Action:         entry.Action,
			UpdatedByID:    entry.UpdatedByID,
			Remarks:        entry.Remarks,
			UpdatedAt:      entry.UpdatedAt,
		}
	}
	return items
}
