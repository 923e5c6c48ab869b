package models

type ComplaintStatus string

const (
	StatusPending     ComplaintStatus = "pending"
	StatusAssigned    ComplaintStatus = "assigned"
	StatusInProgress  ComplaintStatus = "in_progress"
	StatusVisited     ComplaintStatus = "visited"
	StatusResolved    ComplaintStatus = "resolved"
	StatusNotResolved ComplaintStatus = "not-resolved"
)

// ComplaintStatuses lists every stored status in lifecycle order.
var ComplaintStatuses = []ComplaintStatus{
	StatusPending,
	StatusAssigned,
	StatusInProgress,
	StatusVisited,
	StatusResolved,
	StatusNotResolved,
}

// complaintTransitions is the normal (non-administrative) lifecycle graph.
// Reassignment (assigned* -> assigned) is handled by the assignment engine.
var complaintTransitions = map[ComplaintStatus][]ComplaintStatus{
	StatusPending:     {StatusAssigned},
	StatusAssigned:    {StatusInProgress},
	StatusInProgress:  {StatusVisited},
	StatusVisited:     {StatusResolved, StatusNotResolved},
	StatusNotResolved: {StatusPending},
}

func (s ComplaintStatus) Valid() bool {
	for _, candidate := range ComplaintStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the normal lifecycle.
func CanTransition(from, to ComplaintStatus) bool {
	for _, next := range complaintTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s without an override.
func NextStatuses(s ComplaintStatus) []ComplaintStatus {
	return append([]ComplaintStatus(nil), complaintTransitions[s]...)
}

func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusNotResolved
}

// AllowsEngineer reports whether a complaint in s may have a bound engineer.
func (s ComplaintStatus) AllowsEngineer() bool {
	return s.Valid() && s != StatusPending
}

// RequiresEngineer holds for the states that only exist while an engineer works the complaint.
func (s ComplaintStatus) RequiresEngineer() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusVisited
}

// IsOpen holds for statuses counted as pending work.
func (s ComplaintStatus) IsOpen() bool {
	return s == StatusPending || s == StatusAssigned || s == StatusInProgress
}

func (s ComplaintStatus) AllowsReassignment() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusVisited
}

func (s ComplaintStatus) AllowsOtpIssue() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusVisited
}

// DisplayStatus maps a stored status to its presentation value.
// A pending complaint with a bound engineer renders as assigned.
func DisplayStatus(status ComplaintStatus, hasEngineer bool) ComplaintStatus {
	if status == StatusPending && hasEngineer {
		return StatusAssigned
	}
	return status
}
