package domain

import "time"

// TicketStatus enumerates lifecycle states for service orders.
type TicketStatus string

const (
	TicketStatusPending        TicketStatus = "pending"
	TicketStatusDiagnosing     TicketStatus = "diagnosing"
	TicketStatusResolvedRemote TicketStatus = "resolved_remote"
	TicketStatusDispatched     TicketStatus = "dispatched"
	TicketStatusInProgress     TicketStatus = "in_progress"
	TicketStatusCompleted      TicketStatus = "completed"
	TicketStatusCancelled      TicketStatus = "cancelled"
)

// ActiveStatuses lists the non-terminal states tracked for SLA alerts.
var ActiveStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusDiagnosing,
	TicketStatusDispatched,
	TicketStatusInProgress,
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// slaOffsets maps priority to the time allowed before the SLA deadline.
var slaOffsets = map[TicketPriority]time.Duration{
	TicketPriorityCritical: 2 * time.Hour,
	TicketPriorityHigh:     4 * time.Hour,
	TicketPriorityMedium:   24 * time.Hour,
	TicketPriorityLow:      48 * time.Hour,
}

// SLADeadline derives the deadline for a ticket opened at the given time.
// The deadline is computed once at creation and never changes afterwards.
func SLADeadline(openedAt time.Time, priority TicketPriority) time.Time {
	offset, ok := slaOffsets[priority]
	if !ok {
		offset = slaOffsets[TicketPriorityMedium]
	}
	return openedAt.Add(offset)
}

// PriorityRank orders priorities for dispatch scheduling (higher first).
func PriorityRank(p TicketPriority) int {
	switch p {
	case TicketPriorityCritical:
		return 4
	case TicketPriorityHigh:
		return 3
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 1
	default:
		return 0
	}
}

// Ticket is the aggregate for a service order (O.S.).
type Ticket struct {
	ID              string
	Number          string
	ExternalID      *string
	CustomerID      string
	TechnicianID    *string
	Status          TicketStatus
	Priority        TicketPriority
	ReportedProblem string
	ProblemType     *ProblemType
	OpenedAt        time.Time
	ScheduledAt     *time.Time
	CompletedAt     *time.Time
	SLADeadline     time.Time
	Origin          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
