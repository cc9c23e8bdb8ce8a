package domain

import (
	"fmt"
	"time"
)

// legalTransitions is the ticket state machine. Cancellation is handled
// separately: any non-terminal state may move to cancelled.
var legalTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:        {TicketStatusDiagnosing, TicketStatusDispatched},
	TicketStatusDiagnosing:     {TicketStatusResolvedRemote, TicketStatusDispatched, TicketStatusPending},
	TicketStatusResolvedRemote: {TicketStatusCompleted, TicketStatusDispatched},
	TicketStatusDispatched:     {TicketStatusInProgress},
	TicketStatusInProgress:     {TicketStatusCompleted},
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s TicketStatus) bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to TicketStatus) bool {
	if to == TicketStatusCancelled {
		return !IsTerminal(from)
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status change to the ticket, enforcing the state
// machine. The completion timestamp is set exactly when entering
// completed and is never touched otherwise.
func Transition(t *Ticket, to TicketStatus, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("illegal ticket transition %s -> %s", t.Status, to)
	}
	t.Status = to
	if to == TicketStatusCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}
