package events

import (
	"time"

	"github.com/spec-kit/autonoc/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketSynced     EventType = "ticket_synced"
	EventDiagnosisDone    EventType = "diagnosis_completed"
	EventTicketDispatched EventType = "ticket_dispatched"
	EventRemoteValidated  EventType = "remote_resolution_validated"
	EventSLAAtRisk        EventType = "sla_at_risk"
)

// Event represents a domain event emitted by the pipeline services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketSyncedPayload payload.
type TicketSyncedPayload struct {
	ExternalID string                `json:"external_id"`
	Priority   domain.TicketPriority `json:"priority"`
}

// DiagnosisDonePayload payload.
type DiagnosisDonePayload struct {
	Decision    domain.Decision    `json:"decision"`
	ProblemType domain.ProblemType `json:"problem_type"`
	Confidence  float64            `json:"confidence"`
	Fallback    bool               `json:"fallback"`
}

// TicketDispatchedPayload payload.
type TicketDispatchedPayload struct {
	TechnicianID   string     `json:"technician_id"`
	TechnicianName string     `json:"technician_name"`
	ETA            *time.Time `json:"eta,omitempty"`
}

// RemoteValidatedPayload payload.
type RemoteValidatedPayload struct {
	BackOnline bool `json:"back_online"`
}

// SLAAtRiskPayload payload.
type SLAAtRiskPayload struct {
	Number      string                `json:"number"`
	Priority    domain.TicketPriority `json:"priority"`
	SLADeadline time.Time             `json:"sla_deadline"`
}
