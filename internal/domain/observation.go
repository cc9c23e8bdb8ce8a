package domain

import "time"

// ObservationKind tags who produced a ticket note.
type ObservationKind string

const (
	ObservationKindAI        ObservationKind = "ia"
	ObservationKindAutomatic ObservationKind = "automatico"
	ObservationKindManual    ObservationKind = "manual"
)

// Observation is a free-text note appended to a ticket's history.
type Observation struct {
	ID        string
	TicketID  string
	Text      string
	Author    string
	Kind      ObservationKind
	CreatedAt time.Time
}

// AuditLog records an automated or operator action for traceability.
type AuditLog struct {
	ID        string
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Details   map[string]any
	CreatedAt time.Time
}
