package dto

import (
	"time"

	"github.com/spec-kit/autonoc/internal/domain"
)

// CreateTicketRequest opens a ticket by hand, outside the sync flow.
type CreateTicketRequest struct {
	CustomerID      string `json:"customer_id"`
	ReportedProblem string `json:"reported_problem"`
	Priority        string `json:"priority"`
}

// AssignTechnicianRequest pins a specific technician to a ticket.
type AssignTechnicianRequest struct {
	TechnicianID string `json:"technician_id"`
}

// TicketSummary is the list-view projection.
type TicketSummary struct {
	ID           string     `json:"id"`
	Number       string     `json:"number"`
	CustomerID   string     `json:"customer_id"`
	TechnicianID *string    `json:"technician_id,omitempty"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	ProblemType  *string    `json:"problem_type,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
	SLADeadline  time.Time  `json:"sla_deadline"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Origin       string     `json:"origin"`
}

// TicketDetail adds the text fields and attached records.
type TicketDetail struct {
	TicketSummary
	ReportedProblem string            `json:"reported_problem"`
	Diagnoses       []DiagnosisView   `json:"diagnoses,omitempty"`
	Observations    []ObservationView `json:"observations,omitempty"`
}

// DiagnosisView is the API projection of a diagnostic run.
type DiagnosisView struct {
	ID          string              `json:"id"`
	ProblemType string              `json:"problem_type"`
	Decision    string              `json:"decision"`
	Report      string              `json:"report"`
	Confidence  float64             `json:"confidence"`
	Tests       []domain.TestResult `json:"tests"`
	Active      bool                `json:"active"`
	CreatedAt   time.Time           `json:"created_at"`
}

// ObservationView is the API projection of a ticket note.
type ObservationView struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	summary := TicketSummary{
		ID:           t.ID,
		Number:       t.Number,
		CustomerID:   t.CustomerID,
		TechnicianID: t.TechnicianID,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		OpenedAt:     t.OpenedAt,
		SLADeadline:  t.SLADeadline,
		CompletedAt:  t.CompletedAt,
		Origin:       t.Origin,
	}
	if t.ProblemType != nil {
		pt := string(*t.ProblemType)
		summary.ProblemType = &pt
	}
	return summary
}

// NewDiagnosisView maps a domain diagnosis.
func NewDiagnosisView(d *domain.Diagnosis) DiagnosisView {
	return DiagnosisView{
		ID:          d.ID,
		ProblemType: string(d.ProblemType),
		Decision:    string(d.Decision),
		Report:      d.Report,
		Confidence:  d.Confidence,
		Tests:       d.Tests,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
	}
}

// NewObservationView maps a domain observation.
func NewObservationView(o *domain.Observation) ObservationView {
	return ObservationView{
		ID:        o.ID,
		Text:      o.Text,
		Author:    o.Author,
		Kind:      string(o.Kind),
		CreatedAt: o.CreatedAt,
	}
}
