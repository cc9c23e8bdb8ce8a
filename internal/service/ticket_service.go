package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/repository"
	apperrors "github.com/spec-kit/autonoc/pkg/util"

	"github.com/google/uuid"
)

// TicketService covers operator-driven ticket operations: manual
// creation, queries, and lifecycle moves outside the automated flow.
type TicketService struct {
	tickets      repository.TicketRepository
	customers    repository.CustomerRepository
	technicians  repository.TechnicianRepository
	diagnoses    repository.DiagnosisRepository
	observations repository.ObservationRepository
	audit        repository.AuditRepository
	isp          ISPGateway
	logger       *zap.Logger
	now          func() time.Time
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	CustomerRepo    repository.CustomerRepository
	TechnicianRepo  repository.TechnicianRepository
	DiagnosisRepo   repository.DiagnosisRepository
	ObservationRepo repository.ObservationRepository
	AuditRepo       repository.AuditRepository
	ISP             ISPGateway
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewTicketService creates the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		customers:    deps.CustomerRepo,
		technicians:  deps.TechnicianRepo,
		diagnoses:    deps.DiagnosisRepo,
		observations: deps.ObservationRepo,
		audit:        deps.AuditRepo,
		isp:          deps.ISP,
		logger:       logger,
		now:          now,
	}
}

// TicketCreateInput is the manual-creation payload.
type TicketCreateInput struct {
	CustomerID      string
	ReportedProblem string
	Priority        string
}

// Create opens a ticket by hand, bypassing the billing sync.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if input.CustomerID == "" || strings.TrimSpace(input.ReportedProblem) == "" {
		return nil, apperrors.NewValidationError("customer_id and reported_problem required", nil)
	}
	if _, err := s.customers.GetByID(ctx, input.CustomerID); err != nil {
		return nil, apperrors.MapError(err)
	}

	priority := domain.TicketPriority(input.Priority)
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityCritical:
	case "":
		priority = domain.TicketPriorityMedium
	default:
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}

	openedAt := s.now()
	ticket := &domain.Ticket{
		Number:          uuid.NewString()[:8],
		CustomerID:      input.CustomerID,
		Status:          domain.TicketStatusPending,
		Priority:        priority,
		ReportedProblem: input.ReportedProblem,
		OpenedAt:        openedAt,
		SLADeadline:     domain.SLADeadline(openedAt, priority),
		Origin:          "manual",
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// List queries tickets with the given filter.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// TicketDetail aggregates the ticket with its diagnoses and notes.
type TicketDetail struct {
	Ticket       *domain.Ticket
	Diagnoses    []domain.Diagnosis
	Observations []domain.Observation
}

// Get loads one ticket with its diagnostic history and observations.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	diagnoses, err := s.diagnoses.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	observations, err := s.observations.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Diagnoses: diagnoses, Observations: observations}, nil
}

// Start moves a dispatched ticket to in progress and mirrors the move
// to the billing system.
func (s *TicketService) Start(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.move(ctx, ticketID, domain.TicketStatusInProgress, "service started", ixc.StatusCodeInProgress)
}

// Complete finishes an in-progress ticket and releases the assigned
// technician's queue slot.
func (s *TicketService) Complete(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.move(ctx, ticketID, domain.TicketStatusCompleted, "service completed", ixc.StatusCodeFinished)
	if err != nil {
		return nil, err
	}
	s.releaseTechnician(ctx, ticket)
	return ticket, nil
}

// Cancel aborts a ticket from any non-terminal state. Cancellation is
// checked by the automated pipeline at phase boundaries, so an in-flight
// diagnosis will observe it before acting on its decision.
func (s *TicketService) Cancel(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := domain.Transition(ticket, domain.TicketStatusCancelled, s.now()); err != nil {
		return nil, apperrors.NewConflict(err.Error(), map[string]any{"ticket_id": ticketID})
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.releaseTechnician(ctx, ticket)

	text := "[MANUAL] Ticket cancelled."
	if strings.TrimSpace(reason) != "" {
		text = "[MANUAL] Ticket cancelled: " + reason
	}
	s.note(ctx, ticket.ID, text)
	s.auditAction(ctx, "ticket_cancelled", ticket.ID, map[string]any{"reason": reason})
	return ticket, nil
}

func (s *TicketService) move(ctx context.Context, ticketID string, to domain.TicketStatus, noteText, remoteStatus string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := domain.Transition(ticket, to, s.now()); err != nil {
		return nil, apperrors.NewConflict(err.Error(), map[string]any{"ticket_id": ticketID, "status": string(ticket.Status)})
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.note(ctx, ticket.ID, "[MANUAL] "+noteText)
	if ticket.ExternalID != nil {
		if err := s.isp.UpdateTicketStatus(ctx, *ticket.ExternalID, remoteStatus, noteText); err != nil {
			s.logger.Warn("status push failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

func (s *TicketService) releaseTechnician(ctx context.Context, ticket *domain.Ticket) {
	if ticket.TechnicianID == nil {
		return
	}
	if err := s.technicians.ReleaseQueueSlot(ctx, *ticket.TechnicianID); err != nil {
		s.logger.Warn("failed to release queue slot", zap.String("technician_id", *ticket.TechnicianID), zap.Error(err))
	}
}

func (s *TicketService) note(ctx context.Context, ticketID, text string) {
	if err := s.observations.Create(ctx, &domain.Observation{
		TicketID: ticketID,
		Text:     text,
		Author:   "operator",
		Kind:     domain.ObservationKindManual,
	}); err != nil {
		s.logger.Warn("failed to record observation", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) auditAction(ctx context.Context, action, ticketID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &domain.AuditLog{
		Actor:    "operator",
		Action:   action,
		Entity:   "ticket",
		EntityID: ticketID,
		Details:  details,
	}); err != nil {
		s.logger.Warn("failed to record audit entry", zap.Error(err))
	}
}
