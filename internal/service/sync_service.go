package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/events"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/observability"
	"github.com/spec-kit/autonoc/internal/repository"
	apperrors "github.com/spec-kit/autonoc/pkg/util"

	"github.com/google/uuid"
)

// priorityFromRemote maps billing-system priority codes onto the local
// scale. Unknown codes default to medium.
func priorityFromRemote(code string) domain.TicketPriority {
	switch code {
	case "U":
		return domain.TicketPriorityCritical
	case "A":
		return domain.TicketPriorityHigh
	case "N":
		return domain.TicketPriorityMedium
	case "B":
		return domain.TicketPriorityLow
	default:
		return domain.TicketPriorityMedium
	}
}

// SyncService pulls open service orders from the billing system and
// materializes them as local tickets and customers.
type SyncService struct {
	tickets    repository.TicketRepository
	customers  repository.CustomerRepository
	isp        ISPGateway
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// SyncDependencies bundles collaborators.
type SyncDependencies struct {
	TicketRepo   repository.TicketRepository
	CustomerRepo repository.CustomerRepository
	ISP          ISPGateway
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewSyncService creates the service.
func NewSyncService(deps SyncDependencies) *SyncService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		tickets:    deps.TicketRepo,
		customers:  deps.CustomerRepo,
		isp:        deps.ISP,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        now,
	}
}

// SyncOpenTickets imports remote open tickets that are not yet known
// locally. Returns how many new tickets were created. Per-item failures
// are logged and skipped.
func (s *SyncService) SyncOpenTickets(ctx context.Context) (int, error) {
	remote, err := s.isp.FetchOpenTickets(ctx)
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	created := 0
	for _, rt := range remote {
		if rt.ID == "" {
			continue
		}
		existing, err := s.tickets.GetByExternalID(ctx, rt.ID)
		if err != nil {
			s.logger.Warn("sync lookup failed", zap.String("external_id", rt.ID), zap.Error(err))
			continue
		}
		if existing != nil {
			continue
		}
		if err := s.importTicket(ctx, rt); err != nil {
			s.logger.Warn("sync import failed", zap.String("external_id", rt.ID), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		s.logger.Info("ticket sync finished", zap.Int("created", created), zap.Int("fetched", len(remote)))
	}
	return created, nil
}

// ixcTimeLayout is the timestamp format used by the billing API.
const ixcTimeLayout = "2006-01-02 15:04:05"

func (s *SyncService) importTicket(ctx context.Context, rt ixc.RemoteTicket) error {
	customerExternalID := rt.CustomerID
	customer := &domain.Customer{
		ExternalID:   &customerExternalID,
		Name:         rt.CustomerName,
		Contract:     rt.Contract,
		Address:      rt.Address,
		Neighborhood: rt.Neighborhood,
		City:         rt.City,
		Phone:        rt.Phone,
		Plan:         rt.Plan,
	}
	if err := s.customers.UpsertByExternalID(ctx, customer); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	openedAt, err := time.ParseInLocation(ixcTimeLayout, rt.OpenedAt, time.Local)
	if err != nil {
		openedAt = s.now()
	}
	priority := priorityFromRemote(rt.Priority)
	number := rt.Number
	if number == "" {
		number = uuid.NewString()[:8]
	}

	externalID := rt.ID
	ticket := &domain.Ticket{
		Number:          number,
		ExternalID:      &externalID,
		CustomerID:      customer.ID,
		Status:          domain.TicketStatusPending,
		Priority:        priority,
		ReportedProblem: rt.Problem,
		OpenedAt:        openedAt,
		SLADeadline:     domain.SLADeadline(openedAt, priority),
		Origin:          "ixc",
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}

	observability.SyncedTickets.Inc()
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketSynced,
			TicketID:  ticket.ID,
			Actor:     "sync",
			Timestamp: s.now(),
			Payload: events.TicketSyncedPayload{
				ExternalID: rt.ID,
				Priority:   priority,
			},
		})
	}
	return nil
}

// SLAAtRisk returns active tickets whose SLA deadline falls within the
// window and emits an alert event for each.
func (s *SyncService) SLAAtRisk(ctx context.Context, window time.Duration) ([]domain.Ticket, error) {
	deadline := s.now().Add(window)
	atRisk, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:  domain.ActiveStatuses,
		SLABefore: &deadline,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	for _, ticket := range atRisk {
		if s.dispatcher == nil {
			break
		}
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSLAAtRisk,
			TicketID:  ticket.ID,
			Actor:     "sla-monitor",
			Timestamp: s.now(),
			Payload: events.SLAAtRiskPayload{
				Number:      ticket.Number,
				Priority:    ticket.Priority,
				SLADeadline: ticket.SLADeadline,
			},
		})
	}
	return atRisk, nil
}
