package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/events"
	"github.com/spec-kit/autonoc/internal/geo"
	"github.com/spec-kit/autonoc/internal/observability"
	"github.com/spec-kit/autonoc/internal/repository"
	apperrors "github.com/spec-kit/autonoc/pkg/util"

	"github.com/google/uuid"
)

const (
	travelMinutesPerKm   = 3
	serviceMinutesPerJob = 30
	maxScoredDistanceKm  = 50
)

// DispatchService scores technicians against tickets and performs the
// assignment, including the queue-slot reservation and the outbound
// push to the billing system.
type DispatchService struct {
	tickets      repository.TicketRepository
	customers    repository.CustomerRepository
	technicians  repository.TechnicianRepository
	diagnoses    repository.DiagnosisRepository
	observations repository.ObservationRepository
	rules        repository.DispatchRuleRepository
	territories  repository.TerritoryRepository
	audit        repository.AuditRepository
	isp          ISPGateway
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	weights      domain.DispatchWeights
	queueCeiling int
	now          func() time.Time
}

// DispatchDependencies bundles collaborators.
type DispatchDependencies struct {
	TicketRepo      repository.TicketRepository
	CustomerRepo    repository.CustomerRepository
	TechnicianRepo  repository.TechnicianRepository
	DiagnosisRepo   repository.DiagnosisRepository
	ObservationRepo repository.ObservationRepository
	RuleRepo        repository.DispatchRuleRepository
	TerritoryRepo   repository.TerritoryRepository
	AuditRepo       repository.AuditRepository
	ISP             ISPGateway
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Weights         domain.DispatchWeights
	QueueCeiling    int
	Now             func() time.Time
}

// NewDispatchService creates the service.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	weights := deps.Weights
	if weights == (domain.DispatchWeights{}) {
		weights = domain.DefaultDispatchWeights()
	}
	ceiling := deps.QueueCeiling
	if ceiling <= 0 {
		ceiling = domain.DefaultQueueCeiling
	}
	return &DispatchService{
		tickets:      deps.TicketRepo,
		customers:    deps.CustomerRepo,
		technicians:  deps.TechnicianRepo,
		diagnoses:    deps.DiagnosisRepo,
		observations: deps.ObservationRepo,
		rules:        deps.RuleRepo,
		territories:  deps.TerritoryRepo,
		audit:        deps.AuditRepo,
		isp:          deps.ISP,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		weights:      weights,
		queueCeiling: ceiling,
		now:          now,
	}
}

// ScoreTechnician computes the weighted suitability score of one
// technician for one customer. The total is a plain weighted sum and is
// not normalized; comparisons are only meaningful within one candidate
// set scored under the same weights.
func ScoreTechnician(tech *domain.Technician, customer *domain.Customer, ticket *domain.Ticket, territory *domain.Territory, weights domain.DispatchWeights, now time.Time) domain.DispatchScore {
	score := domain.DispatchScore{TechnicianID: tech.ID}

	if tech.HasCoordinates() && customer.HasCoordinates() {
		d := geo.DistanceKm(
			geo.Point{Lat: *tech.Latitude, Lon: *tech.Longitude},
			geo.Point{Lat: *customer.Latitude, Lon: *customer.Longitude},
		)
		score.DistanceKm = d
		score.Distance = math.Max(0, 100-(d/maxScoredDistanceKm)*100)
	} else {
		// No geometry. Territory membership is the only locality signal.
		score.DistanceKm = domain.UnknownDistanceKm
		if territory != nil && territory.Covers(customer.Neighborhood) {
			score.Distance = 80
		} else {
			score.Distance = 30
		}
	}

	score.Queue = math.Max(0, 100-float64(tech.QueueDepth)*20)

	// Skill matching needs a problem-type/skill taxonomy mapping that
	// does not exist yet; until then every candidate scores the same.
	score.Skill = 50

	switch remaining := ticket.SLADeadline.Sub(now); {
	case remaining < 2*time.Hour:
		score.SLA = 100
	case remaining < 4*time.Hour:
		score.SLA = 80
	default:
		score.SLA = 50
	}

	score.Total = score.Distance*weights.Distance +
		score.Queue*weights.Queue +
		score.Skill*weights.Skill +
		score.SLA*weights.SLA
	return score
}

// queueCeilingFor resolves the effective queue ceiling: the active
// dispatch rule wins, otherwise the configured default.
func (s *DispatchService) queueCeilingFor(ctx context.Context) int {
	if s.rules == nil {
		return s.queueCeiling
	}
	rule, err := s.rules.GetActive(ctx)
	if err != nil {
		s.logger.Warn("failed to load dispatch rule", zap.Error(err))
		return s.queueCeiling
	}
	if rule == nil || rule.QueueCeiling <= 0 {
		return s.queueCeiling
	}
	return rule.QueueCeiling
}

func (s *DispatchService) territoryFor(ctx context.Context, tech *domain.Technician) *domain.Territory {
	if tech.TerritoryID == nil || s.territories == nil {
		return nil
	}
	territory, err := s.territories.GetByID(ctx, *tech.TerritoryID)
	if err != nil {
		s.logger.Warn("failed to load territory", zap.String("territory_id", *tech.TerritoryID), zap.Error(err))
		return nil
	}
	return territory
}

// FindBestTechnician scores every eligible candidate and returns the
// winner with its score, or (nil, nil, nil) when nobody qualifies.
// Candidates are available or busy technicians whose queue depth is
// strictly below the ceiling; the list order is stable so ties resolve
// to the first-scored candidate.
func (s *DispatchService) FindBestTechnician(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer) (*domain.Technician, *domain.DispatchScore, error) {
	candidates, err := s.technicians.ListByStatuses(ctx, []domain.TechnicianStatus{
		domain.TechnicianStatusAvailable,
		domain.TechnicianStatusBusy,
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	ceiling := s.queueCeilingFor(ctx)
	now := s.now()

	var best *domain.Technician
	var bestScore domain.DispatchScore
	for i := range candidates {
		tech := &candidates[i]
		if tech.QueueDepth >= ceiling {
			continue
		}
		score := ScoreTechnician(tech, customer, ticket, s.territoryFor(ctx, tech), s.weights, now)
		if best == nil || score.Total > bestScore.Total {
			best = tech
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil, nil
	}
	return best, &bestScore, nil
}

// DispatchResult reports a completed automatic assignment.
type DispatchResult struct {
	TechnicianID   string    `json:"technician_id"`
	TechnicianName string    `json:"technician_name"`
	Score          float64   `json:"score"`
	ETA            time.Time `json:"eta"`
}

// Assign binds the technician to the ticket. The queue slot is
// reserved with a conditional update so concurrent dispatches cannot
// push a technician past the ceiling.
func (s *DispatchService) Assign(ctx context.Context, ticket *domain.Ticket, tech *domain.Technician, score *domain.DispatchScore) (*DispatchResult, error) {
	ceiling := s.queueCeilingFor(ctx)
	priorQueue := tech.QueueDepth
	reserved, err := s.technicians.ReserveQueueSlot(ctx, tech.ID, ceiling)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !reserved {
		return nil, apperrors.NewConflict("technician queue full", map[string]any{"technician_id": tech.ID})
	}

	ticket.TechnicianID = &tech.ID
	if ticket.Status != domain.TicketStatusDispatched {
		if err := domain.Transition(ticket, domain.TicketStatusDispatched, s.now()); err != nil {
			s.technicians.ReleaseQueueSlot(ctx, tech.ID)
			return nil, apperrors.NewConflict(err.Error(), map[string]any{"ticket_id": ticket.ID})
		}
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.technicians.ReleaseQueueSlot(ctx, tech.ID)
		return nil, apperrors.MapError(err)
	}

	eta := s.estimateArrival(score.DistanceKm, priorQueue)

	note := fmt.Sprintf("[AUTO DISPATCH] Technician %s assigned (score %.1f). Estimated arrival: %s.",
		tech.Name, score.Total, eta.Format("15:04"))
	if diag, err := s.diagnoses.GetActiveByTicket(ctx, ticket.ID); err == nil && diag != nil {
		note += " Diagnosis: " + diag.Report
	}
	s.addObservation(ctx, ticket.ID, note)

	if ticket.ExternalID != nil {
		if err := s.isp.AssignTechnician(ctx, *ticket.ExternalID, tech.ID, tech.Name); err != nil {
			s.logger.Warn("technician push failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		if err := s.isp.ScheduleTicket(ctx, *ticket.ExternalID, eta); err != nil {
			s.logger.Warn("schedule push failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.auditAction(ctx, "automatic_dispatch", ticket.ID, map[string]any{
		"technician_id": tech.ID,
		"score":         score.Total,
		"distance_km":   score.DistanceKm,
		"eta":           eta,
	})
	s.publish(ctx, ticket.ID, events.TicketDispatchedPayload{
		TechnicianID:   tech.ID,
		TechnicianName: tech.Name,
		ETA:            &eta,
	})
	observability.Dispatches.WithLabelValues("assigned").Inc()

	return &DispatchResult{
		TechnicianID:   tech.ID,
		TechnicianName: tech.Name,
		Score:          score.Total,
		ETA:            eta,
	}, nil
}

// DispatchAutomatically picks and assigns the best technician for the
// ticket. Returns nil without error when no technician qualifies; the
// ticket stays unassigned for the next cycle.
func (s *DispatchService) DispatchAutomatically(ctx context.Context, ticketID string) (*DispatchResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.TechnicianID != nil {
		return nil, apperrors.NewConflict("ticket already assigned", map[string]any{"ticket_id": ticketID})
	}
	customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	best, score, err := s.FindBestTechnician(ctx, ticket, customer)
	if err != nil {
		return nil, err
	}
	if best == nil {
		observability.Dispatches.WithLabelValues("no_candidate").Inc()
		s.logger.Info("no eligible technician", zap.String("ticket_id", ticketID))
		return nil, nil
	}
	return s.Assign(ctx, ticket, best, score)
}

// AssignManual binds an operator-chosen technician to the ticket. The
// queue ceiling still applies; only the candidate choice is bypassed.
func (s *DispatchService) AssignManual(ctx context.Context, ticketID, technicianID string) (*DispatchResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.TechnicianID != nil {
		return nil, apperrors.NewConflict("ticket already assigned", map[string]any{"ticket_id": ticketID})
	}
	customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	tech, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if tech.Status == domain.TechnicianStatusOffline {
		return nil, apperrors.NewConflict("technician offline", map[string]any{"technician_id": technicianID})
	}

	score := ScoreTechnician(tech, customer, ticket, s.territoryFor(ctx, tech), s.weights, s.now())
	return s.Assign(ctx, ticket, tech, &score)
}

// estimateArrival models travel at 3 minutes per km plus 30 minutes of
// service time per job already queued ahead of this one. The unknown
// distance sentinel is left in on purpose: a candidate without
// coordinates gets a deliberately pessimistic arrival estimate.
func (s *DispatchService) estimateArrival(distanceKm float64, priorQueueDepth int) time.Time {
	travel := time.Duration(distanceKm*travelMinutesPerKm) * time.Minute
	backlog := time.Duration(priorQueueDepth*serviceMinutesPerJob) * time.Minute
	return s.now().Add(travel + backlog)
}

// ProcessPending assigns technicians to unassigned dispatched tickets,
// highest priority first. Per-ticket failures are logged and skipped.
func (s *DispatchService) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 10
	}
	waiting, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:     []domain.TicketStatus{domain.TicketStatusDispatched},
		Unassigned:   true,
		OrderByQueue: true,
		Limit:        limit,
	})
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	assigned := 0
	for _, ticket := range waiting {
		result, err := s.DispatchAutomatically(ctx, ticket.ID)
		if err != nil {
			s.logger.Warn("dispatch failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if result != nil {
			assigned++
		}
	}
	return assigned, nil
}

// Suggestion is an operator-facing ranked candidate.
type Suggestion struct {
	TechnicianID string   `json:"technician_id"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
	Availability string   `json:"availability"`
	Reasons      []string `json:"reasons"`
}

// SuggestTechnicians ranks technicians for an operator reviewing a
// ticket by hand. The heuristic is intentionally different from the
// automatic scorer: it favors route continuity (nearby active stops)
// and penalizes offline technicians instead of excluding them, so the
// operator sees the whole roster with reasons.
func (s *DispatchService) SuggestTechnicians(ctx context.Context, ticketID string) ([]Suggestion, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	roster, err := s.technicians.ListByStatuses(ctx, []domain.TechnicianStatus{
		domain.TechnicianStatusAvailable,
		domain.TechnicianStatusBusy,
		domain.TechnicianStatusOffline,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	suggestions := make([]Suggestion, 0, len(roster))
	for i := range roster {
		tech := &roster[i]
		suggestions = append(suggestions, s.suggestOne(ctx, tech, customer))
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}

func (s *DispatchService) suggestOne(ctx context.Context, tech *domain.Technician, customer *domain.Customer) Suggestion {
	score := 100.0
	var reasons []string
	var distanceKm *float64

	if tech.HasCoordinates() && customer.HasCoordinates() {
		d := geo.DistanceKm(
			geo.Point{Lat: *tech.Latitude, Lon: *tech.Longitude},
			geo.Point{Lat: *customer.Latitude, Lon: *customer.Longitude},
		)
		distanceKm = &d
		score -= math.Min(d*5, 40)
		reasons = append(reasons, fmt.Sprintf("%.1f km away", d))
	}

	stops := s.activeStops(ctx, tech.ID)
	nearby := 0
	for _, stop := range stops {
		if stop.Neighborhood == customer.Neighborhood {
			nearby++
			continue
		}
		if stop.HasCoordinates() && customer.HasCoordinates() {
			d := geo.DistanceKm(
				geo.Point{Lat: *stop.Latitude, Lon: *stop.Longitude},
				geo.Point{Lat: *customer.Latitude, Lon: *customer.Longitude},
			)
			if d < 2 {
				nearby++
			}
		}
	}
	if nearby > 0 {
		score += float64(nearby) * 20
		reasons = append(reasons, fmt.Sprintf("%d active stop(s) nearby", nearby))
	}

	if tech.TerritoryID != nil {
		if territory := s.territoryFor(ctx, tech); territory != nil && territory.Covers(customer.Neighborhood) {
			score += 30
			reasons = append(reasons, "covers the customer's neighborhood")
		}
	}

	availability := "imediata"
	switch tech.Status {
	case domain.TechnicianStatusBusy:
		score -= 20
		availability = "em_breve"
		reasons = append(reasons, "currently on a job")
	case domain.TechnicianStatusOffline:
		score -= 100
		availability = "ocupado"
		reasons = append(reasons, "offline")
	}

	if tech.Rating > 4.5 {
		score += 10
		reasons = append(reasons, fmt.Sprintf("high rating (%.1f)", tech.Rating))
	}

	score = math.Max(0, math.Min(100, score))
	return Suggestion{
		TechnicianID: tech.ID,
		Name:         tech.Name,
		Score:        score,
		DistanceKm:   distanceKm,
		Availability: availability,
		Reasons:      reasons,
	}
}

// activeStops returns the customers of the technician's in-flight
// tickets. Load failures degrade to an empty route.
func (s *DispatchService) activeStops(ctx context.Context, technicianID string) []domain.Customer {
	open, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		TechnicianID: &technicianID,
		Statuses:     []domain.TicketStatus{domain.TicketStatusDispatched, domain.TicketStatusInProgress},
	})
	if err != nil {
		s.logger.Warn("failed to load active stops", zap.String("technician_id", technicianID), zap.Error(err))
		return nil
	}
	stops := make([]domain.Customer, 0, len(open))
	for _, t := range open {
		customer, err := s.customers.GetByID(ctx, t.CustomerID)
		if err != nil {
			continue
		}
		stops = append(stops, *customer)
	}
	return stops
}

func (s *DispatchService) addObservation(ctx context.Context, ticketID, text string) {
	if err := s.observations.Create(ctx, &domain.Observation{
		TicketID: ticketID,
		Text:     text,
		Author:   "dispatch-engine",
		Kind:     domain.ObservationKindAutomatic,
	}); err != nil {
		s.logger.Warn("failed to record observation", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *DispatchService) auditAction(ctx context.Context, action, ticketID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &domain.AuditLog{
		Actor:    "dispatch-engine",
		Action:   action,
		Entity:   "ticket",
		EntityID: ticketID,
		Details:  details,
	}); err != nil {
		s.logger.Warn("failed to record audit entry", zap.Error(err))
	}
}

func (s *DispatchService) publish(ctx context.Context, ticketID string, payload events.TicketDispatchedPayload) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketDispatched,
		TicketID:  ticketID,
		Actor:     "dispatch-engine",
		Timestamp: s.now(),
		Payload:   payload,
	})
}
