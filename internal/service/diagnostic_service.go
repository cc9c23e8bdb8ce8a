package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/ai"
	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/events"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/observability"
	"github.com/spec-kit/autonoc/internal/repository"
	apperrors "github.com/spec-kit/autonoc/pkg/util"

	"github.com/google/uuid"
)

const (
	diagnosisLockTTL   = 5 * time.Minute
	statusCacheTTL     = 60 * time.Second
	fallbackConfidence = 0.6

	regionalIncidentWindow = 2 * time.Hour
	regionalIncidentLimit  = 3
	instabilityWindow      = 7 * 24 * time.Hour
	instabilityLimit       = 2
)

// DiagnosticService runs the automated diagnostic pipeline: classify
// the reported problem, run the connectivity test battery, decide, and
// drive the ticket lifecycle accordingly.
type DiagnosticService struct {
	tickets      repository.TicketRepository
	customers    repository.CustomerRepository
	diagnoses    repository.DiagnosisRepository
	observations repository.ObservationRepository
	audit        repository.AuditRepository
	isp          ISPGateway
	ai           ai.Client
	locker       Locker
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	now          func() time.Time
}

// DiagnosticDependencies bundles collaborators.
type DiagnosticDependencies struct {
	TicketRepo      repository.TicketRepository
	CustomerRepo    repository.CustomerRepository
	DiagnosisRepo   repository.DiagnosisRepository
	ObservationRepo repository.ObservationRepository
	AuditRepo       repository.AuditRepository
	ISP             ISPGateway
	AI              ai.Client
	Locker          Locker
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewDiagnosticService creates the service.
func NewDiagnosticService(deps DiagnosticDependencies) *DiagnosticService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticService{
		tickets:      deps.TicketRepo,
		customers:    deps.CustomerRepo,
		diagnoses:    deps.DiagnosisRepo,
		observations: deps.ObservationRepo,
		audit:        deps.AuditRepo,
		isp:          deps.ISP,
		ai:           deps.AI,
		locker:       deps.Locker,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		now:          now,
	}
}

// Classify maps a free-text complaint onto the problem taxonomy. Any
// failure of the language capability falls back to no_internet with
// confidence 0.5 and no keywords; this never errors.
func (s *DiagnosticService) Classify(ctx context.Context, reportText string) domain.Classification {
	fallback := domain.Classification{Type: domain.ProblemNoInternet, Confidence: 0.5, Keywords: []string{}}
	if s.ai == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`You are an expert at diagnosing ISP internet connectivity problems.

Classify the following customer report into exactly one category:
- no_internet (no connection, offline)
- slow (slow speeds, buffering)
- intermittent (drops, unstable, oscillating)
- wifi (Wi-Fi issues, weak signal, cannot join Wi-Fi)
- auth (authentication, password, login problems)
- incident (mass outage, whole region down)

Customer report: %q

Answer ONLY in JSON:
{"type": "category", "confidence": 0.95, "keywords": ["word1", "word2"]}`, reportText)

	completion, err := s.ai.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("classification capability failed", zap.Error(err))
		return fallback
	}

	var parsed struct {
		Type       string   `json:"type"`
		Confidence float64  `json:"confidence"`
		Keywords   []string `json:"keywords"`
	}
	if err := ai.DecodeJSON(completion, &parsed); err != nil {
		s.logger.Warn("classification response malformed", zap.Error(err))
		return fallback
	}
	if !domain.ValidProblemType(parsed.Type) {
		s.logger.Warn("classification outside taxonomy", zap.String("type", parsed.Type))
		return fallback
	}
	keywords := parsed.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return domain.Classification{
		Type:       domain.ProblemType(parsed.Type),
		Confidence: parsed.Confidence,
		Keywords:   keywords,
	}
}

// RunTests executes the fixed battery of four connectivity tests in
// order. Each test failure is isolated: a provider error degrades only
// that entry and never prevents the remaining tests from running.
func (s *DiagnosticService) RunTests(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer) []domain.TestResult {
	tests := make([]domain.TestResult, 0, 4)

	// Test 1: subscriber session status.
	status, err := s.subscriberStatus(ctx, customer)
	switch {
	case err != nil:
		tests = append(tests, s.testResult(domain.TestConnectionStatus, domain.TestStatusError, "error checking subscriber status"))
	case status.Online:
		ip := status.IP
		if ip == "" {
			ip = "N/A"
		}
		tests = append(tests, s.testResult(domain.TestConnectionStatus, domain.TestStatusSuccess, fmt.Sprintf("customer ONLINE - IP: %s", ip)))
	default:
		tests = append(tests, s.testResult(domain.TestConnectionStatus, domain.TestStatusError, "customer OFFLINE"))
	}

	// Test 2: pending tickets in the same neighborhood over the last two hours.
	count, err := s.tickets.CountPendingInNeighborhood(ctx, customer.Neighborhood, s.now().Add(-regionalIncidentWindow), ticket.ID)
	switch {
	case err != nil:
		tests = append(tests, s.testResult(domain.TestRegionalIncident, domain.TestStatusError, "error checking regional incidents"))
	case count > regionalIncidentLimit:
		tests = append(tests, s.testResult(domain.TestRegionalIncident, domain.TestStatusWarning, fmt.Sprintf("ALERT: %d tickets opened in the same neighborhood in the last 2h", count)))
	default:
		tests = append(tests, s.testResult(domain.TestRegionalIncident, domain.TestStatusSuccess, fmt.Sprintf("no regional incident (%d tickets in the neighborhood)", count)))
	}

	// Test 3: this customer's tickets over the last seven days.
	history, err := s.tickets.CountByCustomerSince(ctx, customer.ID, s.now().Add(-instabilityWindow))
	switch {
	case err != nil:
		tests = append(tests, s.testResult(domain.TestInstabilityHistory, domain.TestStatusError, "error checking instability history"))
	case history > instabilityLimit:
		tests = append(tests, s.testResult(domain.TestInstabilityHistory, domain.TestStatusWarning, fmt.Sprintf("ATTENTION: %d tickets in the last 7 days (recurring customer)", history)))
	default:
		tests = append(tests, s.testResult(domain.TestInstabilityHistory, domain.TestStatusSuccess, fmt.Sprintf("normal history (%d tickets in the last 7 days)", history)))
	}

	// Test 4: fixed placeholder; no equipment-level instrumentation exists.
	tests = append(tests, s.testResult(domain.TestPingLatency, domain.TestStatusPending, "ping test not available (requires equipment integration)"))

	return tests
}

func (s *DiagnosticService) subscriberStatus(ctx context.Context, customer *domain.Customer) (ixc.SubscriberStatus, error) {
	if customer.ExternalID == nil {
		return ixc.SubscriberStatus{}, fmt.Errorf("customer %s has no external id", customer.ID)
	}
	cacheKey := "subscriber-status:" + *customer.ExternalID
	if s.locker != nil {
		if cached, ok, err := s.locker.CacheGet(ctx, cacheKey); err == nil && ok {
			var status ixc.SubscriberStatus
			if err := json.Unmarshal([]byte(cached), &status); err == nil {
				return status, nil
			}
		}
	}

	status, err := s.isp.GetSubscriberStatus(ctx, *customer.ExternalID)
	if err != nil {
		return ixc.SubscriberStatus{}, err
	}
	if s.locker != nil {
		if raw, err := json.Marshal(status); err == nil {
			s.locker.CacheSet(ctx, cacheKey, string(raw), statusCacheTTL)
		}
	}
	return status, nil
}

func (s *DiagnosticService) testResult(name string, status domain.TestStatus, detail string) domain.TestResult {
	return domain.TestResult{Name: name, Status: status, Detail: detail, Timestamp: s.now()}
}

// Decide produces the ternary decision plus narrative report. The
// language capability is the primary path; any failure triggers the
// deterministic rule cascade with confidence 0.6.
func (s *DiagnosticService) Decide(ctx context.Context, tests []domain.TestResult, problemType domain.ProblemType, reportText string) (domain.Decision, string, float64, bool) {
	if s.ai != nil {
		if decision, report, confidence, ok := s.decideWithAI(ctx, tests, problemType, reportText); ok {
			return decision, report, confidence, false
		}
	}
	decision, report := FallbackDecision(tests)
	return decision, report, fallbackConfidence, true
}

func (s *DiagnosticService) decideWithAI(ctx context.Context, tests []domain.TestResult, problemType domain.ProblemType, reportText string) (domain.Decision, string, float64, bool) {
	var lines []string
	for _, t := range tests {
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", t.Name, strings.ToUpper(string(t.Status)), t.Detail))
	}

	prompt := fmt.Sprintf(`You are a NOC specialist at an internet service provider.

Analyze the data below and make a decision.

REPORTED PROBLEM: %q
CLASSIFIED PROBLEM: %s

TEST RESULTS:
%s

Decide between:
1. "resolver_remoto" - the problem can be fixed remotely (e.g. customer online, simple issue)
2. "despachar_tecnico" - a field technician is required (e.g. customer offline, physical fault)
3. "orientar_cliente" - the problem is on the customer side (e.g. Wi-Fi, customer equipment)

Write a professional, objective technical report.

Answer ONLY in JSON:
{"decision": "resolver_remoto|despachar_tecnico|orientar_cliente", "report": "technical report", "confidence": 0.95}`,
		reportText, problemType, strings.Join(lines, "\n"))

	completion, err := s.ai.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("reasoning capability failed", zap.Error(err))
		return "", "", 0, false
	}

	var parsed struct {
		Decision   string  `json:"decision"`
		Report     string  `json:"report"`
		Confidence float64 `json:"confidence"`
	}
	if err := ai.DecodeJSON(completion, &parsed); err != nil {
		s.logger.Warn("reasoning response malformed", zap.Error(err))
		return "", "", 0, false
	}
	if !domain.ValidDecision(parsed.Decision) {
		s.logger.Warn("reasoning decision outside enum", zap.String("decision", parsed.Decision))
		return "", "", 0, false
	}
	report := parsed.Report
	if report == "" {
		report = "report not generated"
	}
	return domain.Decision(parsed.Decision), report, parsed.Confidence, true
}

// FallbackDecision is the deterministic rule cascade applied when the
// reasoning capability is unavailable. The rules partition every case:
// instruct-customer iff the connection test succeeded and no regional
// warning fired; dispatch otherwise.
func FallbackDecision(tests []domain.TestResult) (domain.Decision, string) {
	var customerOnline, regionalIncident bool
	for _, t := range tests {
		switch t.Name {
		case domain.TestConnectionStatus:
			customerOnline = t.Status == domain.TestStatusSuccess
		case domain.TestRegionalIncident:
			regionalIncident = t.Status == domain.TestStatusWarning
		}
	}

	switch {
	case customerOnline && !regionalIncident:
		return domain.DecisionInstructCustomer, "Automatic report unavailable. Customer is online; the problem is likely local equipment (Wi-Fi, router)."
	case regionalIncident:
		return domain.DecisionDispatch, "Automatic report unavailable. Regional incident detected; multiple customers affected in the same area."
	default:
		return domain.DecisionDispatch, "Automatic report unavailable. Customer offline; on-site verification required."
	}
}

// Diagnose runs the full pipeline for one ticket and persists the
// resulting diagnosis. A redis lock guarantees at most one active
// diagnostic run per ticket.
func (s *DiagnosticService) Diagnose(ctx context.Context, ticketID string) (*domain.Diagnosis, error) {
	lockKey := "diagnosis-lock:" + ticketID
	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, lockKey, diagnosisLockTTL)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !acquired {
			return nil, apperrors.NewConflict("diagnosis already running", map[string]any{"ticket_id": ticketID})
		}
		defer s.locker.ReleaseLock(ctx, lockKey)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := domain.Transition(ticket, domain.TicketStatusDiagnosing, s.now()); err != nil {
		return nil, apperrors.NewConflict(err.Error(), map[string]any{"ticket_id": ticketID})
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	classification := s.Classify(ctx, ticket.ReportedProblem)
	problemType := classification.Type
	ticket.ProblemType = &problemType
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	tests := s.RunTests(ctx, ticket, customer)
	decision, report, confidence, fellBack := s.Decide(ctx, tests, classification.Type, ticket.ReportedProblem)

	diagnosis := &domain.Diagnosis{
		TicketID:    ticket.ID,
		ProblemType: classification.Type,
		Decision:    decision,
		Report:      report,
		Confidence:  confidence,
		Tests:       tests,
	}
	if err := s.diagnoses.Create(ctx, diagnosis); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.addObservation(ctx, ticket.ID, "[IA] "+report, "diagnostic-engine", domain.ObservationKindAI)

	// An out-of-band cancellation wins over the decision.
	if fresh, err := s.tickets.GetByID(ctx, ticket.ID); err == nil && fresh.Status == domain.TicketStatusCancelled {
		s.logger.Info("ticket cancelled during diagnosis", zap.String("ticket_id", ticket.ID))
		return diagnosis, nil
	}

	switch decision {
	case domain.DecisionResolveRemote:
		if err := s.transitionAndSave(ctx, ticket, domain.TicketStatusResolvedRemote); err != nil {
			return nil, err
		}
		s.attemptRemoteRemediation(ctx, ticket)
	case domain.DecisionDispatch:
		if err := s.transitionAndSave(ctx, ticket, domain.TicketStatusDispatched); err != nil {
			return nil, err
		}
	case domain.DecisionInstructCustomer:
		// Back to the queue; the operator relays the guidance.
		if err := s.transitionAndSave(ctx, ticket, domain.TicketStatusPending); err != nil {
			return nil, err
		}
	}

	if ticket.ExternalID != nil {
		if err := s.isp.AddNote(ctx, *ticket.ExternalID, report); err != nil {
			s.logger.Warn("failed to push diagnosis note", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.auditAction(ctx, "automatic_diagnosis", ticket.ID, map[string]any{
		"decision":     string(decision),
		"confidence":   confidence,
		"problem_type": string(classification.Type),
	})

	path := "ai"
	if fellBack {
		path = "fallback"
	}
	observability.Diagnoses.WithLabelValues(string(decision), path).Inc()
	s.publish(ctx, events.EventDiagnosisDone, ticket.ID, events.DiagnosisDonePayload{
		Decision:    decision,
		ProblemType: classification.Type,
		Confidence:  confidence,
		Fallback:    fellBack,
	})

	return diagnosis, nil
}

// attemptRemoteRemediation fires the best-effort self-heal action. A
// real deployment would reboot the ONU or reprovision the session; the
// integration point records the attempt and leaves the ticket awaiting
// validation.
func (s *DiagnosticService) attemptRemoteRemediation(ctx context.Context, ticket *domain.Ticket) {
	s.addObservation(ctx, ticket.ID, "[SYSTEM] Remote remediation attempted. Awaiting validation.", "remediation", domain.ObservationKindAutomatic)
	if ticket.ExternalID != nil {
		if err := s.isp.UpdateTicketStatus(ctx, *ticket.ExternalID, ixc.StatusCodeResolved, "Resolved automatically by AUTONOC"); err != nil {
			s.logger.Warn("remote remediation push failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

// ValidateResolution confirms a remotely-resolved ticket: if the
// subscriber is back online the ticket completes, otherwise it
// escalates to dispatch. Returns whether the customer was back online.
func (s *DiagnosticService) ValidateResolution(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if ticket.Status != domain.TicketStatusResolvedRemote {
		return false, apperrors.NewConflict("ticket not awaiting validation", map[string]any{"ticket_id": ticketID, "status": string(ticket.Status)})
	}
	customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		return false, apperrors.MapError(err)
	}

	status, err := s.subscriberStatus(ctx, customer)
	if err != nil {
		return false, apperrors.MapError(err)
	}

	if status.Online {
		if err := s.transitionAndSave(ctx, ticket, domain.TicketStatusCompleted); err != nil {
			return false, err
		}
		s.addObservation(ctx, ticket.ID, "[SYSTEM] Automatic validation: customer back online. Ticket completed.", "validation", domain.ObservationKindAutomatic)
		if ticket.ExternalID != nil {
			if err := s.isp.UpdateTicketStatus(ctx, *ticket.ExternalID, ixc.StatusCodeFinished, "Completed - customer online"); err != nil {
				s.logger.Warn("validation push failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
		s.publish(ctx, events.EventRemoteValidated, ticket.ID, events.RemoteValidatedPayload{BackOnline: true})
		return true, nil
	}

	if err := s.transitionAndSave(ctx, ticket, domain.TicketStatusDispatched); err != nil {
		return false, err
	}
	s.addObservation(ctx, ticket.ID, "[SYSTEM] Automatic validation: customer still offline. Escalating to technician.", "validation", domain.ObservationKindAutomatic)
	s.publish(ctx, events.EventRemoteValidated, ticket.ID, events.RemoteValidatedPayload{BackOnline: false})
	return false, nil
}

// ProcessPendingDiagnoses diagnoses up to limit pending tickets,
// highest priority and oldest first. Per-ticket failures are logged and
// skipped; the batch never aborts.
func (s *DiagnosticService) ProcessPendingDiagnoses(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 5
	}
	pending, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:     []domain.TicketStatus{domain.TicketStatusPending},
		OrderByQueue: true,
		Limit:        limit,
	})
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	diagnosed := 0
	for _, ticket := range pending {
		if _, err := s.Diagnose(ctx, ticket.ID); err != nil {
			s.logger.Warn("diagnosis failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		diagnosed++
	}
	return diagnosed, nil
}

// ProcessValidations validates remotely-resolved tickets awaiting
// confirmation. Returns how many were confirmed and how many escalated.
func (s *DiagnosticService) ProcessValidations(ctx context.Context, limit int) (resolved, escalated int, err error) {
	if limit <= 0 {
		limit = 10
	}
	waiting, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusResolvedRemote},
		Limit:    limit,
	})
	if err != nil {
		return 0, 0, apperrors.MapError(err)
	}

	for _, ticket := range waiting {
		if ticket.CompletedAt != nil {
			continue
		}
		online, err := s.ValidateResolution(ctx, ticket.ID)
		if err != nil {
			s.logger.Warn("validation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if online {
			resolved++
		} else {
			escalated++
		}
	}
	return resolved, escalated, nil
}

func (s *DiagnosticService) transitionAndSave(ctx context.Context, ticket *domain.Ticket, to domain.TicketStatus) error {
	if err := domain.Transition(ticket, to, s.now()); err != nil {
		return apperrors.NewConflict(err.Error(), map[string]any{"ticket_id": ticket.ID})
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *DiagnosticService) addObservation(ctx context.Context, ticketID, text, author string, kind domain.ObservationKind) {
	if err := s.observations.Create(ctx, &domain.Observation{
		TicketID: ticketID,
		Text:     text,
		Author:   author,
		Kind:     kind,
	}); err != nil {
		s.logger.Warn("failed to record observation", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *DiagnosticService) auditAction(ctx context.Context, action, ticketID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &domain.AuditLog{
		Actor:    "diagnostic-engine",
		Action:   action,
		Entity:   "ticket",
		EntityID: ticketID,
		Details:  details,
	}); err != nil {
		s.logger.Warn("failed to record audit entry", zap.Error(err))
	}
}

func (s *DiagnosticService) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     "diagnostic-engine",
		Timestamp: s.now(),
		Payload:   payload,
	})
}
