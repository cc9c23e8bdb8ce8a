package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/repository"
)

var errNotFound = errors.New("not found")

type fakeTicketRepo struct {
	mu            sync.Mutex
	tickets       map[string]*domain.Ticket
	neighborhoods map[string]string // customer id -> neighborhood
	seq           int
	failOnGet     map[string]error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets:       map[string]*domain.Ticket{},
		neighborhoods: map[string]string{},
		failOnGet:     map[string]error{},
	}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		r.seq++
		ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return errNotFound
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOnGet[id]; ok {
		return nil, err
	}
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ExternalID != nil && *ticket.ExternalID == externalID {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.TechnicianID != nil && (ticket.TechnicianID == nil || *ticket.TechnicianID != *filter.TechnicianID) {
			continue
		}
		if filter.Unassigned && ticket.TechnicianID != nil {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if filter.SLABefore != nil && !ticket.SLADeadline.Before(*filter.SLABefore) {
			continue
		}
		out = append(out, *ticket)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := domain.PriorityRank(out[i].Priority), domain.PriorityRank(out[j].Priority)
		if pi != pj {
			return pi > pj
		}
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) CountPendingInNeighborhood(ctx context.Context, neighborhood string, since time.Time, excludeTicketID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.ID == excludeTicketID {
			continue
		}
		if ticket.Status != domain.TicketStatusPending && ticket.Status != domain.TicketStatusDiagnosing {
			continue
		}
		if r.neighborhoods[ticket.CustomerID] == neighborhood && ticket.OpenedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.CustomerID == customerID && ticket.OpenedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func containsStatus(statuses []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type fakeCustomerRepo struct {
	customers map[string]*domain.Customer
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: map[string]*domain.Customer{}}
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	customer, ok := r.customers[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *customer
	return &copied, nil
}

func (r *fakeCustomerRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Customer, error) {
	for _, customer := range r.customers {
		if customer.ExternalID != nil && *customer.ExternalID == externalID {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeCustomerRepo) UpsertByExternalID(ctx context.Context, customer *domain.Customer) error {
	if customer.ExternalID != nil {
		for id, existing := range r.customers {
			if existing.ExternalID != nil && *existing.ExternalID == *customer.ExternalID {
				customer.ID = id
				copied := *customer
				r.customers[id] = &copied
				return nil
			}
		}
	}
	customer.ID = fmt.Sprintf("customer-%d", len(r.customers)+1)
	copied := *customer
	r.customers[customer.ID] = &copied
	return nil
}

type fakeTechnicianRepo struct {
	mu          sync.Mutex
	technicians map[string]*domain.Technician
	order       []string
}

func newFakeTechnicianRepo(techs ...*domain.Technician) *fakeTechnicianRepo {
	repo := &fakeTechnicianRepo{technicians: map[string]*domain.Technician{}}
	for _, tech := range techs {
		copied := *tech
		repo.technicians[tech.ID] = &copied
		repo.order = append(repo.order, tech.ID)
	}
	return repo
}

func (r *fakeTechnicianRepo) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tech, ok := r.technicians[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *tech
	return &copied, nil
}

func (r *fakeTechnicianRepo) ListByStatuses(ctx context.Context, statuses []domain.TechnicianStatus) ([]domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Technician
	for _, id := range r.order {
		tech := r.technicians[id]
		for _, status := range statuses {
			if tech.Status == status {
				out = append(out, *tech)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTechnicianRepo) ReserveQueueSlot(ctx context.Context, id string, ceiling int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tech, ok := r.technicians[id]
	if !ok {
		return false, errNotFound
	}
	if tech.Status == domain.TechnicianStatusOffline || tech.QueueDepth >= ceiling {
		return false, nil
	}
	tech.QueueDepth++
	tech.Status = domain.TechnicianStatusBusy
	return true, nil
}

func (r *fakeTechnicianRepo) ReleaseQueueSlot(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tech, ok := r.technicians[id]
	if !ok {
		return errNotFound
	}
	if tech.QueueDepth > 0 {
		tech.QueueDepth--
	}
	if tech.QueueDepth == 0 && tech.Status == domain.TechnicianStatusBusy {
		tech.Status = domain.TechnicianStatusAvailable
	}
	return nil
}

type fakeDiagnosisRepo struct {
	mu        sync.Mutex
	diagnoses []domain.Diagnosis
	seq       int
}

func (r *fakeDiagnosisRepo) Create(ctx context.Context, diagnosis *domain.Diagnosis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.diagnoses {
		if r.diagnoses[i].TicketID == diagnosis.TicketID {
			r.diagnoses[i].Active = false
		}
	}
	r.seq++
	diagnosis.ID = fmt.Sprintf("diagnosis-%d", r.seq)
	diagnosis.Active = true
	diagnosis.CreatedAt = time.Now()
	r.diagnoses = append(r.diagnoses, *diagnosis)
	return nil
}

func (r *fakeDiagnosisRepo) GetActiveByTicket(ctx context.Context, ticketID string) (*domain.Diagnosis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.diagnoses {
		if r.diagnoses[i].TicketID == ticketID && r.diagnoses[i].Active {
			copied := r.diagnoses[i]
			return &copied, nil
		}
	}
	return nil, errNotFound
}

func (r *fakeDiagnosisRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Diagnosis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Diagnosis
	for _, d := range r.diagnoses {
		if d.TicketID == ticketID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeObservationRepo struct {
	mu           sync.Mutex
	observations []domain.Observation
}

func (r *fakeObservationRepo) Create(ctx context.Context, observation *domain.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	observation.ID = fmt.Sprintf("observation-%d", len(r.observations)+1)
	observation.CreatedAt = time.Now()
	r.observations = append(r.observations, *observation)
	return nil
}

func (r *fakeObservationRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Observation
	for _, o := range r.observations {
		if o.TicketID == ticketID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeObservationRepo) hasContaining(fragment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.observations {
		if strings.Contains(o.Text, fragment) {
			return true
		}
	}
	return false
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

type fakeRuleRepo struct {
	rule *domain.DispatchRule
}

func (r *fakeRuleRepo) GetActive(ctx context.Context) (*domain.DispatchRule, error) {
	return r.rule, nil
}

type fakeTerritoryRepo struct {
	territories map[string]*domain.Territory
}

func (r *fakeTerritoryRepo) GetByID(ctx context.Context, id string) (*domain.Territory, error) {
	territory, ok := r.territories[id]
	if !ok {
		return nil, errNotFound
	}
	return territory, nil
}

// fakeISP records outbound calls and serves canned subscriber status.
type fakeISP struct {
	mu             sync.Mutex
	openTickets    []ixc.RemoteTicket
	fetchErr       error
	statuses       map[string]ixc.SubscriberStatus
	statusErr      error
	notes          []string
	statusUpdates  []string
	assignedTechs  []string
	scheduledTimes []time.Time
}

func newFakeISP() *fakeISP {
	return &fakeISP{statuses: map[string]ixc.SubscriberStatus{}}
}

func (f *fakeISP) FetchOpenTickets(ctx context.Context) ([]ixc.RemoteTicket, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.openTickets, nil
}

func (f *fakeISP) GetSubscriberStatus(ctx context.Context, customerExternalID string) (ixc.SubscriberStatus, error) {
	if f.statusErr != nil {
		return ixc.SubscriberStatus{}, f.statusErr
	}
	return f.statuses[customerExternalID], nil
}

func (f *fakeISP) UpdateTicketStatus(ctx context.Context, externalID, statusCode, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, externalID+":"+statusCode)
	return nil
}

func (f *fakeISP) AssignTechnician(ctx context.Context, externalID, technicianID, technicianName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignedTechs = append(f.assignedTechs, technicianID)
	return nil
}

func (f *fakeISP) AddNote(ctx context.Context, externalID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeISP) ScheduleTicket(ctx context.Context, externalID string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduledTimes = append(f.scheduledTimes, when)
	return nil
}

// fakeAI returns canned completions in registration order, or an error.
type fakeAI struct {
	mu        sync.Mutex
	responses []string
	err       error
}

func (f *fakeAI) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return "", errors.New("no canned response")
	}
	response := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return response, nil
}

// fakeLocker is an in-memory Locker with real SetNX semantics.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]bool
	cache map[string]string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: map[string]bool{}, cache: map[string]string{}}
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] {
		return false, nil
	}
	l.locks[key] = true
	return true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
}

func (l *fakeLocker) CacheGet(ctx context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	value, ok := l.cache[key]
	return value, ok, nil
}

func (l *fakeLocker) CacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key] = value
}
