package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
)

type diagnosticFixture struct {
	service   *DiagnosticService
	tickets   *fakeTicketRepo
	customers *fakeCustomerRepo
	diagnoses *fakeDiagnosisRepo
	isp       *fakeISP
	ai        *fakeAI
	locker    *fakeLocker
	now       time.Time
}

func newDiagnosticFixture(t *testing.T, aiClient *fakeAI) *diagnosticFixture {
	t.Helper()
	now := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	fixture := &diagnosticFixture{
		tickets:   newFakeTicketRepo(),
		customers: newFakeCustomerRepo(),
		diagnoses: &fakeDiagnosisRepo{},
		isp:       newFakeISP(),
		ai:        aiClient,
		locker:    newFakeLocker(),
		now:       now,
	}
	deps := DiagnosticDependencies{
		TicketRepo:      fixture.tickets,
		CustomerRepo:    fixture.customers,
		DiagnosisRepo:   fixture.diagnoses,
		ObservationRepo: &fakeObservationRepo{},
		AuditRepo:       &fakeAuditRepo{},
		ISP:             fixture.isp,
		Locker:          fixture.locker,
		Now:             func() time.Time { return now },
	}
	if aiClient != nil {
		deps.AI = aiClient
	}
	fixture.service = NewDiagnosticService(deps)
	return fixture
}

func (f *diagnosticFixture) seedCustomer(id, externalID, neighborhood string) {
	ext := externalID
	f.customers.customers[id] = &domain.Customer{
		ID:           id,
		ExternalID:   &ext,
		Name:         "Customer " + id,
		Neighborhood: neighborhood,
	}
	f.tickets.neighborhoods[id] = neighborhood
}

func (f *diagnosticFixture) seedTicket(id, customerID string, status domain.TicketStatus, problem string) *domain.Ticket {
	ticket := &domain.Ticket{
		ID:              id,
		Number:          "N-" + id,
		CustomerID:      customerID,
		Status:          status,
		Priority:        domain.TicketPriorityMedium,
		ReportedProblem: problem,
		OpenedAt:        f.now.Add(-30 * time.Minute),
		SLADeadline:     f.now.Add(23 * time.Hour),
	}
	f.tickets.tickets[id] = ticket
	return ticket
}

func TestFallbackDecisionPartition(t *testing.T) {
	cases := []struct {
		name             string
		connectionStatus domain.TestStatus
		regionalStatus   domain.TestStatus
		want             domain.Decision
	}{
		{"online no incident", domain.TestStatusSuccess, domain.TestStatusSuccess, domain.DecisionInstructCustomer},
		{"online with incident", domain.TestStatusSuccess, domain.TestStatusWarning, domain.DecisionDispatch},
		{"offline no incident", domain.TestStatusError, domain.TestStatusSuccess, domain.DecisionDispatch},
		{"offline with incident", domain.TestStatusError, domain.TestStatusWarning, domain.DecisionDispatch},
		{"connection check errored", domain.TestStatusError, domain.TestStatusError, domain.DecisionDispatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tests := []domain.TestResult{
				{Name: domain.TestConnectionStatus, Status: tc.connectionStatus},
				{Name: domain.TestRegionalIncident, Status: tc.regionalStatus},
			}
			decision, report := FallbackDecision(tests)
			if decision != tc.want {
				t.Fatalf("decision = %s, want %s", decision, tc.want)
			}
			if report == "" {
				t.Fatal("fallback report must not be empty")
			}
		})
	}
}

func TestClassifyFallsBackOnAIFailure(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{err: errors.New("provider down")})

	got := fixture.service.Classify(context.Background(), "internet caiu")
	if got.Type != domain.ProblemNoInternet {
		t.Fatalf("type = %s, want %s", got.Type, domain.ProblemNoInternet)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", got.Confidence)
	}
	if len(got.Keywords) != 0 {
		t.Fatalf("keywords = %v, want empty", got.Keywords)
	}
}

func TestClassifyRejectsUnknownCategory(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{responses: []string{`{"type":"quantum","confidence":0.9,"keywords":[]}`}})

	got := fixture.service.Classify(context.Background(), "weird report")
	if got.Type != domain.ProblemNoInternet || got.Confidence != 0.5 {
		t.Fatalf("expected fallback classification, got %+v", got)
	}
}

func TestRunTestsOrderAndIsolation(t *testing.T) {
	fixture := newDiagnosticFixture(t, nil)
	fixture.seedCustomer("c1", "ext-1", "Centro")
	ticket := fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "sem internet")
	fixture.isp.statusErr = errors.New("ixc unreachable")

	customer, _ := fixture.customers.GetByID(context.Background(), "c1")
	results := fixture.service.RunTests(context.Background(), ticket, customer)

	wantOrder := []string{
		domain.TestConnectionStatus,
		domain.TestRegionalIncident,
		domain.TestInstabilityHistory,
		domain.TestPingLatency,
	}
	if len(results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(results), len(wantOrder))
	}
	for i, name := range wantOrder {
		if results[i].Name != name {
			t.Fatalf("result[%d] = %s, want %s", i, results[i].Name, name)
		}
	}

	// Battery keeps going past the failed connection check.
	if results[0].Status != domain.TestStatusError {
		t.Fatalf("connection status = %s, want error", results[0].Status)
	}
	if results[1].Status != domain.TestStatusSuccess {
		t.Fatalf("regional status = %s, want success", results[1].Status)
	}
	if results[3].Status != domain.TestStatusPending {
		t.Fatalf("ping status = %s, want pending", results[3].Status)
	}

	// The battery has no side effects; a second run reads the same.
	again := fixture.service.RunTests(context.Background(), ticket, customer)
	for i := range results {
		if again[i].Name != results[i].Name || again[i].Status != results[i].Status {
			t.Fatalf("rerun result[%d] = %s/%s, want %s/%s", i, again[i].Name, again[i].Status, results[i].Name, results[i].Status)
		}
	}
}

func TestRunTestsRegionalIncidentThreshold(t *testing.T) {
	fixture := newDiagnosticFixture(t, nil)
	fixture.seedCustomer("c1", "ext-1", "Centro")
	ticket := fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "sem internet")
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: false}

	// Exactly the limit does not fire.
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		fixture.seedCustomer("nc-"+id, "next-"+id, "Centro")
		fixture.seedTicket("nt-"+id, "nc-"+id, domain.TicketStatusPending, "sem internet")
	}
	customer, _ := fixture.customers.GetByID(context.Background(), "c1")
	results := fixture.service.RunTests(context.Background(), ticket, customer)
	if results[1].Status != domain.TestStatusSuccess {
		t.Fatalf("with 3 neighbors status = %s, want success", results[1].Status)
	}

	// One more crosses it.
	fixture.seedCustomer("nc-d", "next-d", "Centro")
	fixture.seedTicket("nt-d", "nc-d", domain.TicketStatusPending, "sem internet")
	results = fixture.service.RunTests(context.Background(), ticket, customer)
	if results[1].Status != domain.TestStatusWarning {
		t.Fatalf("with 4 neighbors status = %s, want warning", results[1].Status)
	}
}

func TestDiagnoseOnlineWifiWithoutAI(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{err: errors.New("provider down")})
	fixture.seedCustomer("c1", "ext-1", "Centro")
	fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "wifi fraco no quarto")
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: true, IP: "10.0.0.7"}

	diagnosis, err := fixture.service.Diagnose(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if diagnosis.Decision != domain.DecisionInstructCustomer {
		t.Fatalf("decision = %s, want %s", diagnosis.Decision, domain.DecisionInstructCustomer)
	}
	if diagnosis.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6", diagnosis.Confidence)
	}

	ticket, _ := fixture.tickets.GetByID(context.Background(), "t1")
	if ticket.Status != domain.TicketStatusPending {
		t.Fatalf("ticket status = %s, want pending after customer guidance", ticket.Status)
	}
	if fixture.locker.locks["diagnosis-lock:t1"] {
		t.Fatal("lock must be released after the run")
	}
}

func TestDiagnoseOfflineWithRegionalIncident(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{err: errors.New("provider down")})
	fixture.seedCustomer("c1", "ext-1", "Jardim")
	fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "sem conexao")
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: false}
	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		fixture.seedCustomer("nc-"+id, "next-"+id, "Jardim")
		fixture.seedTicket("nt-"+id, "nc-"+id, domain.TicketStatusPending, "sem conexao")
	}

	diagnosis, err := fixture.service.Diagnose(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if diagnosis.Decision != domain.DecisionDispatch {
		t.Fatalf("decision = %s, want %s", diagnosis.Decision, domain.DecisionDispatch)
	}

	var regional *domain.TestResult
	for i := range diagnosis.Tests {
		if diagnosis.Tests[i].Name == domain.TestRegionalIncident {
			regional = &diagnosis.Tests[i]
		}
	}
	if regional == nil || regional.Status != domain.TestStatusWarning {
		t.Fatalf("regional incident test = %+v, want warning", regional)
	}

	ticket, _ := fixture.tickets.GetByID(context.Background(), "t1")
	if ticket.Status != domain.TicketStatusDispatched {
		t.Fatalf("ticket status = %s, want dispatched", ticket.Status)
	}
}

func TestDiagnoseRemoteResolutionWithAI(t *testing.T) {
	aiClient := &fakeAI{responses: []string{
		`{"type":"auth","confidence":0.92,"keywords":["senha"]}`,
		`{"decision":"resolver_remoto","report":"Session reset fixes it.","confidence":0.9}`,
	}}
	fixture := newDiagnosticFixture(t, aiClient)
	fixture.seedCustomer("c1", "ext-1", "Centro")
	ticket := fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "senha do pppoe invalida")
	ext := "os-1"
	ticket.ExternalID = &ext
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: true, IP: "10.0.0.9"}

	diagnosis, err := fixture.service.Diagnose(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if diagnosis.Decision != domain.DecisionResolveRemote {
		t.Fatalf("decision = %s, want %s", diagnosis.Decision, domain.DecisionResolveRemote)
	}
	if diagnosis.ProblemType != domain.ProblemAuth {
		t.Fatalf("problem type = %s, want %s", diagnosis.ProblemType, domain.ProblemAuth)
	}

	updated, _ := fixture.tickets.GetByID(context.Background(), "t1")
	if updated.Status != domain.TicketStatusResolvedRemote {
		t.Fatalf("ticket status = %s, want resolved_remote", updated.Status)
	}
	if updated.ProblemType == nil || *updated.ProblemType != domain.ProblemAuth {
		t.Fatalf("persisted problem type = %v, want auth", updated.ProblemType)
	}
}

func TestDiagnoseConflictsWhileLockHeld(t *testing.T) {
	fixture := newDiagnosticFixture(t, nil)
	fixture.seedCustomer("c1", "ext-1", "Centro")
	fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "sem internet")
	fixture.locker.locks["diagnosis-lock:t1"] = true

	if _, err := fixture.service.Diagnose(context.Background(), "t1"); err == nil {
		t.Fatal("expected conflict while diagnosis lock is held")
	}
}

func TestDiagnoseSupersedesPreviousDiagnosis(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{err: errors.New("provider down")})
	fixture.seedCustomer("c1", "ext-1", "Centro")
	fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "wifi ruim")
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: true}

	if _, err := fixture.service.Diagnose(context.Background(), "t1"); err != nil {
		t.Fatalf("first Diagnose: %v", err)
	}
	// Instruct-customer re-queues the ticket, so it can run again.
	if _, err := fixture.service.Diagnose(context.Background(), "t1"); err != nil {
		t.Fatalf("second Diagnose: %v", err)
	}

	history, _ := fixture.diagnoses.ListByTicket(context.Background(), "t1")
	if len(history) != 2 {
		t.Fatalf("diagnosis count = %d, want 2", len(history))
	}
	active := 0
	for _, d := range history {
		if d.Active {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active diagnoses = %d, want exactly 1", active)
	}
}

func TestValidateResolution(t *testing.T) {
	t.Run("back online completes", func(t *testing.T) {
		fixture := newDiagnosticFixture(t, nil)
		fixture.seedCustomer("c1", "ext-1", "Centro")
		fixture.seedTicket("t1", "c1", domain.TicketStatusResolvedRemote, "sem internet")
		fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: true}

		online, err := fixture.service.ValidateResolution(context.Background(), "t1")
		if err != nil {
			t.Fatalf("ValidateResolution: %v", err)
		}
		if !online {
			t.Fatal("expected online=true")
		}
		ticket, _ := fixture.tickets.GetByID(context.Background(), "t1")
		if ticket.Status != domain.TicketStatusCompleted {
			t.Fatalf("ticket status = %s, want completed", ticket.Status)
		}
		if ticket.CompletedAt == nil {
			t.Fatal("CompletedAt must be set on completion")
		}
	})

	t.Run("still offline escalates", func(t *testing.T) {
		fixture := newDiagnosticFixture(t, nil)
		fixture.seedCustomer("c1", "ext-1", "Centro")
		fixture.seedTicket("t1", "c1", domain.TicketStatusResolvedRemote, "sem internet")
		fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: false}

		online, err := fixture.service.ValidateResolution(context.Background(), "t1")
		if err != nil {
			t.Fatalf("ValidateResolution: %v", err)
		}
		if online {
			t.Fatal("expected online=false")
		}
		ticket, _ := fixture.tickets.GetByID(context.Background(), "t1")
		if ticket.Status != domain.TicketStatusDispatched {
			t.Fatalf("ticket status = %s, want dispatched", ticket.Status)
		}
	})
}

func TestProcessPendingDiagnosesIsolatesFailures(t *testing.T) {
	fixture := newDiagnosticFixture(t, &fakeAI{err: errors.New("provider down")})
	fixture.seedCustomer("c1", "ext-1", "Centro")
	fixture.seedCustomer("c2", "ext-2", "Centro")
	fixture.seedCustomer("c3", "ext-3", "Centro")
	fixture.seedTicket("t1", "c1", domain.TicketStatusPending, "sem internet")
	fixture.seedTicket("t2", "c2", domain.TicketStatusPending, "sem internet")
	fixture.seedTicket("t3", "c3", domain.TicketStatusPending, "sem internet")
	fixture.isp.statuses["ext-1"] = ixc.SubscriberStatus{Online: true}
	fixture.isp.statuses["ext-2"] = ixc.SubscriberStatus{Online: true}
	fixture.isp.statuses["ext-3"] = ixc.SubscriberStatus{Online: true}
	fixture.tickets.failOnGet["t2"] = errors.New("row corrupted")

	diagnosed, err := fixture.service.ProcessPendingDiagnoses(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessPendingDiagnoses: %v", err)
	}
	if diagnosed != 2 {
		t.Fatalf("diagnosed = %d, want 2", diagnosed)
	}
}
