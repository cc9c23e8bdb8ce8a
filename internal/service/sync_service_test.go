package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/repository"
)

func TestPriorityFromRemote(t *testing.T) {
	cases := []struct {
		code string
		want domain.TicketPriority
	}{
		{"U", domain.TicketPriorityCritical},
		{"A", domain.TicketPriorityHigh},
		{"N", domain.TicketPriorityMedium},
		{"B", domain.TicketPriorityLow},
		{"", domain.TicketPriorityMedium},
		{"X", domain.TicketPriorityMedium},
	}
	for _, tc := range cases {
		if got := priorityFromRemote(tc.code); got != tc.want {
			t.Fatalf("priorityFromRemote(%q) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestSLADeadlinePerPriority(t *testing.T) {
	opened := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		priority domain.TicketPriority
		offset   time.Duration
	}{
		{domain.TicketPriorityCritical, 2 * time.Hour},
		{domain.TicketPriorityHigh, 4 * time.Hour},
		{domain.TicketPriorityMedium, 24 * time.Hour},
		{domain.TicketPriorityLow, 48 * time.Hour},
	}
	for _, tc := range cases {
		if got := domain.SLADeadline(opened, tc.priority); !got.Equal(opened.Add(tc.offset)) {
			t.Fatalf("deadline for %s = %v, want %v", tc.priority, got, opened.Add(tc.offset))
		}
	}
}

func newSyncFixture(t *testing.T) (*SyncService, *fakeTicketRepo, *fakeCustomerRepo, *fakeISP) {
	t.Helper()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newFakeTicketRepo()
	customers := newFakeCustomerRepo()
	isp := newFakeISP()
	svc := NewSyncService(SyncDependencies{
		TicketRepo:   tickets,
		CustomerRepo: customers,
		ISP:          isp,
		Now:          func() time.Time { return now },
	})
	return svc, tickets, customers, isp
}

func remoteTicket(id, number, customerID, priority string) ixc.RemoteTicket {
	return ixc.RemoteTicket{
		ID:           id,
		Number:       number,
		CustomerID:   customerID,
		CustomerName: "Customer " + customerID,
		Neighborhood: "Centro",
		Problem:      "sem internet",
		OpenedAt:     "2025-06-10 08:30:00",
		Priority:     priority,
	}
}

func TestSyncOpenTicketsImportsNewOnes(t *testing.T) {
	svc, tickets, customers, isp := newSyncFixture(t)
	isp.openTickets = []ixc.RemoteTicket{
		remoteTicket("ext-1", "1001", "cust-1", "U"),
		remoteTicket("ext-2", "1002", "cust-2", "B"),
	}

	created, err := svc.SyncOpenTickets(context.Background())
	if err != nil {
		t.Fatalf("SyncOpenTickets: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	urgent, err := tickets.GetByExternalID(context.Background(), "ext-1")
	if err != nil || urgent == nil {
		t.Fatalf("imported ticket missing: %v", err)
	}
	if urgent.Priority != domain.TicketPriorityCritical {
		t.Fatalf("priority = %s, want critical", urgent.Priority)
	}
	if urgent.Status != domain.TicketStatusPending {
		t.Fatalf("status = %s, want pending", urgent.Status)
	}
	if urgent.Origin != "ixc" {
		t.Fatalf("origin = %s, want ixc", urgent.Origin)
	}
	if !urgent.SLADeadline.Equal(urgent.OpenedAt.Add(2 * time.Hour)) {
		t.Fatalf("sla deadline = %v, want opened+2h", urgent.SLADeadline)
	}

	if _, err := customers.GetByExternalID(context.Background(), "cust-1"); err != nil {
		t.Fatalf("customer not upserted: %v", err)
	}
}

func TestSyncOpenTicketsSkipsKnownTickets(t *testing.T) {
	svc, tickets, _, isp := newSyncFixture(t)
	isp.openTickets = []ixc.RemoteTicket{remoteTicket("ext-1", "1001", "cust-1", "N")}

	if _, err := svc.SyncOpenTickets(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	created, err := svc.SyncOpenTickets(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if created != 0 {
		t.Fatalf("created = %d on re-sync, want 0", created)
	}
	all, _ := tickets.ListWithFilter(context.Background(), repository.TicketFilter{})
	if len(all) != 1 {
		t.Fatalf("ticket count = %d, want 1", len(all))
	}
}

func TestSLAAtRiskWindow(t *testing.T) {
	svc, tickets, _, _ := newSyncFixture(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tickets.tickets["soon"] = &domain.Ticket{
		ID: "soon", Number: "1", CustomerID: "c1",
		Status: domain.TicketStatusPending, Priority: domain.TicketPriorityHigh,
		OpenedAt: now.Add(-3 * time.Hour), SLADeadline: now.Add(time.Hour),
	}
	tickets.tickets["later"] = &domain.Ticket{
		ID: "later", Number: "2", CustomerID: "c2",
		Status: domain.TicketStatusPending, Priority: domain.TicketPriorityLow,
		OpenedAt: now.Add(-time.Hour), SLADeadline: now.Add(40 * time.Hour),
	}
	tickets.tickets["done"] = &domain.Ticket{
		ID: "done", Number: "3", CustomerID: "c3",
		Status: domain.TicketStatusCompleted, Priority: domain.TicketPriorityHigh,
		OpenedAt: now.Add(-3 * time.Hour), SLADeadline: now.Add(time.Hour),
	}

	atRisk, err := svc.SLAAtRisk(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("SLAAtRisk: %v", err)
	}
	if len(atRisk) != 1 || atRisk[0].ID != "soon" {
		t.Fatalf("at risk = %+v, want only the imminent active ticket", atRisk)
	}
}
