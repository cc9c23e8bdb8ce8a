package service

import (
	"context"
	"time"

	"github.com/spec-kit/autonoc/internal/integration/ixc"
)

// ISPGateway is the outbound billing/ISP integration surface consumed
// by the pipeline services. *ixc.Client satisfies it; tests substitute
// fakes. Pushes through this gateway are best-effort: failures are
// logged and never roll back local state.
type ISPGateway interface {
	FetchOpenTickets(ctx context.Context) ([]ixc.RemoteTicket, error)
	GetSubscriberStatus(ctx context.Context, customerExternalID string) (ixc.SubscriberStatus, error)
	UpdateTicketStatus(ctx context.Context, externalID, statusCode, note string) error
	AssignTechnician(ctx context.Context, externalID, technicianID, technicianName string) error
	AddNote(ctx context.Context, externalID, text string) error
	ScheduleTicket(ctx context.Context, externalID string, when time.Time) error
}

// Locker serializes work on a shared key; *persistence.Redis satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string)
	CacheGet(ctx context.Context, key string) (string, bool, error)
	CacheSet(ctx context.Context, key, value string, ttl time.Duration)
}
