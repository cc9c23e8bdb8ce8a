package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// ObservationRepository stores the ticket note history.
type ObservationRepository interface {
	Create(ctx context.Context, observation *domain.Observation) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Observation, error)
}

type observationRepository struct {
	pool *pgxpool.Pool
}

// NewObservationRepository instantiates repository.
func NewObservationRepository(pool *pgxpool.Pool) ObservationRepository {
	return &observationRepository{pool: pool}
}

func (r *observationRepository) Create(ctx context.Context, observation *domain.Observation) error {
	const query = `
        INSERT INTO observations (ticket_id, text, author, kind)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		observation.TicketID,
		observation.Text,
		observation.Author,
		observation.Kind,
	).Scan(&observation.ID, &observation.CreatedAt)
}

func (r *observationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Observation, error) {
	const query = `
        SELECT id, ticket_id, text, author, kind, created_at
        FROM observations WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.ID, &o.TicketID, &o.Text, &o.Author, &o.Kind, &o.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
