package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	CustomerID   *string
	TechnicianID *string
	Unassigned   bool
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Neighborhood *string
	OpenedFrom   *time.Time
	OpenedTo     *time.Time
	SLABefore    *time.Time
	OrderByQueue bool
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountPendingInNeighborhood(ctx context.Context, neighborhood string, since time.Time, excludeTicketID string) (int, error)
	CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, external_id, customer_id, technician_id, status, priority,
               reported_problem, problem_type, opened_at, scheduled_at, completed_at,
               sla_deadline, origin, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, external_id, customer_id, technician_id, status, priority,
                             reported_problem, problem_type, opened_at, sla_deadline, origin)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.ExternalID,
		ticket.CustomerID,
		ticket.TechnicianID,
		ticket.Status,
		ticket.Priority,
		ticket.ReportedProblem,
		ticket.ProblemType,
		ticket.OpenedAt,
		ticket.SLADeadline,
		ticket.Origin,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET technician_id=$1, status=$2, priority=$3, problem_type=$4,
            scheduled_at=$5, completed_at=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.TechnicianID,
		ticket.Status,
		ticket.Priority,
		ticket.ProblemType,
		ticket.ScheduledAt,
		ticket.CompletedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

// GetByExternalID returns (nil, nil) when no local ticket carries the
// given external id. Sync relies on that to detect new remote tickets.
func (r *ticketRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE external_id=$1`, ticketColumns)
	ticket, err := r.fetchSingle(ctx, query, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.ExternalID,
		&ticket.CustomerID,
		&ticket.TechnicianID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.ReportedProblem,
		&ticket.ProblemType,
		&ticket.OpenedAt,
		&ticket.ScheduledAt,
		&ticket.CompletedAt,
		&ticket.SLADeadline,
		&ticket.Origin,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.TechnicianID != nil {
		args = append(args, *filter.TechnicianID)
		clauses = append(clauses, fmt.Sprintf("technician_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "technician_id IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Neighborhood != nil {
		args = append(args, *filter.Neighborhood)
		clauses = append(clauses, fmt.Sprintf("customer_id IN (SELECT id FROM customers WHERE neighborhood=$%d)", len(args)))
	}
	if filter.OpenedFrom != nil {
		args = append(args, *filter.OpenedFrom)
		clauses = append(clauses, fmt.Sprintf("opened_at >= $%d", len(args)))
	}
	if filter.OpenedTo != nil {
		args = append(args, *filter.OpenedTo)
		clauses = append(clauses, fmt.Sprintf("opened_at <= $%d", len(args)))
	}
	if filter.SLABefore != nil {
		args = append(args, *filter.SLABefore)
		clauses = append(clauses, fmt.Sprintf("sla_deadline < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	order := "opened_at DESC"
	if filter.OrderByQueue {
		// Priority first, oldest first: the dispatch/diagnosis queues.
		order = `CASE priority
                WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1
             END DESC, opened_at ASC`
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountPendingInNeighborhood(ctx context.Context, neighborhood string, since time.Time, excludeTicketID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets t
        JOIN customers c ON c.id = t.customer_id
        WHERE t.status = 'pending' AND t.opened_at >= $1 AND c.neighborhood = $2 AND t.id <> $3`
	var count int
	err := r.pool.QueryRow(ctx, query, since, neighborhood, excludeTicketID).Scan(&count)
	return count, err
}

func (r *ticketRepository) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE customer_id=$1 AND opened_at >= $2`
	var count int
	err := r.pool.QueryRow(ctx, query, customerID, since).Scan(&count)
	return count, err
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Number,
			&ticket.ExternalID,
			&ticket.CustomerID,
			&ticket.TechnicianID,
			&ticket.Status,
			&ticket.Priority,
			&ticket.ReportedProblem,
			&ticket.ProblemType,
			&ticket.OpenedAt,
			&ticket.ScheduledAt,
			&ticket.CompletedAt,
			&ticket.SLADeadline,
			&ticket.Origin,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
