package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// TechnicianRepository encapsulates field-technician persistence. Queue
// depth is only ever mutated through the conditional updates below so
// concurrent dispatch runs cannot push a technician past the ceiling.
type TechnicianRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Technician, error)
	ListByStatuses(ctx context.Context, statuses []domain.TechnicianStatus) ([]domain.Technician, error)
	ReserveQueueSlot(ctx context.Context, id string, ceiling int) (bool, error)
	ReleaseQueueSlot(ctx context.Context, id string) error
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

const technicianColumns = `id, name, phone, status, latitude, longitude, skills, queue_depth,
               territory_id, rating, updated_at`

func (r *technicianRepository) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	var t domain.Technician
	if err := r.pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id=$1`, id).Scan(
		&t.ID,
		&t.Name,
		&t.Phone,
		&t.Status,
		&t.Latitude,
		&t.Longitude,
		&t.Skills,
		&t.QueueDepth,
		&t.TerritoryID,
		&t.Rating,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *technicianRepository) ListByStatuses(ctx context.Context, statuses []domain.TechnicianStatus) ([]domain.Technician, error) {
	clauses := "1=1"
	args := []any{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ","))
	}

	query := fmt.Sprintf(`SELECT %s FROM technicians WHERE %s ORDER BY id`, technicianColumns, clauses)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Technician
	for rows.Next() {
		var t domain.Technician
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Phone,
			&t.Status,
			&t.Latitude,
			&t.Longitude,
			&t.Skills,
			&t.QueueDepth,
			&t.TerritoryID,
			&t.Rating,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ReserveQueueSlot atomically increments the queue depth and marks the
// technician busy, refusing when the depth already reached the ceiling.
// Returns false when the slot could not be reserved.
func (r *technicianRepository) ReserveQueueSlot(ctx context.Context, id string, ceiling int) (bool, error) {
	const query = `
        UPDATE technicians SET queue_depth = queue_depth + 1, status = 'busy', updated_at = NOW()
        WHERE id = $1 AND status <> 'offline' AND queue_depth < $2`
	cmd, err := r.pool.Exec(ctx, query, id, ceiling)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// ReleaseQueueSlot decrements the queue depth after a stop completes,
// flipping the technician back to available when the queue drains.
func (r *technicianRepository) ReleaseQueueSlot(ctx context.Context, id string) error {
	const query = `
        UPDATE technicians SET
            queue_depth = GREATEST(queue_depth - 1, 0),
            status = CASE WHEN queue_depth <= 1 AND status = 'busy' THEN 'available' ELSE status END,
            updated_at = NOW()
        WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
