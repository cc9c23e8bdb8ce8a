package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// CustomerRepository encapsulates subscriber persistence.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Customer, error)
	UpsertByExternalID(ctx context.Context, customer *domain.Customer) error
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository instantiates repository.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

const customerColumns = `id, external_id, name, contract, address, neighborhood, city, phone,
               plan, latitude, longitude, created_at, updated_at`

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	return r.fetchSingle(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id)
}

func (r *customerRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Customer, error) {
	return r.fetchSingle(ctx, `SELECT `+customerColumns+` FROM customers WHERE external_id=$1`, externalID)
}

func (r *customerRepository) UpsertByExternalID(ctx context.Context, customer *domain.Customer) error {
	const query = `
        INSERT INTO customers (external_id, name, contract, address, neighborhood, city, phone, plan, latitude, longitude)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (external_id) DO UPDATE SET
            name=EXCLUDED.name, contract=EXCLUDED.contract, address=EXCLUDED.address,
            neighborhood=EXCLUDED.neighborhood, city=EXCLUDED.city, phone=EXCLUDED.phone,
            plan=EXCLUDED.plan, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		customer.ExternalID,
		customer.Name,
		customer.Contract,
		customer.Address,
		customer.Neighborhood,
		customer.City,
		customer.Phone,
		customer.Plan,
		customer.Latitude,
		customer.Longitude,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
}

func (r *customerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	var c domain.Customer
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.ExternalID,
		&c.Name,
		&c.Contract,
		&c.Address,
		&c.Neighborhood,
		&c.City,
		&c.Phone,
		&c.Plan,
		&c.Latitude,
		&c.Longitude,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
