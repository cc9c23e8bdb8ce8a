package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// DispatchRuleRepository reads the active weight policy. A nil rule
// means no row is active and the configured defaults apply.
type DispatchRuleRepository interface {
	GetActive(ctx context.Context) (*domain.DispatchRule, error)
}

// TerritoryRepository resolves territories for the coordinates-less
// distance fallback.
type TerritoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Territory, error)
}

type dispatchRuleRepository struct {
	pool *pgxpool.Pool
}

// NewDispatchRuleRepository instantiates repository.
func NewDispatchRuleRepository(pool *pgxpool.Pool) DispatchRuleRepository {
	return &dispatchRuleRepository{pool: pool}
}

func (r *dispatchRuleRepository) GetActive(ctx context.Context) (*domain.DispatchRule, error) {
	const query = `
        SELECT id, distance_weight, queue_weight, skill_weight, sla_weight, queue_ceiling, active
        FROM dispatch_rules WHERE active LIMIT 1`
	var rule domain.DispatchRule
	err := r.pool.QueryRow(ctx, query).Scan(
		&rule.ID,
		&rule.Weights.Distance,
		&rule.Weights.Queue,
		&rule.Weights.Skill,
		&rule.Weights.SLA,
		&rule.QueueCeiling,
		&rule.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

type territoryRepository struct {
	pool *pgxpool.Pool
}

// NewTerritoryRepository instantiates repository.
func NewTerritoryRepository(pool *pgxpool.Pool) TerritoryRepository {
	return &territoryRepository{pool: pool}
}

func (r *territoryRepository) GetByID(ctx context.Context, id string) (*domain.Territory, error) {
	const query = `SELECT id, name, neighborhoods FROM territories WHERE id=$1`
	var t domain.Territory
	if err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Neighborhoods); err != nil {
		return nil, err
	}
	return &t, nil
}
