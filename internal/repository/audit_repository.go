package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// AuditRepository persists the automated-action audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository instantiates repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	const query = `
        INSERT INTO audit_logs (actor, action, entity, entity_id, details)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.Actor,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		details,
	).Scan(&entry.ID, &entry.CreatedAt)
}
