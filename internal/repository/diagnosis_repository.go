package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/autonoc/internal/domain"
)

// DiagnosisRepository stores diagnostic runs append-only: inserting a
// new diagnosis supersedes the previous active one for the ticket.
type DiagnosisRepository interface {
	Create(ctx context.Context, diagnosis *domain.Diagnosis) error
	GetActiveByTicket(ctx context.Context, ticketID string) (*domain.Diagnosis, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Diagnosis, error)
}

type diagnosisRepository struct {
	pool *pgxpool.Pool
}

// NewDiagnosisRepository instantiates repository.
func NewDiagnosisRepository(pool *pgxpool.Pool) DiagnosisRepository {
	return &diagnosisRepository{pool: pool}
}

func (r *diagnosisRepository) Create(ctx context.Context, diagnosis *domain.Diagnosis) error {
	tests, err := json.Marshal(diagnosis.Tests)
	if err != nil {
		return fmt.Errorf("marshal tests: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE diagnoses SET active=FALSE WHERE ticket_id=$1 AND active`, diagnosis.TicketID); err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `
        INSERT INTO diagnoses (ticket_id, problem_type, decision, report, confidence, tests, active)
        VALUES ($1,$2,$3,$4,$5,$6,TRUE)
        RETURNING id, created_at`,
		diagnosis.TicketID,
		diagnosis.ProblemType,
		diagnosis.Decision,
		diagnosis.Report,
		diagnosis.Confidence,
		tests,
	).Scan(&diagnosis.ID, &diagnosis.CreatedAt); err != nil {
		return err
	}
	diagnosis.Active = true

	return tx.Commit(ctx)
}

func (r *diagnosisRepository) GetActiveByTicket(ctx context.Context, ticketID string) (*domain.Diagnosis, error) {
	const query = `
        SELECT id, ticket_id, problem_type, decision, report, confidence, tests, active, created_at
        FROM diagnoses WHERE ticket_id=$1 AND active
        ORDER BY created_at DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, query, ticketID)
	return scanDiagnosis(row)
}

func (r *diagnosisRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Diagnosis, error) {
	const query = `
        SELECT id, ticket_id, problem_type, decision, report, confidence, tests, active, created_at
        FROM diagnoses WHERE ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func scanDiagnosis(row pgx.Row) (*domain.Diagnosis, error) {
	var d domain.Diagnosis
	var tests []byte
	if err := row.Scan(
		&d.ID,
		&d.TicketID,
		&d.ProblemType,
		&d.Decision,
		&d.Report,
		&d.Confidence,
		&tests,
		&d.Active,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tests, &d.Tests); err != nil {
		return nil, fmt.Errorf("unmarshal tests: %w", err)
	}
	return &d, nil
}
