package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLAPolicyRepository persists SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	// FindActiveByPriority returns (nil, nil) when no active policy exists.
	FindActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error)
}

const slaPolicyColumns = `id, name, description, priority, response_minutes, resolution_minutes, active, created_at, updated_at`

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository returns a Postgres-backed implementation.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, description, priority, response_minutes, resolution_minutes, active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Description,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.Active,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, description=$2, priority=$3, response_minutes=$4,
            resolution_minutes=$5, active=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Description,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.Active,
		policy.ID,
	).Scan(&policy.UpdatedAt)
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE id=$1`
	var policy domain.SLAPolicy
	if err := scanPolicy(r.pool.QueryRow(ctx, query, id), &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) FindActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE priority=$1 AND active`
	var policy domain.SLAPolicy
	if err := scanPolicy(r.pool.QueryRow(ctx, query, priority), &policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY priority, created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := scanPolicy(rows, &policy); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row, policy *domain.SLAPolicy) error {
	return row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.Priority,
		&policy.ResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.Active,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
}
