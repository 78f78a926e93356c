package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketHistoryRepository stores the audit trail of ticket changes,
// including breaches flagged by the sweep.
type TicketHistoryRepository interface {
	Create(ctx context.Context, entry *domain.TicketHistory) error
	// ListByTicket returns entries oldest first. With types set, only those
	// change types are returned.
	ListByTicket(ctx context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository returns a Postgres-backed implementation.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

// Create stores entry. entry.CreatedAt is used when set so audit rows share
// the caller's clock; otherwise the database time is recorded.
func (r *ticketHistoryRepository) Create(ctx context.Context, entry *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,COALESCE($6, NOW()))
        RETURNING id, created_at`
	var createdAt *time.Time
	if !entry.CreatedAt.IsZero() {
		createdAt = &entry.CreatedAt
	}
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.ChangedByID,
		entry.ChangeType,
		entry.OldValue,
		entry.NewValue,
		createdAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history
        WHERE ticket_id=$1 AND ($2::text[] IS NULL OR change_type = ANY($2))
        ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, changeTypeArgs(types))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketHistory, error) {
		var entry domain.TicketHistory
		err := row.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ChangedByID,
			&entry.ChangeType,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		)
		return entry, err
	})
}

// changeTypeArgs converts the filter to a text array; nil means no filter.
func changeTypeArgs(types []domain.TicketChangeType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
