package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID     *string
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	Limit           int
	Offset          int
}

// SLACandidateFilter selects tickets whose SLA timer needs attention.
//
// With Overdue set the filter matches running timers whose deadline is strictly
// before Now. Otherwise it matches running timers due within [Now, Now+Window].
// A timer is running while an SLA is attached, the timer has not been
// stopped (first response / resolution) and it has not been flagged as breached.
// Results are ordered by id; pass the last id seen as AfterID to page.
type SLACandidateFilter struct {
	Timer   domain.SLATimer
	Now     time.Time
	Overdue bool
	Window  time.Duration
	AfterID string
	Limit   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	FindSLACandidates(ctx context.Context, filter SLACandidateFilter) ([]domain.Ticket, error)
	// MarkBreached flips the timer's breach flag if it is still false and
	// reports whether this call changed it.
	MarkBreached(ctx context.Context, id string, timer domain.SLATimer, at time.Time) (bool, error)
	// RecordFirstResponse stores the first response instant if none is set yet
	// and reports whether this call stored it. breached is OR-ed into the
	// response breach flag.
	RecordFirstResponse(ctx context.Context, id string, at time.Time, breached bool) (bool, error)
}

const ticketColumns = `id, external_key, requester_user_id, assigned_agent_id, title, description,
               status, priority, sla_policy_id, response_due_at, resolution_due_at,
               first_response_at, resolved_at, response_breached, resolution_breached,
               created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_user_id, assigned_agent_id, title, description,
            status, priority, sla_policy_id, response_due_at, resolution_due_at,
            first_response_at, resolved_at, response_breached, resolution_breached, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
        RETURNING id, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.RequesterID,
		ticket.AssignedAgentID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.SLAPolicyID,
		ticket.ResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ResponseBreached,
		ticket.ResolutionBreached,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.UpdatedAt)
}

// Update writes the mutable columns. Breach flags are OR-ed with the stored
// value so a stale in-memory copy can never clear a flag set by the sweep.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assigned_agent_id=$1, title=$2, description=$3, status=$4, priority=$5,
            sla_policy_id=$6, response_due_at=$7, resolution_due_at=$8,
            first_response_at=COALESCE(first_response_at, $9), resolved_at=$10,
            response_breached=response_breached OR $11,
            resolution_breached=resolution_breached OR $12,
            updated_at=$13
        WHERE id=$14
        RETURNING first_response_at, response_breached, resolution_breached`
	err := r.pool.QueryRow(ctx, query,
		ticket.AssignedAgentID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.SLAPolicyID,
		ticket.ResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ResponseBreached,
		ticket.ResolutionBreached,
		ticket.UpdatedAt,
		ticket.ID,
	).Scan(&ticket.FirstResponseAt, &ticket.ResponseBreached, &ticket.ResolutionBreached)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
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

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) FindSLACandidates(ctx context.Context, filter SLACandidateFilter) ([]domain.Ticket, error) {
	dueCol, stopCol, flagCol, err := timerColumns(filter.Timer)
	if err != nil {
		return nil, err
	}

	args := []any{filter.Now}
	clauses := []string{
		"sla_policy_id IS NOT NULL",
		dueCol + " IS NOT NULL",
		stopCol + " IS NULL",
		flagCol + " = false",
	}
	if filter.Overdue {
		clauses = append(clauses, dueCol+" < $1")
	} else {
		args = append(args, filter.Now.Add(filter.Window))
		clauses = append(clauses, dueCol+" >= $1", dueCol+" <= $2")
	}
	if filter.AfterID != "" {
		args = append(args, filter.AfterID)
		clauses = append(clauses, fmt.Sprintf("id > $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY id LIMIT %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) MarkBreached(ctx context.Context, id string, timer domain.SLATimer, at time.Time) (bool, error) {
	_, _, flagCol, err := timerColumns(timer)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE tickets SET %[1]s = true, updated_at = $2 WHERE id = $1 AND %[1]s = false`, flagCol)
	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) RecordFirstResponse(ctx context.Context, id string, at time.Time, breached bool) (bool, error) {
	const query = `
        UPDATE tickets SET first_response_at=$2, response_breached=response_breached OR $3, updated_at=$2
        WHERE id=$1 AND first_response_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id, at, breached)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func timerColumns(timer domain.SLATimer) (due, stop, flag string, err error) {
	switch timer {
	case domain.SLATimerResponse:
		return "response_due_at", "first_response_at", "response_breached", nil
	case domain.SLATimerResolution:
		return "resolution_due_at", "resolved_at", "resolution_breached", nil
	}
	return "", "", "", fmt.Errorf("unknown sla timer %q", timer)
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.RequesterID,
		&ticket.AssignedAgentID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLAPolicyID,
		&ticket.ResponseDueAt,
		&ticket.ResolutionDueAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ResponseBreached,
		&ticket.ResolutionBreached,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
