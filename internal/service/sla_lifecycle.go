package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// PolicyRegistry resolves SLA policies for the lifecycle hook.
// SLAPolicyService implements it.
type PolicyRegistry interface {
	// FindActivePolicy returns nil, nil when no active policy covers priority.
	FindActivePolicy(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	Get(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// SLALifecycle keeps a ticket's SLA fields consistent while the ticket is
// created, updated and answered. The hooks only mutate the ticket in memory;
// the caller persists it. MarkFirstResponse is the exception and writes
// directly.
type SLALifecycle struct {
	policies PolicyRegistry
	tickets  repository.TicketRepository
	clock    clock.Clock
	logger   *zap.Logger
}

// NewSLALifecycle wires the hook.
func NewSLALifecycle(policies PolicyRegistry, tickets repository.TicketRepository, clk clock.Clock, logger *zap.Logger) *SLALifecycle {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLALifecycle{
		policies: policies,
		tickets:  tickets,
		clock:    clk,
		logger:   logger,
	}
}

// OnTicketCreating attaches an SLA before the ticket is first stored.
//
// An explicitly chosen policy wins. Otherwise the active policy for the
// ticket's priority is attached; without one the ticket carries no SLA.
// Due times are measured from ticket.CreatedAt, which must be set.
func (l *SLALifecycle) OnTicketCreating(ctx context.Context, ticket *domain.Ticket) error {
	var (
		policy *domain.SLAPolicy
		err    error
	)
	if ticket.SLAPolicyID != nil {
		policy, err = l.policies.Get(ctx, *ticket.SLAPolicyID)
		if err != nil {
			return fmt.Errorf("load sla policy %s: %w", *ticket.SLAPolicyID, err)
		}
	} else {
		policy, err = l.policies.FindActivePolicy(ctx, ticket.Priority)
		if err != nil {
			return fmt.Errorf("find sla policy for %s: %w", ticket.Priority, err)
		}
		if policy == nil {
			l.logger.Debug("no active sla policy", zap.String("priority", string(ticket.Priority)))
			return nil
		}
	}

	attachPolicy(ticket, policy)
	return nil
}

// OnTicketUpdating reconciles SLA fields before an update is stored.
// original is the ticket as it was loaded, before any mutation.
//
// An explicit SLA change recomputes the deadlines from the new policy, and
// clearing the SLA clears them. Otherwise a priority change re-resolves the
// active policy for the new priority; if none exists the current SLA stays.
// Moving into resolved or closed stops the resolution clock.
func (l *SLALifecycle) OnTicketUpdating(ctx context.Context, ticket *domain.Ticket, original domain.Ticket) error {
	switch {
	case !domain.SameStringPtr(ticket.SLAPolicyID, original.SLAPolicyID):
		if ticket.SLAPolicyID == nil {
			detachPolicy(ticket)
			break
		}
		policy, err := l.policies.Get(ctx, *ticket.SLAPolicyID)
		if err != nil {
			return fmt.Errorf("load sla policy %s: %w", *ticket.SLAPolicyID, err)
		}
		attachPolicy(ticket, policy)

	case ticket.Priority != original.Priority:
		policy, err := l.policies.FindActivePolicy(ctx, ticket.Priority)
		if err != nil {
			return fmt.Errorf("find sla policy for %s: %w", ticket.Priority, err)
		}
		if policy == nil {
			l.logger.Debug("no active sla policy for new priority, keeping current sla",
				zap.String("ticket_id", ticket.ID),
				zap.String("priority", string(ticket.Priority)))
			break
		}
		attachPolicy(ticket, policy)

	case ticket.HasSLA() && !ticket.CreatedAt.Equal(original.CreatedAt):
		policy, err := l.policies.Get(ctx, *ticket.SLAPolicyID)
		if err != nil {
			return fmt.Errorf("load sla policy %s: %w", *ticket.SLAPolicyID, err)
		}
		attachPolicy(ticket, policy)
	}

	if ticket.Status != original.Status {
		l.applyStatusChange(ticket, original.Status)
	}
	return nil
}

func (l *SLALifecycle) applyStatusChange(ticket *domain.Ticket, from domain.TicketStatus) {
	now := l.clock.Now()
	if ticket.Status.IsTerminal() {
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
		// Checked on every move into a terminal status, including resolved to closed.
		if ticket.ResolutionDueAt != nil && now.After(*ticket.ResolutionDueAt) {
			ticket.ResolutionBreached = true
		}
	}
	if from == domain.TicketStatusResolved && ticket.Status == domain.TicketStatusOpen {
		ticket.ResolvedAt = nil
	}
}

// MarkFirstResponse stops the response clock at the current instant. It is a
// no-op once a first response is recorded. The write is conditional, so of
// two concurrent replies only one is stored; ticket is updated to match
// whatever this call stored.
func (l *SLALifecycle) MarkFirstResponse(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.FirstResponseAt != nil {
		return nil
	}
	now := l.clock.Now()
	breached := ticket.ResponseDueAt != nil && now.After(*ticket.ResponseDueAt)

	stored, err := l.tickets.RecordFirstResponse(ctx, ticket.ID, now, breached)
	if err != nil {
		return fmt.Errorf("record first response for %s: %w", ticket.ID, err)
	}
	if !stored {
		l.logger.Debug("first response already recorded", zap.String("ticket_id", ticket.ID))
		return nil
	}

	ticket.FirstResponseAt = &now
	if breached {
		ticket.ResponseBreached = true
	}
	return nil
}
