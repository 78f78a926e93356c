package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
	history  repository.TicketHistoryRepository
	users    repository.UserRepository
	policies repository.SLAPolicyRepository
	sla      *SLALifecycle
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	MessageRepo   repository.TicketMessageRepository
	HistoryRepo   repository.TicketHistoryRepository
	UserRepo      repository.UserRepository
	SLAPolicyRepo repository.SLAPolicyRepository
	SLA           *SLALifecycle
	Notifier      Notifier
	Clock         clock.Clock
	Logger        *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	// Staff only.
	RequesterID     *string
	AssignedAgentID *string
	SLAPolicyID     *string
}

// TicketUpdateInput lists the fields to change; nil means unchanged. An empty
// AssignedAgentID unassigns and an empty SLAPolicyID detaches the SLA.
type TicketUpdateInput struct {
	Title           *string
	Description     *string
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	AssignedAgentID *string
	SLAPolicyID     *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	Limit           int
	Offset          int
}

// TicketDetails is a ticket with its visible thread.
type TicketDetails struct {
	Ticket   *domain.Ticket
	Messages []domain.TicketMessage
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:  deps.TicketRepo,
		messages: deps.MessageRepo,
		history:  deps.HistoryRepo,
		users:    deps.UserRepo,
		policies: deps.SLAPolicyRepo,
		sla:      deps.SLA,
		notifier: deps.Notifier,
		clock:    clk,
		logger:   logger,
	}
}

// CreateTicket opens a ticket. Clients always open tickets for themselves;
// staff may open one on behalf of a client and pre-assign it.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	requesterID := actor.ID
	if !actor.Role.IsStaff() {
		if input.RequesterID != nil || input.AssignedAgentID != nil || input.SLAPolicyID != nil {
			return nil, apperrors.NewForbidden("clients cannot set requester, assignee or sla policy")
		}
	} else if input.RequesterID != nil && *input.RequesterID != "" {
		requesterID = *input.RequesterID
		if _, err := s.users.GetByID(ctx, requesterID); err != nil {
			return nil, s.lookupError("requester", requesterID, err)
		}
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: requesterID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusNew,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.AssignedAgentID != nil && *input.AssignedAgentID != "" {
		if err := s.ensureAssignable(ctx, *input.AssignedAgentID); err != nil {
			return nil, err
		}
		agentID := *input.AssignedAgentID
		ticket.AssignedAgentID = &agentID
	}
	if input.SLAPolicyID != nil && *input.SLAPolicyID != "" {
		if err := s.ensurePolicyExists(ctx, *input.SLAPolicyID); err != nil {
			return nil, err
		}
		policyID := *input.SLAPolicyID
		ticket.SLAPolicyID = &policyID
	}

	if err := s.sla.OnTicketCreating(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.ExternalKey),
		zap.String("priority", string(ticket.Priority)),
		zap.Bool("sla", ticket.HasSLA()))

	if ticket.AssignedAgentID != nil {
		s.notifyAssigned(ctx, actor, ticket)
	}
	return ticket, nil
}

// GetTicket returns a ticket and the messages the actor may see.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*TicketDetails, error) {
	ticket, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, actor.Role.IsStaff())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetails{Ticket: ticket, Messages: msgs}, nil
}

// ListTickets lists tickets. Clients only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		AssignedAgentID: filter.AssignedAgentID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	}
	if !actor.Role.IsStaff() {
		requesterID := actor.ID
		repoFilter.RequesterID = &requesterID
		repoFilter.AssignedAgentID = nil
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateTicket applies input, runs the SLA hook and stores the result.
//
// Clients may only close or reopen their own resolved tickets.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		if err := checkClientUpdate(ticket, input); err != nil {
			return nil, err
		}
	}

	original := ticket.Clone()
	if err := s.applyUpdate(ctx, ticket, input); err != nil {
		return nil, err
	}
	if !ticketChanged(&original, ticket) {
		return ticket, nil
	}

	ticket.UpdatedAt = s.clock.Now()
	if err := s.sla.OnTicketUpdating(ctx, ticket, original); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordChanges(ctx, actor, &original, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.AssignedAgentID != nil && !domain.SameStringPtr(ticket.AssignedAgentID, original.AssignedAgentID) {
		s.notifyAssigned(ctx, actor, ticket)
	}
	if ticket.Status != original.Status {
		s.notifyStatusChanged(ctx, actor, ticket, original.Status)
	}
	return ticket, nil
}

// AddComment appends a message. The first public staff reply stops the
// response clock.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, body string, internal bool) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if internal && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("clients cannot post internal notes")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewValidationError("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	msg := &domain.TicketMessage{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorRole: actor.Role,
		Body:       body,
		Internal:   internal,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	// The reply is already stored, so a failed first-response write is only
	// logged. The clock keeps running until the next public staff reply,
	// which retries the conditional write.
	if msg.CountsAsAgentResponse() {
		if err := s.sla.MarkFirstResponse(ctx, ticket); err != nil {
			s.logger.Error("record first response failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return msg, nil
}

// ListHistory returns the audit trail. Clients only see status and
// assignment changes.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	var types []domain.TicketChangeType
	if !actor.Role.IsStaff() {
		types = clientVisibleChanges
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID, types...)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

var clientVisibleChanges = []domain.TicketChangeType{domain.ChangeTypeStatus, domain.ChangeTypeAssignee}

func (s *TicketService) loadForActor(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.Role.IsStaff() && ticket.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func checkClientUpdate(ticket *domain.Ticket, input TicketUpdateInput) error {
	if input.Title != nil || input.Description != nil || input.Priority != nil ||
		input.AssignedAgentID != nil || input.SLAPolicyID != nil {
		return apperrors.NewForbidden("clients can only close or reopen tickets")
	}
	if input.Status == nil {
		return nil
	}
	next := *input.Status
	if ticket.Status != domain.TicketStatusResolved ||
		(next != domain.TicketStatusClosed && next != domain.TicketStatusOpen) {
		return apperrors.NewForbidden("clients can only close or reopen resolved tickets")
	}
	return nil
}

func (s *TicketService) applyUpdate(ctx context.Context, ticket *domain.Ticket, input TicketUpdateInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return apperrors.NewValidationError("title is required", nil)
		}
		ticket.Title = title
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
	}
	if input.Status != nil && *input.Status != ticket.Status {
		if !input.Status.Valid() {
			return apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
		if !isValidTransition(ticket.Status, *input.Status) {
			return apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": ticket.Status,
				"to":   *input.Status,
			})
		}
		ticket.Status = *input.Status
	}
	if input.AssignedAgentID != nil {
		if *input.AssignedAgentID == "" {
			ticket.AssignedAgentID = nil
		} else {
			if err := s.ensureAssignable(ctx, *input.AssignedAgentID); err != nil {
				return err
			}
			agentID := *input.AssignedAgentID
			ticket.AssignedAgentID = &agentID
		}
	}
	if input.SLAPolicyID != nil {
		if *input.SLAPolicyID == "" {
			ticket.SLAPolicyID = nil
		} else {
			if err := s.ensurePolicyExists(ctx, *input.SLAPolicyID); err != nil {
				return err
			}
			policyID := *input.SLAPolicyID
			ticket.SLAPolicyID = &policyID
		}
	}
	return nil
}

func (s *TicketService) ensureAssignable(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return s.lookupError("assignee", userID, err)
	}
	if !user.Active || !user.Role.IsStaff() {
		return apperrors.NewValidationError("assignee must be an active agent or admin", map[string]any{"assigned_agent_id": userID})
	}
	return nil
}

func (s *TicketService) ensurePolicyExists(ctx context.Context, policyID string) error {
	if _, err := s.policies.GetByID(ctx, policyID); err != nil {
		return s.lookupError("sla policy", policyID, err)
	}
	return nil
}

func (s *TicketService) lookupError(what, id string, err error) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown %s", what), map[string]any{"id": id})
	}
	return apperrors.MapError(err)
}

func ticketChanged(before, after *domain.Ticket) bool {
	return before.Title != after.Title ||
		before.Description != after.Description ||
		before.Status != after.Status ||
		before.Priority != after.Priority ||
		!domain.SameStringPtr(before.AssignedAgentID, after.AssignedAgentID) ||
		!domain.SameStringPtr(before.SLAPolicyID, after.SLAPolicyID)
}

func (s *TicketService) recordChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket) error {
	if s.history == nil {
		return nil
	}
	var entries []domain.TicketHistory
	if before.Status != after.Status {
		entries = append(entries, domain.TicketHistory{
			ChangeType: domain.ChangeTypeStatus,
			OldValue:   map[string]any{"status": before.Status},
			NewValue:   map[string]any{"status": after.Status},
		})
	}
	if before.Priority != after.Priority {
		entries = append(entries, domain.TicketHistory{
			ChangeType: domain.ChangeTypePriority,
			OldValue:   map[string]any{"priority": before.Priority},
			NewValue:   map[string]any{"priority": after.Priority},
		})
	}
	if !domain.SameStringPtr(before.AssignedAgentID, after.AssignedAgentID) {
		entries = append(entries, domain.TicketHistory{
			ChangeType: domain.ChangeTypeAssignee,
			OldValue:   map[string]any{"assigned_agent_id": before.AssignedAgentID},
			NewValue:   map[string]any{"assigned_agent_id": after.AssignedAgentID},
		})
	}
	if !domain.SameStringPtr(before.SLAPolicyID, after.SLAPolicyID) ||
		!sameTimePtr(before.ResponseDueAt, after.ResponseDueAt) ||
		!sameTimePtr(before.ResolutionDueAt, after.ResolutionDueAt) {
		entries = append(entries, domain.TicketHistory{
			ChangeType: domain.ChangeTypeSLA,
			OldValue: map[string]any{
				"sla_policy_id":     before.SLAPolicyID,
				"response_due_at":   before.ResponseDueAt,
				"resolution_due_at": before.ResolutionDueAt,
			},
			NewValue: map[string]any{
				"sla_policy_id":     after.SLAPolicyID,
				"response_due_at":   after.ResponseDueAt,
				"resolution_due_at": after.ResolutionDueAt,
			},
		})
	}

	actorID := actor.ID
	now := s.clock.Now()
	for i := range entries {
		entries[i].TicketID = after.ID
		entries[i].ChangedByID = &actorID
		entries[i].CreatedAt = now
		if err := s.history.Create(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *TicketService) notifyAssigned(ctx context.Context, actor *domain.User, ticket *domain.Ticket) {
	agentID := *ticket.AssignedAgentID
	if agentID == actor.ID {
		return
	}
	assignedBy := actor.ID
	payload := domain.TicketAssignedPayload{
		TicketID:      ticket.ID,
		TicketNumber:  ticket.ExternalKey,
		TicketSubject: ticket.Title,
		Priority:      ticket.Priority,
		AssignedBy:    &assignedBy,
	}
	s.notify(ctx, agentID, "Ticket Assigned",
		fmt.Sprintf("Ticket %s (%s) has been assigned to you.", ticket.ExternalKey, ticket.Title), payload)
}

func (s *TicketService) notifyStatusChanged(ctx context.Context, actor *domain.User, ticket *domain.Ticket, from domain.TicketStatus) {
	if ticket.RequesterID == actor.ID {
		return
	}
	payload := domain.TicketStatusChangedPayload{
		TicketID:      ticket.ID,
		TicketNumber:  ticket.ExternalKey,
		TicketSubject: ticket.Title,
		OldStatus:     from,
		NewStatus:     ticket.Status,
	}
	s.notify(ctx, ticket.RequesterID, "Ticket Status Updated",
		fmt.Sprintf("Ticket %s is now %s.", ticket.ExternalKey, ticket.Status), payload)
}

// notify is best effort; the ticket change is already stored.
func (s *TicketService) notify(ctx context.Context, userID, title, message string, payload domain.NotificationPayload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, title, message, payload); err != nil {
		s.logger.Warn("ticket notification failed",
			zap.String("user_id", userID),
			zap.String("type", string(payload.NotificationType())),
			zap.Error(err))
	}
}

func sameTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:        {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusOnHold, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusOnHold:     {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusOpen, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
