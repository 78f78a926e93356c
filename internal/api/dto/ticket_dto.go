package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload. Requester, assignee and SLA policy are staff only.
type CreateTicketRequest struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Priority        domain.TicketPriority `json:"priority"`
	RequesterID     *string               `json:"requester_id,omitempty"`
	AssignedAgentID *string               `json:"assigned_agent_id,omitempty"`
	SLAPolicyID     *string               `json:"sla_policy_id,omitempty"`
}

// UpdateTicketRequest payload; omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Title           *string                `json:"title,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Status          *domain.TicketStatus   `json:"status,omitempty"`
	Priority        *domain.TicketPriority `json:"priority,omitempty"`
	AssignedAgentID *string                `json:"assigned_agent_id,omitempty"`
	SLAPolicyID     *string                `json:"sla_policy_id,omitempty"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// TicketSLA groups the SLA state of a ticket.
type TicketSLA struct {
	PolicyID           *string    `json:"policy_id"`
	ResponseDueAt      *time.Time `json:"response_due_at"`
	ResolutionDueAt    *time.Time `json:"resolution_due_at"`
	FirstResponseAt    *time.Time `json:"first_response_at"`
	ResolvedAt         *time.Time `json:"resolved_at"`
	ResponseBreached   bool       `json:"response_breached"`
	ResolutionBreached bool       `json:"resolution_breached"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string                `json:"id"`
	ExternalKey     string                `json:"external_key"`
	RequesterID     string                `json:"requester_id"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	Title           string                `json:"title"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	SLA             TicketSLA             `json:"sla"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"description"`
	Messages    []TicketMessageResponse `json:"messages"`
	History     []TicketHistoryResponse `json:"history"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"author_id"`
	AuthorRole domain.UserRole `json:"author_role"`
	Body       string          `json:"body"`
	Internal   bool            `json:"internal"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:              ticket.ID,
		ExternalKey:     ticket.ExternalKey,
		RequesterID:     ticket.RequesterID,
		AssignedAgentID: ticket.AssignedAgentID,
		Title:           ticket.Title,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		SLA: TicketSLA{
			PolicyID:           ticket.SLAPolicyID,
			ResponseDueAt:      ticket.ResponseDueAt,
			ResolutionDueAt:    ticket.ResolutionDueAt,
			FirstResponseAt:    ticket.FirstResponseAt,
			ResolvedAt:         ticket.ResolvedAt,
			ResponseBreached:   ticket.ResponseBreached,
			ResolutionBreached: ticket.ResolutionBreached,
		},
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a ticket with its thread and history.
func NewTicketDetail(ticket *domain.Ticket, messages []domain.TicketMessage, history []domain.TicketHistory) TicketDetailResponse {
	msgs := make([]TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, NewTicketMessage(&messages[i]))
	}
	entries := make([]TicketHistoryResponse, 0, len(history))
	for _, entry := range history {
		entries = append(entries, TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(ticket),
		Description:   ticket.Description,
		Messages:      msgs,
		History:       entries,
	}
}

// NewTicketMessage maps a thread message.
func NewTicketMessage(msg *domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{
		ID:         msg.ID,
		AuthorID:   msg.AuthorID,
		AuthorRole: msg.AuthorRole,
		Body:       msg.Body,
		Internal:   msg.Internal,
		CreatedAt:  msg.CreatedAt,
	}
}
