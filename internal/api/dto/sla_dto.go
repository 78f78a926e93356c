package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLAPolicyRequest payload for create and update.
type SLAPolicyRequest struct {
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	Priority          domain.TicketPriority `json:"priority"`
	ResponseMinutes   int                   `json:"response_minutes"`
	ResolutionMinutes int                   `json:"resolution_minutes"`
	Active            *bool                 `json:"active,omitempty"`
}

// SLAPolicyResponse describes a policy.
type SLAPolicyResponse struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	Priority          domain.TicketPriority `json:"priority"`
	ResponseMinutes   int                   `json:"response_minutes"`
	ResolutionMinutes int                   `json:"resolution_minutes"`
	Active            bool                  `json:"active"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewSLAPolicyResponse maps a policy.
func NewSLAPolicyResponse(p *domain.SLAPolicy) SLAPolicyResponse {
	return SLAPolicyResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Priority:          p.Priority,
		ResponseMinutes:   p.ResponseMinutes,
		ResolutionMinutes: p.ResolutionMinutes,
		Active:            p.Active,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
