package service

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ComputeDueTimes returns the response and resolution deadlines for a clock
// started at base. Plain wall-clock arithmetic: no business hours, no time zones.
func ComputeDueTimes(base time.Time, policy *domain.SLAPolicy) (responseDue, resolutionDue time.Time) {
	return base.Add(policy.ResponseTime()), base.Add(policy.ResolutionTime())
}

// attachPolicy assigns policy to ticket and derives its deadlines from the
// ticket's creation time.
func attachPolicy(ticket *domain.Ticket, policy *domain.SLAPolicy) {
	responseDue, resolutionDue := ComputeDueTimes(ticket.CreatedAt, policy)
	id := policy.ID
	ticket.SLAPolicyID = &id
	ticket.ResponseDueAt = &responseDue
	ticket.ResolutionDueAt = &resolutionDue
}

// detachPolicy removes the SLA and its deadlines. Breach flags are history and stay.
func detachPolicy(ticket *domain.Ticket) {
	ticket.SLAPolicyID = nil
	ticket.ResponseDueAt = nil
	ticket.ResolutionDueAt = nil
}
