package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress,
		TicketStatusOnHold, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the resolution clock.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	ExternalKey     string
	RequesterID     string
	AssignedAgentID *string
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority

	SLAPolicyID        *string
	ResponseDueAt      *time.Time
	ResolutionDueAt    *time.Time
	FirstResponseAt    *time.Time
	ResolvedAt         *time.Time
	ResponseBreached   bool
	ResolutionBreached bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSLA reports whether an SLA policy is attached.
func (t *Ticket) HasSLA() bool {
	return t.SLAPolicyID != nil
}

// Clone returns a deep copy so callers can keep a pre-mutation snapshot.
func (t *Ticket) Clone() Ticket {
	c := *t
	c.AssignedAgentID = cloneString(t.AssignedAgentID)
	c.SLAPolicyID = cloneString(t.SLAPolicyID)
	c.ResponseDueAt = cloneTime(t.ResponseDueAt)
	c.ResolutionDueAt = cloneTime(t.ResolutionDueAt)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	return c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}

// SameStringPtr compares two optional identifiers by value.
func SameStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
