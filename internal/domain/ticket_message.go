package domain

import "time"

// TicketMessage is a comment in a ticket thread.
// Internal messages are agent notes hidden from the requester.
type TicketMessage struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorRole UserRole
	Body       string
	Internal   bool
	CreatedAt  time.Time
}

// CountsAsAgentResponse reports whether the message stops the response clock.
func (m *TicketMessage) CountsAsAgentResponse() bool {
	return m.AuthorRole.IsStaff() && !m.Internal
}
