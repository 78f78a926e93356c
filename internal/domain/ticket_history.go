package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus    TicketChangeType = "status_change"
	ChangeTypeAssignee  TicketChangeType = "assignee_change"
	ChangeTypePriority  TicketChangeType = "priority_change"
	ChangeTypeSLA       TicketChangeType = "sla_change"
	ChangeTypeSLABreach TicketChangeType = "sla_breach"
)

// TicketHistory is an immutable audit trail entry.
// ChangedByID is nil for changes made by the system (e.g. the breach sweep).
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedByID *string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
