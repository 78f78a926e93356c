package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType discriminates notification payloads.
type NotificationType string

const (
	NotificationSLABreach           NotificationType = "sla_breach"
	NotificationSLAWarning          NotificationType = "sla_warning"
	NotificationTicketAssigned      NotificationType = "ticket_assigned"
	NotificationTicketStatusChanged NotificationType = "ticket_status_changed"
)

// NotificationPayload is the structured body of a notification.
// Each notification type has exactly one payload struct.
type NotificationPayload interface {
	NotificationType() NotificationType
}

// SLABreachPayload is sent when a response or resolution deadline passed.
type SLABreachPayload struct {
	TicketID      string         `json:"ticket_id"`
	TicketNumber  string         `json:"ticket_number"`
	TicketSubject string         `json:"ticket_subject"`
	Priority      TicketPriority `json:"priority"`
	BreachType    SLATimer       `json:"breach_type"`
	DueAt         time.Time      `json:"due_at"`
}

func (SLABreachPayload) NotificationType() NotificationType { return NotificationSLABreach }

// SLAWarningPayload is sent while a deadline is approaching.
type SLAWarningPayload struct {
	TicketID         string         `json:"ticket_id"`
	TicketNumber     string         `json:"ticket_number"`
	TicketSubject    string         `json:"ticket_subject"`
	Priority         TicketPriority `json:"priority"`
	WarningType      SLATimer       `json:"warning_type"`
	DueAt            time.Time      `json:"due_at"`
	MinutesRemaining int            `json:"minutes_remaining"`
}

func (SLAWarningPayload) NotificationType() NotificationType { return NotificationSLAWarning }

// TicketAssignedPayload is sent to the agent a ticket was assigned to.
type TicketAssignedPayload struct {
	TicketID      string         `json:"ticket_id"`
	TicketNumber  string         `json:"ticket_number"`
	TicketSubject string         `json:"ticket_subject"`
	Priority      TicketPriority `json:"priority"`
	AssignedBy    *string        `json:"assigned_by,omitempty"`
}

func (TicketAssignedPayload) NotificationType() NotificationType { return NotificationTicketAssigned }

// TicketStatusChangedPayload is sent to the requester on status transitions.
type TicketStatusChangedPayload struct {
	TicketID      string       `json:"ticket_id"`
	TicketNumber  string       `json:"ticket_number"`
	TicketSubject string       `json:"ticket_subject"`
	OldStatus     TicketStatus `json:"old_status"`
	NewStatus     TicketStatus `json:"new_status"`
}

func (TicketStatusChangedPayload) NotificationType() NotificationType {
	return NotificationTicketStatusChanged
}

// Notification is a message stored for a single user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Payload   NotificationPayload
	ReadAt    *time.Time
	CreatedAt time.Time
}

// DecodeNotificationPayload restores the payload variant for a stored notification.
func DecodeNotificationPayload(kind NotificationType, raw []byte) (NotificationPayload, error) {
	var payload NotificationPayload
	switch kind {
	case NotificationSLABreach:
		var p SLABreachPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case NotificationSLAWarning:
		var p SLAWarningPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case NotificationTicketAssigned:
		var p TicketAssignedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case NotificationTicketStatusChanged:
		var p TicketStatusChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	default:
		return nil, fmt.Errorf("unknown notification type %q", kind)
	}
	return payload, nil
}
