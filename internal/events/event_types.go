package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates published event identifiers.
type EventType string

const (
	EventNotificationCreated EventType = "notification_created"
)

// Event is the envelope fanned out to delivery channels (mail, websocket
// gateways) after a notification has been stored.
type Event struct {
	ID             string                     `json:"id"`
	Type           EventType                  `json:"type"`
	NotificationID string                     `json:"notification_id"`
	UserID         string                     `json:"user_id"`
	Kind           domain.NotificationType    `json:"kind"`
	Title          string                     `json:"title"`
	Message        string                     `json:"message"`
	Payload        domain.NotificationPayload `json:"payload"`
	Timestamp      time.Time                  `json:"timestamp"`
}

// NewNotificationEvent wraps a stored notification.
func NewNotificationEvent(n *domain.Notification) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           EventNotificationCreated,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Kind:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Payload:        n.Payload,
		Timestamp:      n.CreatedAt,
	}
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
