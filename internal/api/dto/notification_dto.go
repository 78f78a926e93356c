package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationResponse is one stored notification.
type NotificationResponse struct {
	ID        string                     `json:"id"`
	Type      domain.NotificationType    `json:"type"`
	Title     string                     `json:"title"`
	Message   string                     `json:"message"`
	Data      domain.NotificationPayload `json:"data"`
	ReadAt    *time.Time                 `json:"read_at"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewNotificationResponse maps a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Payload,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
