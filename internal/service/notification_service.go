package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// Notifier delivers a notification to a single user. The payload variant
// determines the notification type.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string, payload domain.NotificationPayload) error
}

// NotificationService stores notifications and fans them out to the
// configured publisher.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(repo repository.NotificationRepository, publisher events.Publisher, clk clock.Clock, logger *zap.Logger) *NotificationService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// Notify persists the notification and then publishes it. The stored record
// is the source of truth, so a failed publish is only logged.
func (n *NotificationService) Notify(ctx context.Context, userID, title, message string, payload domain.NotificationPayload) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewValidationError("notification recipient is required", nil)
	}
	if payload == nil {
		return apperrors.NewValidationError("notification payload is required", nil)
	}

	record := &domain.Notification{
		UserID:    userID,
		Type:      payload.NotificationType(),
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: n.clock.Now(),
	}
	if err := n.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("store %s notification for %s: %w", record.Type, userID, err)
	}

	if n.publisher == nil {
		return nil
	}
	if err := n.publisher.Publish(ctx, events.NewNotificationEvent(record)); err != nil {
		n.logger.Warn("publish notification failed",
			zap.String("notification_id", record.ID),
			zap.String("user_id", userID),
			zap.String("type", string(record.Type)),
			zap.Error(err))
	}
	return nil
}

// ListForUser returns the user's most recent notifications.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return n.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one of the user's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := n.repo.MarkRead(ctx, userID, notificationID, n.clock.Now()); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFound("notification", map[string]any{"id": notificationID})
		}
		return err
	}
	return nil
}
