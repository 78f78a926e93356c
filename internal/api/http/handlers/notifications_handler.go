package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// NotificationsHandler lists and acknowledges the caller's notifications.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications?unread=true&limit=50.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListForUser(c.UserContext(), user.ID, c.QueryBool("unread", false), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, dto.NewNotificationResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), user.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
