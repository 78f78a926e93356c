package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// UsersHandler exposes the caller's own profile.
type UsersHandler struct{}

// NewUsersHandler constructs handler.
func NewUsersHandler() *UsersHandler {
	return &UsersHandler{}
}

// Me handles GET /me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return user, nil
}
