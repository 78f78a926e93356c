package dto

import "github.com/spec-kit/helpdesk/internal/domain"

// UserResponse describes the authenticated user.
type UserResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
}

// NewUserResponse maps a user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}
