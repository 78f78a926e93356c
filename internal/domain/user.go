package domain

import "time"

// UserRole enumerates access levels.
type UserRole string

const (
	UserRoleClient UserRole = "client"
	UserRoleAgent  UserRole = "agent"
	UserRoleAdmin  UserRole = "admin"
)

// IsStaff reports whether the role works tickets rather than submitting them.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// User is anyone who can sign in: clients, agents and admins.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
