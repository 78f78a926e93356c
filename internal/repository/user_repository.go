package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// UserRepository is the user directory.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error)
	// ListAdmins returns every active admin.
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

const userColumns = `id, name, email, role, active_flag, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var user domain.User
	if err := scanUser(r.pool.QueryRow(ctx, query, id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role=$1 AND active_flag ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	return r.ListByRole(ctx, domain.UserRoleAdmin)
}

func scanUser(row pgx.Row, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}
