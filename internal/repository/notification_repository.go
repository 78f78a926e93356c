package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	const query = `
        INSERT INTO notifications (user_id, type, title, message, data, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		data,
		n.CreatedAt,
	).Scan(&n.ID)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, user_id, type, title, message, data, read_at, created_at
        FROM notifications WHERE user_id=$1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var (
			n   domain.Notification
			raw []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &raw, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		payload, err := domain.DecodeNotificationPayload(n.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", n.ID, err)
		}
		n.Payload = payload
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	const query = `
        UPDATE notifications SET read_at=COALESCE(read_at, $3)
        WHERE id=$1 AND user_id=$2`
	cmd, err := r.pool.Exec(ctx, query, id, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
