package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

type memoryNotificationRepo struct {
	stored    []domain.Notification
	createErr error
}

func (r *memoryNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	n.ID = "n-1"
	r.stored = append(r.stored, *n)
	return nil
}

func (r *memoryNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, _ int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range r.stored {
		if n.UserID == userID && (!unreadOnly || n.ReadAt == nil) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryNotificationRepo) MarkRead(_ context.Context, userID, id string, at time.Time) error {
	for i := range r.stored {
		if r.stored[i].ID == id && r.stored[i].UserID == userID {
			r.stored[i].ReadAt = &at
			return nil
		}
	}
	return pgx.ErrNoRows
}

type capturePublisher struct {
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return p.err
}

func TestNotificationServiceStoresThenPublishes(t *testing.T) {
	repo := &memoryNotificationRepo{}
	pub := &capturePublisher{}
	svc := NewNotificationService(repo, pub, clock.NewMock(t0), zaptest.NewLogger(t))

	payload := domain.SLABreachPayload{TicketID: "t-1", BreachType: domain.SLATimerResponse}
	err := svc.Notify(context.Background(), "agent-1", "SLA Breach: Response Time", "late", payload)
	require.NoError(t, err)

	require.Len(t, repo.stored, 1)
	assert.Equal(t, domain.NotificationSLABreach, repo.stored[0].Type)
	assert.Equal(t, t0, repo.stored[0].CreatedAt)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "n-1", pub.events[0].NotificationID)
	assert.Equal(t, "agent-1", pub.events[0].UserID)
}

func TestNotificationServicePublishFailureIsNotAnError(t *testing.T) {
	repo := &memoryNotificationRepo{}
	pub := &capturePublisher{err: errors.New("redis down")}
	svc := NewNotificationService(repo, pub, clock.NewMock(t0), zaptest.NewLogger(t))

	err := svc.Notify(context.Background(), "agent-1", "t", "m", domain.SLABreachPayload{})

	assert.NoError(t, err)
	assert.Len(t, repo.stored, 1)
}

func TestNotificationServiceStoreFailurePropagates(t *testing.T) {
	repo := &memoryNotificationRepo{createErr: errors.New("disk full")}
	pub := &capturePublisher{}
	svc := NewNotificationService(repo, pub, clock.NewMock(t0), zaptest.NewLogger(t))

	err := svc.Notify(context.Background(), "agent-1", "t", "m", domain.SLABreachPayload{})

	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, pub.events)
}

func TestNotificationServiceRequiresRecipient(t *testing.T) {
	svc := NewNotificationService(&memoryNotificationRepo{}, nil, clock.NewMock(t0), zaptest.NewLogger(t))

	err := svc.Notify(context.Background(), " ", "t", "m", domain.SLABreachPayload{})

	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil, clock.NewMock(t0), zaptest.NewLogger(t))
	require.NoError(t, svc.Notify(context.Background(), "agent-1", "t", "m", domain.SLABreachPayload{}))

	require.NoError(t, svc.MarkRead(context.Background(), "agent-1", "n-1"))
	unread, err := svc.ListForUser(context.Background(), "agent-1", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	err = svc.MarkRead(context.Background(), "agent-2", "n-1")
	assert.True(t, apperrors.IsNotFound(err))
}
