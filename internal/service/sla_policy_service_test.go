package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

func newPolicyService(t *testing.T, seed ...domain.SLAPolicy) (*SLAPolicyService, *memoryPolicyRepo) {
	repo := newMemoryPolicyRepo(seed...)
	return NewSLAPolicyService(repo, clock.NewMock(t0), zaptest.NewLogger(t)), repo
}

func TestSLAPolicyCreate(t *testing.T) {
	svc, _ := newPolicyService(t)

	policy, err := svc.Create(context.Background(), SLAPolicyInput{
		Name:              "  Urgent  ",
		Priority:          domain.TicketPriorityUrgent,
		ResponseMinutes:   15,
		ResolutionMinutes: 120,
		Active:            true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, policy.ID)
	assert.Equal(t, "Urgent", policy.Name)
	assert.Equal(t, t0, policy.CreatedAt)

	active, err := svc.FindActivePolicy(context.Background(), domain.TicketPriorityUrgent)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, policy.ID, active.ID)
}

func TestSLAPolicyCreateValidation(t *testing.T) {
	svc, _ := newPolicyService(t)

	_, err := svc.Create(context.Background(), SLAPolicyInput{
		Priority:          "critical",
		ResponseMinutes:   60,
		ResolutionMinutes: 30,
	})
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	assert.Contains(t, domainErr.Details, "name")
	assert.Contains(t, domainErr.Details, "priority")
	assert.Contains(t, domainErr.Details, "resolution_minutes")
}

func TestSLAPolicyCreateRejectsSecondActivePolicy(t *testing.T) {
	svc, _ := newPolicyService(t, urgentPolicy())

	_, err := svc.Create(context.Background(), SLAPolicyInput{
		Name:              "Urgent v2",
		Priority:          domain.TicketPriorityUrgent,
		ResponseMinutes:   10,
		ResolutionMinutes: 60,
		Active:            true,
	})

	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestSLAPolicyInactiveDraftAllowed(t *testing.T) {
	svc, _ := newPolicyService(t, urgentPolicy())

	draft, err := svc.Create(context.Background(), SLAPolicyInput{
		Name:              "Urgent v2",
		Priority:          domain.TicketPriorityUrgent,
		ResponseMinutes:   10,
		ResolutionMinutes: 60,
	})
	require.NoError(t, err)
	assert.False(t, draft.Active)

	_, err = svc.Deactivate(context.Background(), "p-urgent")
	require.NoError(t, err)

	input := SLAPolicyInput{Name: "Urgent v2", Priority: domain.TicketPriorityUrgent, ResponseMinutes: 10, ResolutionMinutes: 60, Active: true}
	activated, err := svc.Update(context.Background(), draft.ID, input)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	active, err := svc.FindActivePolicy(context.Background(), domain.TicketPriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, active.ID)
}

func TestSLAPolicyUpdateKeepsOwnActiveSlot(t *testing.T) {
	svc, _ := newPolicyService(t, urgentPolicy())

	updated, err := svc.Update(context.Background(), "p-urgent", SLAPolicyInput{
		Name:              "Urgent",
		Priority:          domain.TicketPriorityUrgent,
		ResponseMinutes:   20,
		ResolutionMinutes: 120,
		Active:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.ResponseMinutes)
}

func TestSLAPolicyGetMissing(t *testing.T) {
	svc, _ := newPolicyService(t)

	_, err := svc.Get(context.Background(), "nope")

	assert.True(t, apperrors.IsNotFound(err))
}

func TestSLAPolicyListActiveOnly(t *testing.T) {
	svc, _ := newPolicyService(t, urgentPolicy(), highPolicy(), vipPolicy())

	all, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	active, err := svc.List(context.Background(), true)
	require.NoError(t, err)

	assert.Len(t, all, 3)
	assert.Len(t, active, 2)
}
