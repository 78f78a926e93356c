package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func urgentPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{ID: "p-urgent", Name: "Urgent", Priority: domain.TicketPriorityUrgent, ResponseMinutes: 15, ResolutionMinutes: 120, Active: true}
}

func highPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{ID: "p-high", Name: "High", Priority: domain.TicketPriorityHigh, ResponseMinutes: 60, ResolutionMinutes: 480, Active: true}
}

func vipPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{ID: "p-vip", Name: "VIP", Priority: domain.TicketPriorityLow, ResponseMinutes: 5, ResolutionMinutes: 30, Active: false}
}

type lifecycleFixture struct {
	clock    *clock.Mock
	policies *memoryPolicyRepo
	tickets  *memoryTicketRepo
	hook     *SLALifecycle
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		clock:    clock.NewMock(t0),
		policies: newMemoryPolicyRepo(urgentPolicy(), highPolicy(), vipPolicy()),
		tickets:  newMemoryTicketRepo(),
	}
	logger := zaptest.NewLogger(t)
	f.hook = NewSLALifecycle(NewSLAPolicyService(f.policies, f.clock, logger), f.tickets, f.clock, logger)
	return f
}

func (f *lifecycleFixture) createTicket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ExternalKey: "TCK-1",
		RequesterID: "client-1",
		Title:       "VPN down",
		Status:      domain.TicketStatusNew,
		Priority:    priority,
		CreatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.hook.OnTicketCreating(context.Background(), ticket))
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestOnTicketCreatingAttachesActivePolicy(t *testing.T) {
	f := newLifecycleFixture(t)

	ticket := f.createTicket(t, domain.TicketPriorityUrgent)

	require.NotNil(t, ticket.SLAPolicyID)
	assert.Equal(t, "p-urgent", *ticket.SLAPolicyID)
	assert.Equal(t, t0.Add(15*time.Minute), *ticket.ResponseDueAt)
	assert.Equal(t, t0.Add(120*time.Minute), *ticket.ResolutionDueAt)
	assert.False(t, ticket.ResponseBreached)
	assert.False(t, ticket.ResolutionBreached)
}

func TestOnTicketCreatingWithoutPolicyLeavesSLAEmpty(t *testing.T) {
	f := newLifecycleFixture(t)

	ticket := f.createTicket(t, domain.TicketPriorityMedium)

	assert.Nil(t, ticket.SLAPolicyID)
	assert.Nil(t, ticket.ResponseDueAt)
	assert.Nil(t, ticket.ResolutionDueAt)
}

func TestOnTicketCreatingHonoursExplicitPolicy(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := &domain.Ticket{
		Priority:    domain.TicketPriorityUrgent,
		SLAPolicyID: strPtr("p-vip"),
		CreatedAt:   t0,
	}

	require.NoError(t, f.hook.OnTicketCreating(context.Background(), ticket))

	assert.Equal(t, "p-vip", *ticket.SLAPolicyID)
	assert.Equal(t, t0.Add(5*time.Minute), *ticket.ResponseDueAt)
	assert.Equal(t, t0.Add(30*time.Minute), *ticket.ResolutionDueAt)
}

func TestOnTicketCreatingPropagatesLookupErrors(t *testing.T) {
	f := newLifecycleFixture(t)
	f.policies.err = errors.New("db down")

	err := f.hook.OnTicketCreating(context.Background(), &domain.Ticket{Priority: domain.TicketPriorityHigh, CreatedAt: t0})

	assert.ErrorContains(t, err, "db down")
}

func TestOnTicketCreatingUnknownPolicyIsNotFound(t *testing.T) {
	f := newLifecycleFixture(t)

	err := f.hook.OnTicketCreating(context.Background(), &domain.Ticket{
		Priority:    domain.TicketPriorityHigh,
		SLAPolicyID: strPtr("p-missing"),
		CreatedAt:   t0,
	})

	assert.True(t, apperrors.IsNotFound(err))
}

func TestSLAPolicyServiceSatisfiesRegistry(t *testing.T) {
	var registry PolicyRegistry = NewSLAPolicyService(newMemoryPolicyRepo(urgentPolicy()), nil, nil)

	policy, err := registry.FindActivePolicy(context.Background(), domain.TicketPriorityUrgent)
	require.NoError(t, err)
	assert.Equal(t, "p-urgent", policy.ID)

	none, err := registry.FindActivePolicy(context.Background(), domain.TicketPriorityLow)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestOnTicketUpdatingPriorityChangeRecomputesFromCreation(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	original := ticket.Clone()

	f.clock.Advance(40 * time.Minute)
	ticket.Priority = domain.TicketPriorityUrgent
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Equal(t, "p-urgent", *ticket.SLAPolicyID)
	assert.Equal(t, t0.Add(15*time.Minute), *ticket.ResponseDueAt)
	assert.Equal(t, t0.Add(120*time.Minute), *ticket.ResolutionDueAt)
}

func TestOnTicketUpdatingPriorityWithoutPolicyKeepsSLA(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	original := ticket.Clone()

	ticket.Priority = domain.TicketPriorityMedium
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Equal(t, "p-high", *ticket.SLAPolicyID)
	assert.Equal(t, *original.ResponseDueAt, *ticket.ResponseDueAt)
	assert.Equal(t, *original.ResolutionDueAt, *ticket.ResolutionDueAt)
}

func TestOnTicketUpdatingExplicitPolicyChange(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	original := ticket.Clone()

	ticket.SLAPolicyID = strPtr("p-vip")
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Equal(t, t0.Add(5*time.Minute), *ticket.ResponseDueAt)
	assert.Equal(t, t0.Add(30*time.Minute), *ticket.ResolutionDueAt)
}

func TestOnTicketUpdatingClearingPolicyClearsDeadlines(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityHigh)
	ticket.ResponseBreached = true
	original := ticket.Clone()

	ticket.SLAPolicyID = nil
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Nil(t, ticket.ResponseDueAt)
	assert.Nil(t, ticket.ResolutionDueAt)
	assert.True(t, ticket.ResponseBreached)
}

func TestOnTicketUpdatingResolveLateFlagsBreach(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)
	original := ticket.Clone()

	f.clock.Advance(3 * time.Hour)
	ticket.Status = domain.TicketStatusResolved
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, t0.Add(3*time.Hour), *ticket.ResolvedAt)
	assert.True(t, ticket.ResolutionBreached)
}

func TestOnTicketUpdatingResolveInTime(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)
	original := ticket.Clone()

	f.clock.Advance(time.Hour)
	ticket.Status = domain.TicketStatusResolved
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Equal(t, t0.Add(time.Hour), *ticket.ResolvedAt)
	assert.False(t, ticket.ResolutionBreached)
}

func TestOnTicketUpdatingClosingKeepsResolvedAt(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)
	resolvedAt := t0.Add(time.Hour)
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &resolvedAt
	original := ticket.Clone()

	f.clock.Advance(90 * time.Minute)
	ticket.Status = domain.TicketStatusClosed
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Equal(t, resolvedAt, *ticket.ResolvedAt)
	assert.False(t, ticket.ResolutionBreached)
}

func TestOnTicketUpdatingReopenClearsResolvedAt(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = timePtr(t0.Add(time.Hour))
	original := ticket.Clone()

	ticket.Status = domain.TicketStatusOpen
	require.NoError(t, f.hook.OnTicketUpdating(context.Background(), ticket, original))

	assert.Nil(t, ticket.ResolvedAt)
}

func TestMarkFirstResponseInTime(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.hook.MarkFirstResponse(context.Background(), ticket))

	assert.Equal(t, t0.Add(10*time.Minute), *ticket.FirstResponseAt)
	assert.False(t, ticket.ResponseBreached)
	stored := f.tickets.get(ticket.ID)
	assert.Equal(t, t0.Add(10*time.Minute), *stored.FirstResponseAt)
}

func TestMarkFirstResponseLateFlagsBreach(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)

	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.hook.MarkFirstResponse(context.Background(), ticket))

	assert.True(t, ticket.ResponseBreached)
	assert.True(t, f.tickets.get(ticket.ID).ResponseBreached)
}

func TestMarkFirstResponseIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityUrgent)

	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.hook.MarkFirstResponse(context.Background(), ticket))
	f.clock.Advance(time.Hour)
	require.NoError(t, f.hook.MarkFirstResponse(context.Background(), ticket))

	assert.Equal(t, t0.Add(5*time.Minute), *ticket.FirstResponseAt)
	assert.False(t, ticket.ResponseBreached)
}

func TestMarkFirstResponseConcurrentRepliesStoreOnce(t *testing.T) {
	f := newLifecycleFixture(t)
	created := f.createTicket(t, domain.TicketPriorityUrgent)
	f.clock.Advance(5 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		copyOf := created.Clone()
		wg.Add(1)
		go func(ticket domain.Ticket) {
			defer wg.Done()
			assert.NoError(t, f.hook.MarkFirstResponse(context.Background(), &ticket))
		}(copyOf)
	}
	wg.Wait()

	stored := f.tickets.get(created.ID)
	require.NotNil(t, stored.FirstResponseAt)
	assert.Equal(t, t0.Add(5*time.Minute), *stored.FirstResponseAt)
}
