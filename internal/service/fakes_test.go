package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type memoryTicketRepo struct {
	mu       sync.Mutex
	seq      int
	tickets  map[string]domain.Ticket
	findErr  error
	markErr  error
	replyErr error
	queries  []repository.SLACandidateFilter
	markHits int
}

func newMemoryTicketRepo() *memoryTicketRepo {
	return &memoryTicketRepo{tickets: map[string]domain.Ticket{}}
}

func (r *memoryTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("t-%04d", r.seq)
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

// put stores ticket as-is, for seeding.
func (r *memoryTicketRepo) put(ticket domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket.Clone()
}

func (r *memoryTicketRepo) get(id string) domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tickets[id]
	return t.Clone()
}

func (r *memoryTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	next := ticket.Clone()
	if stored.FirstResponseAt != nil {
		next.FirstResponseAt = stored.FirstResponseAt
	}
	next.ResponseBreached = stored.ResponseBreached || ticket.ResponseBreached
	next.ResolutionBreached = stored.ResolutionBreached || ticket.ResolutionBreached
	r.tickets[ticket.ID] = next

	ticket.FirstResponseAt = next.FirstResponseAt
	ticket.ResponseBreached = next.ResponseBreached
	ticket.ResolutionBreached = next.ResolutionBreached
	return nil
}

func (r *memoryTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t := stored.Clone()
	return &t, nil
}

func (r *memoryTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, id := range r.sortedIDs() {
		t := r.tickets[id]
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.AssignedAgentID != nil && !domain.SameStringPtr(t.AssignedAgentID, filter.AssignedAgentID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *memoryTicketRepo) FindSLACandidates(_ context.Context, filter repository.SLACandidateFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, filter)
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []domain.Ticket
	for _, id := range r.sortedIDs() {
		if filter.AfterID != "" && id <= filter.AfterID {
			continue
		}
		t := r.tickets[id]
		due, stop, flag := timerFields(&t, filter.Timer)
		if t.SLAPolicyID == nil || due == nil || stop != nil || flag {
			continue
		}
		if filter.Overdue {
			if !due.Before(filter.Now) {
				continue
			}
		} else if due.Before(filter.Now) || due.After(filter.Now.Add(filter.Window)) {
			continue
		}
		out = append(out, t.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryTicketRepo) MarkBreached(_ context.Context, id string, timer domain.SLATimer, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markHits++
	if r.markErr != nil {
		return false, r.markErr
	}
	t, ok := r.tickets[id]
	if !ok {
		return false, nil
	}
	if timer == domain.SLATimerResponse {
		if t.ResponseBreached {
			return false, nil
		}
		t.ResponseBreached = true
	} else {
		if t.ResolutionBreached {
			return false, nil
		}
		t.ResolutionBreached = true
	}
	t.UpdatedAt = at
	r.tickets[id] = t
	return true, nil
}

func (r *memoryTicketRepo) RecordFirstResponse(_ context.Context, id string, at time.Time, breached bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replyErr != nil {
		return false, r.replyErr
	}
	t, ok := r.tickets[id]
	if !ok || t.FirstResponseAt != nil {
		return false, nil
	}
	t.FirstResponseAt = &at
	t.ResponseBreached = t.ResponseBreached || breached
	r.tickets[id] = t
	return true, nil
}

func (r *memoryTicketRepo) sortedIDs() []string {
	ids := make([]string, 0, len(r.tickets))
	for id := range r.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func timerFields(t *domain.Ticket, timer domain.SLATimer) (due, stop *time.Time, flag bool) {
	if timer == domain.SLATimerResponse {
		return t.ResponseDueAt, t.FirstResponseAt, t.ResponseBreached
	}
	return t.ResolutionDueAt, t.ResolvedAt, t.ResolutionBreached
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memoryPolicyRepo struct {
	mu       sync.Mutex
	seq      int
	policies map[string]domain.SLAPolicy
	err      error
}

func newMemoryPolicyRepo(policies ...domain.SLAPolicy) *memoryPolicyRepo {
	r := &memoryPolicyRepo{policies: map[string]domain.SLAPolicy{}}
	for _, p := range policies {
		r.policies[p.ID] = p
	}
	return r
}

func (r *memoryPolicyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	policy.ID = fmt.Sprintf("p-new-%d", r.seq)
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memoryPolicyRepo) Update(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memoryPolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *memoryPolicyRepo) FindActiveByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.policies {
		if p.Active && p.Priority == priority {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryPolicyRepo) List(_ context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SLAPolicy
	for _, p := range r.policies {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryUserRepo struct {
	users   map[string]domain.User
	failIDs map[string]error
}

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	r := &memoryUserRepo{users: map[string]domain.User{}, failIDs: map[string]error{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if err, ok := r.failIDs[id]; ok {
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *memoryUserRepo) ListByRole(_ context.Context, role domain.UserRole) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryUserRepo) ListAdmins(ctx context.Context) ([]domain.User, error) {
	admins, _ := r.ListByRole(ctx, domain.UserRoleAdmin)
	active := admins[:0]
	for _, u := range admins {
		if u.Active {
			active = append(active, u)
		}
	}
	return active, nil
}

type memoryHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (r *memoryHistoryRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = fmt.Sprintf("h-%d", len(r.entries)+1)
	r.entries = append(r.entries, *h)
	return nil
}

func (r *memoryHistoryRepo) ListByTicket(_ context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.TicketID == ticketID && (len(types) == 0 || slices.Contains(types, h.ChangeType)) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepo) ofType(kind domain.TicketChangeType) []domain.TicketHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.ChangeType == kind {
			out = append(out, h)
		}
	}
	return out
}

type memoryMessageRepo struct {
	messages []domain.TicketMessage
}

func (r *memoryMessageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	msg.ID = fmt.Sprintf("m-%d", len(r.messages)+1)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memoryMessageRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	for _, m := range r.messages {
		if m.TicketID != ticketID || (m.Internal && !includeInternal) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type sentNotification struct {
	UserID  string
	Title   string
	Message string
	Payload domain.NotificationPayload
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	failTo map[string]bool
}

var errNotifyFailed = errors.New("notify failed")

func (n *recordingNotifier) Notify(_ context.Context, userID, title, message string, payload domain.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failTo[userID] {
		return errNotifyFailed
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Message: message, Payload: payload})
	return nil
}

func (n *recordingNotifier) ofType(kind domain.NotificationType) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Payload.NotificationType() == kind {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) recipients(kind domain.NotificationType) []string {
	var ids []string
	for _, s := range n.ofType(kind) {
		ids = append(ids, s.UserID)
	}
	return ids
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
