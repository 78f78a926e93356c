package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const defaultSweepBatchSize = 200

// SweepOptions controls a single sweep run.
type SweepOptions struct {
	// DryRun counts what would be flagged without writing or notifying.
	DryRun bool
	// Notify enables at-risk warnings. Breach notifications are always sent
	// outside dry-run.
	Notify bool
}

// SweepResult counts what a run did, or would do in a dry run.
type SweepResult struct {
	ResponseBreaches     int  `json:"response_breaches"`
	ResolutionBreaches   int  `json:"resolution_breaches"`
	ResponseWarnings     int  `json:"response_warnings"`
	ResolutionWarnings   int  `json:"resolution_warnings"`
	NotificationFailures int  `json:"notification_failures"`
	DryRun               bool `json:"dry_run"`
}

// Warnings returns the total at-risk warnings emitted.
func (r SweepResult) Warnings() int {
	return r.ResponseWarnings + r.ResolutionWarnings
}

// SweepDependencies bundles collaborators for the sweeper.
type SweepDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	Notifier    Notifier
	Clock       clock.Clock
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// SweepSettings tunes batching and the at-risk lookahead.
type SweepSettings struct {
	BatchSize        int
	ResponseWindow   time.Duration
	ResolutionWindow time.Duration
}

// BreachSweeper flags tickets whose deadlines passed and warns about those
// close to passing.
//
// Flags are set with a conditional write and a notification goes out only
// for rows this run flipped, so overlapping or repeated runs never notify a
// breach twice.
type BreachSweeper struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	history  repository.TicketHistoryRepository
	notifier Notifier
	clock    clock.Clock
	metrics  *observability.Metrics
	logger   *zap.Logger
	settings SweepSettings
}

// NewBreachSweeper builds the sweeper.
func NewBreachSweeper(deps SweepDependencies, settings SweepSettings) *BreachSweeper {
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaultSweepBatchSize
	}
	if settings.ResponseWindow <= 0 {
		settings.ResponseWindow = 30 * time.Minute
	}
	if settings.ResolutionWindow <= 0 {
		settings.ResolutionWindow = 60 * time.Minute
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreachSweeper{
		tickets:  deps.TicketRepo,
		users:    deps.UserRepo,
		history:  deps.HistoryRepo,
		notifier: deps.Notifier,
		clock:    clk,
		metrics:  deps.Metrics,
		logger:   logger,
		settings: settings,
	}
}

// sweepRun carries per-run state.
type sweepRun struct {
	now    time.Time
	opts   SweepOptions
	admins []domain.User
	result SweepResult
}

// Run executes one sweep. Phase A flags overdue first responses, phase B
// overdue resolutions, and phase C (notify and not dry-run) warns assigned
// agents about deadlines inside the lookahead window. Every comparison in a
// run uses the same instant.
//
// Persistence errors abort the run. Notification errors are logged and
// counted and never undo a flag.
func (s *BreachSweeper) Run(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	started := s.clock.Now()
	run := &sweepRun{now: started, opts: opts}
	run.result.DryRun = opts.DryRun

	err := s.run(ctx, run)
	s.metrics.RecordSweep(observability.SweepSample{
		ResponseBreaches:     run.result.ResponseBreaches,
		ResolutionBreaches:   run.result.ResolutionBreaches,
		Warnings:             run.result.Warnings(),
		NotificationFailures: run.result.NotificationFailures,
		Failed:               err != nil,
		StartedAt:            started,
		Duration:             s.clock.Now().Sub(started),
	})
	if err != nil {
		return run.result, err
	}

	s.logger.Info("sla sweep finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("notify", opts.Notify),
		zap.Int("response_breaches", run.result.ResponseBreaches),
		zap.Int("resolution_breaches", run.result.ResolutionBreaches),
		zap.Int("response_warnings", run.result.ResponseWarnings),
		zap.Int("resolution_warnings", run.result.ResolutionWarnings),
		zap.Int("notification_failures", run.result.NotificationFailures))
	return run.result, nil
}

func (s *BreachSweeper) run(ctx context.Context, run *sweepRun) error {
	if !run.opts.DryRun {
		admins, err := s.users.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}
		run.admins = admins
	}

	if err := s.sweepBreaches(ctx, run, domain.SLATimerResponse, &run.result.ResponseBreaches); err != nil {
		return err
	}
	if err := s.sweepBreaches(ctx, run, domain.SLATimerResolution, &run.result.ResolutionBreaches); err != nil {
		return err
	}

	if !run.opts.Notify || run.opts.DryRun {
		return nil
	}
	if err := s.sweepWarnings(ctx, run, domain.SLATimerResponse, s.settings.ResponseWindow, &run.result.ResponseWarnings); err != nil {
		return err
	}
	return s.sweepWarnings(ctx, run, domain.SLATimerResolution, s.settings.ResolutionWindow, &run.result.ResolutionWarnings)
}

func (s *BreachSweeper) sweepBreaches(ctx context.Context, run *sweepRun, timer domain.SLATimer, count *int) error {
	return s.eachCandidate(ctx, repository.SLACandidateFilter{
		Timer:   timer,
		Now:     run.now,
		Overdue: true,
	}, func(ticket *domain.Ticket) error {
		if run.opts.DryRun {
			*count++
			return nil
		}
		flipped, err := s.tickets.MarkBreached(ctx, ticket.ID, timer, run.now)
		if err != nil {
			return fmt.Errorf("mark %s breached on %s: %w", timer, ticket.ID, err)
		}
		if !flipped {
			return nil
		}
		*count++
		setBreached(ticket, timer)

		s.logger.Info("sla breached",
			zap.String("ticket_id", ticket.ID),
			zap.String("ticket_number", ticket.ExternalKey),
			zap.String("timer", string(timer)))
		s.recordBreach(ctx, run, ticket, timer)
		s.notifyBreach(ctx, run, ticket, timer)
		return nil
	})
}

func (s *BreachSweeper) sweepWarnings(ctx context.Context, run *sweepRun, timer domain.SLATimer, window time.Duration, count *int) error {
	return s.eachCandidate(ctx, repository.SLACandidateFilter{
		Timer:  timer,
		Now:    run.now,
		Window: window,
	}, func(ticket *domain.Ticket) error {
		if ticket.AssignedAgentID == nil {
			return nil
		}
		agent, ok := s.lookupRecipient(ctx, run, *ticket.AssignedAgentID, ticket.ID)
		if !ok {
			return nil
		}
		due := dueFor(ticket, timer)
		payload := domain.SLAWarningPayload{
			TicketID:         ticket.ID,
			TicketNumber:     ticket.ExternalKey,
			TicketSubject:    ticket.Title,
			Priority:         ticket.Priority,
			WarningType:      timer,
			DueAt:            due,
			MinutesRemaining: int(due.Sub(run.now) / time.Minute),
		}
		title, message := warningText(ticket, timer, payload.MinutesRemaining)
		if s.deliver(ctx, run, agent.ID, title, message, payload) {
			*count++
		}
		return nil
	})
}

// eachCandidate pages through matching tickets by id.
func (s *BreachSweeper) eachCandidate(ctx context.Context, filter repository.SLACandidateFilter, fn func(*domain.Ticket) error) error {
	filter.Limit = s.settings.BatchSize
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.tickets.FindSLACandidates(ctx, filter)
		if err != nil {
			return fmt.Errorf("find %s candidates: %w", filter.Timer, err)
		}
		for i := range batch {
			filter.AfterID = batch[i].ID
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		if len(batch) < filter.Limit {
			return nil
		}
	}
}

func (s *BreachSweeper) notifyBreach(ctx context.Context, run *sweepRun, ticket *domain.Ticket, timer domain.SLATimer) {
	payload := domain.SLABreachPayload{
		TicketID:      ticket.ID,
		TicketNumber:  ticket.ExternalKey,
		TicketSubject: ticket.Title,
		Priority:      ticket.Priority,
		BreachType:    timer,
		DueAt:         dueFor(ticket, timer),
	}
	title, message := breachText(ticket, timer)
	for _, userID := range s.breachRecipients(ctx, run, ticket) {
		s.deliver(ctx, run, userID, title, message, payload)
	}
}

// breachRecipients returns the assigned agent followed by every active admin,
// each user at most once.
func (s *BreachSweeper) breachRecipients(ctx context.Context, run *sweepRun, ticket *domain.Ticket) []string {
	seen := make(map[string]struct{}, len(run.admins)+1)
	recipients := make([]string, 0, len(run.admins)+1)
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	if ticket.AssignedAgentID != nil {
		if agent, ok := s.lookupRecipient(ctx, run, *ticket.AssignedAgentID, ticket.ID); ok {
			add(agent.ID)
		}
	}
	for _, admin := range run.admins {
		add(admin.ID)
	}
	return recipients
}

// lookupRecipient resolves an assigned agent. Missing or inactive users are
// skipped; lookup failures count as notification failures.
func (s *BreachSweeper) lookupRecipient(ctx context.Context, run *sweepRun, userID, ticketID string) (*domain.User, bool) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			run.result.NotificationFailures++
		}
		s.logger.Warn("sla recipient lookup failed",
			zap.String("ticket_id", ticketID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, false
	}
	if !user.Active {
		return nil, false
	}
	return user, true
}

func (s *BreachSweeper) deliver(ctx context.Context, run *sweepRun, userID, title, message string, payload domain.NotificationPayload) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Notify(ctx, userID, title, message, payload); err != nil {
		run.result.NotificationFailures++
		s.logger.Warn("sla notification failed",
			zap.String("user_id", userID),
			zap.String("type", string(payload.NotificationType())),
			zap.Error(err))
		return false
	}
	return true
}

func (s *BreachSweeper) recordBreach(ctx context.Context, run *sweepRun, ticket *domain.Ticket, timer domain.SLATimer) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ChangeType: domain.ChangeTypeSLABreach,
		OldValue:   map[string]any{"timer": timer, "breached": false},
		NewValue:   map[string]any{"timer": timer, "breached": true, "due_at": dueFor(ticket, timer)},
		CreatedAt:  run.now,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record sla breach history failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func setBreached(ticket *domain.Ticket, timer domain.SLATimer) {
	if timer == domain.SLATimerResponse {
		ticket.ResponseBreached = true
		return
	}
	ticket.ResolutionBreached = true
}

func dueFor(ticket *domain.Ticket, timer domain.SLATimer) time.Time {
	due := ticket.ResolutionDueAt
	if timer == domain.SLATimerResponse {
		due = ticket.ResponseDueAt
	}
	if due == nil {
		return time.Time{}
	}
	return *due
}

func breachText(ticket *domain.Ticket, timer domain.SLATimer) (string, string) {
	if timer == domain.SLATimerResponse {
		return "SLA Breach: Response Time",
			fmt.Sprintf("Ticket %s (%s) has breached its response time SLA.", ticket.ExternalKey, ticket.Title)
	}
	return "SLA Breach: Resolution Time",
		fmt.Sprintf("Ticket %s (%s) has breached its resolution time SLA.", ticket.ExternalKey, ticket.Title)
}

func warningText(ticket *domain.Ticket, timer domain.SLATimer, minutes int) (string, string) {
	if timer == domain.SLATimerResponse {
		return "SLA Warning: Response Due Soon",
			fmt.Sprintf("Ticket %s (%s) needs a first response within %d minutes.", ticket.ExternalKey, ticket.Title, minutes)
	}
	return "SLA Warning: Resolution Due Soon",
		fmt.Sprintf("Ticket %s (%s) must be resolved within %d minutes.", ticket.ExternalKey, ticket.Title, minutes)
}
