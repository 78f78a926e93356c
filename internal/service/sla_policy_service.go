package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// SLAPolicyService manages the policy registry. At most one active policy
// exists per priority.
type SLAPolicyService struct {
	policies repository.SLAPolicyRepository
	clock    clock.Clock
	logger   *zap.Logger
}

// SLAPolicyInput carries policy fields for create and update.
type SLAPolicyInput struct {
	Name              string
	Description       string
	Priority          domain.TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	Active            bool
}

// NewSLAPolicyService constructs the service.
func NewSLAPolicyService(policies repository.SLAPolicyRepository, clk clock.Clock, logger *zap.Logger) *SLAPolicyService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAPolicyService{policies: policies, clock: clk, logger: logger}
}

// FindActivePolicy returns the active policy for priority, or nil.
func (s *SLAPolicyService) FindActivePolicy(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	policy, err := s.policies.FindActiveByPriority(ctx, priority)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// List returns all policies, or only active ones.
func (s *SLAPolicyService) List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	policies, err := s.policies.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// Get returns a policy by id.
func (s *SLAPolicyService) Get(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Create stores a new policy.
func (s *SLAPolicyService) Create(ctx context.Context, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	if err := validatePolicyInput(&input); err != nil {
		return nil, err
	}
	if input.Active {
		if err := s.ensureNoActiveConflict(ctx, input.Priority, ""); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	policy := &domain.SLAPolicy{
		Name:              input.Name,
		Description:       input.Description,
		Priority:          input.Priority,
		ResponseMinutes:   input.ResponseMinutes,
		ResolutionMinutes: input.ResolutionMinutes,
		Active:            input.Active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, s.mapWriteError(err, policy.Priority)
	}
	s.logger.Info("sla policy created",
		zap.String("policy_id", policy.ID),
		zap.String("priority", string(policy.Priority)),
		zap.Bool("active", policy.Active))
	return policy, nil
}

// Update replaces a policy's fields. Tickets keep the deadlines they were
// given; only tickets created or re-prioritised afterwards see the change.
func (s *SLAPolicyService) Update(ctx context.Context, id string, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	if err := validatePolicyInput(&input); err != nil {
		return nil, err
	}
	policy, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Active {
		if err := s.ensureNoActiveConflict(ctx, input.Priority, policy.ID); err != nil {
			return nil, err
		}
	}

	policy.Name = input.Name
	policy.Description = input.Description
	policy.Priority = input.Priority
	policy.ResponseMinutes = input.ResponseMinutes
	policy.ResolutionMinutes = input.ResolutionMinutes
	policy.Active = input.Active
	policy.UpdatedAt = s.clock.Now()
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, s.mapWriteError(err, policy.Priority)
	}
	return policy, nil
}

// Deactivate retires a policy. Tickets already using it keep their SLA.
func (s *SLAPolicyService) Deactivate(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Active {
		return policy, nil
	}
	policy.Active = false
	policy.UpdatedAt = s.clock.Now()
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("sla policy deactivated", zap.String("policy_id", policy.ID))
	return policy, nil
}

func (s *SLAPolicyService) ensureNoActiveConflict(ctx context.Context, priority domain.TicketPriority, selfID string) error {
	existing, err := s.policies.FindActiveByPriority(ctx, priority)
	if err != nil {
		return apperrors.MapError(err)
	}
	if existing != nil && existing.ID != selfID {
		return activeConflict(priority, existing.ID)
	}
	return nil
}

func (s *SLAPolicyService) mapWriteError(err error, priority domain.TicketPriority) error {
	if apperrors.IsUniqueViolation(err) {
		return activeConflict(priority, "")
	}
	return apperrors.MapError(err)
}

func activeConflict(priority domain.TicketPriority, existingID string) error {
	details := map[string]any{"priority": priority}
	if existingID != "" {
		details["existing_policy_id"] = existingID
	}
	return apperrors.NewConflict("an active sla policy already exists for this priority", details)
}

func validatePolicyInput(input *SLAPolicyInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)

	problems := map[string]any{}
	if input.Name == "" {
		problems["name"] = "required"
	}
	if !input.Priority.Valid() {
		problems["priority"] = "must be one of low, medium, high, urgent"
	}
	if input.ResponseMinutes <= 0 {
		problems["response_minutes"] = "must be positive"
	}
	if input.ResolutionMinutes <= 0 {
		problems["resolution_minutes"] = "must be positive"
	} else if input.ResolutionMinutes < input.ResponseMinutes {
		problems["resolution_minutes"] = "must not be shorter than response_minutes"
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid sla policy", problems)
	}
	return nil
}
