package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// SweepRunner triggers a breach sweep.
type SweepRunner interface {
	Run(ctx context.Context, opts service.SweepOptions) (service.SweepResult, error)
}

// SLAHandler exposes admin endpoints for SLA policies and on-demand sweeps.
type SLAHandler struct {
	policies *service.SLAPolicyService
	sweeper  SweepRunner
}

// NewSLAHandler constructs handler.
func NewSLAHandler(policies *service.SLAPolicyService, sweeper SweepRunner) *SLAHandler {
	return &SLAHandler{policies: policies, sweeper: sweeper}
}

// ListPolicies GET /admin/sla-policies?active=true.
func (h *SLAHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.policies.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return err
	}
	resp := make([]dto.SLAPolicyResponse, 0, len(policies))
	for i := range policies {
		resp = append(resp, dto.NewSLAPolicyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CreatePolicy POST /admin/sla-policies.
func (h *SLAHandler) CreatePolicy(c *fiber.Ctx) error {
	input, err := parsePolicyRequest(c, true)
	if err != nil {
		return err
	}
	policy, err := h.policies.Create(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// UpdatePolicy PUT /admin/sla-policies/:id.
func (h *SLAHandler) UpdatePolicy(c *fiber.Ctx) error {
	current, err := h.policies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	input, err := parsePolicyRequest(c, current.Active)
	if err != nil {
		return err
	}
	policy, err := h.policies.Update(c.UserContext(), current.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// DeactivatePolicy POST /admin/sla-policies/:id/deactivate.
func (h *SLAHandler) DeactivatePolicy(c *fiber.Ctx) error {
	policy, err := h.policies.Deactivate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// Sweep POST /admin/sla/sweep?dry_run=true&notify=true. Warnings are sent
// only with notify=true; breach notifications follow dry_run alone.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	opts := service.SweepOptions{
		DryRun: c.QueryBool("dry_run", false),
		Notify: c.QueryBool("notify", false),
	}
	result, err := h.sweeper.Run(c.UserContext(), opts)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

func parsePolicyRequest(c *fiber.Ctx, defaultActive bool) (service.SLAPolicyInput, error) {
	var req dto.SLAPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return service.SLAPolicyInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	active := defaultActive
	if req.Active != nil {
		active = *req.Active
	}
	return service.SLAPolicyInput{
		Name:              req.Name,
		Description:       req.Description,
		Priority:          req.Priority,
		ResponseMinutes:   req.ResponseMinutes,
		ResolutionMinutes: req.ResolutionMinutes,
		Active:            active,
	}, nil
}
