package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/automation"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// RulesHandler manages automation rule endpoints.
type RulesHandler struct {
	engine  *automation.Engine
	rules   repository.RuleRepository
	tickets *service.TicketService
}

// NewRulesHandler constructs handler.
func NewRulesHandler(engine *automation.Engine, rules repository.RuleRepository, tickets *service.TicketService) *RulesHandler {
	return &RulesHandler{engine: engine, rules: rules, tickets: tickets}
}

// CreateRule POST /rules.
func (h *RulesHandler) CreateRule(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule := ruleFromRequest(req)
	if err := h.engine.CreateRule(c.Context(), rule); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// ListRules GET /rules.
func (h *RulesHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.Context())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetRule GET /rules/:id.
func (h *RulesHandler) GetRule(c *fiber.Ctx) error {
	rule, err := h.getRule(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// UpdateRule PUT /rules/:id.
func (h *RulesHandler) UpdateRule(c *fiber.Ctx) error {
	rule, err := h.getRule(c)
	if err != nil {
		return err
	}
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated := ruleFromRequest(req)
	updated.ID = rule.ID
	updated.CreatedAt = rule.CreatedAt
	if err := h.engine.UpdateRule(c.Context(), updated); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(updated)})
}

// DeleteRule DELETE /rules/:id.
func (h *RulesHandler) DeleteRule(c *fiber.Ctx) error {
	rule, err := h.getRule(c)
	if err != nil {
		return err
	}
	if err := h.engine.DeleteRule(c.Context(), rule.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// TestRule POST /rules/:id/test.
func (h *RulesHandler) TestRule(c *fiber.Ctx) error {
	rule, err := h.getRule(c)
	if err != nil {
		return err
	}
	var req dto.TestRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	ticket, err := h.tickets.GetTicket(c.Context(), req.TicketID)
	if err != nil {
		return err
	}
	result := h.engine.TestRule(c.Context(), rule, ticket)
	return c.JSON(fiber.Map{"data": result})
}

// RuleStatistics GET /rules/:id/statistics.
func (h *RulesHandler) RuleStatistics(c *fiber.Ctx) error {
	rule, err := h.getRule(c)
	if err != nil {
		return err
	}
	stats, err := h.engine.GetRuleStatistics(c.Context(), rule.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// ApplyTemplate POST /rules/templates/apply.
func (h *RulesHandler) ApplyTemplate(c *fiber.Ctx) error {
	var req dto.ApplyTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Template == "" {
		return apperrors.NewValidationError("template required", nil)
	}
	rule, err := h.engine.ApplyTemplate(c.Context(), req.Template)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// ProcessTicket POST /rules/process. Runs the manual trigger for one ticket.
func (h *RulesHandler) ProcessTicket(c *fiber.Ctx) error {
	var req dto.ProcessTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	ticket, err := h.tickets.GetTicket(c.Context(), req.TicketID)
	if err != nil {
		return err
	}
	result, err := h.engine.ProcessTicket(c.Context(), ticket, domain.TriggerManual)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *RulesHandler) getRule(c *fiber.Ctx) (*domain.AutomationRule, error) {
	rule, err := h.rules.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("rule", map[string]any{"rule_id": c.Params("id")})
		}
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

func ruleFromRequest(req dto.RuleRequest) *domain.AutomationRule {
	return &domain.AutomationRule{
		Name:           req.Name,
		Description:    req.Description,
		Trigger:        req.Trigger,
		Conditions:     req.Conditions,
		Actions:        req.Actions,
		Priority:       req.Priority,
		IsActive:       req.IsActive,
		StopProcessing: req.StopProcessing,
	}
}

func ruleResponse(rule *domain.AutomationRule) dto.RuleResponse {
	return dto.RuleResponse{
		ID:             rule.ID,
		Name:           rule.Name,
		Description:    rule.Description,
		Trigger:        rule.Trigger,
		Conditions:     rule.Conditions,
		Actions:        rule.Actions,
		Priority:       rule.Priority,
		IsActive:       rule.IsActive,
		StopProcessing: rule.StopProcessing,
		LastExecutedAt: rule.LastExecutedAt,
		CreatedAt:      rule.CreatedAt,
		UpdatedAt:      rule.UpdatedAt,
	}
}
