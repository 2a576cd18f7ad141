package automation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// RuleStore is the persistence contract for automation rules.
type RuleStore interface {
	Create(ctx context.Context, rule *domain.AutomationRule) error
	Update(ctx context.Context, rule *domain.AutomationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.AutomationRule, error)
	List(ctx context.Context) ([]domain.AutomationRule, error)
	ListActiveByTrigger(ctx context.Context, trigger string) ([]domain.AutomationRule, error)
	TouchLastExecuted(ctx context.Context, id string, at time.Time) error
}

// ExecutionStore is the audit log for rule executions.
type ExecutionStore interface {
	Create(ctx context.Context, execution *domain.AutomationExecution) error
	DeleteByRule(ctx context.Context, ruleID string) error
	StatsByRule(ctx context.Context, ruleID string) (domain.ExecutionStats, error)
}

// RuleTemplate is a named, config-provided rule blueprint.
type RuleTemplate struct {
	Name           string
	Description    string
	Trigger        string
	Conditions     []domain.ConditionClause
	Actions        []domain.ActionSpec
	Priority       int
	StopProcessing bool
}

// ProcessResult buckets rule ids by outcome for one ticket/trigger pass.
type ProcessResult struct {
	Executed []string `json:"executed"`
	Failed   []string `json:"failed"`
	Skipped  []string `json:"skipped"`
}

// BatchResult summarizes a multi-ticket pass. A ticket counts as processed
// when at least one rule executed for it.
type BatchResult struct {
	Processed int                      `json:"processed"`
	Failed    int                      `json:"failed"`
	Details   map[string]ProcessResult `json:"details"`
}

// ActionOutcome is one per-action result from a dry run.
type ActionOutcome struct {
	Type    domain.ActionType `json:"type"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
}

// TestResult reports a rule dry run for UI preview.
type TestResult struct {
	Evaluated     bool            `json:"evaluated"`
	ConditionsMet bool            `json:"conditions_met"`
	Executed      bool            `json:"executed"`
	Actions       []ActionOutcome `json:"actions"`
	Errors        []string        `json:"errors,omitempty"`
}

// RuleStatistics aggregates a rule's execution history.
type RuleStatistics struct {
	TotalExecutions      int64      `json:"total_executions"`
	SuccessfulExecutions int64      `json:"successful_executions"`
	FailedExecutions     int64      `json:"failed_executions"`
	SuccessRate          float64    `json:"success_rate"`
	FirstExecution       *time.Time `json:"first_execution,omitempty"`
	LastExecution        *time.Time `json:"last_execution,omitempty"`
}

// Engine orchestrates rule selection, evaluation, execution, and bookkeeping.
type Engine struct {
	rules      RuleStore
	executions ExecutionStore
	evaluator  *ConditionEvaluator
	executor   *Executor
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	validate   *validator.Validate
	templates  map[string]RuleTemplate
	enabled    bool
	now        func() time.Time
}

// EngineDependencies bundles collaborators for the rule engine.
type EngineDependencies struct {
	Rules      RuleStore
	Executions ExecutionStore
	Evaluator  *ConditionEvaluator
	Executor   *Executor
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// Templates maps rule template names to blueprints.
	Templates map[string]RuleTemplate
	Enabled   bool
}

// NewEngine constructs the rule engine.
func NewEngine(deps EngineDependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = NewConditionEvaluator()
	}
	templates := deps.Templates
	if templates == nil {
		templates = map[string]RuleTemplate{}
	}
	return &Engine{
		rules:      deps.Rules,
		executions: deps.Executions,
		evaluator:  evaluator,
		executor:   deps.Executor,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		validate:   validator.New(),
		templates:  templates,
		enabled:    deps.Enabled,
		now:        time.Now,
	}
}

// SetNow overrides the clock source.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
	e.evaluator.SetNow(now)
}

// ProcessTicket walks active rules for the trigger in priority order and
// applies matching ones. Rule failures are bookkept and never halt the pass;
// StopProcessing short-circuits only after a successful execution.
func (e *Engine) ProcessTicket(ctx context.Context, ticket *domain.Ticket, trigger string) (ProcessResult, error) {
	result := ProcessResult{Executed: []string{}, Failed: []string{}, Skipped: []string{}}
	if !e.enabled {
		return result, nil
	}

	rules, err := e.rules.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return result, apperrors.MapError(err)
	}
	// The store already orders by priority; re-sort defensively so the
	// contract holds for any implementation: priority descending, id
	// ascending as the tie-break.
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	for i := range rules {
		rule := &rules[i]
		if !e.evaluator.Evaluate(rule.Conditions, ticket) {
			result.Skipped = append(result.Skipped, rule.ID)
			continue
		}

		execErr := e.executor.ExecuteActions(ctx, rule.Actions, ticket)
		e.recordExecution(ctx, rule, ticket, execErr)
		e.metrics.RecordRuleExecution(rule.ID, execErr == nil)

		if execErr != nil {
			result.Failed = append(result.Failed, rule.ID)
			e.logger.Warn("automation rule failed",
				zap.Error(execErr),
				zap.String("rule_id", rule.ID),
				zap.String("rule_name", rule.Name),
				zap.String("ticket_id", ticket.ID))
			continue
		}

		result.Executed = append(result.Executed, rule.ID)
		if err := e.rules.TouchLastExecuted(ctx, rule.ID, e.now()); err != nil {
			e.logger.Warn("touch last executed failed", zap.Error(err), zap.String("rule_id", rule.ID))
		}
		e.publishRuleExecuted(ctx, rule, ticket, true)

		if rule.StopProcessing {
			break
		}
	}
	return result, nil
}

// ProcessBatch runs ProcessTicket independently per ticket; one ticket's
// failure never affects another's.
func (e *Engine) ProcessBatch(ctx context.Context, tickets []*domain.Ticket, trigger string) BatchResult {
	batch := BatchResult{Details: make(map[string]ProcessResult, len(tickets))}
	for _, ticket := range tickets {
		result, err := e.ProcessTicket(ctx, ticket, trigger)
		if err != nil {
			e.logger.Warn("batch ticket processing failed",
				zap.Error(err), zap.String("ticket_id", ticket.ID))
		}
		batch.Details[ticket.ID] = result
		if len(result.Executed) > 0 {
			batch.Processed++
		} else {
			batch.Failed++
		}
	}
	return batch
}

// CreateRule validates and persists a new rule.
func (e *Engine) CreateRule(ctx context.Context, rule *domain.AutomationRule) error {
	if err := e.validateRule(rule); err != nil {
		return err
	}
	if err := e.rules.Create(ctx, rule); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// UpdateRule validates and persists rule changes.
func (e *Engine) UpdateRule(ctx context.Context, rule *domain.AutomationRule) error {
	if err := e.validateRule(rule); err != nil {
		return err
	}
	if err := e.rules.Update(ctx, rule); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// DeleteRule removes a rule along with its execution history.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := e.executions.DeleteByRule(ctx, id); err != nil {
		return apperrors.MapError(err)
	}
	if err := e.rules.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// TestRule dry-runs a rule against a ticket: conditions are evaluated and,
// when met, every action runs individually with its outcome captured, without
// the stop-on-priority semantics of a full pass.
func (e *Engine) TestRule(ctx context.Context, rule *domain.AutomationRule, ticket *domain.Ticket) TestResult {
	result := TestResult{Evaluated: true, Actions: []ActionOutcome{}}
	result.ConditionsMet = e.evaluator.Evaluate(rule.Conditions, ticket)
	if !result.ConditionsMet {
		return result
	}
	executedAll := true
	for _, spec := range rule.Actions {
		outcome := ActionOutcome{Type: spec.Type, Success: true}
		if err := e.executor.ExecuteAction(ctx, spec, ticket); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			result.Errors = append(result.Errors, err.Error())
			executedAll = false
		}
		result.Actions = append(result.Actions, outcome)
	}
	result.Executed = executedAll
	return result
}

// ApplyTemplate instantiates a named rule template as a persisted rule.
func (e *Engine) ApplyTemplate(ctx context.Context, templateName string) (*domain.AutomationRule, error) {
	template, ok := e.templates[templateName]
	if !ok {
		return nil, apperrors.NewNotFound("rule template", map[string]any{"template": templateName})
	}
	rule := &domain.AutomationRule{
		Name:           template.Name,
		Description:    template.Description,
		Trigger:        template.Trigger,
		Conditions:     template.Conditions,
		Actions:        template.Actions,
		Priority:       template.Priority,
		IsActive:       true,
		StopProcessing: template.StopProcessing,
	}
	if err := e.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetRuleStatistics computes success metrics from the execution audit log.
func (e *Engine) GetRuleStatistics(ctx context.Context, ruleID string) (RuleStatistics, error) {
	stats, err := e.executions.StatsByRule(ctx, ruleID)
	if err != nil {
		return RuleStatistics{}, apperrors.MapError(err)
	}
	result := RuleStatistics{
		TotalExecutions:      stats.Total,
		SuccessfulExecutions: stats.Successful,
		FailedExecutions:     stats.Failed,
		FirstExecution:       stats.FirstExecution,
		LastExecution:        stats.LastExecution,
	}
	if stats.Total > 0 {
		result.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return result, nil
}

func (e *Engine) validateRule(rule *domain.AutomationRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return apperrors.NewValidationError("rule name required", nil)
	}
	if !domain.IsValidTrigger(rule.Trigger) {
		return apperrors.NewValidationError("unknown trigger", map[string]any{"trigger": rule.Trigger})
	}
	for i, clause := range rule.Conditions {
		if err := e.validate.Struct(clause); err != nil {
			return apperrors.NewValidationError("malformed condition clause", map[string]any{"index": i})
		}
		if !domain.IsValidOperator(clause.Operator) {
			return apperrors.NewValidationError("unknown condition operator", map[string]any{
				"index":    i,
				"operator": string(clause.Operator),
			})
		}
	}
	if len(rule.Actions) == 0 {
		return apperrors.NewValidationError("rule requires at least one action", nil)
	}
	for i, spec := range rule.Actions {
		if err := e.validate.Struct(spec); err != nil {
			return apperrors.NewValidationError("malformed action spec", map[string]any{"index": i})
		}
		if !domain.IsValidActionType(spec.Type) {
			return apperrors.NewValidationError("unknown action type", map[string]any{
				"index": i,
				"type":  string(spec.Type),
			})
		}
	}
	return nil
}

func (e *Engine) recordExecution(ctx context.Context, rule *domain.AutomationRule, ticket *domain.Ticket, execErr error) {
	execution := &domain.AutomationExecution{
		ID:         uuid.NewString(),
		RuleID:     rule.ID,
		TicketID:   ticket.ID,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		Success:    execErr == nil,
		ExecutedAt: e.now(),
	}
	if execErr != nil {
		execution.Error = execErr.Error()
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		e.logger.Warn("record automation execution failed",
			zap.Error(err), zap.String("rule_id", rule.ID), zap.String("ticket_id", ticket.ID))
	}
}

func (e *Engine) publishRuleExecuted(ctx context.Context, rule *domain.AutomationRule, ticket *domain.Ticket, success bool) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRuleExecuted,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor(),
		Timestamp: e.now(),
		Payload: events.RuleExecutedPayload{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Trigger:  rule.Trigger,
			Success:  success,
		},
	})
}
