package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Guard is a named pure predicate over a proposed transition.
type Guard interface {
	Name() string
	Allow(ticket *domain.Ticket, from, to domain.TicketStatus) bool
}

// Action is a named side effect run before or after a transition commits.
type Action interface {
	Name() string
	Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error
}

// TicketStore is the narrow persistence contract the engine needs.
type TicketStore interface {
	Update(ctx context.Context, ticket *domain.Ticket) error
}

// RuleProcessor fires automation for a committed transition. Processing
// failures are bookkept inside the rule engine; only transport-level errors
// surface here, and the engine merely logs them.
type RuleProcessor interface {
	ProcessStatusChange(ctx context.Context, ticket *domain.Ticket) error
}

// RuleProcessorFunc adapts a function to RuleProcessor.
type RuleProcessorFunc func(ctx context.Context, ticket *domain.Ticket) error

func (f RuleProcessorFunc) ProcessStatusChange(ctx context.Context, ticket *domain.Ticket) error {
	return f(ctx, ticket)
}

// Engine is a named, pluggable guarded state machine over ticket status.
// Guards and actions are registered as typed implementations; workflow
// definitions bind them by name and are validated at registration, so an
// unknown name is a configuration error rather than a silent no-op.
type Engine struct {
	mu        sync.RWMutex
	workflows map[string]*Definition
	guards    map[string]Guard
	actions   map[string]Action

	tickets    TicketStore
	rules      RuleProcessor
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// EngineDependencies bundles collaborators for the engine.
type EngineDependencies struct {
	Tickets    TicketStore
	Rules      RuleProcessor
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewEngine constructs an engine with empty registries.
func NewEngine(deps EngineDependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		workflows:  make(map[string]*Definition),
		guards:     make(map[string]Guard),
		actions:    make(map[string]Action),
		tickets:    deps.Tickets,
		rules:      deps.Rules,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SetRuleProcessor wires the automation engine after construction; the rule
// engine itself needs the workflow engine for change_status actions, so one
// side has to be attached late.
func (e *Engine) SetRuleProcessor(rules RuleProcessor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

// SetNow overrides the clock source.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// RegisterGuard adds or replaces a guard; last registration for a name wins.
func (e *Engine) RegisterGuard(guard Guard) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guards[guard.Name()] = guard
}

// RegisterAction adds or replaces an action; last registration for a name wins.
func (e *Engine) RegisterAction(action Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions[action.Name()] = action
}

// RegisterWorkflow validates and installs a definition. Every guard and
// action name referenced by the definition must already be registered.
func (e *Engine) RegisterWorkflow(def *Definition) error {
	if def == nil {
		return fmt.Errorf("nil workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, spec := range def.Transitions {
		for _, name := range spec.Guards {
			if _, ok := e.guards[name]; !ok {
				return fmt.Errorf("workflow %q transition %s: unknown guard %q", def.Name, key, name)
			}
		}
		for _, name := range append(append([]string{}, spec.Before...), spec.After...) {
			if _, ok := e.actions[name]; !ok {
				return fmt.Errorf("workflow %q transition %s: unknown action %q", def.Name, key, name)
			}
		}
	}
	e.workflows[def.Name] = def
	return nil
}

// CanTransition reports whether the named workflow permits moving the ticket
// to the target status: the edge must exist and every guard must pass.
func (e *Engine) CanTransition(ticket *domain.Ticket, to domain.TicketStatus, workflowName string) bool {
	if workflowName == "" {
		workflowName = DefaultWorkflowName
	}
	spec, ok := e.lookup(ticket.Status, to, workflowName)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, name := range spec.Guards {
		guard, ok := e.guards[name]
		if !ok || !guard.Allow(ticket, ticket.Status, to) {
			return false
		}
	}
	return true
}

// Transition moves the ticket to the target status: before-actions, mutation,
// persistence, and after-actions form one commit-or-restore unit. A rejected
// transition leaves the ticket untouched. Requesting the current status is
// reported distinctly from a guard veto.
func (e *Engine) Transition(ctx context.Context, ticket *domain.Ticket, to domain.TicketStatus, workflowName string) error {
	if workflowName == "" {
		workflowName = DefaultWorkflowName
	}
	if ticket.Status == to {
		return apperrors.NewConflict("ticket already in requested status", map[string]any{
			"status": string(to),
		})
	}
	spec, ok := e.lookup(ticket.Status, to, workflowName)
	if !ok || !e.CanTransition(ticket, to, workflowName) {
		return apperrors.NewInvalidTransition("transition not allowed", map[string]any{
			"from":     string(ticket.Status),
			"to":       string(to),
			"workflow": workflowName,
		})
	}

	from := ticket.Status
	snapshot := snapshotTicket(ticket)

	if err := e.runActions(ctx, spec.Before, ticket, from, to); err != nil {
		restoreTicket(ticket, snapshot)
		return err
	}

	ticket.Status = to
	if domain.IsTerminal(to) {
		closedAt := e.now()
		ticket.ClosedAt = &closedAt
	} else if ticket.ClosedAt != nil {
		ticket.ClosedAt = nil
	}

	if err := e.tickets.Update(ctx, ticket); err != nil {
		restoreTicket(ticket, snapshot)
		return apperrors.MapError(err)
	}

	if err := e.runActions(ctx, spec.After, ticket, from, to); err != nil {
		// The mutation is already persisted; restore the business fields but
		// keep the advanced version so the compensating save passes the
		// optimistic check.
		savedVersion := ticket.Version
		restoreTicket(ticket, snapshot)
		ticket.Version = savedVersion
		if saveErr := e.tickets.Update(ctx, ticket); saveErr != nil {
			e.logger.Error("rollback save after failed after-action",
				zap.Error(saveErr), zap.String("ticket_id", ticket.ID))
		}
		return err
	}

	e.metrics.RecordTransition(string(from), string(to))
	e.publishStatusChanged(ctx, ticket, from, to, workflowName)

	if spec.TriggersAutomation && e.rules != nil {
		if err := e.rules.ProcessStatusChange(ctx, ticket); err != nil {
			e.logger.Warn("automation after transition failed",
				zap.Error(err),
				zap.String("ticket_id", ticket.ID),
				zap.String("to", string(to)))
		}
	}
	return nil
}

// AvailableTransitions lists every status the ticket can move to under the
// named workflow, excluding its current status.
func (e *Engine) AvailableTransitions(ticket *domain.Ticket, workflowName string) []TransitionOption {
	if workflowName == "" {
		workflowName = DefaultWorkflowName
	}
	options := make([]TransitionOption, 0)
	for _, status := range domain.AllStatuses {
		if status == ticket.Status {
			continue
		}
		if !e.CanTransition(ticket, status, workflowName) {
			continue
		}
		spec, _ := e.lookup(ticket.Status, status, workflowName)
		options = append(options, TransitionOption{
			Status:             status,
			Label:              spec.Label,
			Description:        spec.Description,
			RequiresComment:    spec.RequiresComment,
			RequiresResolution: spec.RequiresResolution,
		})
	}
	return options
}

// TransitionSpecFor exposes the rules bound to an edge so caller layers can
// enforce RequiresComment / RequiresResolution.
func (e *Engine) TransitionSpecFor(from, to domain.TicketStatus, workflowName string) (TransitionSpec, bool) {
	if workflowName == "" {
		workflowName = DefaultWorkflowName
	}
	return e.lookup(from, to, workflowName)
}

func (e *Engine) lookup(from, to domain.TicketStatus, workflowName string) (TransitionSpec, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.workflows[workflowName]
	if !ok {
		return TransitionSpec{}, false
	}
	spec, ok := def.Transitions[TransitionKey{From: from, To: to}]
	return spec, ok
}

func (e *Engine) runActions(ctx context.Context, names []string, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	e.mu.RLock()
	actions := make([]Action, 0, len(names))
	for _, name := range names {
		if action, ok := e.actions[name]; ok {
			actions = append(actions, action)
		}
	}
	e.mu.RUnlock()

	for _, action := range actions {
		if err := action.Run(ctx, ticket, from, to); err != nil {
			return apperrors.NewActionExecutionError(action.Name(), "transition action failed", map[string]any{
				"ticket_id": ticket.ID,
				"from":      string(from),
				"to":        string(to),
				"cause":     err.Error(),
			})
		}
	}
	return nil
}

func (e *Engine) publishStatusChanged(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus, workflowName string) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor(),
		Timestamp: e.now(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: to,
			Workflow:  workflowName,
		},
	})
}

// snapshotTicket copies the whole ticket value so a failed transition can
// undo every field a before-action touched, not just the status bookkeeping.
func snapshotTicket(t *domain.Ticket) domain.Ticket {
	return *t
}

func restoreTicket(t *domain.Ticket, s domain.Ticket) {
	*t = s
}
