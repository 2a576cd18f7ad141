package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketStore is the persistence contract action handlers mutate through.
type TicketStore interface {
	Update(ctx context.Context, ticket *domain.Ticket) error
	SoftDelete(ctx context.Context, ticket *domain.Ticket) error
}

// CommentStore creates thread comments from automation.
type CommentStore interface {
	Create(ctx context.Context, comment *domain.Comment) error
}

// NotificationStore records outbound notifications.
type NotificationStore interface {
	Create(ctx context.Context, notification *domain.Notification) error
}

// AgentStore resolves assignment targets.
type AgentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
}

// Transitioner re-enters the status state machine for change_status actions.
// Satisfied by the workflow engine.
type Transitioner interface {
	Transition(ctx context.Context, ticket *domain.Ticket, to domain.TicketStatus, workflowName string) error
}

// Executor applies parameterized effects from the fixed action catalogue.
// Each handler validates its own required parameters.
type Executor struct {
	tickets       TicketStore
	comments      CommentStore
	notifications NotificationStore
	agents        AgentStore
	transitioner  Transitioner
	templates     map[string]string
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	now           func() time.Time
}

// ExecutorDependencies bundles collaborator stores for the executor.
type ExecutorDependencies struct {
	Tickets       TicketStore
	Comments      CommentStore
	Notifications NotificationStore
	Agents        AgentStore
	Transitioner  Transitioner
	// Templates maps response template names to canned comment bodies.
	Templates  map[string]string
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewExecutor constructs an executor.
func NewExecutor(deps ExecutorDependencies) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := deps.Templates
	if templates == nil {
		templates = map[string]string{}
	}
	return &Executor{
		tickets:       deps.Tickets,
		comments:      deps.Comments,
		notifications: deps.Notifications,
		agents:        deps.Agents,
		transitioner:  deps.Transitioner,
		templates:     templates,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		now:           time.Now,
	}
}

// SetTransitioner wires the workflow engine after construction.
func (x *Executor) SetTransitioner(t Transitioner) {
	x.transitioner = t
}

// ExecuteActions runs handlers in order, stopping at the first failure.
// Effects already applied by earlier handlers are not rolled back.
func (x *Executor) ExecuteActions(ctx context.Context, specs []domain.ActionSpec, ticket *domain.Ticket) error {
	for _, spec := range specs {
		if err := x.ExecuteAction(ctx, spec, ticket); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteAction applies one effect from the catalogue.
func (x *Executor) ExecuteAction(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	switch spec.Type {
	case domain.ActionAssign:
		return x.assign(ctx, spec, ticket)
	case domain.ActionUnassign:
		return x.unassign(ctx, ticket)
	case domain.ActionChangeStatus:
		return x.changeStatus(ctx, spec, ticket)
	case domain.ActionChangePriority:
		return x.changePriority(ctx, spec, ticket)
	case domain.ActionAddTags:
		return x.addTags(ctx, spec, ticket)
	case domain.ActionRemoveTags:
		return x.removeTags(ctx, spec, ticket)
	case domain.ActionAddCategory:
		return x.addCategory(ctx, spec, ticket)
	case domain.ActionRemoveCategory:
		return x.removeCategory(ctx, spec, ticket)
	case domain.ActionAddComment:
		return x.addComment(ctx, spec, ticket)
	case domain.ActionNotify:
		return x.notify(ctx, spec, ticket)
	case domain.ActionEscalate:
		return x.escalate(ctx, spec, ticket)
	case domain.ActionApplyTemplate:
		return x.applyTemplate(ctx, spec, ticket)
	case domain.ActionDelete:
		return x.deleteTicket(ctx, ticket)
	}
	return apperrors.NewActionExecutionError(string(spec.Type), "unknown action type", nil)
}

func (x *Executor) assign(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	agentID, err := stringParam(spec, "agent_id")
	if err != nil {
		return err
	}
	agent, err := x.agents.GetByID(ctx, agentID)
	if err != nil {
		return apperrors.NewActionExecutionError(string(spec.Type), "assignee lookup failed", map[string]any{"agent_id": agentID})
	}
	if !agent.Active {
		return apperrors.NewActionExecutionError(string(spec.Type), "assignee inactive", map[string]any{"agent_id": agentID})
	}
	ticket.AssigneeID = &agent.ID
	if err := x.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	x.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{AssigneeID: ticket.AssigneeID})
	return nil
}

func (x *Executor) unassign(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.AssigneeID == nil {
		return nil
	}
	ticket.AssigneeID = nil
	if err := x.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	x.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{AssigneeID: nil})
	return nil
}

func (x *Executor) changeStatus(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	raw, err := stringParam(spec, "status")
	if err != nil {
		return err
	}
	status := domain.TicketStatus(raw)
	if !domain.IsValidStatus(status) {
		return apperrors.NewActionExecutionError(string(spec.Type), "unknown status", map[string]any{"status": raw})
	}
	if x.transitioner == nil {
		return apperrors.NewActionExecutionError(string(spec.Type), "no transitioner configured", nil)
	}
	workflowName, _ := optionalStringParam(spec, "workflow")
	return x.transitioner.Transition(ctx, ticket, status, workflowName)
}

func (x *Executor) changePriority(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	raw, err := stringParam(spec, "priority")
	if err != nil {
		return err
	}
	priority := domain.TicketPriority(raw)
	if domain.PriorityRank(priority) == 0 {
		return apperrors.NewActionExecutionError(string(spec.Type), "unknown priority", map[string]any{"priority": raw})
	}
	old := ticket.Priority
	ticket.Priority = priority
	if err := x.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	x.publish(ctx, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
		OldPriority: old,
		NewPriority: priority,
	})
	return nil
}

func (x *Executor) addTags(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	tags, err := stringListParam(spec, "tags")
	if err != nil {
		return err
	}
	changed := false
	for _, tag := range tags {
		if !ticket.HasTag(tag) {
			ticket.Tags = append(ticket.Tags, tag)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return x.tickets.Update(ctx, ticket)
}

func (x *Executor) removeTags(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	tags, err := stringListParam(spec, "tags")
	if err != nil {
		return err
	}
	remove := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		remove[tag] = struct{}{}
	}
	kept := ticket.Tags[:0]
	changed := false
	for _, tag := range ticket.Tags {
		if _, drop := remove[tag]; drop {
			changed = true
			continue
		}
		kept = append(kept, tag)
	}
	if !changed {
		return nil
	}
	ticket.Tags = kept
	return x.tickets.Update(ctx, ticket)
}

func (x *Executor) addCategory(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	category, err := stringParam(spec, "category")
	if err != nil {
		return err
	}
	if ticket.HasCategory(category) {
		return nil
	}
	ticket.Categories = append(ticket.Categories, category)
	return x.tickets.Update(ctx, ticket)
}

func (x *Executor) removeCategory(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	category, err := stringParam(spec, "category")
	if err != nil {
		return err
	}
	if !ticket.HasCategory(category) {
		return nil
	}
	kept := ticket.Categories[:0]
	for _, existing := range ticket.Categories {
		if existing != category {
			kept = append(kept, existing)
		}
	}
	ticket.Categories = kept
	return x.tickets.Update(ctx, ticket)
}

func (x *Executor) addComment(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	body, err := stringParam(spec, "body")
	if err != nil {
		return err
	}
	visibility := domain.VisibilityInternal
	if raw, ok := optionalStringParam(spec, "visibility"); ok {
		switch domain.CommentVisibility(raw) {
		case domain.VisibilityPublic:
			visibility = domain.VisibilityPublic
		case domain.VisibilityInternal:
			visibility = domain.VisibilityInternal
		default:
			return apperrors.NewActionExecutionError(string(spec.Type), "unknown visibility", map[string]any{"visibility": raw})
		}
	}
	comment := &domain.Comment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorType: domain.AuthorTypeSystem,
		Visibility: visibility,
		Body:       body,
		CreatedAt:  x.now(),
	}
	if err := x.comments.Create(ctx, comment); err != nil {
		return err
	}
	x.publish(ctx, events.EventTicketCommentAdded, ticket.ID, events.TicketCommentAddedPayload{
		CommentID:   comment.ID,
		AuthorType:  domain.AuthorTypeSystem,
		Visibility:  visibility,
		BodyPreview: preview(body, 120),
	})
	return nil
}

func (x *Executor) notify(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	recipient, ok := optionalStringParam(spec, "recipient")
	if !ok {
		recipient = ticket.RequesterEmail
	}
	if recipient == "" {
		return apperrors.NewActionExecutionError(string(spec.Type), "no recipient", nil)
	}
	channel := domain.ChannelEmail
	if raw, ok := optionalStringParam(spec, "channel"); ok {
		channel = domain.NotificationChannel(raw)
	}
	subject, _ := optionalStringParam(spec, "subject")
	if subject == "" {
		subject = "Update on ticket " + ticket.ExternalKey
	}
	body, _ := optionalStringParam(spec, "body")
	return x.notifications.Create(ctx, &domain.Notification{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: x.now(),
	})
}

// escalate bumps the ticket one priority level and notifies the assignee or
// a configured recipient.
func (x *Executor) escalate(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	old := ticket.Priority
	switch old {
	case domain.TicketPriorityLow:
		ticket.Priority = domain.TicketPriorityMedium
	case domain.TicketPriorityMedium:
		ticket.Priority = domain.TicketPriorityHigh
	case domain.TicketPriorityHigh:
		ticket.Priority = domain.TicketPriorityUrgent
	case domain.TicketPriorityUrgent:
		// already at ceiling; escalation still notifies
	default:
		return apperrors.NewActionExecutionError(string(spec.Type), "ticket has unknown priority", map[string]any{"priority": string(old)})
	}
	if ticket.Priority != old {
		if err := x.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		x.publish(ctx, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
			OldPriority: old,
			NewPriority: ticket.Priority,
		})
	}
	recipient, ok := optionalStringParam(spec, "recipient")
	if !ok || recipient == "" {
		return nil
	}
	return x.notifications.Create(ctx, &domain.Notification{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Channel:   domain.ChannelEmail,
		Recipient: recipient,
		Subject:   "Ticket " + ticket.ExternalKey + " escalated",
		Body:      fmt.Sprintf("Priority raised from %s to %s.", old, ticket.Priority),
		CreatedAt: x.now(),
	})
}

func (x *Executor) applyTemplate(ctx context.Context, spec domain.ActionSpec, ticket *domain.Ticket) error {
	name, err := stringParam(spec, "template")
	if err != nil {
		return err
	}
	body, ok := x.templates[name]
	if !ok {
		return apperrors.NewActionExecutionError(string(spec.Type), "unknown response template", map[string]any{"template": name})
	}
	comment := &domain.Comment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorType: domain.AuthorTypeSystem,
		Visibility: domain.VisibilityPublic,
		Body:       body,
		CreatedAt:  x.now(),
	}
	return x.comments.Create(ctx, comment)
}

func (x *Executor) deleteTicket(ctx context.Context, ticket *domain.Ticket) error {
	if err := x.tickets.SoftDelete(ctx, ticket); err != nil {
		return err
	}
	x.publish(ctx, events.EventTicketDeleted, ticket.ID, nil)
	return nil
}

func (x *Executor) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if x.dispatcher == nil {
		return
	}
	_ = x.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.SystemActor(),
		Timestamp: x.now(),
		Payload:   payload,
	})
}

func stringParam(spec domain.ActionSpec, key string) (string, error) {
	value, ok := optionalStringParam(spec, key)
	if !ok || value == "" {
		return "", apperrors.NewActionExecutionError(string(spec.Type), "missing required parameter", map[string]any{"param": key})
	}
	return value, nil
}

func optionalStringParam(spec domain.ActionSpec, key string) (string, bool) {
	raw, ok := spec.Params[key]
	if !ok {
		return "", false
	}
	str, ok := raw.(string)
	return str, ok
}

func stringListParam(spec domain.ActionSpec, key string) ([]string, error) {
	raw, ok := spec.Params[key]
	if !ok {
		return nil, apperrors.NewActionExecutionError(string(spec.Type), "missing required parameter", map[string]any{"param": key})
	}
	list, ok := asStringList(raw)
	if !ok || len(list) == 0 {
		return nil, apperrors.NewActionExecutionError(string(spec.Type), "parameter must be a non-empty string list", map[string]any{"param": key})
	}
	return list, nil
}

func preview(body string, max int) string {
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
