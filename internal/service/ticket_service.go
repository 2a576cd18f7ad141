package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/automation"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketService coordinates ticket lifecycle operations: creation, the
// comment thread, workflow transitions, and the automation triggers they
// fire.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	workflow   *workflow.Engine
	rules      *automation.Engine
	clock      *sla.Clock
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Workflow    *workflow.Engine
	Rules       *automation.Engine
	Clock       *sla.Clock
	Dispatcher  events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	RequesterName  string
	RequesterEmail string
	Subject        string
	Description    string
	Priority       domain.TicketPriority
	Type           domain.TicketType
	Source         string
	Tags           []string
	Categories     []string
}

// TicketListInput describes listing filters.
type TicketListInput struct {
	AssigneeID     *string
	RequesterEmail *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	Types          []domain.TicketType
	Tag            *string
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// CommentInput describes a new thread entry.
type CommentInput struct {
	AuthorType domain.CommentAuthorType
	AuthorID   *string
	Visibility domain.CommentVisibility
	Body       string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		workflow:   deps.Workflow,
		rules:      deps.Rules,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
	}
}

// CreateTicket opens a new ticket. SLA due dates are stamped before the
// insert and the ticket_created trigger runs after it.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return nil, apperrors.NewValidationError("subject required", nil)
	}
	if strings.TrimSpace(input.RequesterEmail) == "" {
		return nil, apperrors.NewValidationError("requester email required", nil)
	}

	ticket := &domain.Ticket{
		ExternalKey:    generateTicketKey(),
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		Subject:        strings.TrimSpace(input.Subject),
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		Priority:       input.Priority,
		Type:           input.Type,
		Source:         input.Source,
		Tags:           input.Tags,
		Categories:     input.Categories,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if !domain.IsValidPriority(ticket.Priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(ticket.Priority)})
	}
	if ticket.Type == "" {
		ticket.Type = domain.TicketTypeGeneral
	}
	if !domain.IsValidTicketType(ticket.Type) {
		return nil, apperrors.NewValidationError("unknown ticket type", map[string]any{"type": string(ticket.Type)})
	}

	if s.clock != nil {
		s.clock.CalculateDueDates(ticket)
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.RequesterActor(),
		Payload: events.TicketCreatedPayload{
			Subject:        ticket.Subject,
			Priority:       ticket.Priority,
			Type:           ticket.Type,
			RequesterEmail: ticket.RequesterEmail,
		},
	})
	if s.rules != nil {
		_, _ = s.rules.ProcessTicket(ctx, ticket, domain.TriggerTicketCreated)
	}
	return ticket, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetTicketByKey fetches a ticket by its external key.
func (s *TicketService) GetTicketByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByExternalKey(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"external_key": key})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, input TicketListInput) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		AssigneeID:     input.AssigneeID,
		RequesterEmail: input.RequesterEmail,
		Statuses:       input.Statuses,
		Priorities:     input.Priorities,
		Types:          input.Types,
		Tag:            input.Tag,
		SearchTerm:     input.SearchTerm,
		CreatedFrom:    input.CreatedFrom,
		CreatedTo:      input.CreatedTo,
		Limit:          input.Limit,
		Offset:         input.Offset,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListComments returns the thread. Internal notes are filtered out unless
// requested.
func (s *TicketService) ListComments(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID, includeInternal)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return comments, nil
}

// AddComment appends a thread entry. The first public agent reply stamps
// FirstResponseAt; every comment fires the comment_added trigger.
func (s *TicketService) AddComment(ctx context.Context, ticketID string, input CommentInput) (*domain.Comment, error) {
	if strings.TrimSpace(input.Body) == "" {
		return nil, apperrors.NewValidationError("comment body required", nil)
	}
	if input.Visibility == "" {
		input.Visibility = domain.VisibilityPublic
	}
	if input.AuthorType == domain.AuthorTypeRequester && input.Visibility == domain.VisibilityInternal {
		return nil, apperrors.NewValidationError("requesters cannot post internal notes", nil)
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorType: input.AuthorType,
		AuthorID:   input.AuthorID,
		Visibility: input.Visibility,
		Body:       strings.TrimSpace(input.Body),
		CreatedAt:  time.Now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.FirstResponseAt == nil &&
		comment.AuthorType == domain.AuthorTypeAgent &&
		comment.Visibility == domain.VisibilityPublic {
		at := comment.CreatedAt
		ticket.FirstResponseAt = &at
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    commentActor(comment),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorType:  comment.AuthorType,
			Visibility:  comment.Visibility,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	if s.rules != nil {
		_, _ = s.rules.ProcessTicket(ctx, ticket, domain.TriggerCommentAdded)
	}
	return comment, nil
}

// StatusChangeInput describes a workflow transition request.
type StatusChangeInput struct {
	To         domain.TicketStatus
	Comment    string
	Resolution string
	Workflow   string
}

// ChangeStatus moves the ticket through the workflow. Transitions marked as
// requiring a comment or a resolution are rejected without one; the comment
// is recorded on the thread before the transition runs.
func (s *TicketService) ChangeStatus(ctx context.Context, agentID, ticketID string, input StatusChangeInput) (*domain.Ticket, error) {
	if !domain.IsValidStatus(input.To) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(input.To)})
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	resolution := strings.TrimSpace(input.Resolution)
	if spec, ok := s.workflow.TransitionSpecFor(ticket.Status, input.To, input.Workflow); ok {
		if spec.RequiresComment && strings.TrimSpace(input.Comment) == "" {
			return nil, apperrors.NewValidationError("transition requires a comment",
				map[string]any{"from": string(ticket.Status), "to": string(input.To)})
		}
		if spec.RequiresResolution && resolution == "" && ticket.Resolution == nil {
			return nil, apperrors.NewValidationError("transition requires a resolution",
				map[string]any{"from": string(ticket.Status), "to": string(input.To)})
		}
	}
	if strings.TrimSpace(input.Comment) != "" {
		if _, err := s.AddComment(ctx, ticket.ID, CommentInput{
			AuthorType: domain.AuthorTypeAgent,
			AuthorID:   &agentID,
			Visibility: domain.VisibilityPublic,
			Body:       input.Comment,
		}); err != nil {
			return nil, err
		}
		// The comment may have stamped FirstResponseAt and bumped the
		// version; transition from the current row.
		ticket, err = s.GetTicket(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
	}
	if resolution != "" {
		ticket.Resolution = &resolution
	}

	oldStatus := ticket.Status
	if err := s.workflow.Transition(ctx, ticket, input.To, input.Workflow); err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, agentID, ticket.ID, oldStatus, ticket.Status, input.Comment)
	return ticket, nil
}

// AvailableTransitions lists the transitions currently permitted for a
// ticket, with guards already applied.
func (s *TicketService) AvailableTransitions(ctx context.Context, ticketID, workflowName string) ([]workflow.TransitionOption, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.workflow.AvailableTransitions(ticket, workflowName), nil
}

// ChangePriority updates ticket priority and fires the ticket_updated
// trigger.
func (s *TicketService) ChangePriority(ctx context.Context, agentID, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !domain.IsValidPriority(newPriority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(newPriority)})
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == newPriority {
		return ticket, nil
	}
	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if s.clock != nil {
		s.clock.CalculateDueDates(ticket)
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, agentID, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": newPriority})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    events.AgentActor(agentID),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
		},
	})
	if s.rules != nil {
		_, _ = s.rules.ProcessTicket(ctx, ticket, domain.TriggerTicketUpdated)
	}
	return ticket, nil
}

// Assign sets or clears the ticket assignee.
func (s *TicketService) Assign(ctx context.Context, agentID, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldAssignee := ticket.AssigneeID
	ticket.AssigneeID = assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, agentID, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee_id": oldAssignee},
		map[string]any{"assignee_id": assigneeID})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.AgentActor(agentID),
		Payload:  events.TicketAssignedPayload{AssigneeID: assigneeID},
	})
	if s.rules != nil {
		_, _ = s.rules.ProcessTicket(ctx, ticket, domain.TriggerTicketUpdated)
	}
	return ticket, nil
}

// UpdateTags replaces the ticket tag set.
func (s *TicketService) UpdateTags(ctx context.Context, agentID, ticketID string, tags []string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldTags := ticket.Tags
	ticket.Tags = tags
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, agentID, ticket.ID, domain.ChangeTypeTags,
		map[string]any{"tags": oldTags},
		map[string]any{"tags": tags})
	if s.rules != nil {
		_, _ = s.rules.ProcessTicket(ctx, ticket, domain.TriggerTicketUpdated)
	}
	return ticket, nil
}

// DeleteTicket soft deletes a ticket.
func (s *TicketService) DeleteTicket(ctx context.Context, agentID, ticketID string) error {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.SoftDelete(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    events.AgentActor(agentID),
	})
	return nil
}

// ListHistory returns the audit trail for a ticket.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// SLACompliance evaluates the ticket against its SLA targets.
func (s *TicketService) SLACompliance(ctx context.Context, ticketID string) (sla.ComplianceReport, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return sla.ComplianceReport{}, err
	}
	return s.clock.CheckCompliance(ticket), nil
}

func (s *TicketService) recordStatusChange(ctx context.Context, agentID, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) {
	newValue := map[string]any{"status": newStatus}
	if comment != "" {
		newValue["comment"] = comment
	}
	s.recordHistory(ctx, agentID, ticketID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus}, newValue)
}

func (s *TicketService) recordHistory(ctx context.Context, agentID, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeAgent,
		ChangedByID:   &agentID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     time.Now(),
	}
	_ = s.history.Create(ctx, entry)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func commentActor(comment *domain.Comment) events.Actor {
	if comment.AuthorType == domain.AuthorTypeAgent && comment.AuthorID != nil {
		return events.AgentActor(*comment.AuthorID)
	}
	if comment.AuthorType == domain.AuthorTypeSystem {
		return events.SystemActor()
	}
	return events.RequesterActor()
}

func generateTicketKey() string {
	return "HD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
