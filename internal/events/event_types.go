package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketCommentAdded    EventType = "ticket_comment_added"
	EventTicketDeleted         EventType = "ticket_deleted"
	EventRuleExecuted          EventType = "rule_executed"
	EventSLABreached           EventType = "sla_breached"
)

// AllEventTypes lists every event the dispatcher can carry, for sinks that
// subscribe to the full stream.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketCommentAdded,
	EventTicketDeleted,
	EventRuleExecuted,
	EventSLABreached,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.CommentAuthorType `json:"type"`
	AgentID *string                  `json:"agent_id,omitempty"`
}

// SystemActor is the actor for effects produced by automation or workers.
func SystemActor() Actor {
	return Actor{Type: domain.AuthorTypeSystem}
}

// AgentActor identifies an agent-initiated event.
func AgentActor(agentID string) Actor {
	return Actor{Type: domain.AuthorTypeAgent, AgentID: &agentID}
}

// RequesterActor identifies an end-requester initiated event.
func RequesterActor() Actor {
	return Actor{Type: domain.AuthorTypeRequester}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject        string                `json:"subject"`
	Priority       domain.TicketPriority `json:"priority"`
	Type           domain.TicketType     `json:"ticket_type"`
	RequesterEmail string                `json:"requester_email"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Workflow  string              `json:"workflow"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string                   `json:"comment_id"`
	AuthorType  domain.CommentAuthorType `json:"author_type"`
	Visibility  domain.CommentVisibility `json:"visibility"`
	BodyPreview string                   `json:"body_preview"`
}

// RuleExecutedPayload payload.
type RuleExecutedPayload struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Trigger  string `json:"trigger"`
	Success  bool   `json:"success"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	BreachType domain.SLABreachType `json:"breach_type"`
	DueAt      time.Time            `json:"due_at"`
}
