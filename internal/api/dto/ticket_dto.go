package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	RequesterName  string                `json:"requester_name"`
	RequesterEmail string                `json:"requester_email"`
	Subject        string                `json:"subject"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	Type           domain.TicketType     `json:"type"`
	Source         string                `json:"source"`
	Tags           []string              `json:"tags"`
	Categories     []string              `json:"categories"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Subject     string                `json:"subject"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Type        domain.TicketType     `json:"type"`
	AssigneeID  *string               `json:"assignee_id"`
	Tags        []string              `json:"tags"`
	SLABreached bool                  `json:"sla_breached"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID                 string                  `json:"id"`
	ExternalKey        string                  `json:"external_key"`
	RequesterName      string                  `json:"requester_name"`
	RequesterEmail     string                  `json:"requester_email"`
	AssigneeID         *string                 `json:"assignee_id"`
	Subject            string                  `json:"subject"`
	Description        string                  `json:"description"`
	Status             domain.TicketStatus     `json:"status"`
	Priority           domain.TicketPriority   `json:"priority"`
	Type               domain.TicketType       `json:"type"`
	Source             string                  `json:"source"`
	Tags               []string                `json:"tags"`
	Categories         []string                `json:"categories"`
	Resolution         *string                 `json:"resolution"`
	FirstResponseAt    *time.Time              `json:"first_response_at"`
	FirstResponseDueAt *time.Time              `json:"first_response_due_at"`
	ResolutionDueAt    *time.Time              `json:"resolution_due_at"`
	SLABreached        bool                    `json:"sla_breached"`
	SLABreachType      *domain.SLABreachType   `json:"sla_breach_type"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
	ClosedAt           *time.Time              `json:"closed_at"`
	Comments           []CommentResponse       `json:"comments,omitempty"`
	History            []TicketHistoryResponse `json:"history,omitempty"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.CommentAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id"`
	Visibility domain.CommentVisibility `json:"visibility"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body       string                    `json:"body"`
	Visibility *domain.CommentVisibility `json:"visibility,omitempty"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status     domain.TicketStatus `json:"status"`
	Comment    string              `json:"comment"`
	Resolution string              `json:"resolution"`
	Workflow   string              `json:"workflow"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload. A nil assignee clears the assignment.
type AssignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// UpdateTagsRequest payload.
type UpdateTagsRequest struct {
	Tags []string `json:"tags"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID            string                   `json:"id"`
	ChangeType    domain.TicketChangeType  `json:"change_type"`
	ChangedByType domain.CommentAuthorType `json:"changed_by_type"`
	ChangedByID   *string                  `json:"changed_by_id"`
	OldValue      map[string]any           `json:"old_value"`
	NewValue      map[string]any           `json:"new_value"`
	CreatedAt     time.Time                `json:"created_at"`
}

// AnalysisResponse wraps the model triage suggestion.
type AnalysisResponse struct {
	Summary           string                `json:"summary"`
	SuggestedPriority domain.TicketPriority `json:"suggested_priority"`
	SuggestedType     domain.TicketType     `json:"suggested_type"`
	SuggestedTags     []string              `json:"suggested_tags"`
}
