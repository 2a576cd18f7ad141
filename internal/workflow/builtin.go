package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Guard names bound by the shipped workflow configuration.
const (
	GuardCanReopen        = "can_reopen"
	GuardHasAssignee      = "has_assignee"
	GuardNotDeleted       = "not_deleted"
	GuardHasResolutionDue = "has_resolution_due"
)

// Action names bound by the shipped workflow configuration.
const (
	ActionClearAssignee      = "clear_assignee"
	ActionRecordHistory      = "record_history"
	ActionNotifyRequester    = "notify_requester"
	ActionStampFirstResponse = "stamp_first_response"
)

// DefaultReopenWindow bounds how long after closing a ticket may be reopened.
const DefaultReopenWindow = 30 * 24 * time.Hour

// ReopenWindowGuard permits reopening only within a window after ClosedAt.
// A ticket closed exactly at the window boundary may still be reopened.
type ReopenWindowGuard struct {
	Window time.Duration
	Now    func() time.Time
}

// NewReopenWindowGuard builds the guard with the default 30-day window.
func NewReopenWindowGuard() *ReopenWindowGuard {
	return &ReopenWindowGuard{Window: DefaultReopenWindow, Now: time.Now}
}

func (g *ReopenWindowGuard) Name() string { return GuardCanReopen }

func (g *ReopenWindowGuard) Allow(ticket *domain.Ticket, from, to domain.TicketStatus) bool {
	if ticket.ClosedAt == nil {
		return true
	}
	return g.Now().Sub(*ticket.ClosedAt) <= g.Window
}

// HasAssigneeGuard requires the ticket to be assigned.
type HasAssigneeGuard struct{}

func (HasAssigneeGuard) Name() string { return GuardHasAssignee }

func (HasAssigneeGuard) Allow(ticket *domain.Ticket, from, to domain.TicketStatus) bool {
	return ticket.AssigneeID != nil && *ticket.AssigneeID != ""
}

// NotDeletedGuard blocks transitions on soft-deleted tickets.
type NotDeletedGuard struct{}

func (NotDeletedGuard) Name() string { return GuardNotDeleted }

func (NotDeletedGuard) Allow(ticket *domain.Ticket, from, to domain.TicketStatus) bool {
	return ticket.DeletedAt == nil
}

// HasResolutionDueGuard requires an SLA resolution deadline on the ticket.
// Edges that escalate into SLA-driven states bind it.
type HasResolutionDueGuard struct{}

func (HasResolutionDueGuard) Name() string { return GuardHasResolutionDue }

func (HasResolutionDueGuard) Allow(ticket *domain.Ticket, from, to domain.TicketStatus) bool {
	return ticket.ResolutionDueAt != nil
}

// ClearAssigneeAction drops the assignee, used when a closed ticket reopens.
type ClearAssigneeAction struct{}

func (ClearAssigneeAction) Name() string { return ActionClearAssignee }

func (ClearAssigneeAction) Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	ticket.AssigneeID = nil
	return nil
}

// StampFirstResponseAction marks the first response milestone when an agent
// takes the ticket up before any public reply was posted.
type StampFirstResponseAction struct {
	Now func() time.Time
}

func (a *StampFirstResponseAction) Name() string { return ActionStampFirstResponse }

func (a *StampFirstResponseAction) Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	if ticket.FirstResponseAt != nil {
		return nil
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	at := now().UTC()
	ticket.FirstResponseAt = &at
	return nil
}

// HistoryStore is the sink for transition audit entries.
type HistoryStore interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
}

// RecordHistoryAction writes a status-change audit entry after commit.
type RecordHistoryAction struct {
	History HistoryStore
}

func (a *RecordHistoryAction) Name() string { return ActionRecordHistory }

func (a *RecordHistoryAction) Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	if a.History == nil {
		return nil
	}
	return a.History.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticket.ID,
		ChangedByType: domain.AuthorTypeSystem,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      map[string]any{"status": from},
		NewValue:      map[string]any{"status": to},
		CreatedAt:     time.Now().UTC(),
	})
}

// NotificationStore is the sink for requester notifications.
type NotificationStore interface {
	Create(ctx context.Context, notification *domain.Notification) error
}

// NotifyRequesterAction records an outbound notification about the change.
type NotifyRequesterAction struct {
	Notifications NotificationStore
}

func (a *NotifyRequesterAction) Name() string { return ActionNotifyRequester }

func (a *NotifyRequesterAction) Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	if a.Notifications == nil || ticket.RequesterEmail == "" {
		return nil
	}
	return a.Notifications.Create(ctx, &domain.Notification{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Channel:   domain.ChannelEmail,
		Recipient: ticket.RequesterEmail,
		Subject:   "Your ticket " + ticket.ExternalKey + " is now " + string(to),
		Body:      "Status changed from " + string(from) + " to " + string(to) + ".",
		CreatedAt: time.Now().UTC(),
	})
}
