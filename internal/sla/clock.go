package sla

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// Target is the time allowance for one (type, priority) combination.
type Target struct {
	FirstResponseMinutes int
	ResolutionMinutes    int
}

// RuleTable maps priorities to targets, with per-type overrides that take
// precedence over the priority-only entry for the same priority.
type RuleTable struct {
	Priorities    map[domain.TicketPriority]Target
	TypeOverrides map[domain.TicketType]map[domain.TicketPriority]Target
}

// Resolve returns the target for a ticket's type and priority. The second
// return is false when no rule applies, which means SLA is silently not
// enforced for that ticket.
func (t RuleTable) Resolve(ticketType domain.TicketType, priority domain.TicketPriority) (Target, bool) {
	if byPriority, ok := t.TypeOverrides[ticketType]; ok {
		if target, ok := byPriority[priority]; ok {
			return target, true
		}
	}
	target, ok := t.Priorities[priority]
	return target, ok
}

// ComplianceStatus classifies one SLA milestone.
type ComplianceStatus string

const (
	StatusMet           ComplianceStatus = "met"
	StatusPending       ComplianceStatus = "pending"
	StatusNotApplicable ComplianceStatus = "not_applicable"
)

// ComplianceEntry reports one milestone: its status, remaining-time budget as
// a percentage, and whether the deadline has passed.
type ComplianceEntry struct {
	Status     ComplianceStatus `json:"status"`
	Percentage float64          `json:"percentage"`
	Overdue    bool             `json:"overdue"`
	DueAt      *time.Time       `json:"due_at,omitempty"`
}

// ComplianceReport covers both milestones of a ticket.
type ComplianceReport struct {
	FirstResponse ComplianceEntry `json:"first_response"`
	Resolution    ComplianceEntry `json:"resolution"`
}

// TicketStore persists breach bookkeeping.
type TicketStore interface {
	Update(ctx context.Context, ticket *domain.Ticket) error
}

// Clock computes due dates and compliance from the rule table and ticket
// timestamps.
type Clock struct {
	table   RuleTable
	tickets TicketStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewClock constructs a clock over the given rule table.
func NewClock(table RuleTable, tickets TicketStore, metrics *observability.Metrics, logger *zap.Logger) *Clock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clock{table: table, tickets: tickets, metrics: metrics, logger: logger, now: time.Now}
}

// SetNow overrides the clock source.
func (c *Clock) SetNow(now func() time.Time) {
	c.now = now
}

// CalculateDueDates sets the ticket's deadlines from the rule table. When no
// rule matches, no due dates are set and the ticket carries no SLA.
func (c *Clock) CalculateDueDates(ticket *domain.Ticket) {
	target, ok := c.table.Resolve(ticket.Type, ticket.Priority)
	if !ok {
		return
	}
	base := ticket.CreatedAt
	if base.IsZero() {
		// Called before the insert assigns created_at.
		base = c.now()
	}
	firstResponse := base.Add(time.Duration(target.FirstResponseMinutes) * time.Minute)
	resolution := base.Add(time.Duration(target.ResolutionMinutes) * time.Minute)
	ticket.FirstResponseDueAt = &firstResponse
	ticket.ResolutionDueAt = &resolution
}

// CheckCompliance reports per-milestone status. Percentage is the share of
// the allotted budget still unconsumed, clamped to [0, 100].
func (c *Clock) CheckCompliance(ticket *domain.Ticket) ComplianceReport {
	var resolvedAt *time.Time
	if domain.IsTerminal(ticket.Status) {
		resolvedAt = ticket.ClosedAt
	}
	return ComplianceReport{
		FirstResponse: c.entry(ticket.CreatedAt, ticket.FirstResponseDueAt, ticket.FirstResponseAt),
		Resolution:    c.entry(ticket.CreatedAt, ticket.ResolutionDueAt, resolvedAt),
	}
}

func (c *Clock) entry(openedAt time.Time, dueAt, milestoneAt *time.Time) ComplianceEntry {
	if dueAt == nil {
		return ComplianceEntry{Status: StatusNotApplicable, Percentage: 100}
	}
	entry := ComplianceEntry{DueAt: dueAt}
	reference := c.now()
	if milestoneAt != nil {
		entry.Status = StatusMet
		entry.Overdue = milestoneAt.After(*dueAt)
		reference = *milestoneAt
	} else {
		entry.Status = StatusPending
		entry.Overdue = reference.After(*dueAt)
	}

	allotted := dueAt.Sub(openedAt)
	if allotted <= 0 {
		entry.Percentage = 0
		return entry
	}
	elapsed := reference.Sub(openedAt)
	percentage := (1 - float64(elapsed)/float64(allotted)) * 100
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	entry.Percentage = percentage
	return entry
}

// RecordBreachIfNeeded marks the ticket breached when a deadline has passed
// without its milestone. First response takes precedence when both are
// overdue and no breach type is recorded yet. Best-effort: persistence
// failures are logged and reported as "no write".
func (c *Clock) RecordBreachIfNeeded(ctx context.Context, ticket *domain.Ticket) bool {
	if ticket.DeletedAt != nil {
		return false
	}
	now := c.now()

	firstResponseOverdue := ticket.FirstResponseAt == nil &&
		ticket.FirstResponseDueAt != nil && now.After(*ticket.FirstResponseDueAt)
	resolutionOverdue := !domain.IsTerminal(ticket.Status) &&
		ticket.ResolutionDueAt != nil && now.After(*ticket.ResolutionDueAt)

	if !firstResponseOverdue && !resolutionOverdue {
		return false
	}

	changed := false
	if !ticket.SLABreached {
		ticket.SLABreached = true
		changed = true
	}
	if ticket.SLABreachType == nil {
		breachType := domain.BreachResolution
		if firstResponseOverdue {
			breachType = domain.BreachFirstResponse
		}
		ticket.SLABreachType = &breachType
		changed = true
	}
	if !changed {
		return false
	}

	if err := c.tickets.Update(ctx, ticket); err != nil {
		c.logger.Warn("persist sla breach failed",
			zap.Error(err), zap.String("ticket_id", ticket.ID))
		return false
	}
	if ticket.SLABreachType != nil {
		c.metrics.RecordSLABreach(string(*ticket.SLABreachType))
	}
	return true
}
