package automation

import (
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Computed condition fields derived at evaluation time rather than read from
// the ticket row.
const (
	fieldSLAStatus = "sla_status"
	fieldHoursOpen = "hours_open"

	slaStatusOK       = "ok"
	slaStatusBreached = "breached"
)

// ConditionEvaluator evaluates a flat AND-list of clauses against a ticket.
// A clause that cannot be evaluated (unknown field, unknown operator, bad
// value) is false, so a malformed rule excludes itself instead of matching
// everything.
type ConditionEvaluator struct {
	now func() time.Time
}

// NewConditionEvaluator builds an evaluator on the wall clock.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{now: time.Now}
}

// SetNow overrides the clock source.
func (e *ConditionEvaluator) SetNow(now func() time.Time) {
	e.now = now
}

// Evaluate AND-reduces the clause list. An empty list matches.
func (e *ConditionEvaluator) Evaluate(clauses []domain.ConditionClause, ticket *domain.Ticket) bool {
	for _, clause := range clauses {
		if !e.evaluateClause(clause, ticket) {
			return false
		}
	}
	return true
}

func (e *ConditionEvaluator) evaluateClause(clause domain.ConditionClause, ticket *domain.Ticket) bool {
	value, ok := resolveField(ticket, clause.Field, e.now)
	if !ok {
		return false
	}

	switch clause.Operator {
	case domain.OperatorEquals:
		str, ok := asString(value)
		if !ok {
			return false
		}
		want, ok := asString(clause.Value)
		return ok && str == want
	case domain.OperatorIn:
		str, ok := asString(value)
		if !ok {
			return false
		}
		members, ok := asStringList(clause.Value)
		if !ok {
			return false
		}
		for _, member := range members {
			if member == str {
				return true
			}
		}
		return false
	case domain.OperatorContains:
		switch v := value.(type) {
		case string:
			want, ok := asString(clause.Value)
			return ok && strings.Contains(v, want)
		case []string:
			want, ok := asString(clause.Value)
			if !ok {
				return false
			}
			for _, member := range v {
				if member == want {
					return true
				}
			}
			return false
		}
		return false
	case domain.OperatorOlderThan:
		at, ok := asTime(value)
		if !ok {
			return false
		}
		raw, ok := asString(clause.Value)
		if !ok {
			return false
		}
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return false
		}
		return e.now().Sub(at) >= duration
	case domain.OperatorIsNull:
		return isNull(value)
	case domain.OperatorEndsWith:
		str, ok := asString(value)
		if !ok {
			return false
		}
		suffix, ok := asString(clause.Value)
		return ok && strings.HasSuffix(str, suffix)
	}
	return false
}

// resolveField maps a condition field name to the ticket's current value.
// The second return is false for unknown fields.
func resolveField(ticket *domain.Ticket, field string, now func() time.Time) (any, bool) {
	switch field {
	case "status":
		return string(ticket.Status), true
	case "priority":
		return string(ticket.Priority), true
	case "type":
		return string(ticket.Type), true
	case "source":
		return ticket.Source, true
	case "subject":
		return ticket.Subject, true
	case "description":
		return ticket.Description, true
	case "requester_email":
		return ticket.RequesterEmail, true
	case "assignee_id":
		return ticket.AssigneeID, true
	case "tags":
		return ticket.Tags, true
	case "categories":
		return ticket.Categories, true
	case "created_at":
		return ticket.CreatedAt, true
	case "updated_at":
		return ticket.UpdatedAt, true
	case "first_response_at":
		return ticket.FirstResponseAt, true
	case "closed_at":
		return ticket.ClosedAt, true
	case fieldSLAStatus:
		if ticket.SLABreached {
			return slaStatusBreached, true
		}
		return slaStatusOK, true
	case fieldHoursOpen:
		// Whole hours since creation, as a string so equals/in apply.
		// Age-window rules should prefer created_at with older_than.
		if ticket.CreatedAt.IsZero() {
			return nil, false
		}
		return strconv.Itoa(int(now().Sub(ticket.CreatedAt).Hours())), true
	}
	return nil, false
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case domain.TicketStatus:
		return string(v), true
	case domain.TicketPriority:
		return string(v), true
	case domain.TicketType:
		return string(v), true
	}
	return "", false
}

func asStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		members := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := asString(item)
			if !ok {
				return nil, false
			}
			members = append(members, str)
		}
		return members, true
	}
	return nil, false
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	}
	return time.Time{}, false
}

func isNull(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case *string:
		return v == nil || *v == ""
	case *time.Time:
		return v == nil
	case []string:
		return len(v) == 0
	}
	return false
}
