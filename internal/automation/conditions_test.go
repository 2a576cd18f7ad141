package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func clause(field string, op domain.ConditionOperator, value any) domain.ConditionClause {
	return domain.ConditionClause{Field: field, Operator: op, Value: value}
}

func TestEvaluateOperators(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)
	assignee := "agent-1"

	ticket := &domain.Ticket{
		Status:         domain.TicketStatusOpen,
		Priority:       domain.TicketPriorityHigh,
		Type:           domain.TicketTypeBilling,
		Subject:        "invoice was charged twice",
		RequesterEmail: "finance@acme.example.com",
		AssigneeID:     &assignee,
		Tags:           []string{"billing", "vip"},
		CreatedAt:      created,
	}

	evaluator := NewConditionEvaluator()
	evaluator.SetNow(func() time.Time { return now })

	tests := []struct {
		name   string
		clause domain.ConditionClause
		want   bool
	}{
		{"equals match", clause("priority", domain.OperatorEquals, "HIGH"), true},
		{"equals mismatch", clause("priority", domain.OperatorEquals, "LOW"), false},
		{"in match", clause("status", domain.OperatorIn, []any{"OPEN", "PENDING"}), true},
		{"in mismatch", clause("status", domain.OperatorIn, []any{"CLOSED"}), false},
		{"contains substring", clause("subject", domain.OperatorContains, "charged"), true},
		{"contains tag member", clause("tags", domain.OperatorContains, "vip"), true},
		{"contains missing tag", clause("tags", domain.OperatorContains, "churn"), false},
		{"older_than satisfied", clause("created_at", domain.OperatorOlderThan, "24h"), true},
		{"older_than not yet", clause("created_at", domain.OperatorOlderThan, "72h"), false},
		{"older_than bad duration", clause("created_at", domain.OperatorOlderThan, "soon"), false},
		{"is_null unset timestamp", clause("first_response_at", domain.OperatorIsNull, nil), true},
		{"is_null set pointer", clause("assignee_id", domain.OperatorIsNull, nil), false},
		{"ends_with match", clause("requester_email", domain.OperatorEndsWith, "@acme.example.com"), true},
		{"ends_with mismatch", clause("requester_email", domain.OperatorEndsWith, "@other.example.com"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evaluator.Evaluate([]domain.ConditionClause{tc.clause}, ticket))
		})
	}
}

func TestEvaluateFailsClosed(t *testing.T) {
	evaluator := NewConditionEvaluator()
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen}

	assert.False(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("no_such_field", domain.OperatorEquals, "x"),
	}, ticket))
	assert.False(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("status", domain.ConditionOperator("matches_regex"), "OPEN"),
	}, ticket))
	assert.False(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("status", domain.OperatorIn, "not-a-list"),
	}, ticket))
}

func TestEvaluateAndSemantics(t *testing.T) {
	evaluator := NewConditionEvaluator()
	ticket := &domain.Ticket{
		Status:   domain.TicketStatusOpen,
		Priority: domain.TicketPriorityUrgent,
	}

	assert.True(t, evaluator.Evaluate(nil, ticket))
	assert.True(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("status", domain.OperatorEquals, "OPEN"),
		clause("priority", domain.OperatorEquals, "URGENT"),
	}, ticket))
	assert.False(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("status", domain.OperatorEquals, "OPEN"),
		clause("priority", domain.OperatorEquals, "LOW"),
	}, ticket))
}

func TestEvaluateSLAStatusComputedField(t *testing.T) {
	evaluator := NewConditionEvaluator()

	breached := &domain.Ticket{SLABreached: true}
	healthy := &domain.Ticket{}

	matchBreached := []domain.ConditionClause{clause("sla_status", domain.OperatorEquals, "breached")}
	assert.True(t, evaluator.Evaluate(matchBreached, breached))
	assert.False(t, evaluator.Evaluate(matchBreached, healthy))
	assert.True(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("sla_status", domain.OperatorEquals, "ok"),
	}, healthy))
}

func TestEvaluateHoursOpenComputedField(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	evaluator := NewConditionEvaluator()
	evaluator.SetNow(func() time.Time { return now })

	ticket := &domain.Ticket{CreatedAt: now.Add(-26*time.Hour - 30*time.Minute)}
	assert.True(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("hours_open", domain.OperatorEquals, "26"),
	}, ticket))
	assert.True(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("hours_open", domain.OperatorIn, []any{"25", "26"}),
	}, ticket))

	// Unset creation time fails closed.
	assert.False(t, evaluator.Evaluate([]domain.ConditionClause{
		clause("hours_open", domain.OperatorEquals, "0"),
	}, &domain.Ticket{}))
}
