package domain

import "time"

// Automation trigger vocabulary: the circumstances under which rules with a
// matching trigger tag are considered.
const (
	TriggerTicketCreated = "ticket_created"
	TriggerTicketUpdated = "ticket_updated"
	TriggerStatusChanged = "ticket_status_changed"
	TriggerCommentAdded  = "comment_added"
	TriggerSLABreached   = "sla_breached"
	TriggerManual        = "manual"
)

// AllTriggers lists the closed trigger vocabulary.
var AllTriggers = []string{
	TriggerTicketCreated,
	TriggerTicketUpdated,
	TriggerStatusChanged,
	TriggerCommentAdded,
	TriggerSLABreached,
	TriggerManual,
}

// IsValidTrigger reports whether trigger belongs to the vocabulary.
func IsValidTrigger(trigger string) bool {
	for _, candidate := range AllTriggers {
		if candidate == trigger {
			return true
		}
	}
	return false
}

// ConditionOperator enumerates supported clause operators.
type ConditionOperator string

const (
	OperatorEquals    ConditionOperator = "equals"
	OperatorIn        ConditionOperator = "in"
	OperatorContains  ConditionOperator = "contains"
	OperatorOlderThan ConditionOperator = "older_than"
	OperatorIsNull    ConditionOperator = "is_null"
	OperatorEndsWith  ConditionOperator = "ends_with"
)

// AllOperators lists the closed operator vocabulary.
var AllOperators = []ConditionOperator{
	OperatorEquals,
	OperatorIn,
	OperatorContains,
	OperatorOlderThan,
	OperatorIsNull,
	OperatorEndsWith,
}

// IsValidOperator reports whether op belongs to the operator vocabulary.
func IsValidOperator(op ConditionOperator) bool {
	for _, candidate := range AllOperators {
		if candidate == op {
			return true
		}
	}
	return false
}

// ConditionClause is a single field/operator/value test. All clauses in a
// rule are implicitly ANDed.
type ConditionClause struct {
	Field    string            `json:"field" validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value"`
}

// ActionType enumerates the fixed automation action catalogue.
type ActionType string

const (
	ActionAssign         ActionType = "assign"
	ActionUnassign       ActionType = "unassign"
	ActionChangeStatus   ActionType = "change_status"
	ActionChangePriority ActionType = "change_priority"
	ActionAddTags        ActionType = "add_tags"
	ActionRemoveTags     ActionType = "remove_tags"
	ActionAddCategory    ActionType = "add_category"
	ActionRemoveCategory ActionType = "remove_category"
	ActionAddComment     ActionType = "add_comment"
	ActionNotify         ActionType = "notify"
	ActionEscalate       ActionType = "escalate"
	ActionApplyTemplate  ActionType = "apply_template"
	ActionDelete         ActionType = "delete"
)

// AllActionTypes lists the closed action catalogue.
var AllActionTypes = []ActionType{
	ActionAssign,
	ActionUnassign,
	ActionChangeStatus,
	ActionChangePriority,
	ActionAddTags,
	ActionRemoveTags,
	ActionAddCategory,
	ActionRemoveCategory,
	ActionAddComment,
	ActionNotify,
	ActionEscalate,
	ActionApplyTemplate,
	ActionDelete,
}

// IsValidActionType reports whether t belongs to the action catalogue.
func IsValidActionType(t ActionType) bool {
	for _, candidate := range AllActionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ActionSpec is one parameterized effect within a rule.
type ActionSpec struct {
	Type   ActionType     `json:"type" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// AutomationRule is a persisted trigger/conditions/actions rule. Execution
// never mutates the rule except LastExecutedAt.
type AutomationRule struct {
	ID             string
	Name           string
	Description    string
	Trigger        string
	Conditions     []ConditionClause
	Actions        []ActionSpec
	Priority       int
	IsActive       bool
	StopProcessing bool
	LastExecutedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExecutionStats is an aggregate read model over a rule's audit log.
type ExecutionStats struct {
	Total          int64
	Successful     int64
	Failed         int64
	FirstExecution *time.Time
	LastExecution  *time.Time
}

// AutomationExecution is an immutable audit record of one rule attempt.
type AutomationExecution struct {
	ID         string
	RuleID     string
	TicketID   string
	Conditions []ConditionClause
	Actions    []ActionSpec
	Success    bool
	Error      string
	ExecutedAt time.Time
}
