package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type recTicketStore struct {
	updates     int
	softDeletes int
	err         error
}

func (s *recTicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	if s.err != nil {
		return s.err
	}
	s.updates++
	ticket.Version++
	return nil
}

func (s *recTicketStore) SoftDelete(ctx context.Context, ticket *domain.Ticket) error {
	if s.err != nil {
		return s.err
	}
	s.softDeletes++
	return nil
}

type recCommentStore struct {
	comments []domain.Comment
}

func (s *recCommentStore) Create(ctx context.Context, comment *domain.Comment) error {
	s.comments = append(s.comments, *comment)
	return nil
}

type recNotificationStore struct {
	notifications []domain.Notification
}

func (s *recNotificationStore) Create(ctx context.Context, notification *domain.Notification) error {
	s.notifications = append(s.notifications, *notification)
	return nil
}

type fakeAgentStore struct {
	agents map[string]*domain.Agent
}

func (s *fakeAgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	agent, ok := s.agents[id]
	if !ok {
		return nil, assert.AnError
	}
	return agent, nil
}

type recTransitioner struct {
	calls []string
	err   error
}

func (t *recTransitioner) Transition(ctx context.Context, ticket *domain.Ticket, to domain.TicketStatus, workflowName string) error {
	t.calls = append(t.calls, string(to)+"@"+workflowName)
	return t.err
}

type executorFixture struct {
	executor      *Executor
	tickets       *recTicketStore
	comments      *recCommentStore
	notifications *recNotificationStore
	transitioner  *recTransitioner
}

func newExecutorFixture() *executorFixture {
	fx := &executorFixture{
		tickets:       &recTicketStore{},
		comments:      &recCommentStore{},
		notifications: &recNotificationStore{},
		transitioner:  &recTransitioner{},
	}
	fx.executor = NewExecutor(ExecutorDependencies{
		Tickets:       fx.tickets,
		Comments:      fx.comments,
		Notifications: fx.notifications,
		Agents: &fakeAgentStore{agents: map[string]*domain.Agent{
			"agent-1": {ID: "agent-1", Active: true},
			"agent-2": {ID: "agent-2", Active: false},
		}},
		Templates: map[string]string{"acknowledgement": "Thanks, we are on it."},
	})
	fx.executor.SetTransitioner(fx.transitioner)
	return fx
}

func action(actionType domain.ActionType, params map[string]any) domain.ActionSpec {
	return domain.ActionSpec{Type: actionType, Params: params}
}

func TestExecuteActionParamValidation(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1", Priority: domain.TicketPriorityMedium}

	tests := []struct {
		name string
		spec domain.ActionSpec
	}{
		{"assign without agent", action(domain.ActionAssign, nil)},
		{"change_status without status", action(domain.ActionChangeStatus, nil)},
		{"change_status unknown status", action(domain.ActionChangeStatus, map[string]any{"status": "ARCHIVED"})},
		{"change_priority unknown priority", action(domain.ActionChangePriority, map[string]any{"priority": "EXTREME"})},
		{"add_tags without tags", action(domain.ActionAddTags, nil)},
		{"add_tags empty list", action(domain.ActionAddTags, map[string]any{"tags": []any{}})},
		{"add_comment without body", action(domain.ActionAddComment, nil)},
		{"apply_template unknown name", action(domain.ActionApplyTemplate, map[string]any{"template": "nope"})},
		{"unknown action type", action(domain.ActionType("transmogrify"), nil)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := fx.executor.ExecuteAction(context.Background(), tc.spec, ticket)
			require.Error(t, err)
			assert.Equal(t, "ACTION_EXECUTION_FAILED", apperrors.ToDomainError(err).Code)
		})
	}
	assert.Zero(t, fx.tickets.updates)
}

func TestAssign(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	err := fx.executor.ExecuteAction(context.Background(), action(domain.ActionAssign, map[string]any{"agent_id": "agent-1"}), ticket)
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-1", *ticket.AssigneeID)
	assert.Equal(t, 1, fx.tickets.updates)

	err = fx.executor.ExecuteAction(context.Background(), action(domain.ActionAssign, map[string]any{"agent_id": "agent-2"}), ticket)
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Message, "inactive")
}

func TestUnassignIdempotent(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionUnassign, nil), ticket))
	assert.Zero(t, fx.tickets.updates)

	assignee := "agent-1"
	ticket.AssigneeID = &assignee
	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionUnassign, nil), ticket))
	assert.Nil(t, ticket.AssigneeID)
	assert.Equal(t, 1, fx.tickets.updates)
}

func TestChangeStatusDelegatesToTransitioner(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1", Status: domain.TicketStatusOpen}

	err := fx.executor.ExecuteAction(context.Background(), action(domain.ActionChangeStatus, map[string]any{
		"status":   "IN_PROGRESS",
		"workflow": "urgent",
	}), ticket)
	require.NoError(t, err)
	assert.Equal(t, []string{"IN_PROGRESS@urgent"}, fx.transitioner.calls)
}

func TestEscalateBumpsOneLevel(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1", ExternalKey: "HD-1", Priority: domain.TicketPriorityMedium}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionEscalate, nil), ticket))
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, 1, fx.tickets.updates)

	ticket.Priority = domain.TicketPriorityUrgent
	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionEscalate, map[string]any{
		"recipient": "leads@example.com",
	}), ticket))
	// Ceiling holds but the notification still goes out.
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)
	assert.Equal(t, 1, fx.tickets.updates)
	require.Len(t, fx.notifications.notifications, 1)
	assert.Equal(t, "leads@example.com", fx.notifications.notifications[0].Recipient)
}

func TestAddAndRemoveTags(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1", Tags: []string{"vip"}}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionAddTags, map[string]any{
		"tags": []any{"vip", "billing"},
	}), ticket))
	assert.Equal(t, []string{"vip", "billing"}, ticket.Tags)
	assert.Equal(t, 1, fx.tickets.updates)

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionRemoveTags, map[string]any{
		"tags": []any{"vip"},
	}), ticket))
	assert.Equal(t, []string{"billing"}, ticket.Tags)

	// Removing an absent tag does not touch the store again.
	updates := fx.tickets.updates
	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionRemoveTags, map[string]any{
		"tags": []any{"vip"},
	}), ticket))
	assert.Equal(t, updates, fx.tickets.updates)
}

func TestAddCommentDefaultsInternal(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionAddComment, map[string]any{
		"body": "triage note",
	}), ticket))
	require.Len(t, fx.comments.comments, 1)
	comment := fx.comments.comments[0]
	assert.Equal(t, domain.VisibilityInternal, comment.Visibility)
	assert.Equal(t, domain.AuthorTypeSystem, comment.AuthorType)
	assert.NotEmpty(t, comment.ID)
}

func TestApplyTemplatePostsPublicComment(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionApplyTemplate, map[string]any{
		"template": "acknowledgement",
	}), ticket))
	require.Len(t, fx.comments.comments, 1)
	comment := fx.comments.comments[0]
	assert.Equal(t, domain.VisibilityPublic, comment.Visibility)
	assert.Equal(t, "Thanks, we are on it.", comment.Body)
}

func TestDeleteSoftDeletes(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	require.NoError(t, fx.executor.ExecuteAction(context.Background(), action(domain.ActionDelete, nil), ticket))
	assert.Equal(t, 1, fx.tickets.softDeletes)
}

func TestExecuteActionsFailFastWithoutRollback(t *testing.T) {
	fx := newExecutorFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	err := fx.executor.ExecuteActions(context.Background(), []domain.ActionSpec{
		action(domain.ActionAddTags, map[string]any{"tags": []any{"first"}}),
		action(domain.ActionAssign, nil),
		action(domain.ActionAddTags, map[string]any{"tags": []any{"never"}}),
	}, ticket)
	require.Error(t, err)
	// The first action's effect stays applied; the third never runs.
	assert.Equal(t, []string{"first"}, ticket.Tags)
	assert.Equal(t, 1, fx.tickets.updates)
}
