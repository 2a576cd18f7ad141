package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type stubTicketStore struct {
	updates  int
	failOn   int
	failWith error
}

func (s *stubTicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	s.updates++
	if s.failOn != 0 && s.updates == s.failOn {
		return s.failWith
	}
	ticket.Version++
	return nil
}

type namedGuard struct {
	name  string
	allow bool
}

func (g namedGuard) Name() string { return g.name }

func (g namedGuard) Allow(*domain.Ticket, domain.TicketStatus, domain.TicketStatus) bool {
	return g.allow
}

type namedAction struct {
	name string
	err  error
	runs *int
	fn   func(ticket *domain.Ticket)
}

func (a namedAction) Name() string { return a.name }

func (a namedAction) Run(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus) error {
	if a.runs != nil {
		*a.runs++
	}
	if a.fn != nil {
		a.fn(ticket)
	}
	return a.err
}

func openTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:      "t-1",
		Status:  domain.TicketStatusOpen,
		Version: 1,
	}
}

func mustRegister(t *testing.T, engine *Engine, name string, specs map[string]TransitionSpec) {
	t.Helper()
	def, err := NewDefinition(name, specs)
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(def))
}

func TestCanTransitionAbsentKey(t *testing.T) {
	engine := NewEngine(EngineDependencies{Tickets: &stubTicketStore{}})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {},
	})

	ticket := openTicket()
	assert.True(t, engine.CanTransition(ticket, domain.TicketStatusInProgress, DefaultWorkflowName))
	assert.True(t, engine.CanTransition(ticket, domain.TicketStatusInProgress, ""))
	assert.False(t, engine.CanTransition(ticket, domain.TicketStatusResolved, DefaultWorkflowName))
	assert.False(t, engine.CanTransition(ticket, domain.TicketStatusInProgress, "missing-workflow"))
}

func TestCanTransitionGuardVeto(t *testing.T) {
	engine := NewEngine(EngineDependencies{Tickets: &stubTicketStore{}})
	engine.RegisterGuard(namedGuard{name: "pass", allow: true})
	engine.RegisterGuard(namedGuard{name: "veto", allow: false})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Guards: []string{"pass", "veto"}},
		"OPEN:PENDING":     {Guards: []string{"pass"}},
	})

	ticket := openTicket()
	assert.False(t, engine.CanTransition(ticket, domain.TicketStatusInProgress, DefaultWorkflowName))
	assert.True(t, engine.CanTransition(ticket, domain.TicketStatusPending, DefaultWorkflowName))
}

func TestTransitionSameStatusIsConflict(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusOpen, "")
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "CONFLICT", domainErr.Code)
	assert.Zero(t, store.updates)
}

func TestTransitionRejectedLeavesTicketUntouched(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	engine.RegisterGuard(namedGuard{name: "veto", allow: false})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Guards: []string{"veto"}},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "INVALID_TRANSITION", domainErr.Code)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Zero(t, store.updates)

	err = engine.Transition(context.Background(), ticket, domain.TicketStatusResolved, "")
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", apperrors.ToDomainError(err).Code)
}

func TestTransitionSetsAndClearsClosedAt(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.SetNow(func() time.Time { return now })
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:CLOSED": {},
		"CLOSED:OPEN": {},
	})

	ticket := openTicket()
	require.NoError(t, engine.Transition(context.Background(), ticket, domain.TicketStatusClosed, ""))
	require.NotNil(t, ticket.ClosedAt)
	assert.Equal(t, now, *ticket.ClosedAt)
	assert.Equal(t, int64(2), ticket.Version)

	require.NoError(t, engine.Transition(context.Background(), ticket, domain.TicketStatusOpen, ""))
	assert.Nil(t, ticket.ClosedAt)
}

func TestReopenWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	guard := &ReopenWindowGuard{Window: DefaultReopenWindow, Now: func() time.Time { return now }}

	exactly := now.Add(-30 * 24 * time.Hour)
	past := now.Add(-31 * 24 * time.Hour)

	ticket := &domain.Ticket{Status: domain.TicketStatusClosed, ClosedAt: &exactly}
	assert.True(t, guard.Allow(ticket, domain.TicketStatusClosed, domain.TicketStatusOpen))

	ticket.ClosedAt = &past
	assert.False(t, guard.Allow(ticket, domain.TicketStatusClosed, domain.TicketStatusOpen))
}

func TestBeforeActionFailureRollsBack(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	engine.RegisterAction(namedAction{name: "boom", err: errors.New("exploded")})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Before: []string{"boom"}},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	assert.Equal(t, "ACTION_EXECUTION_FAILED", apperrors.ToDomainError(err).Code)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, int64(1), ticket.Version)
	assert.Zero(t, store.updates)
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := &stubTicketStore{failOn: 1, failWith: errors.New("db down")}
	engine := NewEngine(EngineDependencies{Tickets: store})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, int64(1), ticket.Version)
}

func TestAfterActionFailureRestoresWithAdvancedVersion(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	engine.RegisterAction(namedAction{name: "boom", err: errors.New("exploded")})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {After: []string{"boom"}},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	// First save committed the move, second save compensated it.
	assert.Equal(t, 2, store.updates)
	assert.Equal(t, int64(3), ticket.Version)
}

func TestRegisterWorkflowRejectsUnknownNames(t *testing.T) {
	engine := NewEngine(EngineDependencies{Tickets: &stubTicketStore{}})
	engine.RegisterGuard(namedGuard{name: "known", allow: true})

	def, err := NewDefinition(DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Guards: []string{"unknown"}},
	})
	require.NoError(t, err)
	err = engine.RegisterWorkflow(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown guard "unknown"`)

	def, err = NewDefinition(DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Guards: []string{"known"}, After: []string{"missing"}},
	})
	require.NoError(t, err)
	err = engine.RegisterWorkflow(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action "missing"`)
}

func TestBeforeActionFailureUndoesEarlierMutations(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	engine.RegisterAction(&StampFirstResponseAction{})
	engine.RegisterAction(namedAction{name: "tagger", fn: func(ticket *domain.Ticket) {
		ticket.Tags = append(ticket.Tags, "in-flight")
	}})
	engine.RegisterAction(namedAction{name: "boom", err: errors.New("boom")})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Before: []string{ActionStampFirstResponse, "tagger", "boom"}},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.FirstResponseAt)
	assert.Empty(t, ticket.Tags)
	assert.Zero(t, store.updates)
}

func TestPersistFailureUndoesBeforeActionMutations(t *testing.T) {
	store := &stubTicketStore{failOn: 1, failWith: errors.New("down")}
	engine := NewEngine(EngineDependencies{Tickets: store})
	engine.RegisterAction(&StampFirstResponseAction{})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Before: []string{ActionStampFirstResponse}},
	})

	ticket := openTicket()
	err := engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, "")
	require.Error(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.FirstResponseAt)
	assert.Equal(t, int64(1), ticket.Version)
}

func TestNewDefinitionRejectsUnknownStatus(t *testing.T) {
	_, err := NewDefinition(DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:ARCHIVED": {},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "ARCHIVED"`)
}

func TestTransitionFiresAutomation(t *testing.T) {
	store := &stubTicketStore{}
	engine := NewEngine(EngineDependencies{Tickets: store})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS":     {TriggersAutomation: true},
		"IN_PROGRESS:RESOLVED": {},
	})

	var processed []string
	engine.SetRuleProcessor(RuleProcessorFunc(func(ctx context.Context, ticket *domain.Ticket) error {
		processed = append(processed, string(ticket.Status))
		return nil
	}))

	ticket := openTicket()
	require.NoError(t, engine.Transition(context.Background(), ticket, domain.TicketStatusInProgress, ""))
	require.NoError(t, engine.Transition(context.Background(), ticket, domain.TicketStatusResolved, ""))
	assert.Equal(t, []string{"IN_PROGRESS"}, processed)
}

func TestAvailableTransitions(t *testing.T) {
	engine := NewEngine(EngineDependencies{Tickets: &stubTicketStore{}})
	engine.RegisterGuard(namedGuard{name: "veto", allow: false})
	mustRegister(t, engine, DefaultWorkflowName, map[string]TransitionSpec{
		"OPEN:IN_PROGRESS": {Label: "Start progress"},
		"OPEN:CLOSED":      {Label: "Close", RequiresComment: true},
		"OPEN:RESOLVED":    {Guards: []string{"veto"}},
	})

	options := engine.AvailableTransitions(openTicket(), "")
	require.Len(t, options, 2)

	byStatus := map[domain.TicketStatus]TransitionOption{}
	for _, option := range options {
		byStatus[option.Status] = option
	}
	assert.Equal(t, "Start progress", byStatus[domain.TicketStatusInProgress].Label)
	assert.True(t, byStatus[domain.TicketStatusClosed].RequiresComment)
	assert.NotContains(t, byStatus, domain.TicketStatusResolved)
}
