package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type memTicketRepo struct {
	byID map[string]*domain.Ticket
	seq  int
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{byID: map[string]*domain.Ticket{}}
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.seq++
	ticket.ID = "t-" + ticket.ExternalKey
	ticket.Version = 1
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.byID[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	stored, ok := r.byID[ticket.ID]
	if !ok || stored.DeletedAt != nil || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	copied := *ticket
	r.byID[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) SoftDelete(ctx context.Context, ticket *domain.Ticket) error {
	stored, ok := r.byID[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	stored.DeletedAt = &now
	ticket.DeletedAt = &now
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	stored, ok := r.byID[id]
	if !ok || stored.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *memTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	for _, stored := range r.byID {
		if stored.ExternalKey == key && stored.DeletedAt == nil {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, stored := range r.byID {
		if stored.DeletedAt == nil {
			result = append(result, *stored)
		}
	}
	return result, nil
}

func (r *memTicketRepo) ListSLACandidates(ctx context.Context, limit int) ([]domain.Ticket, error) {
	return nil, nil
}

type memCommentRepo struct {
	comments []domain.Comment
}

func (r *memCommentRepo) Create(ctx context.Context, comment *domain.Comment) error {
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *memCommentRepo) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	for i := range r.comments {
		if r.comments[i].ID == id {
			return &r.comments[i], nil
		}
	}
	return nil, nil
}

func (r *memCommentRepo) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	var result []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID != ticketID {
			continue
		}
		if !includeInternal && comment.Visibility != domain.VisibilityPublic {
			continue
		}
		result = append(result, comment)
	}
	return result, nil
}

func (r *memCommentRepo) CountPublicAgentReplies(ctx context.Context, ticketID string) (int64, error) {
	var count int64
	for _, comment := range r.comments {
		if comment.TicketID == ticketID &&
			comment.AuthorType == domain.AuthorTypeAgent &&
			comment.Visibility == domain.VisibilityPublic {
			count++
		}
	}
	return count, nil
}

type memHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *memHistoryRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type serviceFixture struct {
	service  *TicketService
	tickets  *memTicketRepo
	comments *memCommentRepo
	history  *memHistoryRepo
	events   []events.Event
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		tickets:  newMemTicketRepo(),
		comments: &memCommentRepo{},
		history:  &memHistoryRepo{},
	}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
			fx.events = append(fx.events, event)
			return nil
		})
	}

	engine := workflow.NewEngine(workflow.EngineDependencies{Tickets: fx.tickets, Dispatcher: dispatcher})
	def, err := workflow.NewDefinition(workflow.DefaultWorkflowName, map[string]workflow.TransitionSpec{
		"OPEN:IN_PROGRESS": {},
		"OPEN:CLOSED":      {RequiresComment: true},
		"OPEN:RESOLVED":    {RequiresResolution: true},
	})
	require.NoError(t, err)
	require.NoError(t, engine.RegisterWorkflow(def))

	table := sla.RuleTable{
		Priorities: map[domain.TicketPriority]sla.Target{
			domain.TicketPriorityMedium: {FirstResponseMinutes: 240, ResolutionMinutes: 1440},
			domain.TicketPriorityHigh:   {FirstResponseMinutes: 120, ResolutionMinutes: 480},
		},
	}

	fx.service = NewTicketService(TicketDependencies{
		TicketRepo:  fx.tickets,
		CommentRepo: fx.comments,
		HistoryRepo: fx.history,
		Workflow:    engine,
		Clock:       sla.NewClock(table, fx.tickets, nil, nil),
		Dispatcher:  dispatcher,
	})
	return fx
}

func (fx *serviceFixture) eventTypes() []events.EventType {
	types := make([]events.EventType, 0, len(fx.events))
	for _, event := range fx.events {
		types = append(types, event.Type)
	}
	return types
}

func TestCreateTicketDefaultsAndDueDates(t *testing.T) {
	fx := newServiceFixture(t)

	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject:        "  printer on fire  ",
		RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "printer on fire", ticket.Subject)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, domain.TicketTypeGeneral, ticket.Type)
	assert.NotEmpty(t, ticket.ExternalKey)
	require.NotNil(t, ticket.FirstResponseDueAt)
	assert.WithinDuration(t, ticket.CreatedAt.Add(240*time.Minute), *ticket.FirstResponseDueAt, time.Second)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, fx.eventTypes())
}

func TestCreateTicketValidation(t *testing.T) {
	fx := newServiceFixture(t)

	_, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{RequesterEmail: "a@b.c"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = fx.service.CreateTicket(context.Background(), TicketCreateInput{Subject: "x"})
	require.Error(t, err)

	_, err = fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "x", RequesterEmail: "a@b.c", Priority: "EXTREME",
	})
	require.Error(t, err)
}

func TestAddCommentStampsFirstResponse(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)

	agentID := "agent-1"

	// An internal note does not count as first response.
	_, err = fx.service.AddComment(context.Background(), ticket.ID, CommentInput{
		AuthorType: domain.AuthorTypeAgent,
		AuthorID:   &agentID,
		Visibility: domain.VisibilityInternal,
		Body:       "looking into it",
	})
	require.NoError(t, err)
	stored, err := fx.service.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.FirstResponseAt)

	_, err = fx.service.AddComment(context.Background(), ticket.ID, CommentInput{
		AuthorType: domain.AuthorTypeAgent,
		AuthorID:   &agentID,
		Body:       "on it now",
	})
	require.NoError(t, err)
	stored, err = fx.service.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.FirstResponseAt)

	// Requesters cannot post internal notes.
	_, err = fx.service.AddComment(context.Background(), ticket.ID, CommentInput{
		AuthorType: domain.AuthorTypeRequester,
		Visibility: domain.VisibilityInternal,
		Body:       "secret",
	})
	require.Error(t, err)
}

func TestChangeStatusRequiresComment(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)

	_, err = fx.service.ChangeStatus(context.Background(), "agent-1", ticket.ID, StatusChangeInput{To: domain.TicketStatusClosed})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	updated, err := fx.service.ChangeStatus(context.Background(), "agent-1", ticket.ID, StatusChangeInput{
		To:      domain.TicketStatusClosed,
		Comment: "resolved by phone",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, updated.Status)
	assert.NotNil(t, updated.ClosedAt)

	// Comment first, then the transition's status event.
	require.Len(t, fx.comments.comments, 1)
	assert.Contains(t, fx.eventTypes(), events.EventTicketCommentAdded)
	assert.Contains(t, fx.eventTypes(), events.EventTicketStatusChanged)

	// History carries the status change.
	require.NotEmpty(t, fx.history.entries)
	last := fx.history.entries[len(fx.history.entries)-1]
	assert.Equal(t, domain.ChangeTypeStatus, last.ChangeType)
}

func TestChangeStatusInvalidTransition(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)

	_, err = fx.service.ChangeStatus(context.Background(), "agent-1", ticket.ID, StatusChangeInput{To: domain.TicketStatusPending})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", apperrors.ToDomainError(err).Code)
}

func TestChangeStatusRequiresResolution(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)

	_, err = fx.service.ChangeStatus(context.Background(), "agent-1", ticket.ID, StatusChangeInput{To: domain.TicketStatusResolved})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	updated, err := fx.service.ChangeStatus(context.Background(), "agent-1", ticket.ID, StatusChangeInput{
		To:         domain.TicketStatusResolved,
		Resolution: "replaced the faulty cable",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
	require.NotNil(t, updated.Resolution)
	assert.Equal(t, "replaced the faulty cable", *updated.Resolution)
}

func TestChangePriorityRecalculatesDueDates(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)
	originalDue := *ticket.FirstResponseDueAt

	updated, err := fx.service.ChangePriority(context.Background(), "agent-1", ticket.ID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
	require.NotNil(t, updated.FirstResponseDueAt)
	assert.True(t, updated.FirstResponseDueAt.Before(originalDue))

	// Same priority is a no-op.
	again, err := fx.service.ChangePriority(context.Background(), "agent-1", ticket.ID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, updated.Version, again.Version)
}

func TestDeleteTicketHidesFromReads(t *testing.T) {
	fx := newServiceFixture(t)
	ticket, err := fx.service.CreateTicket(context.Background(), TicketCreateInput{
		Subject: "help", RequesterEmail: "user@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, fx.service.DeleteTicket(context.Background(), "agent-1", ticket.ID))
	_, err = fx.service.GetTicket(context.Background(), ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}
