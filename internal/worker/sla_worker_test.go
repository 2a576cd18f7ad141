package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
)

type fakeTicketRepo struct {
	candidates []domain.Ticket
	updates    int
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error { return nil }

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.updates++
	return nil
}

func (r *fakeTicketRepo) SoftDelete(ctx context.Context, ticket *domain.Ticket) error { return nil }

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) ListSLACandidates(ctx context.Context, limit int) ([]domain.Ticket, error) {
	return r.candidates, nil
}

func TestSweepRecordsBreachesAndPublishes(t *testing.T) {
	opened := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := opened.Add(2 * time.Hour)

	overdueDue := opened.Add(30 * time.Minute)
	comfortableDue := opened.Add(8 * time.Hour)

	repo := &fakeTicketRepo{candidates: []domain.Ticket{
		{
			ID:                 "t-overdue",
			Status:             domain.TicketStatusOpen,
			CreatedAt:          opened,
			FirstResponseDueAt: &overdueDue,
		},
		{
			ID:                 "t-fine",
			Status:             domain.TicketStatusOpen,
			CreatedAt:          opened,
			FirstResponseDueAt: &comfortableDue,
		},
	}}

	clock := sla.NewClock(sla.RuleTable{}, repo, nil, nil)
	clock.SetNow(func() time.Time { return now })

	dispatcher := events.NewInMemoryDispatcher()
	var breaches []events.Event
	dispatcher.Subscribe(events.EventSLABreached, func(ctx context.Context, event events.Event) error {
		breaches = append(breaches, event)
		return nil
	})

	worker := NewSLAWorker(SLAWorkerDependencies{
		Tickets:    repo,
		Clock:      clock,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})

	breached := worker.Sweep(context.Background())
	assert.Equal(t, 1, breached)
	assert.Equal(t, 1, repo.updates)

	require.Len(t, breaches, 1)
	assert.Equal(t, "t-overdue", breaches[0].TicketID)
	payload, ok := breaches[0].Payload.(events.SLABreachedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.BreachFirstResponse, payload.BreachType)
	assert.Equal(t, overdueDue, payload.DueAt)
}

func TestSweepNoCandidates(t *testing.T) {
	repo := &fakeTicketRepo{}
	clock := sla.NewClock(sla.RuleTable{}, repo, nil, nil)

	worker := NewSLAWorker(SLAWorkerDependencies{
		Tickets: repo,
		Clock:   clock,
		Logger:  zap.NewNop(),
	})

	assert.Zero(t, worker.Sweep(context.Background()))
	assert.Zero(t, repo.updates)
}
