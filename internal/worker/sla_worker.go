package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/automation"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
)

const slaSweepLockKey = "helpdesk:sla-sweep"

// SLAWorker periodically sweeps open tickets for missed SLA deadlines,
// records breaches, and fires the sla_breached trigger. A redis lock keeps
// concurrent instances from sweeping the same window.
type SLAWorker struct {
	tickets    repository.TicketRepository
	clock      *sla.Clock
	rules      *automation.Engine
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	logger     *zap.Logger
	schedule   string
	batchSize  int
	cron       *cron.Cron
}

// SLAWorkerDependencies bundles collaborators for the worker.
type SLAWorkerDependencies struct {
	Tickets    repository.TicketRepository
	Clock      *sla.Clock
	Rules      *automation.Engine
	Dispatcher events.Dispatcher
	Redis      *persistence.Redis
	Logger     *zap.Logger
	Schedule   string
	BatchSize  int
}

// NewSLAWorker constructs the worker.
func NewSLAWorker(deps SLAWorkerDependencies) *SLAWorker {
	schedule := deps.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &SLAWorker{
		tickets:    deps.Tickets,
		clock:      deps.Clock,
		rules:      deps.Rules,
		dispatcher: deps.Dispatcher,
		redis:      deps.Redis,
		logger:     deps.Logger,
		schedule:   schedule,
		batchSize:  deps.BatchSize,
		cron:       cron.New(),
	}
}

// Start schedules the sweep.
func (w *SLAWorker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		w.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("sla worker started", zap.String("schedule", w.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *SLAWorker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one pass over breach candidates. Returns the number of tickets
// newly marked as breached.
func (w *SLAWorker) Sweep(ctx context.Context) int {
	if !w.redis.AcquireLock(ctx, slaSweepLockKey, time.Minute) {
		w.logger.Debug("sla sweep skipped, lock held elsewhere")
		return 0
	}
	defer w.redis.ReleaseLock(ctx, slaSweepLockKey)

	candidates, err := w.tickets.ListSLACandidates(ctx, w.batchSize)
	if err != nil {
		w.logger.Warn("list sla candidates failed", zap.Error(err))
		return 0
	}

	breached := 0
	for i := range candidates {
		ticket := &candidates[i]
		if !w.clock.RecordBreachIfNeeded(ctx, ticket) {
			continue
		}
		breached++
		w.publishBreach(ctx, ticket)
		if w.rules != nil {
			_, _ = w.rules.ProcessTicket(ctx, ticket, domain.TriggerSLABreached)
		}
	}
	if breached > 0 {
		w.logger.Info("sla sweep complete",
			zap.Int("candidates", len(candidates)), zap.Int("breached", breached))
	}
	return breached
}

func (w *SLAWorker) publishBreach(ctx context.Context, ticket *domain.Ticket) {
	if w.dispatcher == nil || ticket.SLABreachType == nil {
		return
	}
	var dueAt time.Time
	switch *ticket.SLABreachType {
	case domain.BreachFirstResponse:
		if ticket.FirstResponseDueAt != nil {
			dueAt = *ticket.FirstResponseDueAt
		}
	case domain.BreachResolution:
		if ticket.ResolutionDueAt != nil {
			dueAt = *ticket.ResolutionDueAt
		}
	}
	_ = w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLABreached,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor(),
		Timestamp: time.Now(),
		Payload: events.SLABreachedPayload{
			BreachType: *ticket.SLABreachType,
			DueAt:      dueAt,
		},
	})
}
