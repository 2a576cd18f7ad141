package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/automation"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/worker"
	"github.com/spec-kit/helpdesk-service/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tables, err := config.LoadTables(cfg.Tables)
	if err != nil {
		log.Fatalf("failed to load definition tables: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		kafkaPublisher.Attach(dispatcher)
		defer kafkaPublisher.Close() //nolint:errcheck
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)
	executionRepo := repository.NewExecutionRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	slaClock := sla.NewClock(tables.SLA, ticketRepo, metrics, logger)

	ruleTemplates := make(map[string]automation.RuleTemplate, len(tables.RuleTemplates))
	for _, template := range tables.RuleTemplates {
		ruleTemplates[template.Name] = template
	}

	executor := automation.NewExecutor(automation.ExecutorDependencies{
		Tickets:       ticketRepo,
		Comments:      commentRepo,
		Notifications: notificationRepo,
		Agents:        agentRepo,
		Templates:     tables.ResponseTemplates,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	ruleEngine := automation.NewEngine(automation.EngineDependencies{
		Rules:      ruleRepo,
		Executions: executionRepo,
		Evaluator:  automation.NewConditionEvaluator(),
		Executor:   executor,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Templates:  ruleTemplates,
		Enabled:    cfg.Automation.Enabled,
	})

	workflowEngine := workflow.NewEngine(workflow.EngineDependencies{
		Tickets:    ticketRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	workflowEngine.RegisterGuard(workflow.NewReopenWindowGuard())
	workflowEngine.RegisterGuard(workflow.HasAssigneeGuard{})
	workflowEngine.RegisterGuard(workflow.NotDeletedGuard{})
	workflowEngine.RegisterGuard(workflow.HasResolutionDueGuard{})
	workflowEngine.RegisterAction(workflow.ClearAssigneeAction{})
	workflowEngine.RegisterAction(&workflow.StampFirstResponseAction{})
	workflowEngine.RegisterAction(&workflow.RecordHistoryAction{History: historyRepo})
	workflowEngine.RegisterAction(&workflow.NotifyRequesterAction{Notifications: notificationRepo})
	for _, def := range tables.Workflows {
		if err := workflowEngine.RegisterWorkflow(def); err != nil {
			logger.Fatal("failed to register workflow", zap.String("workflow", def.Name), zap.Error(err))
		}
	}

	// The workflow engine fires automation after commit, and automation's
	// change_status action re-enters the workflow engine, so both sides are
	// attached after construction.
	workflowEngine.SetRuleProcessor(workflow.RuleProcessorFunc(func(ctx context.Context, ticket *domain.Ticket) error {
		_, err := ruleEngine.ProcessTicket(ctx, ticket, domain.TriggerStatusChanged)
		return err
	}))
	executor.SetTransitioner(workflowEngine)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		Workflow:    workflowEngine,
		Rules:       ruleEngine,
		Clock:       slaClock,
		Dispatcher:  dispatcher,
	})
	authService := service.NewAuthService(*cfg, agentRepo)
	agentService := service.NewAgentService(*cfg, agentRepo, categoryRepo)
	notificationService := service.NewNotificationService(notificationRepo, ticketRepo, dispatcher, logger, cfg.Notification)
	analysisService := service.NewAnalysisService(cfg.OpenAI, logger)

	worker.StartNotificationWorker(notificationService)

	slaWorker := worker.NewSLAWorker(worker.SLAWorkerDependencies{
		Tickets:    ticketRepo,
		Clock:      slaClock,
		Rules:      ruleEngine,
		Dispatcher: dispatcher,
		Redis:      redis,
		Logger:     logger,
		Schedule:   cfg.Worker.SLASweepSchedule,
		BatchSize:  cfg.Worker.SLASweepBatch,
	})
	if err := slaWorker.Start(); err != nil {
		logger.Fatal("failed to start sla worker", zap.Error(err))
	}
	defer slaWorker.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, analysisService),
		Rules:          handlers.NewRulesHandler(ruleEngine, ruleRepo, ticketService),
		Agents:         handlers.NewAgentsHandler(agentService, authService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
