package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/ai"
	httptransport "github.com/spec-kit/autonoc/internal/api/http"
	"github.com/spec-kit/autonoc/internal/api/http/handlers"
	"github.com/spec-kit/autonoc/internal/config"
	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/events"
	"github.com/spec-kit/autonoc/internal/integration/ixc"
	"github.com/spec-kit/autonoc/internal/observability"
	"github.com/spec-kit/autonoc/internal/persistence"
	"github.com/spec-kit/autonoc/internal/repository"
	"github.com/spec-kit/autonoc/internal/service"
	"github.com/spec-kit/autonoc/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	observability.RegisterMetrics()

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

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	technicianRepo := repository.NewTechnicianRepository(pool)
	diagnosisRepo := repository.NewDiagnosisRepository(pool)
	observationRepo := repository.NewObservationRepository(pool)
	ruleRepo := repository.NewDispatchRuleRepository(pool)
	territoryRepo := repository.NewTerritoryRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	ispClient := ixc.NewClient(cfg.IXC)

	var aiClient ai.Client
	if cfg.AI.Enabled {
		aiClient = ai.NewHTTPClient(cfg.AI)
	} else {
		logger.Warn("language capability disabled; deterministic fallbacks active")
	}

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	diagnosticService := service.NewDiagnosticService(service.DiagnosticDependencies{
		TicketRepo:      ticketRepo,
		CustomerRepo:    customerRepo,
		DiagnosisRepo:   diagnosisRepo,
		ObservationRepo: observationRepo,
		AuditRepo:       auditRepo,
		ISP:             ispClient,
		AI:              aiClient,
		Locker:          redis,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	dispatchService := service.NewDispatchService(service.DispatchDependencies{
		TicketRepo:      ticketRepo,
		CustomerRepo:    customerRepo,
		TechnicianRepo:  technicianRepo,
		DiagnosisRepo:   diagnosisRepo,
		ObservationRepo: observationRepo,
		RuleRepo:        ruleRepo,
		TerritoryRepo:   territoryRepo,
		AuditRepo:       auditRepo,
		ISP:             ispClient,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Weights: domain.DispatchWeights{
			Distance: cfg.Dispatch.DistanceWeight,
			Queue:    cfg.Dispatch.QueueWeight,
			Skill:    cfg.Dispatch.SkillWeight,
			SLA:      cfg.Dispatch.SLAWeight,
		},
		QueueCeiling: cfg.Dispatch.QueueCeiling,
	})
	routeService := service.NewRouteService(service.RouteDependencies{
		TicketRepo:     ticketRepo,
		CustomerRepo:   customerRepo,
		TechnicianRepo: technicianRepo,
		Logger:         logger,
	})
	syncService := service.NewSyncService(service.SyncDependencies{
		TicketRepo:   ticketRepo,
		CustomerRepo: customerRepo,
		ISP:          ispClient,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		CustomerRepo:    customerRepo,
		TechnicianRepo:  technicianRepo,
		DiagnosisRepo:   diagnosisRepo,
		ObservationRepo: observationRepo,
		AuditRepo:       auditRepo,
		ISP:             ispClient,
		Logger:          logger,
	})

	pipeline := worker.NewPipeline(worker.PipelineDependencies{
		Sync:       syncService,
		Diagnostic: diagnosticService,
		Dispatch:   dispatchService,
		Config:     cfg.Worker,
		Logger:     logger,
	})
	go pipeline.Start(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:     handlers.NewTicketsHandler(ticketService, diagnosticService, dispatchService),
		Technicians: handlers.NewTechniciansHandler(technicianRepo, dispatchService, routeService),
		Worker:      handlers.NewWorkerHandler(pipeline),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
