package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/supportdesk/workflow-service/internal/api/http"
	"github.com/supportdesk/workflow-service/internal/api/http/handlers"
	"github.com/supportdesk/workflow-service/internal/auth"
	"github.com/supportdesk/workflow-service/internal/config"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/observability"
	"github.com/supportdesk/workflow-service/internal/persistence"
	"github.com/supportdesk/workflow-service/internal/presence"
	"github.com/supportdesk/workflow-service/internal/repository"
	"github.com/supportdesk/workflow-service/internal/service"
	"github.com/supportdesk/workflow-service/internal/worker"
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
	dispatcher := events.NewInMemoryDispatcher()
	uow := repository.NewPostgresUnitOfWork(pool, dispatcher)
	userRepo := repository.NewUserRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	tracker := presence.NewTracker(redis.Client, cfg.Presence.HeartbeatTTL())
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(cfg.Auth, userRepo, resetRepo)
	ticketService := service.NewTicketService(uow, logger, metrics)
	assignmentService := service.NewAssignmentService(uow, tracker, logger)
	notificationService := service.NewNotificationService(dispatcher, tracker, logger.Named("notifications"), cfg.Notification)
	notificationService.RegisterHandlers()

	slaMonitor := worker.NewSLAMonitor(uow, logger.Named("sla"), time.Minute)
	go slaMonitor.Run(ctx)

	authMiddleware := auth.NewMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(pg, redis),
		Users:       handlers.NewUsersHandler(authService),
		Tickets:     handlers.NewTicketsHandler(ticketService),
		Assignments: handlers.NewAssignmentsHandler(assignmentService),
		Presence:    handlers.NewPresenceHandler(tracker),
		Auth:        authMiddleware,
		Metrics:     metrics,
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
