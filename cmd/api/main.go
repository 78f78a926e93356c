package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/worker"
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

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise", zap.Error(err))
	}
	defer container.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, container.Users)

	server := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(server, logger, container.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, container.Postgres, container.Redis, container.Metrics),
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(container.TicketService),
		Notifications:  handlers.NewNotificationsHandler(container.NotificationService),
		SLA:            handlers.NewSLAHandler(container.SLAPolicyService, container.Sweeper),
		AuthMiddleware: authMiddleware,
	})

	if cfg.SLA.WorkerEnabled {
		sweepWorker := worker.NewSLASweepWorker(container.Sweeper, cfg.SLA.SweepInterval(), cfg.SLA.WorkerNotify, logger.Named("sla_worker"))
		go sweepWorker.Start(ctx)
	}

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = server.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
