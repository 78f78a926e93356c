// Package app wires configuration, storage and services into a runnable graph
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

// Container holds long-lived dependencies.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Clock   clock.Clock

	Postgres *persistence.Postgres
	Redis    *persistence.Redis

	Users         repository.UserRepository
	Tickets       repository.TicketRepository
	Messages      repository.TicketMessageRepository
	History       repository.TicketHistoryRepository
	Policies      repository.SLAPolicyRepository
	Notifications repository.NotificationRepository

	NotificationService *service.NotificationService
	SLALifecycle        *service.SLALifecycle
	Sweeper             *service.BreachSweeper
	TicketService       *service.TicketService
	SLAPolicyService    *service.SLAPolicyService
}

// New connects to Postgres and Redis and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Clock:    clock.System{},
		Postgres: pg,
		Redis:    persistence.NewRedis(ctx, cfg.Redis, logger),
	}

	pool := pg.PoolHandle()
	c.Users = repository.NewUserRepository(pool)
	c.Tickets = repository.NewTicketRepository(pool)
	c.Messages = repository.NewTicketMessageRepository(pool)
	c.History = repository.NewTicketHistoryRepository(pool)
	c.Policies = repository.NewSLAPolicyRepository(pool)
	c.Notifications = repository.NewNotificationRepository(pool)

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.Notification.PublishEnabled {
		publisher = events.NewRedisPublisher(c.Redis.Client(), cfg.Notification.Channel)
	}

	c.NotificationService = service.NewNotificationService(c.Notifications, publisher, c.Clock, logger)
	c.SLAPolicyService = service.NewSLAPolicyService(c.Policies, c.Clock, logger)
	c.SLALifecycle = service.NewSLALifecycle(c.SLAPolicyService, c.Tickets, c.Clock, logger)
	c.Sweeper = service.NewBreachSweeper(service.SweepDependencies{
		TicketRepo:  c.Tickets,
		UserRepo:    c.Users,
		HistoryRepo: c.History,
		Notifier:    c.NotificationService,
		Clock:       c.Clock,
		Metrics:     c.Metrics,
		Logger:      logger.Named("sla_sweep"),
	}, service.SweepSettings{
		BatchSize:        cfg.SLA.SweepBatchSize,
		ResponseWindow:   cfg.SLA.ResponseWarningWindow(),
		ResolutionWindow: cfg.SLA.ResolutionWarningWindow(),
	})
	c.TicketService = service.NewTicketService(service.TicketDependencies{
		TicketRepo:    c.Tickets,
		MessageRepo:   c.Messages,
		HistoryRepo:   c.History,
		UserRepo:      c.Users,
		SLAPolicyRepo: c.Policies,
		SLA:           c.SLALifecycle,
		Notifier:      c.NotificationService,
		Clock:         c.Clock,
		Logger:        logger,
	})
	return c, nil
}

// Close releases connections.
func (c *Container) Close() {
	c.Redis.Close()
	c.Postgres.Close()
}
