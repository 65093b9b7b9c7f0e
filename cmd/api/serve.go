package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/marketplace-support/internal/api/http"
	"github.com/spec-kit/marketplace-support/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/integrations/streamchat"
	"github.com/spec-kit/marketplace-support/internal/integrations/zoho"
	"github.com/spec-kit/marketplace-support/internal/observability"
	"github.com/spec-kit/marketplace-support/internal/persistence"
	"github.com/spec-kit/marketplace-support/internal/repository"
	"github.com/spec-kit/marketplace-support/internal/repository/memory"
	"github.com/spec-kit/marketplace-support/internal/service"
	"github.com/spec-kit/marketplace-support/internal/worker"
)

// repositories is the storage backend the services run on.
type repositories struct {
	tx            repository.Transactor
	users         repository.UserRepository
	catalog       repository.CatalogRepository
	orders        repository.OrderRepository
	tickets       repository.TicketRepository
	cursors       repository.AssignmentCursorRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Pinger{}
	repos, closeStore, err := openStore(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	checks["redis"] = redis

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	chat := streamchat.NewClient(cfg.Stream, logger)
	var provisioner service.ChannelProvisioner
	var chatTokens handlers.ChatTokenIssuer
	if chat.Configured() {
		provisioner = chat
		chatTokens = chat
	} else {
		logger.Warn("chat vendor not configured, tickets keep placeholder channels")
	}

	notificationService := service.NewNotificationService(repos.notifications, dispatcher, logger)
	agentService := service.NewAgentService(*cfg, service.AgentDependencies{
		UserRepo:   repos.users,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: repos.tickets,
		UserRepo:   repos.users,
		CursorRepo: repos.cursors,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		TicketRepo:  repos.tickets,
		UserRepo:    repos.users,
		MessageRepo: repos.messages,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		Tx:            repos.tx,
		TicketRepo:    repos.tickets,
		OrderRepo:     repos.orders,
		UserRepo:      repos.users,
		CatalogRepo:   repos.catalog,
		Assignment:    assignmentService,
		Messages:      messageService,
		Notifications: notificationService,
		Provisioner:   provisioner,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	orderService := service.NewOrderService(*cfg, service.OrderDependencies{
		Tx:          repos.tx,
		OrderRepo:   repos.orders,
		CatalogRepo: repos.catalog,
		Tickets:     ticketService,
		Messages:    messageService,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: repos.users,
		Logger:   logger,
	})

	if _, err := authService.EnsureSuperAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}

	var sinks []worker.Sink
	if writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic); writer != nil {
		forwarder := events.NewKafkaForwarder(writer, logger)
		defer forwarder.Close() //nolint:errcheck
		sinks = append(sinks, forwarder)
	}
	if crm := zoho.NewClient(cfg.Zoho, logger); crm.Enabled() {
		sinks = append(sinks, crm)
	}
	worker.StartNotificationWorker(dispatcher, notificationService, sinks...)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:            handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, metrics),
		Auth:              handlers.NewAuthHandler(authService, chatTokens),
		Orders:            handlers.NewOrdersHandler(orderService, ticketService, metrics),
		Tickets:           handlers.NewTicketsHandler(ticketService, messageService),
		Agents:            handlers.NewAgentsHandler(agentService, ticketService),
		Notifications:     handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware:    auth.NewAuthMiddleware(authService.TokenManager(), repos.users),
		RateLimiter:       redis,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		Logger:            logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.Shutdown()
}

// openStore connects to Postgres when a DSN is configured and falls back to
// the in-process store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]handlers.Pinger) (repositories, func(), error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory storage")
		store := memory.New()
		return repositories{
			tx:            store,
			users:         store.Users(),
			catalog:       store.Catalog(),
			orders:        store.Orders(),
			tickets:       store.Tickets(),
			cursors:       store.Cursors(),
			messages:      store.Messages(),
			notifications: store.Notifications(),
		}, func() {}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return repositories{}, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return repositories{}, nil, fmt.Errorf("migrations: %w", err)
		}
	}
	checks["postgres"] = pg

	pool := pg.PoolHandle()
	return repositories{
		tx:            persistence.NewTxManager(pool),
		users:         repository.NewUserRepository(pool),
		catalog:       repository.NewCatalogRepository(pool),
		orders:        repository.NewOrderRepository(pool),
		tickets:       repository.NewTicketRepository(pool),
		cursors:       repository.NewAssignmentCursorRepository(pool),
		messages:      repository.NewMessageRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
	}, pg.Close, nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
