package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/ai"
	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/pipeline"
	"github.com/spec-kit/helpdesk/internal/queue"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
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

	amqpConn, err := persistence.DialRabbit(ctx, cfg.Queue, logger)
	if err != nil {
		logger.Fatal("failed to connect rabbitmq", zap.Error(err))
	}
	defer amqpConn.Close()

	pool := pg.PoolHandle()
	customerRepo := repository.NewCustomerRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	replyRepo := repository.NewReplyRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	metrics := observability.NewMetrics()

	broadcaster := events.NewRedisBroadcaster(redis.Client, logger)
	notifier := notify.NewRouter(map[domain.Channel]notify.Transport{
		domain.ChannelChat:       notify.NewChatTransport(broadcaster),
		domain.ChannelEmail:      notify.NewEmailTransport(cfg.SMTP),
		domain.ChannelBotWebhook: notify.NewBotTransport(cfg.Bot),
		domain.ChannelOther:      notify.NewLogTransport(logger),
	}, logger)

	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		CustomerResolver: pipeline.NewCustomerResolver(customerRepo, cfg.Auth.BcryptCost),
		TicketResolver:   pipeline.NewTicketResolver(ticketRepo),
		TicketRepo:       ticketRepo,
		ReplyRepo:        replyRepo,
		AgentRepo:        agentRepo,
		HistoryRepo:      historyRepo,
		Enricher:         ai.NewClient(cfg.AI, logger),
		Notifier:         notifier,
		Logger:           logger,
		Metrics:          metrics,
		MaxAttempts:      cfg.AI.MaxAttempts,
		Backoff:          cfg.AI.Backoff(),
	})

	publisher, err := queue.NewPublisher(amqpConn, cfg.Queue, logger)
	if err != nil {
		logger.Fatal("failed to create queue publisher", zap.Error(err))
	}

	consumer, err := queue.NewConsumer(amqpConn, cfg.Queue, orchestrator, logger)
	if err != nil {
		logger.Fatal("failed to create queue consumer", zap.Error(err))
	}
	if err := consumer.Start(); err != nil {
		logger.Fatal("failed to start queue consumer", zap.Error(err))
	}

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		CustomerRepo: customerRepo,
		AgentRepo:    agentRepo,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		ReplyRepo:    replyRepo,
		HistoryRepo:  historyRepo,
		CustomerRepo: customerRepo,
		AgentRepo:    agentRepo,
		Notifier:     notifier,
		Logger:       logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), customerRepo, agentRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, amqpConn),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Webhook:        handlers.NewWebhookHandler(publisher, cfg.Auth.WebhookToken, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	if err := consumer.Close(); err != nil {
		logger.Warn("consumer close", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
