package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/lerndmina/Heimdall-sub004/internal/api/http"
	"github.com/lerndmina/Heimdall-sub004/internal/api/http/handlers"
	"github.com/lerndmina/Heimdall-sub004/internal/attachments"
	"github.com/lerndmina/Heimdall-sub004/internal/auth"
	"github.com/lerndmina/Heimdall-sub004/internal/cache"
	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/events"
	"github.com/lerndmina/Heimdall-sub004/internal/gateway"
	"github.com/lerndmina/Heimdall-sub004/internal/observability"
	"github.com/lerndmina/Heimdall-sub004/internal/persistence"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	"github.com/lerndmina/Heimdall-sub004/internal/worker"
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
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	guildRepo := repository.NewGuildRepository(pool)

	redisCache := cache.NewRedisCache(redis.Client, cfg.App.Name)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	// The adapter that wraps the real chat-platform SDK runs out of process
	// and forwards events over the ingestion API; outbound platform calls
	// stay disabled until an in-process adapter is registered.
	var client platform.Client = platform.NewDisabledClient()

	var store attachments.BlobStore
	if cfg.BlobStore.Endpoint != "" {
		store = attachments.NewHTTPBlobStore(cfg.BlobStore.Endpoint, cfg.BlobStore.APIKey)
	}
	pipeline := attachments.NewPipeline(cfg.Attachment, store, logger)

	tags := service.NewTagService(client, logger)
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		GuildRepo:   guildRepo,
		Client:      client,
		Tags:        tags,
		Cache:       redisCache,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Config:      cfg.Modmail,
	})
	relay := service.NewRelayService(service.RelayDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Lifecycle:   lifecycle,
		Client:      client,
		Pipeline:    pipeline,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Config:      cfg.Modmail,
	})
	form := service.NewFormService(service.FormDependencies{
		CategoryRepo: categoryRepo,
		GuildRepo:    guildRepo,
		Prompter:     platform.NewDisabledClient(),
		Logger:       logger,
		Config:       cfg.Modmail,
	})
	service.NewNotificationService(dispatcher, logger, cfg.Webhook)

	gw := gateway.New(gateway.Dependencies{
		Lifecycle: lifecycle,
		Relay:     relay,
		Form:      form,
		Client:    client,
		Logger:    logger,
		Config:    cfg.Modmail,
	})

	inactivity := worker.NewInactivityWorker(worker.InactivityDependencies{
		TicketRepo: ticketRepo,
		Lifecycle:  lifecycle,
		Client:     client,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config:     cfg.Modmail,
	})
	go inactivity.Run(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(cfg.Auth.APIKeyHashes, tokens),
		Tickets:        handlers.NewTicketsHandler(ticketRepo, messageRepo),
		Events:         handlers.NewEventsHandler(gw),
		AuthMiddleware: authMiddleware,
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
