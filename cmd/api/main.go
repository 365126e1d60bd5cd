package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notification-service/internal/config"
	"github.com/kursadbilgin/notification-service/internal/handler"
	"github.com/kursadbilgin/notification-service/internal/infra/mongodb"
	"github.com/kursadbilgin/notification-service/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-service/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-service/internal/infra/redis"
	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/provider"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"github.com/kursadbilgin/notification-service/internal/service"
	"github.com/kursadbilgin/notification-service/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("notification-service stopped with error", zap.Error(err))
	}
	logger.Info("notification-service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	metrics := observability.NewMetrics()

	store, closeStore, err := openAuditStore(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := infraredis.NewRedis(startCtx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher, err := service.NewDispatcher(
		store,
		providers,
		limiter,
		service.RetryPolicy{
			MaxAttempts: cfg.DispatchMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
		},
		cfg.ProviderTimeout(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("dispatcher initialization failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)

	// The publisher gets its own connection so the consumer stays the single
	// owner of its channel.
	publisherConn, err := queue.NewRabbitMQ(startCtx, cfg.RabbitMQURL, cfg.NotificationQueue)
	if err != nil {
		return fmt.Errorf("rabbitmq publisher connection failed: %w", err)
	}
	publisher := queue.NewRabbitMQPublisher(publisherConn)
	defer publisher.Close() //nolint:errcheck

	notifications, err := service.NewNotificationService(store, publisher, cfg.NotificationQueue, logger)
	if err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}

	brokers := []handler.BrokerStatus{publisherConn}
	var consumerConn *queue.RabbitMQ
	if cfg.ConsumerEnabled {
		consumerConn, err = queue.NewRabbitMQ(startCtx, cfg.RabbitMQURL, cfg.NotificationQueue)
		if err != nil {
			return fmt.Errorf("rabbitmq consumer connection failed: %w", err)
		}
		defer consumerConn.Close() //nolint:errcheck
		brokers = append(brokers, consumerConn)
	}

	app := fiber.New(fiber.Config{
		AppName:               "notification-service",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, notifications, rdb, brokers...)
	if err := handler.RegisterNotificationRoutes(app, dispatcher, notifications); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if consumerConn != nil {
		consumer := queue.NewRabbitMQConsumer(consumerConn, cfg.PrefetchCount, logger, metrics)

		worker, err := service.NewDeliveryWorker(consumer, dispatcher, cfg.NotificationQueue, logger)
		if err != nil {
			return fmt.Errorf("delivery worker initialization failed: %w", err)
		}
		worker.SetMetrics(metrics)

		g.Go(func() error {
			return worker.Start(gctx)
		})
	}

	if retention := cfg.RetentionPeriod(); retention > 0 {
		sweeper, err := service.NewRetentionSweeper(store, retention, cfg.RetentionInterval(), logger)
		if err != nil {
			return fmt.Errorf("retention sweeper initialization failed: %w", err)
		}
		sweeper.SetMetrics(metrics)

		g.Go(func() error {
			return sweeper.Start(gctx)
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("notification-service api started", zap.String("addr", addr))
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		logger.Info("shutting down http server")
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openAuditStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.AuditStore, func(), error) {
	switch cfg.AuditBackend {
	case config.AuditBackendMongo:
		client, err := mongodb.NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb initialization failed: %w", err)
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warn("mongodb disconnect failed", zap.Error(err))
			}
		}

		coll, err := mongodb.RecordCollection(ctx, client, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongodb collection setup failed: %w", err)
		}

		logger.Info("audit store ready", zap.String("backend", cfg.AuditBackend), zap.String("collection", cfg.MongoCollection))
		return repository.NewMongoRecordRepo(coll), closeFn, nil

	default:
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		closeFn := func() {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("postgres close failed", zap.Error(err))
			}
		}

		if err := migrations.Migrate(db); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("database migrations failed: %w", err)
		}

		logger.Info("audit store ready", zap.String("backend", cfg.AuditBackend))
		return repository.NewGormRecordRepo(db), closeFn, nil
	}
}

func buildProviders(cfg *config.Config, logger *zap.Logger) (provider.Registry, error) {
	email, err := provider.NewEmailProvider(provider.EmailConfig{
		Endpoint:       cfg.EmailAPIURL,
		APIKey:         cfg.EmailAPIKey,
		SenderAddress:  cfg.EmailSenderAddress,
		SenderName:     cfg.EmailSenderName,
		DefaultSubject: cfg.EmailDefaultSubject,
		Timeout:        cfg.ProviderTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("email provider initialization failed: %w", err)
	}

	var whatsapp provider.Provider
	if cfg.WhatsAppMockMode || strings.TrimSpace(cfg.WhatsAppAPIURL) == "" {
		logger.Info("whatsapp provider running in mock mode")
		whatsapp = provider.NewMockWhatsAppProvider(logger)
	} else {
		whatsapp, err = provider.NewWhatsAppProvider(provider.WhatsAppConfig{
			Endpoint: cfg.WhatsAppAPIURL,
			Token:    cfg.WhatsAppAPIToken,
			Timeout:  cfg.ProviderTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("whatsapp provider initialization failed: %w", err)
		}
	}

	return provider.NewRegistry(email, whatsapp), nil
}
