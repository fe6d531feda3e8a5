package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/taskhive/pushguard/internal/analytics"
	"github.com/taskhive/pushguard/internal/config"
	"github.com/taskhive/pushguard/internal/engine"
	"github.com/taskhive/pushguard/internal/handler"
	"github.com/taskhive/pushguard/internal/infra/postgresql"
	"github.com/taskhive/pushguard/internal/infra/postgresql/migrations"
	infraredis "github.com/taskhive/pushguard/internal/infra/redis"
	"github.com/taskhive/pushguard/internal/observability"
	"github.com/taskhive/pushguard/internal/queue"
	"github.com/taskhive/pushguard/internal/recorder"
	"github.com/taskhive/pushguard/internal/repository"
	"github.com/taskhive/pushguard/internal/sender"
	"github.com/taskhive/pushguard/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("pushguard exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()

	retryRepo := repository.NewGormRetryRepo(db)
	metricRepo := repository.NewGormMetricRepo(db)

	rec := recorder.NewRecorder(metricRepo, logger)
	rec.SetMetrics(metrics)

	pushSender, err := sender.NewWebhookPushSender(cfg.PushGatewayURL)
	if err != nil {
		return fmt.Errorf("push sender initialization failed: %w", err)
	}

	processor, err := engine.NewProcessor(retryRepo, rec, cfg.Backoff(), logger)
	if err != nil {
		return fmt.Errorf("processor initialization failed: %w", err)
	}
	processor.SetMetrics(metrics)

	sweeper, err := engine.NewSweeper(retryRepo, processor, pushSender.Send, logger)
	if err != nil {
		return fmt.Errorf("sweeper initialization failed: %w", err)
	}
	sweeper.SetMetrics(metrics)
	sweeper.SetBatchLimit(cfg.SweepBatchLimit)
	sweeper.SetRecordDelay(cfg.InterRecordDelay())

	intake, err := engine.NewIntake(retryRepo, cfg.Backoff(), logger)
	if err != nil {
		return fmt.Errorf("intake initialization failed: %w", err)
	}

	analyticsService, err := analytics.NewService(metricRepo, logger)
	if err != nil {
		return fmt.Errorf("analytics service initialization failed: %w", err)
	}
	analyticsService.SetWindow(cfg.AnalyticsWindowDays)

	sweepLease, err := infraredis.NewLease(rdb, "sweep", 2*cfg.SweepInterval())
	if err != nil {
		return fmt.Errorf("sweep lease initialization failed: %w", err)
	}

	scheduler := engine.NewScheduler(logger)
	if err := scheduler.Register(engine.Job{
		Name:     "sweep",
		Interval: cfg.SweepInterval(),
		Run:      leaseGuarded(sweepLease, logger, func(ctx context.Context) { sweeper.ProcessAllPendingRetries(ctx) }),
	}); err != nil {
		return fmt.Errorf("sweep job registration failed: %w", err)
	}
	if err := scheduler.Register(engine.Job{
		Name:     "cleanup",
		Interval: cfg.CleanupInterval(),
		Run: func(ctx context.Context) {
			if _, err := sweeper.CleanupOldRetries(ctx, cfg.CleanupDays); err != nil {
				logger.Error("cleanup job failed", zap.Error(err))
			}
		},
	}); err != nil {
		return fmt.Errorf("cleanup job registration failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	publisher := queue.NewRabbitMQPublisher(rabbit)

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	if err := handler.RegisterRetryRoutes(app, intake, sweeper, publisher); err != nil {
		return fmt.Errorf("retry route registration failed: %w", err)
	}
	if err := handler.RegisterAnalyticsRoutes(app, analyticsService); err != nil {
		return fmt.Errorf("analytics route registration failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("pushguard api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	group.Go(func() error {
		consumer := queue.NewRabbitMQConsumer(rabbit, cfg.ConsumerPrefetch, logger)
		return consumer.Consume(groupCtx, queue.EnqueueQueueName, func(msgCtx context.Context, msg queue.RetryEnqueueMessage) error {
			if msg.CorrelationID != "" {
				msgCtx = observability.WithCorrelationID(msgCtx, msg.CorrelationID)
			}
			_, err := intake.Enqueue(msgCtx, engine.EnqueueRequest{
				UserID:           msg.UserID,
				NotificationID:   msg.NotificationID,
				Type:             msg.Type,
				Payload:          msg.Payload(),
				DestinationToken: msg.DestinationToken,
				MaxAttempts:      msg.MaxAttempts,
			})
			return err
		})
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("pushguard stopped")
	return nil
}

// leaseGuarded wraps a job so only the replica holding the lease runs it.
func leaseGuarded(lease *infraredis.Lease, logger *zap.Logger, run func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		release, ok, err := lease.TryAcquire(ctx)
		if err != nil {
			logger.Warn("lease acquisition failed, skipping run", zap.Error(err))
			return
		}
		if !ok {
			logger.Debug("lease held elsewhere, skipping run")
			return
		}
		defer func() {
			if err := release(ctx); err != nil {
				logger.Warn("lease release failed", zap.Error(err))
			}
		}()

		run(ctx)
	}
}
