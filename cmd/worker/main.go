package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yourorg/storecrm/internal/infrastructure/logger"
	"github.com/yourorg/storecrm/internal/infrastructure/redis"
	"github.com/yourorg/storecrm/internal/observability/tracing"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/reliability/retry"
	"github.com/yourorg/storecrm/internal/repository"
	"github.com/yourorg/storecrm/internal/security/ratelimit"
	"github.com/yourorg/storecrm/internal/service"
	"github.com/yourorg/storecrm/internal/worker"
	"github.com/yourorg/storecrm/pkg/config"
	"github.com/yourorg/storecrm/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting storecrm worker", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "storecrm-worker", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Connect infrastructure, waiting for it to come up
	pool, err := retry.Do(ctx, retry.StartupConfig(), log, "connect database",
		func(ctx context.Context) (*database.ConnectionPool, error) {
			return database.NewConnectionPool(ctx, cfg.DatabaseURL, log)
		})
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := retry.Do(ctx, retry.StartupConfig(), log, "connect redis",
		func(ctx context.Context) (*redis.Client, error) {
			return redis.NewClient(cfg.RedisURL)
		})
	if err != nil {
		log.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	db := pool.GetDB()

	// 5. Repositories
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	storeRepo := repository.NewPostgresStoreRepository(db, log)
	contactRepo := repository.NewPostgresContactRepository(db, log)
	orderRepo := repository.NewPostgresOrderRepository(db, log)
	cartRepo := repository.NewPostgresCartRepository(db, log)
	webhookLogRepo := repository.NewPostgresWebhookLogRepository(db, log)
	interactionRepo := repository.NewPostgresInteractionRepository(db, log)

	// 6. Broker and services
	broker := queue.NewBroker(redisClient, log)
	orderService := service.NewOrderService(orderRepo, contactRepo, log)
	rfmService := service.NewRFMService(contactRepo, log)
	messagingService := service.NewMessagingService(service.GatewayConfig{
		URL:      cfg.GatewayURL,
		APIKey:   cfg.GatewayKey,
		Instance: cfg.GatewayInstance,
	}, interactionRepo, log)

	// 7. Workers and their pools
	webhookWorker := worker.NewWebhookWorker(orderService, webhookLogRepo, log)
	syncWorker := worker.NewSyncWorker(storeRepo, orderService, cfg.SyncPageSize, log)
	recoveryWorker := worker.NewRecoveryWorker(cartRepo, broker, log)
	messagingWorker := worker.NewMessagingWorker(messagingService, log)
	rfmWorker := worker.NewRFMWorker(rfmService, log)

	webhookPool := queue.NewPool(broker, queue.QueueWebhooks, cfg.WebhookConcurrency, log)
	webhookWorker.Register(webhookPool)

	syncPool := queue.NewPool(broker, queue.QueueSync, cfg.SyncConcurrency, log)
	syncWorker.Register(syncPool)

	recoveryPool := queue.NewPool(broker, queue.QueueRecovery, cfg.RecoveryConcurrency, log)
	recoveryWorker.Register(recoveryPool)

	// The send pool shares one budget across its workers: the gateway's quota
	// is global, not per goroutine
	sendLimiter := ratelimit.NewLimiter(cfg.SendRateMax, cfg.SendRateWindow)
	whatsappPool := queue.NewPool(broker, queue.QueueWhatsapp, cfg.WhatsappConcurrency, log)
	whatsappPool.SetGate(func() bool {
		return sendLimiter.AllowStrict("gateway", cfg.SendRateMax, cfg.SendRateWindow)
	})
	messagingWorker.Register(whatsappPool)

	analyticsPool := queue.NewPool(broker, queue.QueueAnalytics, cfg.AnalyticsConcurrency, log)
	rfmWorker.Register(analyticsPool)

	var wg sync.WaitGroup
	for _, p := range []*queue.Pool{webhookPool, syncPool, recoveryPool, whatsappPool, analyticsPool} {
		wg.Add(1)
		go func(p *queue.Pool) {
			defer wg.Done()
			p.Start(ctx)
		}(p)
	}

	// 8. Periodic segmentation: one RFM job per active tenant per interval
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRFMScheduler(ctx, cfg.RFMInterval, tenantRepo, broker, log)
	}()

	log.Info("worker pools started",
		slog.Int("webhook_concurrency", cfg.WebhookConcurrency),
		slog.Int("whatsapp_concurrency", cfg.WhatsappConcurrency),
		slog.Int("send_rate_max", cfg.SendRateMax),
		slog.Duration("send_rate_window", cfg.SendRateWindow),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")

	cancel()
	wg.Wait()
	sendLimiter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	log.Info("worker stopped")
}

// runRFMScheduler enqueues a segmentation pass for every active tenant on a
// fixed interval. Enqueue rather than run inline: the analytics pool owns the
// concurrency budget.
func runRFMScheduler(ctx context.Context, interval time.Duration, tenants *repository.PostgresTenantRepository, broker *queue.Broker, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := tenants.ListActive(ctx)
			if err != nil {
				log.Error("failed to list tenants for rfm schedule", slog.String("error", err.Error()))
				continue
			}
			for _, tenant := range active {
				job := &queue.RFMJob{TenantID: tenant.ID}
				if _, err := broker.Enqueue(ctx, queue.QueueAnalytics, queue.TypeCalculateRFM, job, queue.RFMOptions); err != nil {
					log.Error("failed to enqueue scheduled rfm run",
						slog.String("tenant_id", tenant.ID),
						slog.String("error", err.Error()),
					)
				}
			}
			log.Info("scheduled rfm runs enqueued", slog.Int("tenants", len(active)))
		}
	}
}
