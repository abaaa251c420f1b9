package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourorg/storecrm/internal/handler"
	"github.com/yourorg/storecrm/internal/infrastructure/logger"
	"github.com/yourorg/storecrm/internal/infrastructure/redis"
	"github.com/yourorg/storecrm/internal/observability/tracing"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/reliability/retry"
	"github.com/yourorg/storecrm/internal/repository"
	"github.com/yourorg/storecrm/internal/security/middleware"
	"github.com/yourorg/storecrm/internal/security/ratelimit"
	"github.com/yourorg/storecrm/internal/service"
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
	log.Info("starting storecrm api", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "storecrm-api", cfg.Environment)
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
	cartRepo := repository.NewPostgresCartRepository(db, log)
	webhookLogRepo := repository.NewPostgresWebhookLogRepository(db, log)

	// 6. Queue broker and services
	broker := queue.NewBroker(redisClient, log)
	recoveryService := service.NewRecoveryService(cartRepo, contactRepo, broker, log)

	// 7. Handlers and rate limiting
	limiter := ratelimit.NewLimiter(100, time.Minute)
	webhookHandler := handler.NewWebhookHandler(storeRepo, webhookLogRepo, broker, limiter, log)
	syncHandler := handler.NewSyncHandler(storeRepo, broker, log)
	recoveryHandler := handler.NewRecoveryHandler(recoveryService, log)
	cartHandler := handler.NewCartHandler(cartRepo, log)
	messageHandler := handler.NewMessageHandler(broker, log)
	rfmHandler := handler.NewRFMHandler(broker, log)

	// 8. Routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/woocommerce/{storeId}", webhookHandler.HandleWooCommerce)
	mux.HandleFunc("POST /webhooks/magento/{storeId}", webhookHandler.HandleMagento)
	mux.Handle("POST /api/stores/{storeId}/sync", syncHandler)
	mux.HandleFunc("POST /api/carts", cartHandler.Upsert)
	mux.HandleFunc("POST /api/carts/{cartId}/recovered", cartHandler.MarkRecovered)
	mux.HandleFunc("POST /api/carts/recover", recoveryHandler.Trigger)
	mux.HandleFunc("GET /api/carts/stats", recoveryHandler.Stats)
	mux.Handle("POST /api/messages", messageHandler)
	mux.Handle("POST /api/rfm/run", rfmHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database not ready"))
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("redis not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Chain middleware: request ID -> metrics -> api key -> rate limit
	rootHandler := withRequestID(
		middleware.MetricsMiddleware(
			middleware.APIKeyMiddleware(tenantRepo, log)(
				middleware.RateLimitMiddleware(limiter, log)(mux),
			),
		),
		log,
	)

	// 9. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting", slog.Int("port", cfg.ServerPort))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	limiter.Stop()
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
