package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
	"github.com/yourorg/storecrm/internal/platform"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

// WebhookWorker processes queued webhook events: normalize the platform
// payload, run it through the order upsert engine, update the webhook log row
// either way. The raw payload stays in the log row, so an errored event can be
// replayed after a fix.
type WebhookWorker struct {
	orders *service.OrderService
	logs   domain.WebhookLogRepository
	logger *slog.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(orders *service.OrderService, logs domain.WebhookLogRepository, logger *slog.Logger) *WebhookWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookWorker{orders: orders, logs: logs, logger: logger}
}

// Register attaches the worker's handlers to a pool
func (w *WebhookWorker) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeProcessWebhook, w.Handle)
}

// Handle processes one webhook job
func (w *WebhookWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.WebhookJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode webhook job: %w", err)
	}

	w.logger.Debug("processing webhook",
		slog.String("platform", payload.Platform),
		slog.String("event", payload.Event),
		slog.String("log_id", payload.LogID),
	)

	if err := w.process(ctx, &payload); err != nil {
		metrics.ObserveWebhookEvent(payload.Platform, "error")
		if markErr := w.logs.MarkError(ctx, payload.LogID, err.Error()); markErr != nil {
			w.logger.Error("failed to mark webhook log errored",
				slog.String("log_id", payload.LogID),
				slog.String("error", markErr.Error()),
			)
		}
		return err
	}

	metrics.ObserveWebhookEvent(payload.Platform, "processed")
	if err := w.logs.MarkProcessed(ctx, payload.LogID, time.Now().UTC()); err != nil {
		w.logger.Error("failed to mark webhook log processed",
			slog.String("log_id", payload.LogID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (w *WebhookWorker) process(ctx context.Context, j *queue.WebhookJob) error {
	switch j.Platform {
	case domain.PlatformWooCommerce:
		return w.processWooCommerce(ctx, j)
	case domain.PlatformMagento:
		return w.processMagento(ctx, j)
	default:
		// Unknown platform: drop, a retry cannot change the outcome
		w.logger.Warn("webhook for unknown platform dropped", slog.String("platform", j.Platform))
		return nil
	}
}

func (w *WebhookWorker) processWooCommerce(ctx context.Context, j *queue.WebhookJob) error {
	switch j.Event {
	case "order.created", "order.updated":
		payload, err := platform.NormalizeWooCommerce(j.Payload)
		if err != nil {
			return err
		}
		_, err = w.orders.UpsertFromPayload(ctx, j.TenantID, j.StoreID, payload)
		return err
	case "order.deleted":
		// Deletions are not mirrored; order history stays
		return nil
	default:
		w.logger.Debug("unhandled woocommerce event", slog.String("event", j.Event))
		return nil
	}
}

func (w *WebhookWorker) processMagento(ctx context.Context, j *queue.WebhookJob) error {
	if !strings.HasPrefix(j.Event, "sales_order") {
		w.logger.Debug("unhandled magento event", slog.String("event", j.Event))
		return nil
	}
	payload, err := platform.NormalizeMagento(j.Payload)
	if err != nil {
		return err
	}
	_, err = w.orders.UpsertFromPayload(ctx, j.TenantID, j.StoreID, payload)
	return err
}
