package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
	"github.com/yourorg/storecrm/internal/platform"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

// SyncWorker reconciles a store's full order history by paging its storefront
// API through the upsert engine. Runs with concurrency 1: two syncs of the
// same store would race each other's pagination cursor.
type SyncWorker struct {
	stores   domain.StoreRepository
	orders   *service.OrderService
	pageSize int
	logger   *slog.Logger

	// clientFor is swapped in tests
	clientFor func(store *domain.Store) (platform.Client, error)
}

// NewSyncWorker creates a new catalog sync worker
func NewSyncWorker(stores domain.StoreRepository, orders *service.OrderService, pageSize int, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SyncWorker{
		stores:    stores,
		orders:    orders,
		pageSize:  pageSize,
		logger:    logger,
		clientFor: platform.NewClient,
	}
}

// Register attaches the worker's handlers to a pool
func (w *SyncWorker) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeSyncStore, w.Handle)
}

// Handle runs one sync job. A page failure aborts the run with syncStatus
// error; orders from earlier pages stay committed, and the next run converges
// on them again through the idempotent upsert.
func (w *SyncWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.SyncJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode sync job: %w", err)
	}

	store, err := w.stores.GetByID(ctx, payload.StoreID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: store %s not found", queue.ErrSkip, payload.StoreID)
		}
		return err
	}

	if err := w.stores.UpdateSyncStatus(ctx, store.ID, domain.SyncStatusSyncing, nil); err != nil {
		return err
	}

	upserted, err := w.syncAllPages(ctx, store, payload.TenantID)
	if err != nil {
		metrics.ObserveSyncRun("error")
		if statusErr := w.stores.UpdateSyncStatus(ctx, store.ID, domain.SyncStatusError, nil); statusErr != nil {
			w.logger.Error("failed to record sync error status",
				slog.String("store_id", store.ID),
				slog.String("error", statusErr.Error()),
			)
		}
		return err
	}

	now := time.Now().UTC()
	if err := w.stores.UpdateSyncStatus(ctx, store.ID, domain.SyncStatusSynced, &now); err != nil {
		return err
	}

	metrics.ObserveSyncRun("success")
	w.logger.Info("store sync completed",
		slog.String("store_id", store.ID),
		slog.Int("orders_upserted", upserted),
	)
	return nil
}

func (w *SyncWorker) syncAllPages(ctx context.Context, store *domain.Store, tenantID string) (int, error) {
	client, err := w.clientFor(store)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for page := 1; ; page++ {
		payloads, err := client.ListOrders(ctx, page, w.pageSize)
		if err != nil {
			return upserted, fmt.Errorf("sync page %d failed: %w", page, err)
		}
		if len(payloads) == 0 {
			return upserted, nil
		}

		for i := range payloads {
			if _, err := w.orders.UpsertFromPayload(ctx, tenantID, store.ID, &payloads[i]); err != nil {
				return upserted, fmt.Errorf("sync page %d failed: %w", page, err)
			}
			upserted++
		}
		metrics.AddSyncOrders(len(payloads))

		// A short page is the last page
		if len(payloads) < w.pageSize {
			return upserted, nil
		}
	}
}
