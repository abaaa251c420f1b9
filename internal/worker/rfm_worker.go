package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

// RFMWorker runs tenant segmentation passes off the analytics queue
type RFMWorker struct {
	rfm    *service.RFMService
	logger *slog.Logger
}

// NewRFMWorker creates a new segmentation worker
func NewRFMWorker(rfm *service.RFMService, logger *slog.Logger) *RFMWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RFMWorker{rfm: rfm, logger: logger}
}

// Register attaches the worker's handlers to a pool
func (w *RFMWorker) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeCalculateRFM, w.Handle)
}

// Handle runs one segmentation pass
func (w *RFMWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.RFMJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode rfm job: %w", err)
	}

	scored, err := w.rfm.CalculateForTenant(ctx, payload.TenantID)
	if err != nil {
		return err
	}

	w.logger.Debug("rfm pass completed",
		slog.String("tenant_id", payload.TenantID),
		slog.Int("scored", scored),
	)
	return nil
}
