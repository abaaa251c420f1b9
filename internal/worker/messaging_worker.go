package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

// MessagingWorker drains the outbound send queue through the gateway. The
// pool running it carries the send-rate gate, so by the time a job reaches
// this handler it is inside the gateway's quota.
type MessagingWorker struct {
	messaging *service.MessagingService
	logger    *slog.Logger
}

// NewMessagingWorker creates a new messaging worker
func NewMessagingWorker(messaging *service.MessagingService, logger *slog.Logger) *MessagingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagingWorker{messaging: messaging, logger: logger}
}

// Register attaches the worker's handlers to a pool
func (w *MessagingWorker) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeSendMessage, w.Handle)
}

// Handle sends one message
func (w *MessagingWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.WhatsappJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode send job: %w", err)
	}

	result, err := w.messaging.SendText(ctx, payload.TenantID, payload.ContactID, payload.Phone, payload.Message)
	if err != nil {
		return err
	}
	if !result.Sent {
		return fmt.Errorf("%w: send skipped (%s)", queue.ErrSkip, result.Reason)
	}

	w.logger.Debug("message sent", slog.String("contact_id", payload.ContactID))
	return nil
}
