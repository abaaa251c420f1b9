package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

// RecoveryWorker executes one attempt of a cart's recovery sequence: re-check
// the cart, compose the attempt's message, record the attempt, hand the send
// to the outbound queue.
type RecoveryWorker struct {
	carts    domain.CartRepository
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewRecoveryWorker creates a new recovery worker
func NewRecoveryWorker(carts domain.CartRepository, enqueuer queue.Enqueuer, logger *slog.Logger) *RecoveryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryWorker{carts: carts, enqueuer: enqueuer, logger: logger}
}

// Register attaches the worker's handlers to a pool
func (w *RecoveryWorker) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeRecoverCart, w.Handle)
}

// Handle runs one recovery attempt. The cart state is re-read here: the job
// may have been queued hours ago, and a cart recovered in between must not be
// messaged.
func (w *RecoveryWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.RecoveryJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode recovery job: %w", err)
	}

	cart, err := w.carts.GetByID(ctx, payload.CartID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: cart %s not found", queue.ErrSkip, payload.CartID)
		}
		return err
	}
	if cart.IsRecovered {
		return fmt.Errorf("%w: cart %s already recovered", queue.ErrSkip, cart.ID)
	}
	if cart.RecoveryAttempts >= domain.MaxRecoveryAttempts {
		return fmt.Errorf("%w: cart %s at attempt cap", queue.ErrSkip, cart.ID)
	}

	attempt := cart.RecoveryAttempts + 1
	message := service.ComposeMessage(cart, attempt, payload.CouponCode, payload.CustomMessage)

	// Increment before the send is confirmed. A lost message costs one
	// attempt; the reverse, a cart messaged past the cap, is worse.
	if err := w.carts.UpdateAttempts(ctx, cart.ID, attempt, time.Now().UTC()); err != nil {
		return err
	}

	send := &queue.WhatsappJob{
		TenantID:  payload.TenantID,
		ContactID: payload.ContactID,
		Phone:     payload.Phone,
		Message:   message,
	}
	if _, err := w.enqueuer.Enqueue(ctx, queue.QueueWhatsapp, queue.TypeSendMessage, send, queue.WhatsappOptions); err != nil {
		return fmt.Errorf("failed to enqueue recovery message: %w", err)
	}

	w.logger.Info("recovery attempt queued",
		slog.String("cart_id", cart.ID),
		slog.Int("attempt", attempt),
	)
	return nil
}
