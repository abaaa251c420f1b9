package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/security/ratelimit"
	"github.com/yourorg/storecrm/pkg/cache"
)

const (
	storeCacheTTL  = 30 * time.Second
	maxWebhookBody = 1 << 20 // 1 MiB
)

// WebhookHandler receives storefront webhooks. The receive path does the
// minimum: authenticate against the store's secret, persist the raw event,
// enqueue processing, return 200. Everything slow happens in the webhook
// worker, so the storefront's delivery timeout is never in play.
type WebhookHandler struct {
	stores   domain.StoreRepository
	logs     domain.WebhookLogRepository
	enqueuer queue.Enqueuer
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(stores domain.StoreRepository, logs domain.WebhookLogRepository, enqueuer queue.Enqueuer, limiter *ratelimit.Limiter, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		stores:   stores,
		logs:     logs,
		enqueuer: enqueuer,
		cache:    cache.New(),
		limiter:  limiter,
		logger:   logger,
	}
}

// HandleWooCommerce handles POST /webhooks/woocommerce/{storeId}
func (h *WebhookHandler) HandleWooCommerce(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeId")
	if !h.limiter.Allow("webhook:" + storeID) {
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	store, err := h.getStore(r.Context(), storeID)
	if err != nil || store.Platform != domain.PlatformWooCommerce {
		http.Error(w, `{"error":"store not found"}`, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	// Signature covers the raw body bytes as delivered
	signature := r.Header.Get("X-WC-Webhook-Signature")
	if store.WebhookSecret != "" && signature != "" {
		if !verifyWooCommerceSignature(body, signature, store.WebhookSecret) {
			metrics.ObserveWebhookEvent(domain.PlatformWooCommerce, "rejected")
			http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
			return
		}
	}

	event := r.Header.Get("X-WC-Webhook-Topic")
	if event == "" {
		event = "unknown"
	}

	h.acceptEvent(r.Context(), w, store, domain.PlatformWooCommerce, event, body)
}

// HandleMagento handles POST /webhooks/magento/{storeId}
func (h *WebhookHandler) HandleMagento(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeId")
	if !h.limiter.Allow("webhook:" + storeID) {
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	store, err := h.getStore(r.Context(), storeID)
	if err != nil || store.Platform != domain.PlatformMagento {
		http.Error(w, `{"error":"store not found"}`, http.StatusNotFound)
		return
	}

	key := r.Header.Get("X-Magento-Webhook-Key")
	if store.WebhookSecret != "" {
		if subtle.ConstantTimeCompare([]byte(key), []byte(store.WebhookSecret)) != 1 {
			metrics.ObserveWebhookEvent(domain.PlatformMagento, "rejected")
			http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	// Magento carries the event name inside the payload
	var envelope struct {
		Event string `json:"event"`
	}
	event := "unknown"
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Event != "" {
		event = envelope.Event
	}

	h.acceptEvent(r.Context(), w, store, domain.PlatformMagento, event, body)
}

// acceptEvent persists the log row, enqueues processing and acknowledges. The
// row is written first: an event that made it into the log survives a broker
// outage and can be replayed.
func (h *WebhookHandler) acceptEvent(ctx context.Context, w http.ResponseWriter, store *domain.Store, platform, event string, body []byte) {
	log := &domain.WebhookLog{
		TenantID: store.TenantID,
		StoreID:  store.ID,
		Event:    event,
		Payload:  body,
	}
	if err := h.logs.Create(ctx, log); err != nil {
		h.logger.Error("failed to persist webhook",
			slog.String("store_id", store.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	job := &queue.WebhookJob{
		LogID:    log.ID,
		TenantID: store.TenantID,
		StoreID:  store.ID,
		Platform: platform,
		Event:    event,
		Payload:  body,
	}
	if _, err := h.enqueuer.Enqueue(ctx, queue.QueueWebhooks, queue.TypeProcessWebhook, job, queue.WebhookOptions); err != nil {
		h.logger.Error("failed to enqueue webhook",
			slog.String("log_id", log.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	metrics.ObserveWebhookEvent(platform, "received")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// getStore resolves a store with a short-lived cache; webhook bursts hit the
// same store repeatedly
func (h *WebhookHandler) getStore(ctx context.Context, storeID string) (*domain.Store, error) {
	if cached, ok := h.cache.Get("store:" + storeID); ok {
		return cached.(*domain.Store), nil
	}
	store, err := h.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsActive {
		return nil, errors.New("store inactive")
	}
	h.cache.Set("store:"+storeID, store, storeCacheTTL)
	return store, nil
}

// verifyWooCommerceSignature checks the base64 HMAC-SHA256 of the raw body
func verifyWooCommerceSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
