package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yourorg/storecrm/internal/security/middleware"
	"github.com/yourorg/storecrm/internal/service"
)

// RecoverRequest selects carts and message options for a recovery run
type RecoverRequest struct {
	CartIDs    []string `json:"cartIds,omitempty"`
	CouponCode string   `json:"couponCode,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// RecoveryHandler triggers cart recovery runs and serves cart stats
type RecoveryHandler struct {
	recovery *service.RecoveryService
	logger   *slog.Logger
}

// NewRecoveryHandler creates a new recovery handler
func NewRecoveryHandler(recovery *service.RecoveryService, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery, logger: logger}
}

// Trigger handles POST /api/carts/recover
func (h *RecoveryHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// An empty body is a valid request: default scope, no coupon
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	queued, err := h.recovery.Trigger(r.Context(), &service.RecoveryRequest{
		TenantID:      tenant.ID,
		CartIDs:       req.CartIDs,
		CouponCode:    req.CouponCode,
		CustomMessage: req.Message,
	})
	if err != nil {
		h.logger.Error("failed to trigger recovery", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to queue recovery"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": fmt.Sprintf("%d recoveries queued", queued),
		"queued":  queued,
	})
}

// Stats handles GET /api/carts/stats
func (h *RecoveryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	stats, err := h.recovery.Stats(r.Context(), tenant.ID)
	if err != nil {
		h.logger.Error("failed to load cart stats", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to load stats"}`, http.StatusInternalServerError)
		return
	}

	recoveryRate := 0.0
	if stats.Total > 0 {
		recoveryRate = float64(stats.Recovered) / float64(stats.Total) * 100
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":          stats.Total,
		"totalValue":     stats.TotalValue,
		"recovered":      stats.Recovered,
		"recoveredValue": stats.RecoveredValue,
		"recoveryRate":   fmt.Sprintf("%.1f", recoveryRate),
	})
}
