package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/security/middleware"
)

// RFMHandler queues an on-demand segmentation pass for the tenant
type RFMHandler struct {
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewRFMHandler creates a new segmentation trigger handler
func NewRFMHandler(enqueuer queue.Enqueuer, logger *slog.Logger) *RFMHandler {
	return &RFMHandler{enqueuer: enqueuer, logger: logger}
}

// ServeHTTP handles POST /api/rfm/run
func (h *RFMHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	job := &queue.RFMJob{TenantID: tenant.ID}
	jobID, err := h.enqueuer.Enqueue(r.Context(), queue.QueueAnalytics, queue.TypeCalculateRFM, job, queue.RFMOptions)
	if err != nil {
		h.logger.Error("failed to enqueue rfm run", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to queue rfm run"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}
