package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/security/middleware"
)

// SyncHandler triggers a full catalog sync for one of the tenant's stores
type SyncHandler struct {
	stores   domain.StoreRepository
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewSyncHandler creates a new sync trigger handler
func NewSyncHandler(stores domain.StoreRepository, enqueuer queue.Enqueuer, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{stores: stores, enqueuer: enqueuer, logger: logger}
}

// ServeHTTP handles POST /api/stores/{storeId}/sync
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	storeID := r.PathValue("storeId")
	store, err := h.stores.GetByID(r.Context(), storeID)
	if err != nil || store.TenantID != tenant.ID {
		http.Error(w, `{"error":"store not found"}`, http.StatusNotFound)
		return
	}

	job := &queue.SyncJob{TenantID: tenant.ID, StoreID: store.ID, Type: "full"}
	jobID, err := h.enqueuer.Enqueue(r.Context(), queue.QueueSync, queue.TypeSyncStore, job, queue.SyncOptions)
	if err != nil {
		h.logger.Error("failed to enqueue sync", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to queue sync"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "sync queued",
		"jobId":   jobID,
	})
}
