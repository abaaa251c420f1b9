package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/security/middleware"
)

// SendMessageRequest queues one outbound message
type SendMessageRequest struct {
	ContactID string `json:"contactId,omitempty"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// MessageHandler queues direct outbound messages. Delivery is asynchronous;
// the send queue's rate gate decides when the message actually leaves.
type MessageHandler struct {
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(enqueuer queue.Enqueuer, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{enqueuer: enqueuer, logger: logger}
}

// ServeHTTP handles POST /api/messages
func (h *MessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Message == "" {
		http.Error(w, `{"error":"phone and message are required"}`, http.StatusBadRequest)
		return
	}

	job := &queue.WhatsappJob{
		TenantID:  tenant.ID,
		ContactID: req.ContactID,
		Phone:     req.Phone,
		Message:   req.Message,
	}
	jobID, err := h.enqueuer.Enqueue(r.Context(), queue.QueueWhatsapp, queue.TypeSendMessage, job, queue.WhatsappOptions)
	if err != nil {
		h.logger.Error("failed to enqueue message", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to queue message"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}
