package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Webhook log statuses: received -> processed, or received -> error
const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusError     = "error"
)

// WebhookLog is the append-only audit record of one inbound webhook call.
// Rows are never deleted; they are the replay/debugging trail.
type WebhookLog struct {
	ID          string // UUID
	TenantID    string
	StoreID     string
	Event       string
	Payload     json.RawMessage
	Status      string
	ProcessedAt *time.Time
	Error       string
	CreatedAt   time.Time
}

// WebhookLogRepository defines data access for webhook logs
type WebhookLogRepository interface {
	Create(ctx context.Context, log *WebhookLog) error
	GetByID(ctx context.Context, id string) (*WebhookLog, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id, errMsg string) error
}
