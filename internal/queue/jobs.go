package queue

import (
	"encoding/json"
	"time"
)

// Job types per queue
const (
	TypeProcessWebhook = "process-webhook"
	TypeSendMessage    = "send-message"
	TypeRecoverCart    = "recover-cart"
	TypeSyncStore      = "sync-store"
	TypeCalculateRFM   = "calculate-rfm"
)

// WebhookJob references a persisted webhook log row; processing is replayable
// from the row's raw payload
type WebhookJob struct {
	LogID    string          `json:"logId"`
	TenantID string          `json:"tenantId"`
	StoreID  string          `json:"storeId"`
	Platform string          `json:"platform"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
}

// WhatsappJob is one outbound message send
type WhatsappJob struct {
	TenantID  string `json:"tenantId"`
	ContactID string `json:"contactId,omitempty"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// RecoveryJob drives one attempt of the cart recovery sequence. The worker
// re-checks the cart's recovered flag at execution time; the fields here are
// a snapshot from enqueue time.
type RecoveryJob struct {
	TenantID      string `json:"tenantId"`
	CartID        string `json:"cartId"`
	ContactID     string `json:"contactId,omitempty"`
	Phone         string `json:"phone"`
	CouponCode    string `json:"couponCode,omitempty"`
	CustomMessage string `json:"customMessage,omitempty"`
}

// SyncJob requests a full catalog reconciliation pull for one store
type SyncJob struct {
	TenantID string `json:"tenantId"`
	StoreID  string `json:"storeId"`
	Type     string `json:"type"` // full
}

// RFMJob requests a segmentation run for one tenant
type RFMJob struct {
	TenantID string `json:"tenantId"`
}

// Default enqueue options per queue. Sends back off slower than webhooks
// because the gateway throttles; sync retries slowest, a full pull is heavy.
var (
	WebhookOptions  = &Options{MaxAttempts: 3, BackoffBase: 2 * time.Second}
	WhatsappOptions = &Options{MaxAttempts: 3, BackoffBase: 5 * time.Second}
	RecoveryOptions = &Options{MaxAttempts: 2, BackoffBase: 2 * time.Second}
	SyncOptions     = &Options{MaxAttempts: 3, BackoffBase: 10 * time.Second}
	RFMOptions      = &Options{MaxAttempts: 2, BackoffBase: 5 * time.Second}
)
