package domain

import (
	"context"
	"time"
)

// MaxRecoveryAttempts caps the recovery sequence per cart
const MaxRecoveryAttempts = 3

// AbandonedCart is identified per store by ExternalID. Once IsRecovered flips
// to true it never reverts and no further recovery messages are sent.
type AbandonedCart struct {
	ID               string // UUID
	TenantID         string
	StoreID          string
	ContactID        string
	ExternalID       string
	Email            string
	Phone            string
	Items            []OrderItem
	Total            float64
	CheckoutURL      string
	RecoveryAttempts int // 0-3
	LastAttemptAt    *time.Time
	RecoveredAt      *time.Time
	RecoveredOrderID string
	IsRecovered      bool
	AbandonedAt      time.Time
	CreatedAt        time.Time
}

// CartStats summarizes a tenant's abandoned carts for the CRUD layer
type CartStats struct {
	Total          int
	TotalValue     float64
	Recovered      int
	RecoveredValue float64
}

// CartRecoveryFilter selects carts eligible for a recovery run
type CartRecoveryFilter struct {
	TenantID string
	// CartIDs restricts the run to an explicit set; empty means carts
	// abandoned the previous day.
	CartIDs []string
}

// CartRepository defines data access for abandoned carts
type CartRepository interface {
	// Upsert is keyed on (StoreID, ExternalID)
	Upsert(ctx context.Context, cart *AbandonedCart) error
	GetByID(ctx context.Context, id string) (*AbandonedCart, error)
	// ListEligible returns carts with isRecovered=false and
	// recoveryAttempts <= MaxRecoveryAttempts-1, matching the filter.
	ListEligible(ctx context.Context, filter CartRecoveryFilter) ([]*AbandonedCart, error)
	// UpdateAttempts records the optimistic attempt increment before the send
	// is confirmed.
	UpdateAttempts(ctx context.Context, id string, attempts int, at time.Time) error
	// MarkRecovered flips isRecovered under an is_recovered=false guard and
	// reports whether this call won the transition.
	MarkRecovered(ctx context.Context, id, orderID string) (bool, error)
	Stats(ctx context.Context, tenantID string) (*CartStats, error)
}
