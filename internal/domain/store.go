package domain

import (
	"context"
	"time"
)

// Storefront platforms
const (
	PlatformWooCommerce = "woocommerce"
	PlatformMagento     = "magento"
)

// Store sync statuses
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Store is one external storefront connection
type Store struct {
	ID            string // UUID
	TenantID      string
	Name          string
	Platform      string // woocommerce | magento
	APIURL        string
	APIKey        string
	APISecret     string
	WebhookSecret string
	IsActive      bool
	SyncStatus    string // pending | syncing | synced | error
	LastSyncAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StoreRepository defines data access for stores
type StoreRepository interface {
	GetByID(ctx context.Context, id string) (*Store, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Store, error)
	// UpdateSyncStatus transitions the sync state machine. lastSyncAt is only
	// written when non-nil (i.e. on successful completion).
	UpdateSyncStatus(ctx context.Context, id, status string, lastSyncAt *time.Time) error
}
