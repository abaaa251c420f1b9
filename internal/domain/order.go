package domain

import (
	"context"
	"time"
)

// Order statuses (canonical, platform vocabularies are mapped onto these)
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// OrderItem is one line of an order or cart
type OrderItem struct {
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

// Order is uniquely identified per store by (StoreID, ExternalID); that pair
// is the idempotency key for upserts
type Order struct {
	ID            string // UUID
	TenantID      string
	StoreID       string
	ContactID     string // empty until contact resolution succeeds
	ExternalID    string
	OrderNumber   string
	Status        string
	Total         float64
	Subtotal      float64
	ShippingCost  float64
	Discount      float64
	PaymentMethod string
	Currency      string
	Items         []OrderItem
	PlacedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderPayload is the canonical order shape every platform adapter normalizes
// into before it reaches the upsert engine
type OrderPayload struct {
	ExternalID    string
	OrderNumber   string
	Status        string
	Total         float64
	Subtotal      float64
	ShippingCost  float64
	Discount      float64
	PaymentMethod string
	Items         []OrderItem

	CustomerEmail     string
	CustomerPhone     string
	CustomerFirstName string
	CustomerLastName  string

	PlacedAt time.Time
}

// Validate rejects payloads the upsert engine cannot act on. A payload failing
// here fails identically on every retry.
func (p *OrderPayload) Validate() error {
	if p.ExternalID == "" {
		return ErrInvalidPayload
	}
	if p.Total < 0 {
		return ErrInvalidPayload
	}
	return nil
}

// OrderRepository defines data access for orders
type OrderRepository interface {
	// Upsert inserts the order or, when (StoreID, ExternalID) already exists,
	// updates only status, total and updatedAt. Re-applying identical input
	// is a no-op in its observable effect.
	Upsert(ctx context.Context, order *Order) error
	GetByExternalID(ctx context.Context, storeID, externalID string) (*Order, error)
	ListByContact(ctx context.Context, contactID string) ([]*Order, error)
}
