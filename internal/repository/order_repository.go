package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresOrderRepository implements domain.OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresOrderRepository creates a new order repository
func NewPostgresOrderRepository(db *sql.DB, logger *slog.Logger) *PostgresOrderRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOrderRepository{db: db, logger: logger}
}

// Upsert inserts the order keyed on (store_id, external_id). On conflict only
// status, total and updated_at change; fields set at placement stay untouched
// so enrichment done elsewhere is not clobbered.
func (r *PostgresOrderRepository) Upsert(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `
		INSERT INTO orders (
			id, tenant_id, store_id, contact_id, external_id, order_number,
			status, total, subtotal, shipping_cost, discount,
			payment_method, currency, items, placed_at
		)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15)
		ON CONFLICT (store_id, external_id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			updated_at = NOW()
		RETURNING id
	`
	currency := o.Currency
	if currency == "" {
		currency = "BRL"
	}
	err = r.db.QueryRowContext(ctx, query,
		o.ID, o.TenantID, o.StoreID, o.ContactID, o.ExternalID, o.OrderNumber,
		o.Status, o.Total, o.Subtotal, o.ShippingCost, o.Discount,
		o.PaymentMethod, currency, items, o.PlacedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

const orderColumns = `
	id, tenant_id, store_id, COALESCE(contact_id::text, ''), external_id,
	COALESCE(order_number, ''), status, total, subtotal, shipping_cost, discount,
	COALESCE(payment_method, ''), currency, items, placed_at, created_at, updated_at
`

// GetByExternalID retrieves an order by its idempotency key
func (r *PostgresOrderRepository) GetByExternalID(ctx context.Context, storeID, externalID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE store_id = $1 AND external_id = $2`

	o := &domain.Order{}
	var items []byte
	err := r.db.QueryRowContext(ctx, query, storeID, externalID).Scan(
		&o.ID, &o.TenantID, &o.StoreID, &o.ContactID, &o.ExternalID,
		&o.OrderNumber, &o.Status, &o.Total, &o.Subtotal, &o.ShippingCost, &o.Discount,
		&o.PaymentMethod, &o.Currency, &items, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
		}
	}
	return o, nil
}

// ListByContact returns all orders belonging to a contact
func (r *PostgresOrderRepository) ListByContact(ctx context.Context, contactID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE contact_id = $1 ORDER BY placed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o := &domain.Order{}
		var items []byte
		if err := rows.Scan(
			&o.ID, &o.TenantID, &o.StoreID, &o.ContactID, &o.ExternalID,
			&o.OrderNumber, &o.Status, &o.Total, &o.Subtotal, &o.ShippingCost, &o.Discount,
			&o.PaymentMethod, &o.Currency, &items, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &o.Items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
