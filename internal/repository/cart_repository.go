package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresCartRepository implements domain.CartRepository using PostgreSQL
type PostgresCartRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCartRepository creates a new abandoned cart repository
func NewPostgresCartRepository(db *sql.DB, logger *slog.Logger) *PostgresCartRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCartRepository{db: db, logger: logger}
}

// Upsert inserts the cart keyed on (store_id, external_id); on conflict the
// cart contents and checkout URL refresh but recovery bookkeeping is kept
func (r *PostgresCartRepository) Upsert(ctx context.Context, c *domain.AbandonedCart) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}
	abandonedAt := c.AbandonedAt
	if abandonedAt.IsZero() {
		abandonedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO abandoned_carts (
			id, tenant_id, store_id, contact_id, external_id, email, phone,
			items, total, checkout_url, abandoned_at
		)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11)
		ON CONFLICT (store_id, external_id) DO UPDATE SET
			items = EXCLUDED.items,
			total = EXCLUDED.total,
			checkout_url = EXCLUDED.checkout_url
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		c.ID, c.TenantID, c.StoreID, c.ContactID, c.ExternalID, c.Email, c.Phone,
		items, c.Total, c.CheckoutURL, abandonedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

const cartColumns = `
	id, tenant_id, store_id, COALESCE(contact_id::text, ''), COALESCE(external_id, ''),
	COALESCE(email, ''), COALESCE(phone, ''), items, total, COALESCE(checkout_url, ''),
	recovery_attempts, last_attempt_at, recovered_at, COALESCE(recovered_order_id::text, ''),
	is_recovered, abandoned_at, created_at
`

// GetByID retrieves a cart by ID
func (r *PostgresCartRepository) GetByID(ctx context.Context, id string) (*domain.AbandonedCart, error) {
	query := `SELECT ` + cartColumns + ` FROM abandoned_carts WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	cart, err := scanCart(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// ListEligible returns carts still in the recovery sequence: not recovered
// and below the attempt cap. Without an explicit ID set it targets carts
// abandoned the previous day.
func (r *PostgresCartRepository) ListEligible(ctx context.Context, filter domain.CartRecoveryFilter) ([]*domain.AbandonedCart, error) {
	var rows *sql.Rows
	var err error

	if len(filter.CartIDs) > 0 {
		query := `
			SELECT ` + cartColumns + `
			FROM abandoned_carts
			WHERE tenant_id = $1 AND is_recovered = false AND recovery_attempts <= $2
			  AND id = ANY($3)
		`
		rows, err = r.db.QueryContext(ctx, query, filter.TenantID, domain.MaxRecoveryAttempts-1, pq.Array(filter.CartIDs))
	} else {
		query := `
			SELECT ` + cartColumns + `
			FROM abandoned_carts
			WHERE tenant_id = $1 AND is_recovered = false AND recovery_attempts <= $2
			  AND abandoned_at::date = CURRENT_DATE - 1
		`
		rows, err = r.db.QueryContext(ctx, query, filter.TenantID, domain.MaxRecoveryAttempts-1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible carts: %w", err)
	}
	defer rows.Close()

	var out []*domain.AbandonedCart
	for rows.Next() {
		cart, err := scanCart(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		out = append(out, cart)
	}
	return out, rows.Err()
}

// UpdateAttempts records an attempt increment
func (r *PostgresCartRepository) UpdateAttempts(ctx context.Context, id string, attempts int, at time.Time) error {
	query := `UPDATE abandoned_carts SET recovery_attempts = $1, last_attempt_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, attempts, at, id); err != nil {
		return fmt.Errorf("failed to update recovery attempts: %w", err)
	}
	return nil
}

// MarkRecovered flips is_recovered under a guard; returns false when another
// writer already won the transition
func (r *PostgresCartRepository) MarkRecovered(ctx context.Context, id, orderID string) (bool, error) {
	query := `
		UPDATE abandoned_carts
		SET is_recovered = true, recovered_at = NOW(), recovered_order_id = NULLIF($2, '')::uuid
		WHERE id = $1 AND is_recovered = false
	`
	res, err := r.db.ExecContext(ctx, query, id, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark cart recovered: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// Stats summarizes a tenant's carts over the last 30 days
func (r *PostgresCartRepository) Stats(ctx context.Context, tenantID string) (*domain.CartStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(total), 0),
			COUNT(*) FILTER (WHERE is_recovered = true),
			COALESCE(SUM(total) FILTER (WHERE is_recovered = true), 0)
		FROM abandoned_carts
		WHERE tenant_id = $1 AND abandoned_at > NOW() - INTERVAL '30 days'
	`
	s := &domain.CartStats{}
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&s.Total, &s.TotalValue, &s.Recovered, &s.RecoveredValue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart stats: %w", err)
	}
	return s, nil
}

func scanCart(scan func(dest ...any) error) (*domain.AbandonedCart, error) {
	c := &domain.AbandonedCart{}
	var items []byte
	var lastAttemptAt, recoveredAt sql.NullTime
	err := scan(
		&c.ID, &c.TenantID, &c.StoreID, &c.ContactID, &c.ExternalID,
		&c.Email, &c.Phone, &items, &c.Total, &c.CheckoutURL,
		&c.RecoveryAttempts, &lastAttemptAt, &recoveredAt, &c.RecoveredOrderID,
		&c.IsRecovered, &c.AbandonedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cart items: %w", err)
		}
	}
	if lastAttemptAt.Valid {
		c.LastAttemptAt = &lastAttemptAt.Time
	}
	if recoveredAt.Valid {
		c.RecoveredAt = &recoveredAt.Time
	}
	return c, nil
}
