package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresContactRepository implements domain.ContactRepository using PostgreSQL
type PostgresContactRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresContactRepository creates a new contact repository
func NewPostgresContactRepository(db *sql.DB, logger *slog.Logger) *PostgresContactRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContactRepository{db: db, logger: logger}
}

const contactColumns = `
	id, tenant_id, COALESCE(store_id::text, ''), COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(first_name, ''), COALESCE(last_name, ''),
	rfm_recency, rfm_frequency, rfm_monetary, rfm_score, rfm_segment,
	total_orders, total_spent, avg_order_value, first_order_at, last_order_at,
	is_opted_in, created_at, updated_at
`

// GetByID retrieves a contact by ID
func (r *PostgresContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContact(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail looks up a contact within a tenant by exact email match
func (r *PostgresContactRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND email = $2 LIMIT 1`
	return scanContact(r.db.QueryRowContext(ctx, query, tenantID, email))
}

// Create inserts a new contact
func (r *PostgresContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO contacts (id, tenant_id, store_id, email, phone, first_name, last_name)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.TenantID, c.StoreID, c.Email, c.Phone, c.FirstName, c.LastName,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// RecomputeAggregates rewrites the contact's aggregate fields from its order
// set. A single scoped statement: the database computes and writes the
// aggregates atomically, so two orders landing concurrently cannot produce a
// result reflecting only one of them.
func (r *PostgresContactRepository) RecomputeAggregates(ctx context.Context, contactID string) error {
	query := `
		UPDATE contacts SET
			total_orders    = (SELECT COUNT(*) FROM orders WHERE contact_id = $1),
			total_spent     = (SELECT COALESCE(SUM(total), 0) FROM orders WHERE contact_id = $1),
			avg_order_value = (SELECT COALESCE(AVG(total), 0) FROM orders WHERE contact_id = $1),
			last_order_at   = (SELECT MAX(placed_at) FROM orders WHERE contact_id = $1),
			first_order_at  = (SELECT MIN(placed_at) FROM orders WHERE contact_id = $1),
			updated_at      = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, contactID); err != nil {
		return fmt.Errorf("failed to recompute aggregates: %w", err)
	}
	return nil
}

// ListForRFM returns every contact of a tenant with the fields the
// segmentation engine reads. One statement, one snapshot.
func (r *PostgresContactRepository) ListForRFM(ctx context.Context, tenantID string) ([]*domain.Contact, error) {
	query := `
		SELECT id, total_orders, total_spent, last_order_at
		FROM contacts
		WHERE tenant_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts for rfm: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contact
	for rows.Next() {
		c := &domain.Contact{}
		var lastOrderAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.TotalOrders, &c.TotalSpent, &lastOrderAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		if lastOrderAt.Valid {
			c.LastOrderAt = &lastOrderAt.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateRFM writes one contact's recomputed scores
func (r *PostgresContactRepository) UpdateRFM(ctx context.Context, u *domain.RFMUpdate) error {
	query := `
		UPDATE contacts SET
			rfm_recency = $1, rfm_frequency = $2, rfm_monetary = $3,
			rfm_score = $4, rfm_segment = $5, updated_at = NOW()
		WHERE id = $6
	`
	if _, err := r.db.ExecContext(ctx, query,
		u.Recency, u.Frequency, u.Monetary, u.Score, u.Segment, u.ContactID,
	); err != nil {
		return fmt.Errorf("failed to update rfm scores: %w", err)
	}
	return nil
}

func scanContact(row *sql.Row) (*domain.Contact, error) {
	c := &domain.Contact{}
	var firstOrderAt, lastOrderAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.TenantID, &c.StoreID, &c.Email, &c.Phone,
		&c.FirstName, &c.LastName,
		&c.RFMRecency, &c.RFMFrequency, &c.RFMMonetary, &c.RFMScore, &c.RFMSegment,
		&c.TotalOrders, &c.TotalSpent, &c.AvgOrderValue, &firstOrderAt, &lastOrderAt,
		&c.IsOptedIn, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if firstOrderAt.Valid {
		c.FirstOrderAt = &firstOrderAt.Time
	}
	if lastOrderAt.Valid {
		c.LastOrderAt = &lastOrderAt.Time
	}
	return c, nil
}
