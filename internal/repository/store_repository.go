package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresStoreRepository implements domain.StoreRepository using PostgreSQL
type PostgresStoreRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStoreRepository creates a new store repository
func NewPostgresStoreRepository(db *sql.DB, logger *slog.Logger) *PostgresStoreRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStoreRepository{db: db, logger: logger}
}

const storeColumns = `
	id, tenant_id, name, platform, api_url, api_key,
	COALESCE(api_secret, ''), COALESCE(webhook_secret, ''),
	is_active, sync_status, last_sync_at, created_at, updated_at
`

// GetByID retrieves a store by ID
func (r *PostgresStoreRepository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`

	s := &domain.Store{}
	var lastSyncAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.TenantID, &s.Name, &s.Platform, &s.APIURL, &s.APIKey,
		&s.APISecret, &s.WebhookSecret,
		&s.IsActive, &s.SyncStatus, &lastSyncAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	if lastSyncAt.Valid {
		s.LastSyncAt = &lastSyncAt.Time
	}
	return s, nil
}

// ListByTenant returns all stores of a tenant
func (r *PostgresStoreRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var out []*domain.Store
	for rows.Next() {
		s := &domain.Store{}
		var lastSyncAt sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.Name, &s.Platform, &s.APIURL, &s.APIKey,
			&s.APISecret, &s.WebhookSecret,
			&s.IsActive, &s.SyncStatus, &lastSyncAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		if lastSyncAt.Valid {
			s.LastSyncAt = &lastSyncAt.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSyncStatus transitions the sync state machine
func (r *PostgresStoreRepository) UpdateSyncStatus(ctx context.Context, id, status string, lastSyncAt *time.Time) error {
	var res sql.Result
	var err error
	if lastSyncAt != nil {
		query := `UPDATE stores SET sync_status = $1, last_sync_at = $2, updated_at = NOW() WHERE id = $3`
		res, err = r.db.ExecContext(ctx, query, status, *lastSyncAt, id)
	} else {
		query := `UPDATE stores SET sync_status = $1, updated_at = NOW() WHERE id = $2`
		res, err = r.db.ExecContext(ctx, query, status, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
