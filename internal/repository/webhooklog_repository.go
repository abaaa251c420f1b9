package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresWebhookLogRepository implements domain.WebhookLogRepository using PostgreSQL
type PostgresWebhookLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresWebhookLogRepository creates a new webhook log repository
func NewPostgresWebhookLogRepository(db *sql.DB, logger *slog.Logger) *PostgresWebhookLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWebhookLogRepository{db: db, logger: logger}
}

// Create persists the log row with status=received. This happens before the
// processing job is enqueued: durability first, then work.
func (r *PostgresWebhookLogRepository) Create(ctx context.Context, l *domain.WebhookLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = domain.WebhookStatusReceived
	}
	query := `
		INSERT INTO webhook_logs (id, tenant_id, store_id, event, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		l.ID, l.TenantID, l.StoreID, l.Event, []byte(l.Payload), l.Status,
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook log: %w", err)
	}
	return nil
}

// GetByID retrieves a webhook log row
func (r *PostgresWebhookLogRepository) GetByID(ctx context.Context, id string) (*domain.WebhookLog, error) {
	query := `
		SELECT id, tenant_id, store_id, event, payload, status, processed_at, COALESCE(error, ''), created_at
		FROM webhook_logs
		WHERE id = $1
	`
	l := &domain.WebhookLog{}
	var payload []byte
	var processedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.TenantID, &l.StoreID, &l.Event, &payload, &l.Status, &processedAt, &l.Error, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook log: %w", err)
	}
	l.Payload = payload
	if processedAt.Valid {
		l.ProcessedAt = &processedAt.Time
	}
	return l, nil
}

// MarkProcessed records successful processing
func (r *PostgresWebhookLogRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE webhook_logs SET status = $1, processed_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, domain.WebhookStatusProcessed, at, id); err != nil {
		return fmt.Errorf("failed to mark webhook log processed: %w", err)
	}
	return nil
}

// MarkError records the failure message for manual replay after a fix
func (r *PostgresWebhookLogRepository) MarkError(ctx context.Context, id, errMsg string) error {
	query := `UPDATE webhook_logs SET status = $1, error = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, domain.WebhookStatusError, errMsg, id); err != nil {
		return fmt.Errorf("failed to mark webhook log error: %w", err)
	}
	return nil
}
