package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yourorg/storecrm/internal/domain"
)

// PostgresInteractionRepository implements domain.InteractionRepository using PostgreSQL
type PostgresInteractionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInteractionRepository creates a new interaction repository
func NewPostgresInteractionRepository(db *sql.DB, logger *slog.Logger) *PostgresInteractionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInteractionRepository{db: db, logger: logger}
}

// Create appends one interaction to the ledger
func (r *PostgresInteractionRepository) Create(ctx context.Context, i *domain.Interaction) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction metadata: %w", err)
	}
	query := `
		INSERT INTO interactions (id, tenant_id, contact_id, channel, type, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		i.ID, i.TenantID, i.ContactID, i.Channel, i.Type, i.Content, metadata,
	).Scan(&i.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// ListByContact returns a contact's interactions, newest first
func (r *PostgresInteractionRepository) ListByContact(ctx context.Context, contactID string) ([]*domain.Interaction, error) {
	query := `
		SELECT id, tenant_id, contact_id, channel, type, COALESCE(content, ''), metadata, created_at
		FROM interactions
		WHERE contact_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Interaction
	for rows.Next() {
		i := &domain.Interaction{}
		var metadata []byte
		if err := rows.Scan(&i.ID, &i.TenantID, &i.ContactID, &i.Channel, &i.Type, &i.Content, &metadata, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &i.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal interaction metadata: %w", err)
			}
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
