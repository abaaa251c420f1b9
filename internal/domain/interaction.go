package domain

import (
	"context"
	"time"
)

// Interaction channels and types
const (
	ChannelWhatsApp = "whatsapp"

	InteractionMessageSent = "message_sent"
)

// Interaction is the append-only ledger of one outbound message actually sent
// to a contact
type Interaction struct {
	ID        string // UUID
	TenantID  string
	ContactID string
	Channel   string
	Type      string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// InteractionRepository defines data access for interactions
type InteractionRepository interface {
	Create(ctx context.Context, interaction *Interaction) error
	ListByContact(ctx context.Context, contactID string) ([]*Interaction, error)
}
