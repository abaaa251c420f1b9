package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
)

// RecoveryRequest parameterizes one recovery run for a tenant
type RecoveryRequest struct {
	TenantID string
	// CartIDs restricts the run; empty targets carts abandoned yesterday
	CartIDs []string
	// CouponCode feeds the attempt 2 and 3 templates
	CouponCode string
	// CustomMessage replaces the attempt template entirely
	CustomMessage string
}

// RecoveryService selects eligible abandoned carts and enqueues one recovery
// job per cart. The per-cart work (template choice, attempt increment, the
// actual send) happens in the recovery worker.
type RecoveryService struct {
	carts    domain.CartRepository
	contacts domain.ContactRepository
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(carts domain.CartRepository, contacts domain.ContactRepository, enqueuer queue.Enqueuer, logger *slog.Logger) *RecoveryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryService{carts: carts, contacts: contacts, enqueuer: enqueuer, logger: logger}
}

// Trigger enqueues recovery jobs for every eligible cart in the request's
// scope and returns how many were queued. Carts without a reachable phone
// number are passed over silently; they stay eligible for future runs.
func (s *RecoveryService) Trigger(ctx context.Context, req *RecoveryRequest) (int, error) {
	carts, err := s.carts.ListEligible(ctx, domain.CartRecoveryFilter{
		TenantID: req.TenantID,
		CartIDs:  req.CartIDs,
	})
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, cart := range carts {
		phone := s.resolvePhone(ctx, cart)
		if phone == "" {
			continue
		}

		job := &queue.RecoveryJob{
			TenantID:      req.TenantID,
			CartID:        cart.ID,
			ContactID:     cart.ContactID,
			Phone:         phone,
			CouponCode:    req.CouponCode,
			CustomMessage: req.CustomMessage,
		}
		if _, err := s.enqueuer.Enqueue(ctx, queue.QueueRecovery, queue.TypeRecoverCart, job, queue.RecoveryOptions); err != nil {
			return queued, fmt.Errorf("failed to enqueue recovery for cart %s: %w", cart.ID, err)
		}
		queued++
	}

	s.logger.Info("recovery run queued",
		slog.String("tenant_id", req.TenantID),
		slog.Int("eligible", len(carts)),
		slog.Int("queued", queued),
	)
	return queued, nil
}

// MarkRecovered flips the cart's recovered flag, stopping any further
// messages. Reports false when the cart was already recovered.
func (s *RecoveryService) MarkRecovered(ctx context.Context, cartID, orderID string) (bool, error) {
	return s.carts.MarkRecovered(ctx, cartID, orderID)
}

// Stats returns the tenant's 30-day cart summary
func (s *RecoveryService) Stats(ctx context.Context, tenantID string) (*domain.CartStats, error) {
	return s.carts.Stats(ctx, tenantID)
}

// resolvePhone prefers the linked contact's phone over the one captured on
// the cart, which platforms populate inconsistently
func (s *RecoveryService) resolvePhone(ctx context.Context, cart *domain.AbandonedCart) string {
	if cart.ContactID != "" {
		contact, err := s.contacts.GetByID(ctx, cart.ContactID)
		if err == nil && contact.Phone != "" {
			return contact.Phone
		}
	}
	return cart.Phone
}

// ComposeMessage builds the outbound text for one recovery attempt (1-based).
// Attempt 1 is a plain reminder, attempt 2 adds urgency and the coupon when
// one was supplied, attempt 3 is the last call with the coupon or a free
// shipping fallback. A custom message overrides the template, with the
// checkout link appended when it is not already present.
func ComposeMessage(cart *domain.AbandonedCart, attempt int, couponCode, customMessage string) string {
	if customMessage != "" {
		if cart.CheckoutURL != "" && !strings.Contains(customMessage, cart.CheckoutURL) {
			return customMessage + " " + cart.CheckoutURL
		}
		return customMessage
	}

	itemsList := itemNames(cart.Items, 3)
	total := formatBRL(cart.Total)

	switch attempt {
	case 1:
		return fmt.Sprintf("Oi! 👋 Notei que você deixou alguns itens no carrinho: %s. O total era %s. Quer finalizar? %s",
			itemsList, total, cart.CheckoutURL)
	case 2:
		coupon := ""
		if couponCode != "" {
			coupon = fmt.Sprintf(" Use o cupom %s para ganhar desconto!", couponCode)
		}
		return fmt.Sprintf("Ei! Seus itens ainda estão esperando por você 🛒 %s por %s.%s %s",
			itemsList, total, coupon, cart.CheckoutURL)
	default:
		coupon := " Frete grátis nesta compra!"
		if couponCode != "" {
			coupon = fmt.Sprintf(" Cupom: %s", couponCode)
		}
		return fmt.Sprintf("Última chance! ⏰ %s por %s.%s %s",
			itemsList, total, coupon, cart.CheckoutURL)
	}
}

func itemNames(items []domain.OrderItem, limit int) string {
	names := make([]string, 0, limit)
	for _, item := range items {
		if len(names) == limit {
			break
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, ", ")
}

// formatBRL renders a value as Brazilian currency, "R$ 1.234,56"
func formatBRL(value float64) string {
	s := fmt.Sprintf("%.2f", value)
	intPart, decPart, _ := strings.Cut(s, ".")

	var sb strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(d)
	}
	return "R$ " + sb.String() + "," + decPart
}
