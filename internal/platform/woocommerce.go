package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/yourorg/storecrm/internal/domain"
)

// wcStatusMap translates the WooCommerce status vocabulary onto the canonical
// one. Kept as explicit data: these mappings are business-sensitive.
var wcStatusMap = map[string]string{
	"pending":    domain.OrderStatusPending,
	"processing": domain.OrderStatusProcessing,
	"on-hold":    domain.OrderStatusPending,
	"completed":  domain.OrderStatusDelivered,
	"cancelled":  domain.OrderStatusCancelled,
	"refunded":   domain.OrderStatusRefunded,
	"failed":     domain.OrderStatusCancelled,
	"shipped":    domain.OrderStatusShipped,
}

// MapWooCommerceStatus maps one WooCommerce order status; unknown values
// default to pending
func MapWooCommerceStatus(status string) string {
	if mapped, ok := wcStatusMap[status]; ok {
		return mapped
	}
	return domain.OrderStatusPending
}

// wcOrder mirrors the WooCommerce REST order JSON we consume
type wcOrder struct {
	ID            int64        `json:"id"`
	Number        json.Number  `json:"number"`
	Status        string       `json:"status"`
	Total         string       `json:"total"`
	Subtotal      string       `json:"subtotal"`
	DiscountTotal string       `json:"discount_total"`
	ShippingTotal string       `json:"shipping_total"`
	PaymentMethod string       `json:"payment_method_title"`
	LineItems     []wcLineItem `json:"line_items"`
	Billing       wcBilling    `json:"billing"`
	DateCreated   string       `json:"date_created"`
}

type wcLineItem struct {
	Name     string      `json:"name"`
	SKU      string      `json:"sku"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
	Total    string      `json:"total"`
}

type wcBilling struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NormalizeWooCommerce maps a raw WooCommerce order payload to the canonical
// order shape
func NormalizeWooCommerce(raw json.RawMessage) (*domain.OrderPayload, error) {
	var o wcOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to decode woocommerce order: %w", err)
	}
	return normalizeWcOrder(&o), nil
}

func normalizeWcOrder(o *wcOrder) *domain.OrderPayload {
	subtotal := o.Subtotal
	if subtotal == "" {
		subtotal = o.Total
	}

	items := make([]domain.OrderItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		price, _ := li.Price.Float64()
		items = append(items, domain.OrderItem{
			Name:      li.Name,
			SKU:       li.SKU,
			Quantity:  li.Quantity,
			UnitPrice: price,
			LineTotal: money(li.Total),
		})
	}

	externalID := ""
	if o.ID != 0 {
		externalID = strconv.FormatInt(o.ID, 10)
	}

	return &domain.OrderPayload{
		ExternalID:        externalID,
		OrderNumber:       o.Number.String(),
		Status:            MapWooCommerceStatus(o.Status),
		Total:             money(o.Total),
		Subtotal:          money(subtotal),
		ShippingCost:      money(o.ShippingTotal),
		Discount:          money(o.DiscountTotal),
		PaymentMethod:     o.PaymentMethod,
		Items:             items,
		CustomerEmail:     o.Billing.Email,
		CustomerPhone:     o.Billing.Phone,
		CustomerFirstName: o.Billing.FirstName,
		CustomerLastName:  o.Billing.LastName,
		PlacedAt:          parseTime(o.DateCreated),
	}
}

// WooCommerceClient pages through a store's order list API
type WooCommerceClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewWooCommerceClient creates a client for one store connection
func NewWooCommerceClient(store *domain.Store) *WooCommerceClient {
	return &WooCommerceClient{
		baseURL:   strings.TrimRight(store.APIURL, "/"),
		apiKey:    store.APIKey,
		apiSecret: store.APISecret,
		http:      newHTTPClient(),
	}
}

// ListOrders fetches one page of orders
func (c *WooCommerceClient) ListOrders(ctx context.Context, page, pageSize int) ([]domain.OrderPayload, error) {
	url := fmt.Sprintf("%s/wp-json/wc/v3/orders?per_page=%d&page=%d", c.baseURL, pageSize, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("woocommerce request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("woocommerce api error: status %d", resp.StatusCode)
	}

	var raw []wcOrder
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode woocommerce orders: %w", err)
	}

	out := make([]domain.OrderPayload, 0, len(raw))
	for i := range raw {
		out = append(out, *normalizeWcOrder(&raw[i]))
	}
	return out, nil
}
