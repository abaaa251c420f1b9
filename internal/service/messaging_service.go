package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
	"github.com/yourorg/storecrm/internal/reliability/circuitbreaker"
)

// GatewayConfig points at the WhatsApp message gateway. An empty URL or key
// means the gateway is not configured; sends become logged no-ops so the rest
// of the pipeline keeps working in environments without messaging.
type GatewayConfig struct {
	URL      string
	APIKey   string
	Instance string
}

// SendResult reports one send
type SendResult struct {
	Sent   bool
	Reason string // set when Sent is false
}

// MessagingService sends text messages through the gateway and records each
// delivered message in the contact's interaction ledger. A circuit breaker
// fast-fails sends while the gateway is down.
type MessagingService struct {
	cfg          GatewayConfig
	http         *http.Client
	breaker      *circuitbreaker.CircuitBreaker
	interactions domain.InteractionRepository
	logger       *slog.Logger
}

// NewMessagingService creates a new messaging service
func NewMessagingService(cfg GatewayConfig, interactions domain.InteractionRepository, logger *slog.Logger) *MessagingService {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("gateway circuit state changed",
			slog.Int("from", int(from)),
			slog.Int("to", int(to)),
		)
	})
	return &MessagingService{
		cfg: cfg,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:      breaker,
		interactions: interactions,
		logger:       logger,
	}
}

// SendText delivers one message. On success with a known contact the send is
// appended to the interaction ledger; ledger failures are logged, not
// returned, because the message already left.
func (s *MessagingService) SendText(ctx context.Context, tenantID, contactID, phone, message string) (*SendResult, error) {
	if s.cfg.URL == "" || s.cfg.APIKey == "" {
		s.logger.Warn("message gateway not configured, send skipped")
		return &SendResult{Sent: false, Reason: "not_configured"}, nil
	}
	if !s.breaker.AllowRequest() {
		metrics.ObserveMessageSent("circuit_open")
		return nil, fmt.Errorf("message gateway circuit open")
	}

	body, err := json.Marshal(map[string]string{
		"number": digitsOnly(phone),
		"text":   message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		metrics.ObserveMessageSent("error")
		return nil, fmt.Errorf("gateway send failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		s.breaker.RecordFailure()
		metrics.ObserveMessageSent("error")
		return nil, fmt.Errorf("gateway send failed: status %d", resp.StatusCode)
	}
	s.breaker.RecordSuccess()
	metrics.ObserveMessageSent("sent")

	if contactID != "" {
		interaction := &domain.Interaction{
			TenantID:  tenantID,
			ContactID: contactID,
			Channel:   domain.ChannelWhatsApp,
			Type:      domain.InteractionMessageSent,
			Content:   message,
			Metadata:  map[string]string{"gatewayResponse": string(respBody)},
		}
		if err := s.interactions.Create(ctx, interaction); err != nil {
			s.logger.Error("failed to record interaction",
				slog.String("contact_id", contactID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &SendResult{Sent: true}, nil
}

func digitsOnly(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
