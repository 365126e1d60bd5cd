package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-service/internal/domain"
	"go.uber.org/zap"
)

// WhatsAppConfig configures the HTTP messaging API client.
type WhatsAppConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

type whatsAppPayload struct {
	To        string            `json:"to"`
	Message   string            `json:"message"`
	MediaURL  string            `json:"media_url,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// WhatsAppProvider sends WhatsApp messages through an HTTP messaging gateway.
type WhatsAppProvider struct {
	client   *resty.Client
	endpoint string
	token    string
}

func NewWhatsAppProvider(cfg WhatsAppConfig) (*WhatsAppProvider, error) {
	return NewWhatsAppProviderWithClient(cfg, newRestyClient(cfg.Timeout))
}

func NewWhatsAppProviderWithClient(cfg WhatsAppConfig, client *resty.Client) (*WhatsAppProvider, error) {
	endpoint, err := validateEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("whatsapp provider: %w", err)
	}

	client, err = prepareRestyClient(client)
	if err != nil {
		return nil, err
	}

	return &WhatsAppProvider{
		client:   client,
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
	}, nil
}

func (p *WhatsAppProvider) Name() string { return "whatsapp" }

func (p *WhatsAppProvider) Channel() domain.Channel { return domain.ChannelWhatsApp }

func (p *WhatsAppProvider) Send(ctx context.Context, req domain.DeliveryRequest) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	msg, ok := req.(domain.WhatsAppRequest)
	if !ok {
		return nil, unexpectedRequest(p.Name(), req)
	}

	r := p.client.R()
	if p.token != "" {
		r.SetAuthToken(p.token)
	}

	return postJSON(ctx, r, p.endpoint, whatsAppPayload{
		To:        strings.TrimSpace(msg.To),
		Message:   msg.Message,
		MediaURL:  msg.MediaURL,
		MessageID: msg.MessageID,
		Metadata:  msg.Metadata,
	})
}

// MockWhatsAppProvider accepts every message without calling a gateway.
type MockWhatsAppProvider struct {
	logger *zap.Logger
}

func NewMockWhatsAppProvider(logger *zap.Logger) *MockWhatsAppProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockWhatsAppProvider{logger: logger}
}

func (p *MockWhatsAppProvider) Name() string { return "whatsapp-mock" }

func (p *MockWhatsAppProvider) Channel() domain.Channel { return domain.ChannelWhatsApp }

func (p *MockWhatsAppProvider) Send(ctx context.Context, req domain.DeliveryRequest) (*Response, error) {
	msg, ok := req.(domain.WhatsAppRequest)
	if !ok {
		return nil, unexpectedRequest(p.Name(), req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("whatsapp mock delivery",
		zap.String("to", msg.To),
		zap.String("messageId", msg.MessageID),
		zap.Int("length", len([]rune(msg.Message))),
	)

	return &Response{
		Accepted:   true,
		StatusCode: 200,
		MessageID:  "mock-" + msg.MessageID,
	}, nil
}
