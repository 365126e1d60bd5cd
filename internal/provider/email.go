package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-service/internal/domain"
)

const defaultEmailSubject = "Notification"

// EmailConfig configures the HTTP mail API client.
type EmailConfig struct {
	Endpoint       string
	APIKey         string
	SenderAddress  string
	SenderName     string
	DefaultSubject string
	Timeout        time.Duration
}

type emailAddress struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name,omitempty"`
}

type emailPayload struct {
	From        emailAddress      `json:"from"`
	To          []emailAddress    `json:"to"`
	ReplyTo     *emailAddress     `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html,omitempty"`
	Plain       string            `json:"plain,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Tracking    bool              `json:"tracking"`
}

// EmailProvider sends email through a Maileroo-compatible HTTP API.
type EmailProvider struct {
	client *resty.Client
	cfg    EmailConfig
}

func NewEmailProvider(cfg EmailConfig) (*EmailProvider, error) {
	return NewEmailProviderWithClient(cfg, newRestyClient(cfg.Timeout))
}

func NewEmailProviderWithClient(cfg EmailConfig, client *resty.Client) (*EmailProvider, error) {
	endpoint, err := validateEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("email provider: %w", err)
	}
	cfg.Endpoint = endpoint

	client, err = prepareRestyClient(client)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DefaultSubject) == "" {
		cfg.DefaultSubject = defaultEmailSubject
	}

	return &EmailProvider{client: client, cfg: cfg}, nil
}

func (p *EmailProvider) Name() string { return "email" }

func (p *EmailProvider) Channel() domain.Channel { return domain.ChannelEmail }

func (p *EmailProvider) Send(ctx context.Context, req domain.DeliveryRequest) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	email, ok := req.(domain.EmailRequest)
	if !ok {
		return nil, unexpectedRequest(p.Name(), req)
	}

	r := p.client.R()
	if key := strings.TrimSpace(p.cfg.APIKey); key != "" {
		r.SetHeader("X-API-Key", key)
	}

	return postJSON(ctx, r, p.cfg.Endpoint, p.buildPayload(email))
}

func (p *EmailProvider) buildPayload(req domain.EmailRequest) emailPayload {
	from := emailAddress{
		Address:     p.cfg.SenderAddress,
		DisplayName: p.cfg.SenderName,
	}
	if addr := strings.TrimSpace(req.From); addr != "" {
		from.Address = addr
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = p.cfg.DefaultSubject
	}

	plain := req.TextBody
	if strings.TrimSpace(plain) == "" {
		plain = req.HtmlBody
	}

	payload := emailPayload{
		From:        from,
		To:          []emailAddress{{Address: strings.TrimSpace(req.To)}},
		Subject:     subject,
		HTML:        req.HtmlBody,
		Plain:       plain,
		Headers:     req.Headers,
		ReferenceID: req.MessageID,
		Tracking:    true,
	}
	if replyTo := strings.TrimSpace(req.ReplyTo); replyTo != "" {
		payload.ReplyTo = &emailAddress{Address: replyTo}
	}

	return payload
}
