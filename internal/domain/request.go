package domain

import (
	"fmt"
	"strings"
)

// DeliveryRequest is a normalized, channel-specific send request.
// The set of implementations is closed to this package.
type DeliveryRequest interface {
	Channel() Channel
	Recipient() string
	isDeliveryRequest()
}

// EmailRequest is the normalized email send request.
type EmailRequest struct {
	To        string
	Subject   string
	HtmlBody  string
	TextBody  string
	From      string
	ReplyTo   string
	Headers   map[string]string
	MessageID string
}

func (EmailRequest) Channel() Channel { return ChannelEmail }
func (r EmailRequest) Recipient() string { return r.To }
func (EmailRequest) isDeliveryRequest() {}

// Body returns the HTML body when present, otherwise the text body.
func (r EmailRequest) Body() string {
	if r.HtmlBody != "" {
		return r.HtmlBody
	}
	return r.TextBody
}

// WhatsAppRequest is the normalized WhatsApp send request.
type WhatsAppRequest struct {
	To        string
	Message   string
	MediaURL  string
	MessageID string
	Metadata  map[string]string
}

func (WhatsAppRequest) Channel() Channel { return ChannelWhatsApp }
func (r WhatsAppRequest) Recipient() string { return r.To }
func (WhatsAppRequest) isDeliveryRequest() {}

// UnsupportedRequest carries a notification whose type has no delivery path.
type UnsupportedRequest struct {
	Type      string
	To        string
	Subject   string
	Message   string
	MessageID string
}

func (r UnsupportedRequest) Channel() Channel {
	return ParseChannel(r.Type)
}

func (r UnsupportedRequest) Recipient() string { return r.To }
func (UnsupportedRequest) isDeliveryRequest() {}

// ValidateDeliveryRequest checks the fields required before a provider call.
func ValidateDeliveryRequest(req DeliveryRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", ErrValidation)
	}
	if strings.TrimSpace(req.Recipient()) == "" {
		return fmt.Errorf("%w: recipient is empty", ErrValidation)
	}

	switch r := req.(type) {
	case EmailRequest:
		if strings.TrimSpace(r.HtmlBody) == "" && strings.TrimSpace(r.TextBody) == "" {
			return fmt.Errorf("%w: email content is empty", ErrValidation)
		}
	case WhatsAppRequest:
		if strings.TrimSpace(r.Message) == "" {
			return fmt.Errorf("%w: whatsapp message is empty", ErrValidation)
		}
	}
	return nil
}
