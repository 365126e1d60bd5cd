package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

// NotificationEvent is the broker payload for a notification.
// Field names are matched case-insensitively and unknown fields are ignored.
type NotificationEvent struct {
	NotificationID string            `json:"notificationId"`
	Type           string            `json:"type"`
	To             string            `json:"to"`
	Subject        string            `json:"subject,omitempty"`
	HtmlBody       string            `json:"htmlBody,omitempty"`
	TextBody       string            `json:"textBody,omitempty"`
	Message        string            `json:"message,omitempty"`
	MediaURL       string            `json:"mediaUrl,omitempty"`
	From           string            `json:"from,omitempty"`
	ReplyTo        string            `json:"replyTo,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Message is a decoded delivery handed to a MessageHandler.
type Message struct {
	Event       NotificationEvent
	Queue       string
	RoutingKey  string
	Redelivered bool
	Body        []byte
}

var jsonNull = []byte("null")

// DecodeEvent parses a raw broker payload. An empty or null body is an error.
func DecodeEvent(body []byte) (NotificationEvent, error) {
	var event NotificationEvent

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return event, fmt.Errorf("empty notification payload")
	}
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return event, fmt.Errorf("invalid notification payload: %w", err)
	}

	return event, nil
}

// Channel resolves the type discriminator once.
func (e NotificationEvent) Channel() domain.Channel {
	return domain.ParseChannel(e.Type)
}

// DeliveryRequest builds the channel-specific request for the event.
func (e NotificationEvent) DeliveryRequest() domain.DeliveryRequest {
	switch e.Channel() {
	case domain.ChannelEmail:
		return domain.EmailRequest{
			To:        e.To,
			Subject:   e.Subject,
			HtmlBody:  e.HtmlBody,
			TextBody:  e.TextBody,
			From:      e.From,
			ReplyTo:   e.ReplyTo,
			Headers:   e.Headers,
			MessageID: e.NotificationID,
		}
	case domain.ChannelWhatsApp:
		return domain.WhatsAppRequest{
			To:        e.To,
			Message:   e.whatsAppText(),
			MediaURL:  e.MediaURL,
			MessageID: e.NotificationID,
			Metadata:  e.Metadata,
		}
	default:
		return domain.UnsupportedRequest{
			Type:      e.Type,
			To:        e.To,
			Subject:   e.Subject,
			Message:   e.whatsAppText(),
			MessageID: e.NotificationID,
		}
	}
}

func (e NotificationEvent) whatsAppText() string {
	for _, candidate := range []string{e.Message, e.TextBody, e.HtmlBody} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}
