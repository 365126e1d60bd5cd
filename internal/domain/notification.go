package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome represents the delivery result recorded for a notification.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeSuccess, OutcomeFailed:
		return true
	}
	return false
}

func ParseOutcomeFromString(s string) (Outcome, error) {
	out := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	if !out.IsValid() {
		return "", fmt.Errorf("%w: invalid outcome %q", ErrValidation, s)
	}
	return out, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
	ChannelUnknown  Channel = "UNKNOWN"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// ParseChannel maps a case-insensitive type discriminator onto a Channel.
// Unrecognized values map to ChannelUnknown; the result depends only on s.
func ParseChannel(s string) Channel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail
	case "whatsapp":
		return ChannelWhatsApp
	case "sms":
		return ChannelSMS
	case "push":
		return ChannelPush
	default:
		return ChannelUnknown
	}
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := ParseChannel(s)
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Source tags where a notification entered the system.
type Source string

const (
	SourceSyncAPI Source = "SyncAPI"
	SourceQueue   Source = "Queue"
)

func (s Source) String() string { return string(s) }

// Metadata keys stamped on records.
const (
	MetaSource            = "Source"
	MetaEndpoint          = "Endpoint"
	MetaQueue             = "Queue"
	MetaRoutingKey        = "RoutingKey"
	MetaNotificationID    = "NotificationId"
	MetaMessageID         = "MessageId"
	MetaOriginalType      = "OriginalType"
	MetaOriginalPayload   = "OriginalPayload"
	MetaFrom              = "From"
	MetaReceivedAt        = "ReceivedAt"
	MetaSentAt            = "SentAt"
	MetaFailedAt          = "FailedAt"
	MetaStatusCode        = "StatusCode"
	MetaResponse          = "Response"
	MetaProviderMessageID = "ProviderMessageId"
	MetaExceptionType     = "ExceptionType"
	MetaFailureKind       = "FailureKind"
)

// NotificationRecord is the audit entity for one delivery attempt chain.
type NotificationRecord struct {
	ID           string
	Channel      Channel
	Source       Source
	Recipient    string
	Subject      string
	Message      string
	Outcome      Outcome
	ErrorMessage string
	AttemptCount int
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *NotificationRecord) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// MarkSuccess sets the success outcome and clears any previous error.
func (r *NotificationRecord) MarkSuccess(at time.Time) {
	r.Outcome = OutcomeSuccess
	r.ErrorMessage = ""
	r.SetMeta(MetaSentAt, at.UTC().Format(time.RFC3339Nano))
}

// MarkFailed sets the failed outcome with a descriptive message.
func (r *NotificationRecord) MarkFailed(at time.Time, message string) {
	r.Outcome = OutcomeFailed
	r.ErrorMessage = message
	r.SetMeta(MetaFailedAt, at.UTC().Format(time.RFC3339Nano))
}

func (r *NotificationRecord) IsSuccess() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}
