package service

import (
	"strings"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

const maxPayloadEcho = 4096

// Origin describes where a notification entered the system.
type Origin struct {
	Source         domain.Source
	Endpoint       string
	Queue          string
	RoutingKey     string
	NotificationID string
	OriginalType   string
	Payload        []byte
}

// RecordBuilder creates the pending audit record for a request before any
// send is attempted.
type RecordBuilder struct {
	now func() time.Time
}

func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{now: time.Now}
}

// Build never fails; empty fields pass through for the dispatcher to validate.
func (b *RecordBuilder) Build(req domain.DeliveryRequest, origin Origin) *domain.NotificationRecord {
	record := &domain.NotificationRecord{
		Channel:      domain.ChannelUnknown,
		Source:       origin.Source,
		Outcome:      domain.OutcomePending,
		AttemptCount: 1,
		Metadata:     make(map[string]string),
	}

	var from, messageID string
	switch r := req.(type) {
	case domain.EmailRequest:
		record.Subject = r.Subject
		record.Message = r.Body()
		from = r.From
		messageID = r.MessageID
	case domain.WhatsAppRequest:
		record.Message = r.Message
		messageID = r.MessageID
	case domain.UnsupportedRequest:
		record.Subject = r.Subject
		record.Message = r.Message
		messageID = r.MessageID
		setIfPresent(record, domain.MetaOriginalType, r.Type)
	}
	if req != nil {
		record.Channel = req.Channel()
		record.Recipient = strings.TrimSpace(req.Recipient())
	}

	setIfPresent(record, domain.MetaSource, origin.Source.String())
	setIfPresent(record, domain.MetaEndpoint, origin.Endpoint)
	setIfPresent(record, domain.MetaQueue, origin.Queue)
	setIfPresent(record, domain.MetaRoutingKey, origin.RoutingKey)
	setIfPresent(record, domain.MetaNotificationID, origin.NotificationID)
	setIfPresent(record, domain.MetaMessageID, messageID)
	setIfPresent(record, domain.MetaFrom, from)
	setIfPresent(record, domain.MetaOriginalType, origin.OriginalType)
	setIfPresent(record, domain.MetaOriginalPayload, truncate(string(origin.Payload), maxPayloadEcho))
	record.SetMeta(domain.MetaReceivedAt, b.now().UTC().Format(time.RFC3339Nano))

	return record
}

func setIfPresent(record *domain.NotificationRecord, key, value string) {
	if strings.TrimSpace(value) != "" {
		record.SetMeta(key, value)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.ToValidUTF8(s[:limit], "")
}
