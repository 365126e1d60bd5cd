package service

import (
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

func TestRecordBuilderBuild(t *testing.T) {
	t.Parallel()

	builder := &RecordBuilder{now: func() time.Time { return fixedNow }}

	testCases := []struct {
		name          string
		req           domain.DeliveryRequest
		origin        Origin
		wantChannel   domain.Channel
		wantRecipient string
		wantSubject   string
		wantMessage   string
		wantMeta      map[string]string
		absentMeta    []string
	}{
		{
			name: "email from queue",
			req: domain.EmailRequest{
				To:        " a@b.c ",
				Subject:   "Welcome",
				HtmlBody:  "<p>hi</p>",
				TextBody:  "hi",
				From:      "noreply@b.c",
				MessageID: "m-1",
			},
			origin: Origin{
				Source:         domain.SourceQueue,
				Queue:          "notifications",
				RoutingKey:     "notifications",
				NotificationID: "n-1",
				OriginalType:   "email",
				Payload:        []byte(`{"type":"email"}`),
			},
			wantChannel:   domain.ChannelEmail,
			wantRecipient: "a@b.c",
			wantSubject:   "Welcome",
			wantMessage:   "<p>hi</p>",
			wantMeta: map[string]string{
				domain.MetaSource:          "Queue",
				domain.MetaQueue:           "notifications",
				domain.MetaRoutingKey:      "notifications",
				domain.MetaNotificationID:  "n-1",
				domain.MetaMessageID:       "m-1",
				domain.MetaFrom:            "noreply@b.c",
				domain.MetaOriginalType:    "email",
				domain.MetaOriginalPayload: `{"type":"email"}`,
				domain.MetaReceivedAt:      fixedNow.Format(time.RFC3339Nano),
			},
			absentMeta: []string{domain.MetaEndpoint},
		},
		{
			name:          "whatsapp from sync api",
			req:           domain.WhatsAppRequest{To: "+1", Message: "hello"},
			origin:        Origin{Source: domain.SourceSyncAPI, Endpoint: "/api/notifications/whatsapp"},
			wantChannel:   domain.ChannelWhatsApp,
			wantRecipient: "+1",
			wantMessage:   "hello",
			wantMeta: map[string]string{
				domain.MetaSource:   "SyncAPI",
				domain.MetaEndpoint: "/api/notifications/whatsapp",
			},
			absentMeta: []string{domain.MetaQueue, domain.MetaNotificationID, domain.MetaOriginalPayload, domain.MetaFrom},
		},
		{
			name:          "unsupported keeps original type",
			req:           domain.UnsupportedRequest{Type: "Fax", To: "", Message: "x"},
			origin:        Origin{Source: domain.SourceQueue},
			wantChannel:   domain.ChannelUnknown,
			wantRecipient: "",
			wantMessage:   "x",
			wantMeta:      map[string]string{domain.MetaOriginalType: "Fax"},
		},
		{
			name:          "sms type maps to its channel",
			req:           domain.UnsupportedRequest{Type: "sms", To: "+1"},
			origin:        Origin{Source: domain.SourceQueue},
			wantChannel:   domain.ChannelSMS,
			wantRecipient: "+1",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			record := builder.Build(tc.req, tc.origin)

			if record.Outcome != domain.OutcomePending || record.AttemptCount != 1 {
				t.Fatalf("record = %+v, want pending with one attempt", record)
			}
			if record.ID != "" || record.ErrorMessage != "" {
				t.Fatalf("record = %+v, want no id and no error", record)
			}
			if record.Channel != tc.wantChannel || record.Recipient != tc.wantRecipient {
				t.Fatalf("channel=%s recipient=%q", record.Channel, record.Recipient)
			}
			if record.Subject != tc.wantSubject || record.Message != tc.wantMessage {
				t.Fatalf("subject=%q message=%q", record.Subject, record.Message)
			}
			if record.Source != tc.origin.Source {
				t.Fatalf("source = %s, want %s", record.Source, tc.origin.Source)
			}
			for key, want := range tc.wantMeta {
				if got := record.Metadata[key]; got != want {
					t.Fatalf("Metadata[%s] = %q, want %q", key, got, want)
				}
			}
			for _, key := range tc.absentMeta {
				if _, ok := record.Metadata[key]; ok {
					t.Fatalf("Metadata[%s] should be absent", key)
				}
			}
		})
	}
}

func TestRecordBuilderTruncatesPayload(t *testing.T) {
	t.Parallel()

	builder := NewRecordBuilder()
	payload := strings.Repeat("a", maxPayloadEcho-1) + "é"

	record := builder.Build(domain.EmailRequest{To: "a@b.c", TextBody: "x"}, Origin{Source: domain.SourceQueue, Payload: []byte(payload)})

	got := record.Metadata[domain.MetaOriginalPayload]
	if len(got) != maxPayloadEcho-1 {
		t.Fatalf("payload length = %d, want %d", len(got), maxPayloadEcho-1)
	}
	if !strings.HasPrefix(payload, got) {
		t.Fatal("truncated payload must be a prefix of the original")
	}
}

func TestRecordBuilderNilRequest(t *testing.T) {
	t.Parallel()

	record := NewRecordBuilder().Build(nil, Origin{Source: domain.SourceQueue})
	if record.Channel != domain.ChannelUnknown || record.Outcome != domain.OutcomePending {
		t.Fatalf("record = %+v", record)
	}
}
