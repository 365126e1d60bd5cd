package repository

import (
	"testing"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"
)

func sampleRecord() *domain.NotificationRecord {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return &domain.NotificationRecord{
		ID:           "0b4f3a5e-4c61-4a4e-9d0e-5f7b0e3b2a11",
		Channel:      domain.ChannelEmail,
		Source:       domain.SourceQueue,
		Recipient:    "user@example.com",
		Subject:      "Welcome",
		Message:      "<p>hi</p>",
		Outcome:      domain.OutcomeFailed,
		ErrorMessage: "TimeoutError: deadline exceeded",
		AttemptCount: 2,
		Metadata:     map[string]string{domain.MetaExceptionType: "TimeoutError"},
		CreatedAt:    created,
		UpdatedAt:    created.Add(time.Second),
	}
}

func TestRecordModelMapping(t *testing.T) {
	t.Parallel()

	record := sampleRecord()
	model := recordModelFromDomain(record)

	if model.TableName() != "notification_records" {
		t.Fatalf("TableName() = %q", model.TableName())
	}
	if model.Metadata[domain.MetaExceptionType] != "TimeoutError" {
		t.Fatalf("model metadata = %v", model.Metadata)
	}

	back := recordModelToDomain(model)
	if back.ID != record.ID || back.Outcome != record.Outcome || back.AttemptCount != 2 {
		t.Fatalf("round trip = %+v", back)
	}
	if back.Metadata[domain.MetaExceptionType] != "TimeoutError" {
		t.Fatalf("round trip metadata = %v", back.Metadata)
	}

	if recordModelFromDomain(nil) != nil || recordModelToDomain(nil) != nil {
		t.Fatal("nil mapping should return nil")
	}
}

func TestMetadataFromJSONMapStringifiesValues(t *testing.T) {
	t.Parallel()

	got := metadataFromJSONMap(datatypes.JSONMap{
		"StatusCode": float64(202),
		"Flag":       true,
		"Empty":      nil,
		"Text":       "ok",
	})

	want := map[string]string{"StatusCode": "202", "Flag": "true", "Empty": "", "Text": "ok"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("metadata[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestNormalizePage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		page, size   int
		wantPage     int
		wantPageSize int
	}{
		{name: "defaults", page: 0, size: 0, wantPage: 1, wantPageSize: defaultPageSize},
		{name: "explicit", page: 3, size: 20, wantPage: 3, wantPageSize: 20},
		{name: "capped", page: 1, size: 1000, wantPage: 1, wantPageSize: maxPageSize},
		{name: "negative", page: -2, size: -5, wantPage: 1, wantPageSize: defaultPageSize},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			page, size := normalizePage(tc.page, tc.size)
			if page != tc.wantPage || size != tc.wantPageSize {
				t.Fatalf("normalizePage(%d, %d) = %d, %d", tc.page, tc.size, page, size)
			}
		})
	}
}

func TestStatsAdd(t *testing.T) {
	t.Parallel()

	var stats Stats
	stats.add(domain.OutcomeSuccess, 5)
	stats.add(domain.OutcomeFailed, 2)
	stats.add(domain.OutcomePending, 1)
	stats.add(domain.Outcome("LEGACY"), 4)

	if stats.Total != 12 || stats.Success != 5 || stats.Failed != 2 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMongoFilter(t *testing.T) {
	t.Parallel()

	channel := domain.ChannelWhatsApp
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	filter := mongoFilter(ListParams{
		Recipient: " +5491112345678 ",
		Channel:   &channel,
		From:      &from,
		To:        &to,
	})

	if filter["recipient"] != "+5491112345678" {
		t.Fatalf("recipient filter = %v", filter["recipient"])
	}
	if filter["channel"] != "WHATSAPP" {
		t.Fatalf("channel filter = %v", filter["channel"])
	}
	created, ok := filter["createdAt"].(bson.M)
	if !ok {
		t.Fatalf("createdAt filter = %T", filter["createdAt"])
	}
	if created["$gte"] != from || created["$lte"] != to {
		t.Fatalf("createdAt filter = %v", created)
	}

	if empty := mongoFilter(ListParams{}); len(empty) != 0 {
		t.Fatalf("empty filter = %v", empty)
	}
}

func TestDocumentMapping(t *testing.T) {
	t.Parallel()

	record := sampleRecord()
	doc := documentFromDomain(record)
	doc.ID = primitive.NewObjectID()

	if doc.Outcome != "FAILED" || doc.Channel != "EMAIL" || doc.Source != "Queue" {
		t.Fatalf("document = %+v", doc)
	}

	record.Metadata["Mutated"] = "yes"
	if _, ok := doc.Metadata["Mutated"]; ok {
		t.Fatal("document metadata should be a copy")
	}

	back := documentToDomain(doc)
	if back.ID != doc.ID.Hex() {
		t.Fatalf("ID = %q, want %q", back.ID, doc.ID.Hex())
	}
	if back.Outcome != domain.OutcomeFailed || back.ErrorMessage != record.ErrorMessage {
		t.Fatalf("round trip = %+v", back)
	}
}
