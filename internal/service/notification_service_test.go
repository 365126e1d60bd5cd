package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"go.uber.org/zap"
)

func TestNotificationServiceEnqueueGeneratesID(t *testing.T) {
	t.Parallel()

	var published []queue.NotificationEvent
	var publishedQueue string
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, event queue.NotificationEvent) error {
			publishedQueue = queueName
			published = append(published, event)
			return nil
		},
	}
	svc := newTestNotificationService(t, newFakeAuditStore(nil), publisher)

	event, err := svc.Enqueue(context.Background(), queue.NotificationEvent{
		Type:    " email ",
		To:      " a@b.c ",
		Subject: "Hello",
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if _, err := uuid.Parse(event.NotificationID); err != nil {
		t.Fatalf("NotificationID = %q, want uuid", event.NotificationID)
	}
	if len(published) != 1 || publishedQueue != "notifications" {
		t.Fatalf("published = %v to %q", published, publishedQueue)
	}
	if published[0].NotificationID != event.NotificationID || published[0].Type != "email" || published[0].To != "a@b.c" {
		t.Fatalf("published event = %+v", published[0])
	}
}

func TestNotificationServiceEnqueueKeepsCallerID(t *testing.T) {
	t.Parallel()

	svc := newTestNotificationService(t, newFakeAuditStore(nil), &fakePublisher{})

	event, err := svc.Enqueue(context.Background(), queue.NotificationEvent{NotificationID: "caller-1", Type: "whatsapp", To: "+1"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if event.NotificationID != "caller-1" {
		t.Fatalf("NotificationID = %q, want caller-1", event.NotificationID)
	}
}

func TestNotificationServiceEnqueueErrors(t *testing.T) {
	t.Parallel()

	publishErr := errors.New("channel closed")

	testCases := []struct {
		name      string
		event     queue.NotificationEvent
		publisher queue.Publisher
		wantErr   error
	}{
		{name: "missing type", event: queue.NotificationEvent{To: "a@b.c"}, publisher: &fakePublisher{}, wantErr: domain.ErrValidation},
		{name: "missing recipient", event: queue.NotificationEvent{Type: "email", To: "  "}, publisher: &fakePublisher{}, wantErr: domain.ErrValidation},
		{
			name:  "publish failure",
			event: queue.NotificationEvent{Type: "email", To: "a@b.c"},
			publisher: &fakePublisher{publishFn: func(context.Context, string, queue.NotificationEvent) error {
				return publishErr
			}},
			wantErr: publishErr,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := newTestNotificationService(t, newFakeAuditStore(nil), tc.publisher)
			if _, err := svc.Enqueue(context.Background(), tc.event); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Enqueue() error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	svc, err := NewNotificationService(newFakeAuditStore(nil), nil, "notifications", zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}
	if _, err := svc.Enqueue(context.Background(), queue.NotificationEvent{Type: "email", To: "a@b.c"}); err == nil {
		t.Fatal("expected error without a publisher")
	}
}

func TestNotificationServiceReads(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore(nil)
	record := &domain.NotificationRecord{Channel: domain.ChannelEmail, Recipient: "a@b.c", Outcome: domain.OutcomeSuccess}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var gotParams repository.ListParams
	store.statsFn = func(ctx context.Context, params repository.ListParams) (repository.Stats, error) {
		gotParams = params
		return repository.Stats{Total: 1, Success: 1}, nil
	}

	svc := newTestNotificationService(t, store, &fakePublisher{})

	got, err := svc.GetByID(context.Background(), record.ID)
	if err != nil || got.Recipient != "a@b.c" {
		t.Fatalf("GetByID() = %+v, %v", got, err)
	}
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByID(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetByID(blank) error = %v, want ErrValidation", err)
	}

	records, total, err := svc.List(context.Background(), repository.ListParams{})
	if err != nil || total != 1 || len(records) != 1 {
		t.Fatalf("List() = %d records, total %d, err %v", len(records), total, err)
	}

	channel := domain.ChannelEmail
	stats, err := svc.Stats(context.Background(), repository.ListParams{Channel: &channel})
	if err != nil || stats.Total != 1 || stats.Success != 1 {
		t.Fatalf("Stats() = %+v, %v", stats, err)
	}
	if gotParams.Channel == nil || *gotParams.Channel != domain.ChannelEmail {
		t.Fatalf("Stats params = %+v", gotParams)
	}
}

func TestNotificationServiceRejectsInvertedRange(t *testing.T) {
	t.Parallel()

	svc := newTestNotificationService(t, newFakeAuditStore(nil), &fakePublisher{})
	from := fixedNow
	to := fixedNow.Add(-time.Hour)
	params := repository.ListParams{From: &from, To: &to}

	if _, _, err := svc.List(context.Background(), params); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List() error = %v, want ErrValidation", err)
	}
	if _, err := svc.Stats(context.Background(), params); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Stats() error = %v, want ErrValidation", err)
	}
}

func TestNotificationServiceReady(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore(nil)
	svc := newTestNotificationService(t, store, &fakePublisher{})
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}

	store.pingErr = errors.New("connection refused")
	if err := svc.Ready(context.Background()); err == nil {
		t.Fatal("Ready() error = nil, want ping failure")
	}

	if _, err := NewNotificationService(nil, nil, "q", nil); err == nil {
		t.Fatal("expected error for nil audit store")
	}
}

func newTestNotificationService(t *testing.T, store repository.AuditStore, publisher queue.Publisher) *NotificationService {
	t.Helper()

	svc, err := NewNotificationService(store, publisher, "notifications", zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}
	return svc
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, event queue.NotificationEvent) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, event queue.NotificationEvent) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, event)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}
