package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/provider"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"go.uber.org/zap"
)

func TestDeliveryWorkerHandleMessageSuccess(t *testing.T) {
	t.Parallel()

	body := []byte(`{"notificationId":"n-1","type":"whatsapp","to":"+1","message":"hi"}`)
	var gotReq domain.DeliveryRequest
	var gotOrigin Origin
	var gotCorrelation string
	submitter := &fakeSubmitter{
		submitFn: func(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error) {
			gotReq = req
			gotOrigin = origin
			gotCorrelation, _ = observability.CorrelationIDFromContext(ctx)
			return Result{Outcome: domain.OutcomeSuccess, RecordID: "rec-1"}, nil
		},
	}
	worker := newTestWorker(t, &fakeConsumer{}, submitter)

	err := worker.HandleMessage(context.Background(), queue.Message{
		Event:      queue.NotificationEvent{NotificationID: "n-1", Type: "whatsapp", To: "+1", Message: "hi"},
		Queue:      "notifications",
		RoutingKey: "notifications",
		Body:       body,
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	whatsapp, ok := gotReq.(domain.WhatsAppRequest)
	if !ok || whatsapp.To != "+1" || whatsapp.Message != "hi" {
		t.Fatalf("request = %#v", gotReq)
	}
	if gotOrigin.Source != domain.SourceQueue || gotOrigin.Queue != "notifications" || gotOrigin.NotificationID != "n-1" {
		t.Fatalf("origin = %+v", gotOrigin)
	}
	if gotOrigin.OriginalType != "whatsapp" || string(gotOrigin.Payload) != string(body) {
		t.Fatalf("origin = %+v", gotOrigin)
	}
	if gotCorrelation != "n-1" {
		t.Fatalf("correlation id = %q, want n-1", gotCorrelation)
	}
}

func TestDeliveryWorkerHandleMessageFailures(t *testing.T) {
	t.Parallel()

	submitErr := errors.New("insert failed")

	testCases := []struct {
		name      string
		result    Result
		err       error
		wantKind  string
		wantCause error
	}{
		{
			name:     "delivery failed",
			result:   Result{Outcome: domain.OutcomeFailed, Kind: provider.KindTimeout, Message: "TimeoutError: deadline"},
			wantKind: provider.KindTimeout,
		},
		{
			name:     "pending is not success",
			result:   Result{Outcome: domain.OutcomePending},
			wantKind: "",
		},
		{
			name:      "audit create failed",
			result:    Result{Outcome: domain.OutcomeFailed, Kind: KindAudit},
			err:       submitErr,
			wantCause: submitErr,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			submitter := &fakeSubmitter{
				submitFn: func(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error) {
					return tc.result, tc.err
				},
			}
			worker := newTestWorker(t, &fakeConsumer{}, submitter)

			err := worker.HandleMessage(context.Background(), queue.Message{
				Event: queue.NotificationEvent{NotificationID: "n-2", Type: "email", To: "a@b.c"},
				Queue: "notifications",
			})
			if err == nil {
				t.Fatal("HandleMessage() error = nil, want rejection")
			}

			if tc.wantCause != nil {
				if !errors.Is(err, tc.wantCause) {
					t.Fatalf("error = %v, want %v", err, tc.wantCause)
				}
				return
			}

			var deliveryErr *DeliveryError
			if !errors.As(err, &deliveryErr) {
				t.Fatalf("error = %T, want *DeliveryError", err)
			}
			if deliveryErr.NotificationID != "n-2" || deliveryErr.Result.Kind != tc.wantKind {
				t.Fatalf("delivery error = %+v", deliveryErr)
			}
		})
	}
}

func TestDeliveryWorkerAcksOnlyRecordedSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore(nil)
	whatsapp := &fakeProvider{name: "whatsapp", channel: domain.ChannelWhatsApp}
	dispatcher, _ := newTestDispatcher(t, store, RetryPolicy{}, whatsapp)
	worker := newTestWorker(t, &fakeConsumer{}, dispatcher)

	ok := queue.Message{Event: queue.NotificationEvent{NotificationID: "ok", Type: "WhatsApp", To: "+1", TextBody: "hi"}, Queue: "notifications"}
	if err := worker.HandleMessage(context.Background(), ok); err != nil {
		t.Fatalf("HandleMessage(ok) error = %v", err)
	}

	bad := queue.Message{Event: queue.NotificationEvent{NotificationID: "bad", Type: "fax", To: "+1"}, Queue: "notifications"}
	if err := worker.HandleMessage(context.Background(), bad); err == nil {
		t.Fatal("HandleMessage(bad) error = nil, want rejection")
	}

	store.updateMissing = true
	lost := queue.Message{Event: queue.NotificationEvent{NotificationID: "lost", Type: "whatsapp", To: "+1", Message: "hi"}, Queue: "notifications"}
	err := worker.HandleMessage(context.Background(), lost)
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) || deliveryErr.Result.Kind != KindAudit {
		t.Fatalf("error = %v, want audit DeliveryError", err)
	}

	records := store.all()
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].Outcome != domain.OutcomeSuccess || records[1].Outcome != domain.OutcomeFailed {
		t.Fatalf("outcomes = %s, %s", records[0].Outcome, records[1].Outcome)
	}
}

func TestDeliveryWorkerStart(t *testing.T) {
	t.Parallel()

	consumeErr := errors.New("consume failed")
	var gotQueue string
	var gotHandler queue.MessageHandler
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			gotQueue = queueName
			gotHandler = handler
			return consumeErr
		},
	}
	worker := newTestWorker(t, consumer, &fakeSubmitter{})

	if err := worker.Start(context.Background()); !errors.Is(err, consumeErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumeErr)
	}
	if gotQueue != "notifications" || gotHandler == nil {
		t.Fatalf("Consume called with queue=%q handler=%v", gotQueue, gotHandler != nil)
	}
}

func TestNewDeliveryWorkerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDeliveryWorker(nil, &fakeSubmitter{}, "q", nil); err == nil {
		t.Fatal("expected error for nil consumer")
	}
	if _, err := NewDeliveryWorker(&fakeConsumer{}, nil, "q", nil); err == nil {
		t.Fatal("expected error for nil dispatcher")
	}
	if _, err := NewDeliveryWorker(&fakeConsumer{}, &fakeSubmitter{}, " ", nil); err == nil {
		t.Fatal("expected error for empty queue name")
	}
}

func newTestWorker(t *testing.T, consumer queue.Consumer, submitter Submitter) *DeliveryWorker {
	t.Helper()

	worker, err := NewDeliveryWorker(consumer, submitter, "notifications", zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryWorker() error = %v", err)
	}
	return worker
}

type fakeSubmitter struct {
	submitFn func(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error)
}

func (f *fakeSubmitter) Submit(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error) {
	if f.submitFn != nil {
		return f.submitFn(ctx, req, origin)
	}
	return Result{Outcome: domain.OutcomeSuccess}, nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}
