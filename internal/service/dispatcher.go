package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/provider"
	"github.com/kursadbilgin/notification-service/internal/ratelimit"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"go.uber.org/zap"
)

// Failure kinds that do not come from a provider call.
const (
	KindValidation  = "ValidationError"
	KindUnsupported = "UnsupportedTypeError"
	KindRejected    = "ProviderRejected"
	KindAudit       = "AuditError"
)

const (
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	maxRetryJitterMillis  = 250
	maxResponseEcho       = 2048
)

// RetryPolicy bounds in-dispatch retries of transient transport failures.
// MaxAttempts of 1 means a single provider call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) delay(attempt int, jitterMillis int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

// Result is the structured outcome of a dispatch.
type Result struct {
	Outcome           domain.Outcome
	Kind              string
	Message           string
	RecordID          string
	Attempts          int
	StatusCode        int
	ProviderMessageID string
}

func (r Result) Succeeded() bool {
	return r.Outcome == domain.OutcomeSuccess
}

type sendOutcome struct {
	provider string
	resp     *provider.Response
	err      error
	kind     string
	message  string
	attempts int
}

// Dispatcher owns the send-and-audit transaction of a single notification:
// one audit create, at most RetryPolicy.MaxAttempts provider calls and one
// audit update.
type Dispatcher struct {
	store           repository.AuditStore
	providers       provider.Registry
	limiter         ratelimit.RateLimiter
	builder         *RecordBuilder
	retry           RetryPolicy
	providerTimeout time.Duration
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
	randIntn        func(n int) int
}

func NewDispatcher(
	store repository.AuditStore,
	providers provider.Registry,
	limiter ratelimit.RateLimiter,
	retry RetryPolicy,
	providerTimeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if providers == nil {
		providers = provider.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		store:           store,
		providers:       providers,
		limiter:         limiter,
		builder:         NewRecordBuilder(),
		retry:           retry.normalized(),
		providerTimeout: providerTimeout,
		logger:          logger,
		now:             time.Now,
		sleep:           sleepContext,
		randIntn:        rand.Intn,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Submit persists a pending record for req and dispatches it. The returned
// error is non-nil only when the record could not be created, in which case
// no provider call is made.
func (d *Dispatcher) Submit(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error) {
	record := d.builder.Build(req, origin)

	if err := d.store.Create(ctx, record); err != nil {
		observability.WithContextLogger(d.logger, ctx).With(observability.RecordFields(record)...).
			Error("failed to create audit record", zap.Error(err))
		d.metrics.IncNotificationFailed(record.Channel.String(), KindAudit)
		return Result{
			Outcome: domain.OutcomeFailed,
			Kind:    KindAudit,
			Message: fmt.Sprintf("%s: failed to create audit record", KindAudit),
		}, fmt.Errorf("create audit record: %w", err)
	}

	return d.Dispatch(ctx, record, req), nil
}

// Dispatch sends req for an already persisted record and writes exactly one
// terminal update. It never panics past this boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, record *domain.NotificationRecord, req domain.DeliveryRequest) Result {
	if record == nil {
		return Result{Outcome: domain.OutcomeFailed, Kind: KindAudit, Message: fmt.Sprintf("%s: record is required", KindAudit)}
	}

	logger := observability.WithContextLogger(d.logger, ctx).With(observability.RecordFields(record)...)

	out := d.execute(ctx, req, logger)
	d.apply(record, out)

	result := Result{
		Outcome:  record.Outcome,
		Kind:     out.kind,
		Message:  record.ErrorMessage,
		RecordID: record.ID,
		Attempts: record.AttemptCount,
	}
	if out.resp != nil {
		result.StatusCode = out.resp.StatusCode
		result.ProviderMessageID = out.resp.MessageID
	}

	// The terminal update must land even if the caller has gone away.
	updated, err := d.store.Update(context.WithoutCancel(ctx), record.ID, record)
	if err != nil || !updated {
		if err == nil {
			err = domain.ErrNotFound
		}
		logger.Error("failed to update audit record",
			zap.String("outcome", record.Outcome.String()),
			zap.Error(err),
		)
		d.metrics.IncNotificationFailed(record.Channel.String(), KindAudit)
		return Result{
			Outcome:  domain.OutcomeFailed,
			Kind:     KindAudit,
			Message:  fmt.Sprintf("%s: %v", KindAudit, err),
			RecordID: record.ID,
			Attempts: record.AttemptCount,
		}
	}

	if record.IsSuccess() {
		d.metrics.IncNotificationSent(record.Channel.String(), record.Source.String())
		logger.Info("notification delivered",
			zap.String("provider", out.provider),
			zap.Int("attempts", result.Attempts),
			zap.String("providerMessageId", result.ProviderMessageID),
		)
		return result
	}

	d.metrics.IncNotificationFailed(record.Channel.String(), result.Kind)
	logger.Warn("notification delivery failed",
		zap.String("kind", result.Kind),
		zap.String("error", result.Message),
		zap.Int("attempts", result.Attempts),
	)
	return result
}

func (d *Dispatcher) execute(ctx context.Context, req domain.DeliveryRequest, logger *zap.Logger) sendOutcome {
	if unsupported, ok := req.(domain.UnsupportedRequest); ok {
		return sendOutcome{
			kind:    KindUnsupported,
			message: fmt.Sprintf("%v %q", domain.ErrUnsupportedChannel, unsupported.Type),
		}
	}
	if err := domain.ValidateDeliveryRequest(req); err != nil {
		return sendOutcome{kind: KindValidation, message: err.Error()}
	}

	channel := req.Channel()
	p, ok := d.providers.Lookup(channel)
	if !ok {
		return sendOutcome{
			kind:    KindUnsupported,
			message: fmt.Sprintf("%v: no provider configured for %s", domain.ErrUnsupportedChannel, channel),
		}
	}

	out := sendOutcome{provider: p.Name()}
	for attempt := 1; ; attempt++ {
		start := d.now()
		out.resp, out.err = d.call(ctx, p, req)
		d.metrics.ObserveNotificationSendDuration(channel.String(), d.now().Sub(start))

		// Only calls that reached the provider count as attempts.
		if provider.ErrorKind(out.err) == provider.KindRateLimit {
			break
		}
		out.attempts = attempt

		if out.err == nil || attempt >= d.retry.MaxAttempts || !provider.IsTransient(out.err) {
			break
		}

		wait := d.retry.delay(attempt, d.jitterMillis())
		logger.Debug("retrying transient provider failure",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(out.err),
		)
		d.metrics.IncDispatchRetry(channel.String())
		if err := d.sleep(ctx, wait); err != nil {
			break
		}
	}

	if out.err == nil && out.resp == nil {
		out.err = &provider.ProviderError{Kind: provider.KindUnexpected, Message: "provider returned no response"}
	}

	switch {
	case out.err != nil:
		out.kind = provider.ErrorKind(out.err)
		out.message = fmt.Sprintf("%s: %s", out.kind, out.err.Error())
	case !out.resp.Accepted:
		out.kind = KindRejected
		out.message = fmt.Sprintf("%s returned failure", p.Name())
	}

	return out
}

// call performs one rate-limited provider call under the provider timeout.
// A panic inside the provider is converted into a PanicError.
func (d *Dispatcher) call(ctx context.Context, p provider.Provider, req domain.DeliveryRequest) (resp *provider.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &provider.ProviderError{
				Kind:    provider.KindPanic,
				Message: fmt.Sprintf("provider %s panicked: %v", p.Name(), r),
			}
		}
	}()

	if d.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.providerTimeout)
		defer cancel()
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, req.Channel()); err != nil {
			return nil, &provider.ProviderError{
				Kind:    provider.KindRateLimit,
				Message: "rate limiter wait failed",
				Cause:   err,
			}
		}
	}

	return p.Send(ctx, req)
}

func (d *Dispatcher) apply(record *domain.NotificationRecord, out sendOutcome) {
	now := d.now()
	record.AttemptCount = max(out.attempts, 1)

	if out.resp != nil {
		if out.resp.StatusCode > 0 {
			record.SetMeta(domain.MetaStatusCode, strconv.Itoa(out.resp.StatusCode))
		}
		if body := strings.TrimSpace(out.resp.Body); body != "" {
			record.SetMeta(domain.MetaResponse, truncate(body, maxResponseEcho))
		}
		if id := strings.TrimSpace(out.resp.MessageID); id != "" {
			record.SetMeta(domain.MetaProviderMessageID, id)
		}
	}

	if out.kind == "" {
		record.MarkSuccess(now)
		return
	}

	record.MarkFailed(now, out.message)
	record.SetMeta(domain.MetaFailureKind, out.kind)
	if out.err == nil {
		return
	}

	record.SetMeta(domain.MetaExceptionType, out.kind)
	var providerErr *provider.ProviderError
	if errors.As(out.err, &providerErr) && providerErr.StatusCode > 0 {
		if _, ok := record.Metadata[domain.MetaStatusCode]; !ok {
			record.SetMeta(domain.MetaStatusCode, strconv.Itoa(providerErr.StatusCode))
		}
	}
}

func (d *Dispatcher) jitterMillis() int {
	if d.randIntn == nil || maxRetryJitterMillis <= 0 {
		return 0
	}
	return d.randIntn(maxRetryJitterMillis + 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
