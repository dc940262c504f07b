// Package notify delivers job lifecycle events as CloudEvents callbacks.
package notify

import (
	"context"
	"log/slog"
	"time"

	"cmutils/internal/observability"
	"cmutils/pkg/backoff"
	"cmutils/pkg/circuitbreaker"
	"cmutils/pkg/cloudevent"
)

// Event types.
const (
	EventSubmitted = "topcons.job.submitted"
	EventPoll      = "topcons.job.poll"
	EventSucceeded = "topcons.job.succeeded"
	EventFailed    = "topcons.job.failed"
	EventWritten   = "topcons.job.written"
)

// Source identifies this tool in emitted events.
const Source = "topcons-job"

const defaultMaxRetries = 3

// Event is one lifecycle notification.
type Event struct {
	Type  string
	JobID string
	Data  map[string]any
}

// Notifier receives lifecycle events. Delivery is best effort: Notify never
// fails the pipeline.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}

// CallbackConfig configures HTTP callback delivery.
type CallbackConfig struct {
	URL     string
	Key     string                // HMAC signing key, optional
	Timeout time.Duration         // per request, default 10s
	Retry   *backoff.Config       // retry delays, defaults from backoff
	Breaker circuitbreaker.Config // stops delivery to an endpoint that keeps failing
	Metrics *observability.Metrics
}

// Callback posts events to a URL, retrying server errors with exponential
// backoff. Events are sent synchronously in the caller's goroutine.
type Callback struct {
	url     string
	key     string
	sender  *cloudevent.Sender
	retry   *backoff.Config
	breaker *circuitbreaker.Breaker
	metrics *observability.Metrics
	wait    func(ctx context.Context, d time.Duration) error
}

// NewCallback creates a callback notifier.
func NewCallback(cfg CallbackConfig) *Callback {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Callback{
		url:     cfg.URL,
		key:     cfg.Key,
		sender:  cloudevent.NewSender(timeout),
		retry:   cfg.Retry,
		breaker: circuitbreaker.New(cfg.Breaker),
		metrics: cfg.Metrics,
		wait:    waitContext,
	}
}

// Notify implements Notifier.
func (c *Callback) Notify(ctx context.Context, event Event) {
	logger := slog.With("jobId", event.JobID, "type", event.Type)

	if !c.breaker.Allow() {
		logger.Debug("Callback skipped, endpoint circuit open")
		return
	}

	ce := cloudevent.New(event.Type, Source, event.JobID, event.Data)
	start := time.Now()
	err := c.sendWithRetry(ctx, ce)
	c.breaker.Record(err)
	if err != nil {
		c.metrics.RecordCallbackFailed(ctx)
		logger.Warn("Callback delivery failed", "error", err, "circuit", c.breaker.State().String())
		return
	}
	c.metrics.RecordCallbackDelivered(ctx, time.Since(start))
	logger.Debug("Callback delivered", "id", ce.ID)
}

func (c *Callback) sendWithRetry(ctx context.Context, event *cloudevent.CloudEvent) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			if err := c.wait(ctx, c.retry.Delay(attempt)); err != nil {
				return err
			}
		}

		lastErr = c.sender.Send(ctx, c.url, event, c.key)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func waitContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*Callback)(nil)
)
