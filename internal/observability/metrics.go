package observability

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the pipeline's instruments:
// - Latency: stage and whole-run durations
// - Traffic: poll attempts by outcome, status server requests
// - Errors: failed runs by terminal state, failed callbacks
// - Saturation: runs in progress
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (status server)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics
	PollAttemptsTotal metric.Int64Counter
	StageDuration     metric.Float64Histogram
	JobDuration       metric.Float64Histogram
	JobsTotal         metric.Int64Counter
	JobErrorsTotal    metric.Int64Counter
	JobsActive        metric.Int64UpDownCounter

	// Callback metrics
	CallbackDuration  metric.Float64Histogram
	CallbackDelivered metric.Int64Counter
	CallbackFailed    metric.Int64Counter
}

// NewMetrics creates all instruments behind a Prometheus exporter with its
// own registry and returns the scrape handler for it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("topcons-job")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.PollAttemptsTotal, err = meter.Int64Counter(
		"poll_attempts_total",
		metric.WithDescription("Total number of poll attempts by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageDuration, err = meter.Float64Histogram(
		"stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Whole run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 60, 300, 600, 1800, 3600, 7200, 14400),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of submitted jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of runs ending in an error"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of runs in progress (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Callback metrics
	m.CallbackDuration, err = meter.Float64Histogram(
		"callback_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CallbackDelivered, err = meter.Int64Counter(
		"callback_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CallbackFailed, err = meter.Int64Counter(
		"callback_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobStarted records a run beginning.
func (m *Metrics) RecordJobStarted(ctx context.Context, runner string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(runnerAttr(runner))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobCompleted records a run ending in the given terminal state.
func (m *Metrics) RecordJobCompleted(ctx context.Context, runner, state string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(runnerAttr(runner), stateAttr(state), successAttr(success))
	m.JobDuration.Record(ctx, duration.Seconds(), attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(runnerAttr(runner)))

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordPollAttempt counts one poll attempt.
func (m *Metrics) RecordPollAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.PollAttemptsTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordStage records how long a pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(stageAttr(stage), successAttr(success)))
}

// RecordCallbackDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordCallbackDelivered(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallbackDelivered.Add(ctx, 1)
	m.CallbackDuration.Record(ctx, duration.Seconds())
}

// RecordCallbackFailed records an event that could not be delivered.
func (m *Metrics) RecordCallbackFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.CallbackFailed.Add(ctx, 1)
}
