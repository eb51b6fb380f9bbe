// Package observe provides application-wide observability primitives for
// CineScope: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CineScope metrics.
const meterName = "github.com/MrWong99/cinescope"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// ToolDuration tracks end-to-end tool call latency, including cache
	// lookups, retries and backoff sleeps.
	ToolDuration metric.Float64Histogram

	// ToolCalls counts dispatched tool calls. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("outcome", ...), attribute.Bool("cache_hit", ...)
	ToolCalls metric.Int64Counter

	// UpstreamAttempts counts retry controller transitions for upstream
	// TMDB calls. Use with attributes:
	//   attribute.String("state", ...), attribute.Int("attempt", ...)
	UpstreamAttempts metric.Int64Counter

	// HTTPRequestDuration tracks admin listener request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// tool calls that may span three upstream attempts plus backoff sleeps.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.ToolDuration, err = m.Float64Histogram("cinescope.tool.duration",
		metric.WithDescription("End-to-end latency of tool calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("cinescope.tool.calls",
		metric.WithDescription("Total tool calls by tool name, outcome, and cache hit."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamAttempts, err = m.Int64Counter("cinescope.upstream.attempts",
		metric.WithDescription("Retry controller state transitions for upstream TMDB calls."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cinescope.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterCacheGauge registers an observable gauge reporting the number of
// live entries in the tool response cache. size is polled at collection time.
func (m *Metrics) RegisterCacheGauge(size func() int64) error {
	_, err := m.meter.Int64ObservableGauge("cinescope.cache.entries",
		metric.WithDescription("Number of live entries in the tool response cache."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(size())
			return nil
		}),
	)
	return err
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall is a convenience method that records one dispatched tool
// call: a counter increment with the standard attribute set plus a latency
// sample.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, outcome string, cacheHit bool, seconds float64) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome),
			attribute.Bool("cache_hit", cacheHit),
		),
	)
	m.ToolDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordUpstreamAttempt is a convenience method that records a retry
// controller transition.
func (m *Metrics) RecordUpstreamAttempt(ctx context.Context, state string, attempt int) {
	m.UpstreamAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("state", state),
			attribute.Int("attempt", attempt),
		),
	)
}
