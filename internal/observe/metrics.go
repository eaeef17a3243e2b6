// Package observe provides application-wide observability primitives for
// speakeasy: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speakeasy metrics.
const meterName = "github.com/MrWong99/speakeasy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// FeedbackDuration tracks how long transcript analysis takes. Use with
	// attribute.String("outcome", "ok"|"fallback").
	FeedbackDuration metric.Float64Histogram

	// TTSDuration tracks vocabulary word synthesis latency.
	TTSDuration metric.Float64Histogram

	// SessionSetupDuration tracks time from Start until the microphone is live.
	SessionSetupDuration metric.Float64Histogram

	// --- Counters ---

	// AudioChunks counts audio frames. Use with attribute.String("direction", "in"|"out").
	AudioChunks metric.Int64Counter

	// AudioDecodeErrors counts inbound audio chunks dropped because they could
	// not be decoded.
	AudioDecodeErrors metric.Int64Counter

	// GoalsCompleted counts scenario goals reported by the tutor.
	GoalsCompleted metric.Int64Counter

	// VocabularyReviews counts review outcomes. Use with
	// attribute.String("outcome", "knew"|"missed").
	VocabularyReviews metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutor sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Feedback
// analysis with a large model routinely takes tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FeedbackDuration, err = m.Float64Histogram("speakeasy.feedback.duration",
		metric.WithDescription("Latency of transcript feedback analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("speakeasy.tts.duration",
		metric.WithDescription("Latency of vocabulary speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionSetupDuration, err = m.Float64Histogram("speakeasy.session.setup.duration",
		metric.WithDescription("Time from session start until capture is live."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioChunks, err = m.Int64Counter("speakeasy.audio.chunks",
		metric.WithDescription("Audio frames sent to and received from the live model."),
	); err != nil {
		return nil, err
	}
	if met.AudioDecodeErrors, err = m.Int64Counter("speakeasy.audio.decode_errors",
		metric.WithDescription("Inbound audio chunks dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.GoalsCompleted, err = m.Int64Counter("speakeasy.goals.completed",
		metric.WithDescription("Scenario goals completed."),
	); err != nil {
		return nil, err
	}
	if met.VocabularyReviews, err = m.Int64Counter("speakeasy.vocabulary.reviews",
		metric.WithDescription("Vocabulary review outcomes."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("speakeasy.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("speakeasy.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("speakeasy.sessions.active",
		metric.WithDescription("Number of live tutor sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakeasy.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordAudioChunk counts one audio frame in the given direction ("in" or "out").
func (m *Metrics) RecordAudioChunk(ctx context.Context, direction string) {
	m.AudioChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordDecodeError counts one dropped inbound audio chunk.
func (m *Metrics) RecordDecodeError(ctx context.Context) {
	m.AudioDecodeErrors.Add(ctx, 1)
}

// RecordGoal counts one completed scenario goal.
func (m *Metrics) RecordGoal(ctx context.Context) {
	m.GoalsCompleted.Add(ctx, 1)
}

// RecordReview counts one vocabulary review outcome.
func (m *Metrics) RecordReview(ctx context.Context, knewIt bool) {
	outcome := "missed"
	if knewIt {
		outcome = "knew"
	}
	m.VocabularyReviews.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFeedback records the duration of one analysis and whether it fell
// back to the fixed report.
func (m *Metrics) RecordFeedback(ctx context.Context, d time.Duration, fallback bool) {
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.FeedbackDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}
