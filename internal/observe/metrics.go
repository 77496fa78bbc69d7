// Package observe provides application-wide observability primitives for
// lingotutor: OpenTelemetry metrics, tracing, structured logging helpers and
// the HTTP handler that exposes metrics to Prometheus.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served by
// [MetricsHandler]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lingotutor metrics.
const meterName = "github.com/MrWong99/lingotutor"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Reading practice ---

	// ReadingSessions counts finished listening sessions. Use with attributes:
	//   attribute.String("strategy", ...), attribute.Bool("scored", ...)
	ReadingSessions metric.Int64Counter

	// ReadingScore records final reading scores (0-100).
	ReadingScore metric.Int64Histogram

	// RecognitionErrors counts recognizer errors by kind.
	RecognitionErrors metric.Int64Counter

	// Utterances counts synthesized utterances by outcome ("end", "error").
	Utterances metric.Int64Counter

	// ActiveReaders tracks the number of open reading screens.
	ActiveReaders metric.Int64UpDownCounter

	// --- Providers ---

	// LLMDuration tracks LLM request latency. Use with attribute:
	//   attribute.String("operation", ...)
	LLMDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP ---

	// HTTPRequestDuration tracks metrics endpoint latency.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for LLM
// round trips, which range from sub-second to tens of seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// scoreBuckets groups scores by the speaking level thresholds.
var scoreBuckets = []float64{0, 20, 40, 60, 75, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ReadingSessions, err = m.Int64Counter("lingotutor.reading.sessions",
		metric.WithDescription("Finished listening sessions by scoring strategy and whether a score was produced."),
	); err != nil {
		return nil, err
	}
	if met.ReadingScore, err = m.Int64Histogram("lingotutor.reading.score",
		metric.WithDescription("Final reading scores."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("lingotutor.recognition.errors",
		metric.WithDescription("Speech recognition errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("lingotutor.synthesis.utterances",
		metric.WithDescription("Synthesized utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveReaders, err = m.Int64UpDownCounter("lingotutor.active_readers",
		metric.WithDescription("Number of open reading screens."),
	); err != nil {
		return nil, err
	}

	if met.LLMDuration, err = m.Float64Histogram("lingotutor.llm.duration",
		metric.WithDescription("Latency of LLM requests by tutor operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("lingotutor.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("lingotutor.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lingotutor.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordReadingSession records a finished listening session. score is only
// recorded when scored is true.
func (m *Metrics) RecordReadingSession(ctx context.Context, strategy string, scored bool, score int) {
	m.ReadingSessions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.Bool("scored", scored),
		),
	)
	if scored {
		m.ReadingScore.Record(ctx, int64(score),
			metric.WithAttributes(attribute.String("strategy", strategy)),
		)
	}
}

// RecordRecognitionError records a recognizer error of the given kind.
func (m *Metrics) RecordRecognitionError(ctx context.Context, kind string) {
	m.RecognitionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordUtterance records a finished utterance with outcome "end" or "error".
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
