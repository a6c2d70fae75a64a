// Package observe provides application-wide observability primitives for
// earshot: OpenTelemetry metrics, tracing helpers, and structured logging.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks the wall-clock length of command captures.
	CaptureDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// ResolveDuration tracks end-to-end tool resolution latency, including
	// retries.
	ResolveDuration metric.Float64Histogram

	// SpeakDuration tracks text-to-speech synthesis and playback latency.
	SpeakDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-word triggers.
	WakeDetections metric.Int64Counter

	// CaptureOutcomes counts finished captures. Use with attribute:
	//   attribute.String("outcome", ...)  // "clip", "no_speech", "error"
	CaptureOutcomes metric.Int64Counter

	// ResolveAttempts counts individual LLM resolution calls. Use with
	// attribute: attribute.String("status", ...)
	ResolveAttempts metric.Int64Counter

	// ResolverFallbacks counts canned busy-responses emitted when the LLM
	// backend is rate limited.
	ResolverFallbacks metric.Int64Counter

	// ToolDispatches counts tool executions. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolDispatches metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("earshot.capture.duration",
		metric.WithDescription("Wall-clock length of command captures."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("earshot.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolveDuration, err = m.Float64Histogram("earshot.resolve.duration",
		metric.WithDescription("Latency of LLM tool resolution including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("earshot.speak.duration",
		metric.WithDescription("Latency of text-to-speech synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("earshot.wake.detections",
		metric.WithDescription("Total wake-word triggers."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOutcomes, err = m.Int64Counter("earshot.capture.outcomes",
		metric.WithDescription("Total finished captures by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ResolveAttempts, err = m.Int64Counter("earshot.resolve.attempts",
		metric.WithDescription("Total LLM resolution calls by status."),
	); err != nil {
		return nil, err
	}
	if met.ResolverFallbacks, err = m.Int64Counter("earshot.resolve.fallbacks",
		metric.WithDescription("Total canned busy-responses from rate-limit fallback."),
	); err != nil {
		return nil, err
	}
	if met.ToolDispatches, err = m.Int64Counter("earshot.tool.dispatches",
		metric.WithDescription("Total tool executions by tool name and status."),
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

// RecordCaptureOutcome records a finished capture with its outcome label.
func (m *Metrics) RecordCaptureOutcome(ctx context.Context, outcome string) {
	m.CaptureOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordResolveAttempt records a single LLM resolution call with its status.
func (m *Metrics) RecordResolveAttempt(ctx context.Context, status string) {
	m.ResolveAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordToolDispatch records a tool execution with the standard attribute set.
func (m *Metrics) RecordToolDispatch(ctx context.Context, tool, status string) {
	m.ToolDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
