// Package observe provides observability primitives for the AgriVoice core:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/skawahara/agrivoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// Fragments counts transcript fragments received. Use with attribute:
	//   attribute.String("kind", "interim"|"final")
	Fragments metric.Int64Counter

	// Utterances counts finalized utterances run through the pipeline.
	Utterances metric.Int64Counter

	// InferenceHits counts extraction passes that produced a value. Use with
	// attribute: attribute.String("category", "work"|"crop"|"field"|"quantity")
	InferenceHits metric.Int64Counter

	// Suggestions counts field-name suggestion requests. Use with attribute:
	//   attribute.String("outcome", "hit"|"miss"|"error")
	Suggestions metric.Int64Counter

	// RecognitionErrors counts recognition failures by code.
	RecognitionErrors metric.Int64Counter

	// PipelineDuration tracks transcript normalization + inference latency.
	PipelineDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live listening sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The
// pipeline is in-process and fast; buckets skew low.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Fragments, err = m.Int64Counter("agrivoice.fragments",
		metric.WithDescription("Transcript fragments received, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("agrivoice.utterances",
		metric.WithDescription("Finalized utterances processed by the inference pipeline."),
	); err != nil {
		return nil, err
	}
	if met.InferenceHits, err = m.Int64Counter("agrivoice.inference.hits",
		metric.WithDescription("Extraction passes that produced a value, by category."),
	); err != nil {
		return nil, err
	}
	if met.Suggestions, err = m.Int64Counter("agrivoice.suggestions",
		metric.WithDescription("Field-name suggestion requests, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("agrivoice.recognition.errors",
		metric.WithDescription("Recognition failures reported by the speech collaborator, by code."),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("agrivoice.pipeline.duration",
		metric.WithDescription("Normalization + inference latency per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("agrivoice.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
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

// RecordFragment records one received fragment.
func (m *Metrics) RecordFragment(ctx context.Context, final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	m.Fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordInferenceHit records one extraction pass that produced a value.
func (m *Metrics) RecordInferenceHit(ctx context.Context, category string) {
	m.InferenceHits.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordSuggestion records one suggestion request with its outcome.
func (m *Metrics) RecordSuggestion(ctx context.Context, outcome string) {
	m.Suggestions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognitionError records one recognition failure by code.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
