// Package telemetry wraps the otel tracing/metrics API surfaces the
// orchestrator and guardrail use. No SDK or exporter wiring lives here by
// design (§4.9): callers configure the global TracerProvider/MeterProvider
// at process start; this package only obtains instruments from whatever
// provider is registered, so the core stays agnostic to where traces/
// metrics end up.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/orneryd/retrievalcore"

var tracer = otel.Tracer(instrumentationName)
var meter = otel.Meter(instrumentationName)

// StartSpan begins a span named after the suspension point, per §5's list
// of instrumented boundaries (vector search, lexical search, reranker
// call, section fetch, embedder call).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Instruments bundles the counters/histograms the orchestrator records.
type Instruments struct {
	StageLatency    metric.Float64Histogram
	StageTimeouts   metric.Int64Counter
	StageFallbacks  metric.Int64Counter
	GuardrailDenies metric.Int64Counter
}

// NewInstruments creates the metric instruments against the globally
// registered MeterProvider.
func NewInstruments() (Instruments, error) {
	latency, err := meter.Float64Histogram("retrieval.stage.latency",
		metric.WithDescription("per-stage latency in seconds"), metric.WithUnit("s"))
	if err != nil {
		return Instruments{}, err
	}
	timeouts, err := meter.Int64Counter("retrieval.stage.timeouts",
		metric.WithDescription("count of per-stage timeouts"))
	if err != nil {
		return Instruments{}, err
	}
	fallbacks, err := meter.Int64Counter("retrieval.stage.fallbacks",
		metric.WithDescription("count of per-stage fallbacks to a degraded path"))
	if err != nil {
		return Instruments{}, err
	}
	denies, err := meter.Int64Counter("retrieval.guardrail.denies",
		metric.WithDescription("count of guardrail IDK responses"))
	if err != nil {
		return Instruments{}, err
	}
	return Instruments{
		StageLatency:    latency,
		StageTimeouts:   timeouts,
		StageFallbacks:  fallbacks,
		GuardrailDenies: denies,
	}, nil
}

// RecordStage records one stage's latency and outcome.
func (in Instruments) RecordStage(ctx context.Context, stage string, seconds float64, timedOut, fellBack bool) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	in.StageLatency.Record(ctx, seconds, attrs)
	if timedOut {
		in.StageTimeouts.Add(ctx, 1, attrs)
	}
	if fellBack {
		in.StageFallbacks.Add(ctx, 1, attrs)
	}
}
