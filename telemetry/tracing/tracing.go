// Package tracing wraps OpenTelemetry so the engine's hot paths — load_heavy
// invocations and reschedule steps — emit real spans instead of a bespoke
// span format nobody downstream can consume.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts spans around engine operations. A nil *Tracer is valid and
// behaves as a no-op, so callers that did not configure tracing never need a
// nil check before using one.
type Tracer struct {
	tracer oteltrace.Tracer
}

type tracerKey struct{}

// ContextWithTracer attaches tr to ctx, the way heavy.RandFromContext and
// fine.CheckpointPublisher thread other per-invocation concerns through the
// sampler's context rather than through extra function parameters.
func ContextWithTracer(ctx context.Context, tr *Tracer) context.Context {
	if tr == nil {
		return ctx
	}
	return context.WithValue(ctx, tracerKey{}, tr)
}

// FromContext returns the Tracer attached by ContextWithTracer, or a nil
// (no-op) Tracer if none was attached.
func FromContext(ctx context.Context) *Tracer {
	if tr, ok := ctx.Value(tracerKey{}).(*Tracer); ok {
		return tr
	}
	return nil
}

// New builds a Tracer backed by a process-local TracerProvider registered as
// the OpenTelemetry global for serviceName. It does not configure an
// exporter: spans are created and recorded in-process, ready for whatever
// SpanProcessor a caller later attaches via otel.SetTracerProvider.
func New(serviceName string) *Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// StartLoadHeavy opens a span around one load_heavy invocation for artifact
// artifactID.
func (t *Tracer) StartLoadHeavy(ctx context.Context, artifactID int64) (context.Context, oteltrace.Span) {
	return t.start(ctx, "load_heavy", attribute.Int64("artifact_id", artifactID))
}

// StartReschedule opens a span around one reschedule-loop tick.
func (t *Tracer) StartReschedule(ctx context.Context) (context.Context, oteltrace.Span) {
	return t.start(ctx, "reschedule_tick")
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// EndLoadHeavy records the load_heavy outcome on span and closes it.
func EndLoadHeavy(span oteltrace.Span, loadLatency time.Duration, err error) {
	if !span.IsRecording() {
		span.End()
		return
	}
	span.SetAttributes(attribute.Int64("load_latency_us", loadLatency.Microseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "loaded")
	}
	span.End()
}

// EndReschedule records the reschedule decision on span and closes it.
func EndReschedule(span oteltrace.Span, evictID, admitID int64, halted bool) {
	if !span.IsRecording() {
		span.End()
		return
	}
	span.SetAttributes(
		attribute.Int64("evict_id", evictID),
		attribute.Int64("admit_id", admitID),
		attribute.Bool("halted", halted),
	)
	span.SetStatus(codes.Ok, fmt.Sprintf("evict=%d admit=%d", evictID, admitID))
	span.End()
}
