// Package otelx wraps poll-cycle tracing behind OTEL_TRACING, per
// spec.md §4.10.5: additive observability, never required for
// correctness, skipped entirely when the flag is off.
//
// Grounded on steveyegge-beads/internal/storage/dolt/store.go's
// package-level otel.Tracer + Start/endSpan idiom (one tracer per
// instrumented package, a shared attribute helper, a span-ending
// helper that records the error and sets the span status), adapted
// here from SQL spans to poll-cycle/sub-poll spans. The
// TracerProvider/exporter setup in Setup is grounded in the
// sdktrace.NewTracerProvider(WithBatcher/WithResource) shape used
// across the pack's OpenTelemetry references, swapping the batched
// network exporter for the stdout exporter named in spec.md §4.10.5.
package otelx

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gastown-ops/rigwatch/internal/otelx"

var tracer = otel.Tracer(tracerName)

// Enabled reports whether OTEL_TRACING is on (default true; set to "0"
// to disable, per spec.md §4.10.5).
func Enabled() bool {
	return os.Getenv("OTEL_TRACING") != "0"
}

// noopShutdown is returned by Setup when tracing is disabled, so
// callers can always `defer shutdown(ctx)` unconditionally.
func noopShutdown(context.Context) error { return nil }

// Setup installs a stdout-exporting TracerProvider as the global
// provider and returns a shutdown func to flush and release it. When
// tracing is disabled it installs nothing and returns a no-op
// shutdown.
func Setup(ctx context.Context, out *os.File) (shutdown func(context.Context) error, err error) {
	if !Enabled() {
		return noopShutdown, nil
	}
	if out == nil {
		out = os.Stdout
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("building stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// pollAttrs returns the fixed attributes shared by poll-cycle spans.
func pollAttrs(rig string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("rigwatch.rig", rig)}
}

// StartPollCycle starts a span covering one full Poller iteration
// across every rig.
func StartPollCycle(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rigwatch.poll_cycle", trace.WithSpanKind(trace.SpanKindInternal))
}

// StartSubPoll starts a span covering a single rig's sub-poll
// (one gt/bd CLI invocation chain).
func StartSubPoll(ctx context.Context, rig, kind string) (context.Context, trace.Span) {
	attrs := append(pollAttrs(rig), attribute.String("rigwatch.subpoll.kind", kind))
	return tracer.Start(ctx, "rigwatch.sub_poll", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it, mirroring the
// teacher's endSpan helper shape.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
