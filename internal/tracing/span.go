package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartOperationSpan starts a client span around one store operation.
func StartOperationSpan(ctx context.Context, tracer trace.Tracer, endpoint, kind string) (context.Context, trace.Span) {
	spanName := "kv " + kind
	if endpoint != "" {
		spanName = "kv " + endpoint
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("kvscope.op_kind", kind))
	if endpoint != "" {
		span.SetAttributes(attribute.String("kvscope.endpoint", endpoint))
	}
	return ctx, span
}

// EndOperationSpan records the store share of the operation and ends the span.
func EndOperationSpan(span trace.Span, store time.Duration, err error) {
	EndSpan(span, err, attribute.Int64("kvscope.store_us", store.Microseconds()))
}

// StartServerSpan starts a server span for an inbound HTTP request.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, method, route string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractHTTPHeaders returns ctx carrying the remote span context found in headers.
func ExtractHTTPHeaders(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
