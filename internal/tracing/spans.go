package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartSelectionSpan creates a child span covering the weighted agent
// selection for a model.
func StartSelectionSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pool.select",
		trace.WithAttributes(attribute.String("pool.model", model)),
	)
}

// StartUpstreamSpan creates a child span for the upstream grounding call.
func StartUpstreamSpan(ctx context.Context, endpoint, agent string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upstream.ground",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.endpoint", endpoint),
			attribute.String("upstream.agent", agent),
		),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the given HTTP request headers so the upstream service can continue
// the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetRequestAttributes adds request-level attributes to the current span.
func SetRequestAttributes(ctx context.Context, requestID, model string, queryLen int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.model", model),
		attribute.Int("request.query_length", queryLen),
	)
}

// SetDispatchAttributes adds dispatch-outcome attributes to the current span.
func SetDispatchAttributes(ctx context.Context, statusCode, tokens int, cacheHit bool, agent string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("dispatch.status_code", statusCode),
		attribute.Int("dispatch.tokens", tokens),
		attribute.Bool("dispatch.cache_hit", cacheHit),
		attribute.String("dispatch.agent", agent),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
