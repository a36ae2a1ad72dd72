package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withSyncExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	})
	return exporter
}

func TestStartSelectionSpan(t *testing.T) {
	exporter := withSyncExporter(t)

	ctx, span := StartSelectionSpan(context.Background(), "gpt-4o")
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("expected valid span in context")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if spans[0].Name != "pool.select" {
		t.Errorf("expected span name 'pool.select', got %q", spans[0].Name)
	}
}

func TestStartUpstreamSpan(t *testing.T) {
	exporter := withSyncExporter(t)

	_, span := StartUpstreamSpan(context.Background(), "https://grounding.example.com", "gpt4o-a")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if spans[0].Name != "upstream.ground" {
		t.Errorf("expected span name 'upstream.ground', got %q", spans[0].Name)
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("expected SpanKindClient, got %v", spans[0].SpanKind)
	}
}

func TestInjectHeaders(t *testing.T) {
	setupTestTracer(t)

	ctx, span := Tracer().Start(context.Background(), "parent")
	defer span.End()

	req, _ := http.NewRequest("POST", "https://grounding.example.com/run", nil)
	InjectHeaders(ctx, req)

	traceparent := req.Header.Get("traceparent")
	if traceparent == "" {
		t.Fatal("expected traceparent header to be injected")
	}

	parentTraceID := span.SpanContext().TraceID().String()
	if len(traceparent) < 55 {
		t.Fatalf("traceparent too short: %s", traceparent)
	}
	if traceparent[3:35] != parentTraceID {
		t.Errorf("expected trace ID %s in traceparent, got %s", parentTraceID, traceparent[3:35])
	}
}

func TestSetRequestAttributes(t *testing.T) {
	exporter := withSyncExporter(t)

	ctx, span := Tracer().Start(context.Background(), "test")
	SetRequestAttributes(ctx, "req-123", "gpt-4o", 42)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	attrs := map[string]interface{}{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	if attrs["request.id"] != "req-123" {
		t.Errorf("expected request.id 'req-123', got %v", attrs["request.id"])
	}
	if attrs["request.model"] != "gpt-4o" {
		t.Errorf("expected request.model 'gpt-4o', got %v", attrs["request.model"])
	}
}

func TestSetDispatchAttributes(t *testing.T) {
	exporter := withSyncExporter(t)

	ctx, span := Tracer().Start(context.Background(), "test")
	SetDispatchAttributes(ctx, 200, 340, false, "gpt4o-a")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	attrs := map[string]interface{}{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	if attrs["dispatch.status_code"] != int64(200) {
		t.Errorf("expected dispatch.status_code 200, got %v", attrs["dispatch.status_code"])
	}
	if attrs["dispatch.agent"] != "gpt4o-a" {
		t.Errorf("expected dispatch.agent 'gpt4o-a', got %v", attrs["dispatch.agent"])
	}
}

func TestRecordError_NilDoesNotPanic(t *testing.T) {
	RecordError(context.Background(), nil)
}

func TestRecordError_RecordsOnSpan(t *testing.T) {
	exporter := withSyncExporter(t)

	ctx, span := Tracer().Start(context.Background(), "test")
	RecordError(ctx, errors.New("test error"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}
