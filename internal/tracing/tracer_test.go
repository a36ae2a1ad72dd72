package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_StdoutExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{
		ServiceName: "test-service",
		Version:     "1.0.0",
		Exporter:    "stdout",
		SampleRate:  1.0,
	})
	if err != nil {
		t.Fatalf("Init with stdout exporter: %v", err)
	}
	defer shutdown(context.Background())

	if otel.GetTracerProvider() == nil {
		t.Fatal("expected non-nil TracerProvider")
	}
	if otel.GetTextMapPropagator() == nil {
		t.Fatal("expected non-nil TextMapPropagator")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Options{
		ServiceName: "test",
		Exporter:    "unknown",
		SampleRate:  1.0,
	})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestTracer_ReturnsNonNil(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("expected non-nil Tracer")
	}
}

func TestInit_Shutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{
		ServiceName: "test-service",
		Exporter:    "stdout",
		SampleRate:  0.5,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_WithRegion(t *testing.T) {
	// Out-of-range sample rates are clamped rather than rejected; a region
	// on the options is accepted and stamped onto the resource.
	shutdown, err := Init(context.Background(), Options{
		ServiceName: "test-service",
		Region:      "eastus2",
		Exporter:    "stdout",
		SampleRate:  2.5,
	})
	if err != nil {
		t.Fatalf("Init with region: %v", err)
	}
	defer shutdown(context.Background())
}

func TestInit_SetsW3CPropagator(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{
		ServiceName: "test",
		Exporter:    "stdout",
		SampleRate:  1.0,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	fields := otel.GetTextMapPropagator().Fields()
	foundTraceparent := false
	for _, f := range fields {
		if f == "traceparent" {
			foundTraceparent = true
		}
	}
	if !foundTraceparent {
		t.Errorf("expected 'traceparent' in propagator fields, got %v", fields)
	}
}

func TestNewExporter_OTLPGrpcInsecure(t *testing.T) {
	exp, err := newExporter(context.Background(), "otlp-grpc", "localhost:4317", true)
	if err != nil {
		t.Fatalf("newExporter otlp-grpc: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
}

func TestNewExporter_OTLPHttpInsecure(t *testing.T) {
	exp, err := newExporter(context.Background(), "otlp-http", "localhost:4318", true)
	if err != nil {
		t.Fatalf("newExporter otlp-http: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
}

// Ensure global state is clean for later tests by resetting to noop.
func TestInit_ResetGlobal(t *testing.T) {
	otel.SetTracerProvider(trace.NewNoopTracerProvider())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
}
