// Package tracing wires the otelfiber middleware to a real exporter.
// Tracing is opt-in: with no TINYMEM_OTLP_ENDPOINT set, otelfiber still
// runs but against the global no-op tracer, so turning tracing on never
// requires touching the HTTP route table.
package tracing

import (
	"context"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Init installs an OTLP/HTTP tracer provider when TINYMEM_OTLP_ENDPOINT
// is set, and otherwise leaves the global no-op tracer in place. The
// returned func flushes and shuts the provider down; callers defer it
// even when tracing is disabled, where it is a no-op.
func Init() func(context.Context) error {
	endpoint := os.Getenv("TINYMEM_OTLP_ENDPOINT")
	if endpoint == "" {
		log.Println("tinymem: tracing disabled (set TINYMEM_OTLP_ENDPOINT to enable)")
		return func(context.Context) error { return nil }
	}

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Printf("tinymem: failed to create OTLP exporter: %v (tracing disabled)", err)
		return func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("tinymem"),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Printf("tinymem: tracing initialized (endpoint: %s)", endpoint)
	return tp.Shutdown
}
