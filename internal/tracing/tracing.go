// Package tracing installs the process-wide OpenTelemetry TracerProvider.
// Spans are emitted by internal/pipeline around each submit attempt
// (rate-limit wait -> send -> commit); this package only
// owns provider setup/teardown, mirroring how internal/logging owns slog
// setup for the process.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup installs a TracerProvider that writes spans as JSON to w. Passing
// io.Discard disables the exporter's output while still exercising the
// sampling/batching pipeline; passing nil disables tracing entirely and
// leaves the process on otel's no-op global tracer.
func Setup(ctx context.Context, serviceName string, w io.Writer) (shutdown func(context.Context) error, err error) {
	if w == nil {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
