// Package observability wires the mediator's per-call spans
// (pkg/mediator's otel.Tracer calls) to a concrete TracerProvider. Without
// this, every span the mediator starts is a no-op; with it, spans land in
// an append-only stdout stream an operator can redirect to a file for
// offline inspection, the same development-mode posture the teacher uses
// for its own agent-to-agent protocol tracing.
package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerProvider owns the process-wide SDK tracer provider installed by
// InstallTracing. Shutdown flushes any buffered spans and must be called
// before process exit.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InstallTracing creates a batching TracerProvider that writes spans as
// pretty-printed JSON to w, and registers it as the global provider, so
// every otel.Tracer("...") call made anywhere in the binary (pkg/mediator's
// per-call spans in particular) starts producing real spans instead of the
// otel no-op default. w must never be the mediator's stdout: that file
// descriptor is the MCP stdio transport, and interleaving trace JSON with
// JSON-RPC framing on it would corrupt the protocol.
func InstallTracing(w io.Writer, serviceName, serviceVersion string) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes buffered spans and releases the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}
