package tracer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/yndnr/converge/internal/telemetry/tracer"

var (
	providerMu sync.RWMutex
	// Actions need real trace and span IDs even when no Provider has
	// been installed, so the default is an SDK provider without
	// exporters rather than the otel no-op.
	provider trace.TracerProvider = sdktrace.NewTracerProvider()
)

func tracer() trace.Tracer {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.Tracer(instrumentationName)
}

// Provider manages the OpenTelemetry tracer provider of one process.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New creates a tracer provider for serviceName and installs it both for
// actions and as the otel global, together with the W3C Trace Context
// propagator. opts can add span processors, exporters or a sampler.
func New(serviceName string, opts ...sdktrace.TracerProviderOption) *Provider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts = append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)

	providerMu.Lock()
	provider = tp
	providerMu.Unlock()

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &Provider{tp: tp}
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
