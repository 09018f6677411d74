// Package telemetry provides OpenTelemetry tracing and metrics, plus the
// Prometheus collectors exposed on /-/metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the OTLP collector and describes this service to it.
type Config struct {
	Enabled      bool
	Endpoint     string // host:port of the OTLP gRPC collector
	ServiceName  string
	Version      string
	Environment  string
	SamplingRate float64 // fraction of root spans kept, 0..1
}

// shutdownTimeout bounds the final flush of buffered spans and metrics.
const shutdownTimeout = 5 * time.Second

// Provider owns the OTLP exporters installed by New.
type Provider struct {
	// flushers run in reverse install order on Shutdown.
	flushers []namedFlusher
}

type namedFlusher struct {
	name     string
	shutdown func(context.Context) error
}

// New installs the W3C propagator and, when enabled, OTLP span and metric
// export over gRPC.
//
// The propagator is installed even when telemetry is disabled, so trace
// context received from callers still reaches logs, failure envelopes and
// outbound requests. Only export is switched off.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	installPropagator()

	p := &Provider{}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	tracerProvider, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}

	p.add("tracer provider", tracerProvider.Shutdown)

	meterProvider, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	p.add("meter provider", meterProvider.Shutdown)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return p, nil
}

func (p *Provider) add(name string, shutdown func(context.Context) error) {
	p.flushers = append(p.flushers, namedFlusher{name: name, shutdown: shutdown})
}

// Shutdown flushes and stops the exporters. It is a no-op when telemetry
// was disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if len(p.flushers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error

	for i := len(p.flushers) - 1; i >= 0; i-- {
		f := p.flushers[i]
		if err := f.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", f.name, err))
		}
	}

	p.flushers = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}

	return nil
}

func newResource(cfg *Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	return res, nil
}

// newTracerProvider honours the caller's sampling decision and samples
// root spans at cfg.SamplingRate.
func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRate))),
	), nil
}

func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	), nil
}

func installPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
