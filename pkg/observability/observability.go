// Package observability exports run telemetry through OpenTelemetry.
//
// With no OTLP endpoint configured every instrument is a no-op, so runs
// pay nothing for telemetry they do not ship anywhere.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "aki.harness"

// EnvEndpoint names the OTLP gRPC endpoint, e.g. "localhost:4317".
const EnvEndpoint = "AKI_OTLP_ENDPOINT"

// Config configures the providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Insecure       bool
	SampleRate     float64
	MetricInterval time.Duration
}

// DefaultConfig exports nothing until an endpoint is set.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "aki",
		ServiceVersion: "dev",
		SampleRate:     1.0,
		MetricInterval: 15 * time.Second,
	}
}

// Provider owns the tracer and meter of a process.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger
}

// Option adjusts provider construction.
type Option func(*options)

type options struct {
	reader sdkmetric.Reader
}

// WithMetricReader records metrics into reader instead of exporting them.
// The global providers are left untouched.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.reader = r }
}

// New builds a Provider. An empty endpoint yields no-op instruments unless a
// metric reader is supplied.
func New(ctx context.Context, config *Config, opts ...Option) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if o.reader != nil {
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(o.reader))
		p.meter = p.meterProvider.Meter(instrumentationName)
		p.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
		return p, nil
	}
	if config.OTLPEndpoint == "" {
		p.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
		p.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
		p.logger.DebugContext(ctx, "telemetry export disabled")
		return p, nil
	}

	if err := p.startExport(ctx); err != nil {
		return nil, err
	}
	p.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))
	p.logger.InfoContext(ctx, "telemetry export enabled", "endpoint", config.OTLPEndpoint, "sample_rate", config.SampleRate)
	return p, nil
}

// startExport installs OTLP gRPC trace and metric pipelines as the global
// providers.
func (p *Provider) startExport(ctx context.Context) error {
	c := p.config
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.OTLPEndpoint)}
	if c.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("otlp trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return fmt.Errorf("otlp metric exporter: %w", err)
	}

	interval := c.MetricInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans),
		sdktrace.WithSampler(sampler(c.SampleRate)),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(interval))),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending telemetry and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter { return p.meter }

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}
