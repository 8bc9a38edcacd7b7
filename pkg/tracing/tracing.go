package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds OpenTelemetry tracing configuration. It is embedded in service
// configs and filled from OTEL_* environment variables.
type Config struct {
	ServiceName    string  `env:"OTEL_SERVICE_NAME"`
	ServiceVersion string  `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string  `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	Insecure       bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRate     float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	Enabled        bool    `env:"OTEL_ENABLED" envDefault:"false"`
}

// DefaultConfig returns development defaults with export switched off.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		Insecure:       true,
		SampleRate:     1.0,
		Enabled:        false,
	}
}

// InitTracer installs a global tracer provider exporting over OTLP/HTTP and
// the W3C trace-context and baggage propagators. When tracing is disabled it
// installs nothing and the returned shutdown is a no-op; otherwise shutdown
// flushes buffered spans.
func InitTracer(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exp, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Sampler samples root spans at rate and follows the remote parent's
// decision otherwise.
func Sampler(rate float64) sdktrace.Sampler {
	root := sdktrace.TraceIDRatioBased(rate)
	if rate >= 1 {
		root = sdktrace.AlwaysSample()
	} else if rate <= 0 {
		root = sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(root)
}

// Propagator is the composite propagator every service installs.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}
