// Package telemetry sets up OpenTelemetry trace export over OTLP/gRPC for
// the cascade's per-pass spans.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig configures the OTLP gRPC exporter.
type OTLPConfig struct {
	// Endpoint is the collector address (e.g. "localhost:4317").
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Insecure dials without TLS.
	Insecure bool
	Headers  map[string]string

	BatchTimeout  time.Duration
	ExportTimeout time.Duration

	// SamplingRatio is the fraction of passes traced, in [0,1].
	SamplingRatio float64
}

// DefaultOTLPConfig returns local-collector defaults.
func DefaultOTLPConfig(serviceName string) OTLPConfig {
	return OTLPConfig{
		Endpoint:      "localhost:4317",
		ServiceName:   serviceName,
		Environment:   "development",
		Insecure:      true,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 30 * time.Second,
		SamplingRatio: 1.0,
	}
}

// Provider is an initialised tracer provider and its shutdown hook.
type Provider struct {
	*sdktrace.TracerProvider
}

// Shutdown flushes pending spans and closes the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.TracerProvider == nil {
		return nil
	}
	return p.TracerProvider.Shutdown(ctx)
}

// Init creates the exporter and tracer provider. When global is true the
// provider and W3C propagators are also installed process-wide. The
// exporter connects lazily, so an unreachable collector does not fail
// Init.
func Init(ctx context.Context, cfg OTLPConfig, global bool) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("otlp endpoint is empty")
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.ExportTimeout > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var bspOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		bspOpts = append(bspOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, bspOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SamplingRatio)),
	)

	if global {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}
	return &Provider{TracerProvider: tp}, nil
}

// Sampler maps a ratio to a parent-based sampler.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
