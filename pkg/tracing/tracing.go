// Package tracing wires OpenTelemetry spans for tool calls, HTTP requests,
// and outbound geocoding and routing lookups.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ServiceName = "co2mcp"
	TracerName  = "github.com/NERVsystems/co2mcp"

	shutdownTimeout = 5 * time.Second
)

// Tracer is the tracer every package starts spans from. It is a no-op until
// InitTracing or SetTracerProvider installs a real provider.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// Config is the exporter setup, normally read from the environment
type Config struct {
	Endpoint    string  // OTLP_ENDPOINT; empty disables export
	Insecure    bool    // OTLP_INSECURE, default true
	Environment string  // ENVIRONMENT, default "development"
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG; outside [0,1] samples everything
}

// ConfigFromEnv reads Config from the process environment
func ConfigFromEnv() Config {
	cfg := Config{
		Endpoint:    os.Getenv("OTLP_ENDPOINT"),
		Insecure:    true,
		Environment: "development",
		SampleRatio: 1,
	}
	if v, err := strconv.ParseBool(os.Getenv("OTLP_INSECURE")); err == nil {
		cfg.Insecure = v
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	if arg := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); arg != "" {
		if ratio, err := strconv.ParseFloat(arg, 64); err == nil {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

func (c Config) sampler() sdktrace.Sampler {
	if c.SampleRatio < 0 || c.SampleRatio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// InitTracing configures tracing from the environment. Without an
// OTLP_ENDPOINT spans are discarded and the returned shutdown is a no-op.
func InitTracing(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	return Init(ctx, version, ConfigFromEnv())
}

// Init exports spans over OTLP/gRPC as described by cfg.
func Init(ctx context.Context, version string, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Endpoint == "" {
		Tracer = noop.NewTracerProvider().Tracer(TracerName)
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// SetTracerProvider installs tp globally and for this package's Tracer
func SetTracerProvider(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	Tracer = tp.Tracer(TracerName)
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// recording returns the span in ctx when it is recording
func recording(ctx context.Context) (trace.Span, bool) {
	span := trace.SpanFromContext(ctx)
	return span, span.IsRecording()
}

// RecordError records err on the span in ctx and marks it failed
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if span, ok := recording(ctx); ok && err != nil {
		span.RecordError(err, opts...)
		span.SetStatus(codes.Error, err.Error())
	}
}

func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	if span, ok := recording(ctx); ok {
		span.AddEvent(name, opts...)
	}
}

func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span, ok := recording(ctx); ok {
		span.SetAttributes(attrs...)
	}
}
