// Package tracing wraps OpenTelemetry span creation for the lifecycle of a
// single uTP connection: the handshake, the close handshake, and
// retransmission/FEC-recovery events worth correlating across a trace
// backend. It is a no-op when disabled so call sites never need their own
// enabled-check.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config configures the tracer.
type Config struct {
	Enable       bool    `yaml:"enable"`
	ServiceName  string  `yaml:"service_name"`
	Endpoint     string  `yaml:"endpoint"`
	Exporter     string  `yaml:"exporter"` // "jaeger" or "zipkin"
	SampleRate   float64 `yaml:"sample_rate"`
	Environment  string  `yaml:"environment"`
	BatchTimeout int     `yaml:"batch_timeout_seconds"`
	MaxQueueSize int     `yaml:"max_queue_size"`
}

// DefaultConfig returns a disabled tracer configuration.
func DefaultConfig() *Config {
	return &Config{
		Enable:       false,
		ServiceName:  "utpd",
		Endpoint:     "http://localhost:14268/api/traces",
		Exporter:     "jaeger",
		SampleRate:   1.0,
		Environment:  "development",
		BatchTimeout: 5,
		MaxQueueSize: 2048,
	}
}

// Tracer manages span creation for the connection lifecycle.
type Tracer struct {
	config   *Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a Tracer. A disabled config returns a Tracer whose methods are
// all no-ops, so callers never need to branch on IsEnabled themselves.
func New(cfg *Config, logger *zap.Logger) (*Tracer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enable {
		logger.Info("tracing disabled")
		return &Tracer{config: cfg, logger: logger}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("tracing: create jaeger exporter: %w", err)
		}
	case "zipkin":
		exporter, err = zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: create zipkin exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.Exporter)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	batcher := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(time.Duration(cfg.BatchTimeout)*time.Second),
		sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(batcher),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Tracer{
		config:   cfg,
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		logger:   logger,
	}, nil
}

// Shutdown flushes and stops the span exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// IsEnabled reports whether tracing is active.
func (t *Tracer) IsEnabled() bool { return t.config != nil && t.config.Enable }

// StartHandshake opens a span covering a SYN/STATE handshake.
func (t *Tracer) StartHandshake(ctx context.Context, connID string, role string) (context.Context, trace.Span) {
	return t.start(ctx, "utp.handshake", attribute.String("conn_id", connID), attribute.String("role", role))
}

// StartClose opens a span covering the FIN-based close handshake.
func (t *Tracer) StartClose(ctx context.Context, connID string) (context.Context, trace.Span) {
	return t.start(ctx, "utp.close", attribute.String("conn_id", connID))
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !t.IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddEvent records a timestamped event on the span in ctx, e.g. a
// retransmission or an FEC reconstruction.
func (t *Tracer) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !t.IsEnabled() {
		return
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes attaches attributes to the span in ctx.
func (t *Tracer) SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if !t.IsEnabled() {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError records err on the span in ctx.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	if !t.IsEnabled() || err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err)
}

// TraceID returns the current span's trace ID, or "" when tracing is
// disabled or ctx carries no valid span.
func (t *Tracer) TraceID(ctx context.Context) string {
	if !t.IsEnabled() {
		return ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
