// Package observability provides OpenTelemetry tracing and metrics for
// the settlement pipeline: OTLP gRPC export, spans around gated
// operations, and counters for each pipeline stage plus fee volume.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // e.g. "localhost:4317"
	SampleRate     float64 // 0.0 to 1.0
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "vitaclaim",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages OpenTelemetry trace and metric providers together
// with the pipeline's stage counters.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	verifications metric.Int64Counter
	proofs        metric.Int64Counter
	claims        metric.Int64Counter
	errors        metric.Int64Counter
	feeVolume     metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// New creates a new observability provider. With Enabled false the
// provider is inert and every recording method is a no-op.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("vitaclaim",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter("vitaclaim",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initPipelineMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init pipeline metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
	)

	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initPipelineMetrics() error {
	var err error

	p.verifications, err = p.meter.Int64Counter("vitaclaim.verifications.total",
		metric.WithDescription("Verified compliance periods"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return err
	}

	p.proofs, err = p.meter.Int64Counter("vitaclaim.proofs.total",
		metric.WithDescription("Minted adherence proofs"),
		metric.WithUnit("{proof}"),
	)
	if err != nil {
		return err
	}

	p.claims, err = p.meter.Int64Counter("vitaclaim.claims.total",
		metric.WithDescription("Submitted discount claims"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return err
	}

	p.errors, err = p.meter.Int64Counter("vitaclaim.errors.total",
		metric.WithDescription("Rejected pipeline operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	p.feeVolume, err = p.meter.Int64Counter("vitaclaim.fees.volume",
		metric.WithDescription("Total fee value transferred"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return err
	}

	p.durationHist, err = p.meter.Float64Histogram("vitaclaim.operation.duration",
		metric.WithDescription("Gated operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	return err
}

// Shutdown gracefully shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("vitaclaim")
	}
	return p.tracer
}

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordVerification counts a recorded verification and its fee.
func (p *Provider) RecordVerification(ctx context.Context, fee uint64, attrs ...attribute.KeyValue) {
	if p.verifications != nil {
		p.verifications.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	p.recordFee(ctx, fee, attrs...)
}

// RecordProof counts a minted proof and its fee.
func (p *Provider) RecordProof(ctx context.Context, fee uint64, attrs ...attribute.KeyValue) {
	if p.proofs != nil {
		p.proofs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	p.recordFee(ctx, fee, attrs...)
}

// RecordClaim counts a submitted claim and its fee.
func (p *Provider) RecordClaim(ctx context.Context, fee uint64, attrs ...attribute.KeyValue) {
	if p.claims != nil {
		p.claims.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	p.recordFee(ctx, fee, attrs...)
}

// RecordError counts a rejected operation.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.errors != nil {
		allAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
		p.errors.Add(ctx, 1, metric.WithAttributes(allAttrs...))
	}
}

func (p *Provider) recordFee(ctx context.Context, fee uint64, attrs ...attribute.KeyValue) {
	if p.feeVolume != nil && fee > 0 {
		p.feeVolume.Add(ctx, int64(fee), metric.WithAttributes(attrs...))
	}
}

// TrackOperation opens a span around a gated operation and returns the
// completion callback. The callback records duration and any error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			p.RecordError(ctx, err, attrs...)
		}
		span.End()
	}
}
