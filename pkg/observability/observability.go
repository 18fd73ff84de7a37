// Package observability provides OpenTelemetry-based tracing and metrics for
// the appraisal pipeline.
//
// Every stage emits stage latency, attempt count and terminal status; the
// reasoning and pricing stages additionally emit token usage and fallback
// markers. request_id, owner_id and card_id ride on every span and log line.
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

	"github.com/cardworks/appraisal/pkg/contracts"
)

// TerminalStatus values for the per-stage status counter.
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusFailed   = "failed"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g., "localhost:4317" for gRPC
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "card-appraisal",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages the trace and metric providers plus the pipeline's stage
// instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	stageLatency    metric.Float64Histogram
	stageAttempts   metric.Int64Counter
	stageStatus     metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	fallbackUsed    metric.Int64Counter
}

// New creates a new observability provider.
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
		p.tracer = otel.Tracer("cardworks.appraisal")
		p.meter = otel.Meter("cardworks.appraisal")
		return p, p.initInstruments()
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

	p.tracer = otel.Tracer("cardworks.appraisal",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter("cardworks.appraisal",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
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
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
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

func (p *Provider) initInstruments() error {
	var err error

	p.stageLatency, err = p.meter.Float64Histogram("appraisal.stage.latency",
		metric.WithDescription("Per-stage latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000),
	)
	if err != nil {
		return err
	}

	p.stageAttempts, err = p.meter.Int64Counter("appraisal.stage.attempts",
		metric.WithDescription("Stage invocation attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	p.stageStatus, err = p.meter.Int64Counter("appraisal.stage.terminal",
		metric.WithDescription("Stage terminal status (ok|fallback|failed)"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return err
	}

	p.llmInputTokens, err = p.meter.Int64Counter("appraisal.llm.input_tokens",
		metric.WithDescription("LLM input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return err
	}

	p.llmOutputTokens, err = p.meter.Int64Counter("appraisal.llm.output_tokens",
		metric.WithDescription("LLM output tokens produced"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return err
	}

	p.fallbackUsed, err = p.meter.Int64Counter("appraisal.stage.fallback",
		metric.WithDescription("Stages that substituted a fallback value"),
		metric.WithUnit("{stage}"),
	)
	return err
}

// StartStage opens a span for a stage invocation. The returned end function
// records latency and terminal status.
func (p *Provider) StartStage(ctx context.Context, stage contracts.Stage, requestID, ownerID, cardID string) (context.Context, func(status string)) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", string(stage)),
		attribute.String("request_id", requestID),
		attribute.String("owner_id", ownerID),
		attribute.String("card_id", cardID),
	}
	ctx, span := p.tracer.Start(ctx, "stage."+string(stage), trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(status string) {
		elapsed := float64(time.Since(start).Milliseconds())
		set := metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("status", status),
		)
		p.stageLatency.Record(ctx, elapsed, set)
		p.stageStatus.Add(ctx, 1, set)
		if status == StatusFallback {
			p.fallbackUsed.Add(ctx, 1, set)
		}
		span.SetAttributes(attribute.String("terminal_status", status))
		span.End()
	}
}

// RecordAttempt counts one stage attempt.
func (p *Provider) RecordAttempt(ctx context.Context, stage contracts.Stage) {
	p.stageAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
}

// RecordTokens accounts LLM token usage for a stage.
func (p *Provider) RecordTokens(ctx context.Context, stage contracts.Stage, input, output int) {
	set := metric.WithAttributes(attribute.String("stage", string(stage)))
	p.llmInputTokens.Add(ctx, int64(input), set)
	p.llmOutputTokens.Add(ctx, int64(output), set)
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
