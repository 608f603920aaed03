// Package observability provides OpenTelemetry-based metrics for the
// sentinel service: crisis case counts, notification outcomes, degraded
// classifier assessments and protocol fallback activations.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the OpenTelemetry metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317" for gRPC
	ExportInterval time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "sentinel",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		ExportInterval: 15 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages the OpenTelemetry meter provider and the service's
// instruments. A nil *Provider (or one created with Enabled=false) is
// valid and records nothing, so callers never need nil checks.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger

	casesOpened         metric.Int64Counter
	escalations         metric.Int64Counter
	notificationsSent   metric.Int64Counter
	notificationsFailed metric.Int64Counter
	degradedAssessments metric.Int64Counter
	fallbacks           metric.Int64Counter
}

// New creates a new observability provider and registers it as the
// global meter provider.
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

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(config.ExportInterval),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	meter := otel.Meter("sentinel",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)
	if err := p.initInstruments(meter); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
	)
	return p, nil
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error

	p.casesOpened, err = meter.Int64Counter("sentinel.cases.opened",
		metric.WithDescription("Crisis cases opened"),
	)
	if err != nil {
		return err
	}

	p.escalations, err = meter.Int64Counter("sentinel.cases.escalated",
		metric.WithDescription("Automatic case escalations after acknowledgment timeout"),
	)
	if err != nil {
		return err
	}

	p.notificationsSent, err = meter.Int64Counter("sentinel.notifications.sent",
		metric.WithDescription("Notifications delivered to staff channels"),
	)
	if err != nil {
		return err
	}

	p.notificationsFailed, err = meter.Int64Counter("sentinel.notifications.failed",
		metric.WithDescription("Notification deliveries that failed after retry"),
	)
	if err != nil {
		return err
	}

	p.degradedAssessments, err = meter.Int64Counter("sentinel.assessments.degraded",
		metric.WithDescription("Risk assessments produced in degraded mode"),
	)
	if err != nil {
		return err
	}

	p.fallbacks, err = meter.Int64Counter("sentinel.protocol.fallbacks",
		metric.WithDescription("Emergency fallback responses served by the escalation engine"),
	)
	return err
}

// CaseOpened records a newly opened crisis case at the given alert level.
func (p *Provider) CaseOpened(ctx context.Context, level string) {
	if p == nil || p.casesOpened == nil {
		return
	}
	p.casesOpened.Add(ctx, 1, metric.WithAttributes(attribute.String("alert_level", level)))
}

// CaseEscalated records a timer-driven escalation to the given level.
func (p *Provider) CaseEscalated(ctx context.Context, level string) {
	if p == nil || p.escalations == nil {
		return
	}
	p.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("alert_level", level)))
}

// NotificationSent records a successful channel delivery.
func (p *Provider) NotificationSent(ctx context.Context, channel string) {
	if p == nil || p.notificationsSent == nil {
		return
	}
	p.notificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// NotificationFailed records a channel delivery that failed after retry.
func (p *Provider) NotificationFailed(ctx context.Context, channel string) {
	if p == nil || p.notificationsFailed == nil {
		return
	}
	p.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// DegradedAssessment records a classifier failure absorbed by the assessor.
func (p *Provider) DegradedAssessment(ctx context.Context) {
	if p == nil || p.degradedAssessments == nil {
		return
	}
	p.degradedAssessments.Add(ctx, 1)
}

// FallbackActivated records an emergency fallback response.
func (p *Provider) FallbackActivated(ctx context.Context) {
	if p == nil || p.fallbacks == nil {
		return
	}
	p.fallbacks.Add(ctx, 1)
}

// Shutdown flushes pending metrics and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
