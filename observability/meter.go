package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/capsule/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port.
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// MeterConfigFrom derives a meter configuration from the tracer settings.
func MeterConfigFrom(tc TracerConfig) MeterConfig {
	return MeterConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: tc.ServiceVersion,
		Environment:    tc.Environment,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs an OTLP HTTP meter provider as the global provider.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the job and workflow instruments recorded by the engine.
type Metrics struct {
	jobsTotal      metric.Int64Counter
	jobDuration    metric.Float64Histogram
	jobsActive     metric.Int64UpDownCounter
	errorTotal     metric.Int64Counter
	workflowsTotal metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	jobsTotal, err := meter.Int64Counter("capsule_jobs_total",
		metric.WithDescription("Jobs finished, by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capsule_jobs_total counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram("capsule_job_duration_seconds",
		metric.WithDescription("Job wall time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capsule_job_duration_seconds histogram: %w", err)
	}

	jobsActive, err := meter.Int64UpDownCounter("capsule_jobs_active",
		metric.WithDescription("Jobs currently ongoing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capsule_jobs_active gauge: %w", err)
	}

	errorTotal, err := meter.Int64Counter("capsule_job_errors_total",
		metric.WithDescription("Job errors by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capsule_job_errors_total counter: %w", err)
	}

	workflowsTotal, err := meter.Int64Counter("capsule_workflows_total",
		metric.WithDescription("Workflows reaching a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capsule_workflows_total counter: %w", err)
	}

	return &Metrics{
		jobsTotal:      jobsTotal,
		jobDuration:    jobDuration,
		jobsActive:     jobsActive,
		errorTotal:     errorTotal,
		workflowsTotal: workflowsTotal,
	}, nil
}

// RecordJobStart increments the active job count.
func (m *Metrics) RecordJobStart(ctx context.Context) {
	m.jobsActive.Add(ctx, 1)
}

// RecordJobEnd decrements active jobs and records the finished job.
func (m *Metrics) RecordJobEnd(ctx context.Context, kind, status string, duration time.Duration) {
	m.jobsActive.Add(ctx, -1)
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordError records a job error by code.
func (m *Metrics) RecordError(ctx context.Context, code string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordWorkflow records a workflow reaching status.
func (m *Metrics) RecordWorkflow(ctx context.Context, status string) {
	m.workflowsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
