package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records per-job OpenTelemetry instruments, exported through
// the default Prometheus registry alongside the promauto collectors.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	itemCounter   otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
}

// New installs a Prometheus-backed meter provider. On exporter failure it
// falls back to a no-op meter so callers never need a nil check.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return newWithMeter(noop.NewMeterProvider().Meter(serviceName), nil), err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newWithMeter(provider.Meter(serviceName), provider), nil
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return newWithMeter(noop.NewMeterProvider().Meter("noop"), nil)
}

func newWithMeter(meter otelmetric.Meter, provider *metric.MeterProvider) *Observability {
	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of job runs"),
	)
	itemCounter, _ := meter.Int64Counter(
		"jobs.items",
		otelmetric.WithDescription("Records handled by job runs"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job run duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		jobCounter:    jobCounter,
		itemCounter:   itemCounter,
		jobDuration:   jobDuration,
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, job, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordItems(ctx context.Context, job string, n int) {
	if o == nil || o.itemCounter == nil || n <= 0 {
		return
	}
	o.itemCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("job", job)))
}

func (o *Observability) RecordJobDuration(ctx context.Context, job string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
