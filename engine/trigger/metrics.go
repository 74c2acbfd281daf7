package trigger

import (
	"context"
	"time"

	monitoringmetrics "github.com/compozy/tenantflow/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(monitoringmetrics.Prefix)
	}
	m := &metrics{}
	m.outcomes, _ = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("trigger", "outcomes_total"),
		metric.WithDescription("Trigger attempts by tenant and outcome"),
	)
	m.duration, _ = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("trigger", "duration_seconds"),
		metric.WithDescription("Time spent triggering one tenant"),
		metric.WithUnit("s"),
	)
	return m
}

func (m *metrics) record(ctx context.Context, res Result, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tenant", res.Tenant),
		attribute.String("outcome", string(res.Outcome)),
	)
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
