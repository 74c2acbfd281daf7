package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tenantflow.postgres"

// poolMetrics reports pool statistics through async gauges.
type poolMetrics struct {
	registration metric.Registration
}

func registerPoolMetrics(pool *pgxpool.Pool) (*poolMetrics, error) {
	meter := otel.GetMeterProvider().Meter(meterName)
	total, err := meter.Int64ObservableGauge(
		"tenantflow_db_connections_open",
		metric.WithDescription("Open connections in the task store pool"),
	)
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge(
		"tenantflow_db_connections_in_use",
		metric.WithDescription("Connections currently acquired from the pool"),
	)
	if err != nil {
		return nil, err
	}
	maxConns, err := meter.Int64ObservableGauge(
		"tenantflow_db_connections_max",
		metric.WithDescription("Configured pool size"),
	)
	if err != nil {
		return nil, err
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(total, int64(stat.TotalConns()))
		o.ObserveInt64(inUse, int64(stat.AcquiredConns()))
		o.ObserveInt64(maxConns, int64(stat.MaxConns()))
		return nil
	}, total, inUse, maxConns)
	if err != nil {
		return nil, err
	}
	return &poolMetrics{registration: reg}, nil
}

func (m *poolMetrics) unregister() {
	if m == nil || m.registration == nil {
		return
	}
	_ = m.registration.Unregister()
}
