package catalog

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "catalog"

// Telemetry instruments the write path with spans and counters.
type Telemetry struct {
	tracer  trace.Tracer
	writes  metric.Int64Counter
	orphans metric.Int64Counter
}

// NewTelemetry builds instruments from the given providers.
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)

	writes, err := meter.Int64Counter("catalog.product.writes",
		metric.WithDescription("Completed product write operations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "writes counter")
	}
	orphans, err := meter.Int64Counter("catalog.assets.orphaned",
		metric.WithDescription("Uploaded assets whose compensating delete failed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orphans counter")
	}

	return &Telemetry{
		tracer:  tp.Tracer(instrumentationName),
		writes:  writes,
		orphans: orphans,
	}, nil
}

func noopTelemetry() *Telemetry {
	t, _ := NewTelemetry(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return t
}

func opAttr(op string) metric.AddOption {
	return metric.WithAttributes(attribute.String("operation", op))
}
