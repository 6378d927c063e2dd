package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName is the OTel scope for worker spans and metrics
const instrumentationName = "github.com/cuongbtq/job-pipeline/internal/worker"

type instruments struct {
	tracer    trace.Tracer
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	meter := mp.Meter(instrumentationName)

	processed, err := meter.Int64Counter(
		"jobs.processed",
		metric.WithDescription("Messages handled by the worker, by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs.processed counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"jobs.duration",
		metric.WithDescription("Time spent handling a message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs.duration histogram: %w", err)
	}

	return &instruments{
		tracer:    tp.Tracer(instrumentationName),
		processed: processed,
		duration:  duration,
	}, nil
}

func (i *instruments) record(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	i.processed.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}
