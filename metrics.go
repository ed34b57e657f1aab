package asyncwin

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records reactor metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records one native event handled by the reactor.
	RecordDispatch(ctx context.Context, kind string)

	// RecordDelivery records a delivery to an Event and how many
	// registrations it reached.
	RecordDelivery(ctx context.Context, event string, reached int)

	// RecordPass records one bounded scheduler pass.
	RecordPass(ctx context.Context, polled int, duration time.Duration)

	// RecordTaskFailure records a root task that ended with a failure.
	RecordTaskFailure(ctx context.Context)

	// RecordWindowCreated records a window construction attempt.
	RecordWindowCreated(ctx context.Context, success bool)
}

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordDispatch(context.Context, string)         {}
func (NoopMetrics) RecordDelivery(context.Context, string, int)    {}
func (NoopMetrics) RecordPass(context.Context, int, time.Duration) {}
func (NoopMetrics) RecordTaskFailure(context.Context)              {}
func (NoopMetrics) RecordWindowCreated(context.Context, bool)      {}

const instrumentationName = "github.com/b97tsk/asyncwin"

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches   metric.Int64Counter
	deliveries   metric.Int64Counter
	wakes        metric.Int64Counter
	passes       metric.Int64Counter
	polled       metric.Int64Histogram
	passLatency  metric.Float64Histogram
	taskFailures metric.Int64Counter
	windows      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter(instrumentationName))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	dispatches, err := meter.Int64Counter("asyncwin.loop.dispatches",
		metric.WithDescription("Number of native events handled by the reactor"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("asyncwin.event.deliveries",
		metric.WithDescription("Number of occurrences delivered to Events"),
	)
	if err != nil {
		return nil, err
	}

	wakes, err := meter.Int64Counter("asyncwin.event.wakes",
		metric.WithDescription("Number of waiters and streams reached by deliveries"),
	)
	if err != nil {
		return nil, err
	}

	passes, err := meter.Int64Counter("asyncwin.scheduler.passes",
		metric.WithDescription("Number of scheduler passes"),
	)
	if err != nil {
		return nil, err
	}

	polled, err := meter.Int64Histogram("asyncwin.scheduler.polled",
		metric.WithDescription("Coroutines polled per scheduler pass"),
	)
	if err != nil {
		return nil, err
	}

	passLatency, err := meter.Float64Histogram("asyncwin.scheduler.pass_latency_ms",
		metric.WithDescription("Scheduler pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskFailures, err := meter.Int64Counter("asyncwin.task.failures",
		metric.WithDescription("Number of root tasks that failed"),
	)
	if err != nil {
		return nil, err
	}

	windows, err := meter.Int64Counter("asyncwin.window.constructions",
		metric.WithDescription("Number of window construction attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:   dispatches,
		deliveries:   deliveries,
		wakes:        wakes,
		passes:       passes,
		polled:       polled,
		passLatency:  passLatency,
		taskFailures: taskFailures,
		windows:      windows,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, it returns NoopMetrics{} and the error.
//
// The recorder uses the global OTel meter provider, which must be configured
// before the first call.
func NewMetricsRecorder() (MetricsRecorder, error) {
	m, err := getDefaultMetrics()
	if err != nil {
		return NoopMetrics{}, err
	}
	return m, nil
}

// NewMetricsRecorderFromMeter returns a MetricsRecorder on a specific meter.
func NewMetricsRecorderFromMeter(meter metric.Meter) (MetricsRecorder, error) {
	m, err := newOtelMetrics(meter)
	if err != nil {
		return NoopMetrics{}, err
	}
	return m, nil
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, kind string) {
	m.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *otelMetrics) RecordDelivery(ctx context.Context, event string, reached int) {
	attrs := metric.WithAttributes(attribute.String("event", event))
	m.deliveries.Add(ctx, 1, attrs)
	m.wakes.Add(ctx, int64(reached), attrs)
}

func (m *otelMetrics) RecordPass(ctx context.Context, polled int, duration time.Duration) {
	m.passes.Add(ctx, 1)
	m.polled.Record(ctx, int64(polled))
	m.passLatency.Record(ctx, float64(duration.Microseconds())/1000)
}

func (m *otelMetrics) RecordTaskFailure(ctx context.Context) {
	m.taskFailures.Add(ctx, 1)
}

func (m *otelMetrics) RecordWindowCreated(ctx context.Context, success bool) {
	m.windows.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
