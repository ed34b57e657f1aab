package asyncwin

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPassBudget is the default number of coroutines a scheduler pass may
// poll beyond those queued when the pass starts.
const DefaultPassBudget = 1024

type loopOptions struct {
	name           string
	log            *logiface.Logger[logiface.Event]
	metrics        MetricsRecorder
	tracerProvider trace.TracerProvider
	passBudget     int
}

// LoopOption configures an [EventLoop].
type LoopOption interface {
	applyLoop(*loopOptions) error
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithName names the loop in logs and spans.
func WithName(name string) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.name = name
		return nil
	}}
}

// WithLogger sets the logger. A nil logger disables logging, which is also
// the default.
func WithLogger(log *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.log = log
		return nil
	}}
}

// WithMetrics sets the metrics recorder. The default is NoopMetrics{}.
func WithMetrics(m MetricsRecorder) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if m == nil {
			return errors.New("asyncwin: nil MetricsRecorder")
		}
		opts.metrics = m
		return nil
	}}
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if tp == nil {
			return errors.New("asyncwin: nil TracerProvider")
		}
		opts.tracerProvider = tp
		return nil
	}}
}

// WithPassBudget bounds how many coroutines one scheduler pass may poll.
// Coroutines queued when a pass starts are always polled; the budget only
// limits those woken during the pass.
func WithPassBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 1 {
			return fmt.Errorf("asyncwin: pass budget must be positive, got %d", n)
		}
		opts.passBudget = n
		return nil
	}}
}

func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		name:       "asyncwin",
		metrics:    NoopMetrics{},
		passBudget: DefaultPassBudget,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	return cfg, nil
}
