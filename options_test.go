package asyncwin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestResolveLoopOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := resolveLoopOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, "asyncwin", cfg.name)
		assert.Nil(t, cfg.log)
		assert.Equal(t, NoopMetrics{}, cfg.metrics)
		assert.Equal(t, DefaultPassBudget, cfg.passBudget)
		assert.Equal(t, otel.GetTracerProvider(), cfg.tracerProvider)
	})
	t.Run("Overrides", func(t *testing.T) {
		cfg, err := resolveLoopOptions([]LoopOption{
			WithName("custom"),
			nil,
			WithPassBudget(8),
		})
		require.NoError(t, err)
		assert.Equal(t, "custom", cfg.name)
		assert.Equal(t, 8, cfg.passBudget)
	})
	t.Run("Invalid", func(t *testing.T) {
		_, err := resolveLoopOptions([]LoopOption{WithPassBudget(-1)})
		assert.EqualError(t, err, "asyncwin: pass budget must be positive, got -1")
	})
}

func TestLoopStateTransitions(t *testing.T) {
	for _, tc := range []struct {
		from, to LoopState
		ok       bool
	}{
		{StateNotStarted, StateRunning, true},
		{StateNotStarted, StateSuspended, false},
		{StateRunning, StateSuspended, true},
		{StateSuspended, StateRunning, true},
		{StateSuspended, StateExited, true},
		{StateExited, StateRunning, false},
		{StateExited, StateExited, false},
	} {
		assert.Equal(t, tc.ok, tc.from.canTransition(tc.to), "%v -> %v", tc.from, tc.to)
	}
	assert.Equal(t, "Unknown", LoopState(42).String())
}
