package asyncwin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/b97tsk/asyncwin"
	"github.com/b97tsk/asyncwin/native"
	"github.com/b97tsk/asyncwin/native/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return exporter, tp
}

func TestTracing(t *testing.T) {
	exporter, tp := setupTracingTest(t)

	b := headless.New()
	b.FailNextCreate(errors.New("no display"))
	l := newTestLoop(t, b, asyncwin.WithTracerProvider(tp), asyncwin.WithName("traced"))

	var failed error

	err := l.BlockOn(asyncwin.Block(
		catch(l.CreateWindow(native.WindowAttributes{Title: "broken"}, nil), &failed),
		withWindow(l, func(w *Window) Task { return asyncwin.End[TS]() }),
	))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	byName := make(map[string][]tracetest.SpanStub)
	for _, s := range spans {
		byName[s.Name] = append(byName[s.Name], s)
	}

	require.Len(t, byName["asyncwin.block_on"], 1)
	root := byName["asyncwin.block_on"][0]
	assert.Equal(t, codes.Ok, root.Status.Code)

	attrs := make(map[string]string)
	for _, kv := range root.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "traced", attrs["loop.name"])
	assert.Equal(t, l.ID(), attrs["loop.id"])

	creates := byName["asyncwin.create_window"]
	require.Len(t, creates, 2)
	assert.Equal(t, codes.Error, creates[0].Status.Code)
	assert.Equal(t, codes.Ok, creates[1].Status.Code)

	for _, s := range creates {
		assert.Equal(t, root.SpanContext.TraceID(), s.SpanContext.TraceID())
		assert.Equal(t, root.SpanContext.SpanID(), s.Parent.SpanID())
	}
}

func TestTracingLoopFailure(t *testing.T) {
	exporter, tp := setupTracingTest(t)

	b := headless.New()
	b.CloseInput()
	l := newTestLoop(t, b, asyncwin.WithTracerProvider(tp))

	never := asyncwin.NewEvent[int, TS]("never")

	err := l.BlockOn(never.Await())
	require.ErrorIs(t, err, headless.ErrStalled)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events, "error should be recorded")
}
