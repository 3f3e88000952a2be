package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/telemetry"
)

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	var l telemetry.Logger = telemetry.Noop{}
	require.NotPanics(t, func() {
		l.Debug(context.Background(), "debug")
		l.Info(context.Background(), "info", "k", "v")
		l.Warn(context.Background(), "warn")
		l.Error(context.Background(), "error", "err", errors.New("boom"))
	})
}

func TestNewMetricsRecordsWithoutPanicking(t *testing.T) {
	m, err := telemetry.NewMetrics("a2a-runtime-test")
	require.NoError(t, err)
	require.NotNil(t, m)

	require.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "tasks/get", 5*time.Millisecond, nil)
		m.RecordOperation(context.Background(), "tasks/get", 5*time.Millisecond, errors.New("fail"))
		m.RecordInterrupt(context.Background(), "T-1")
		m.AdjustQueueDepth(context.Background(), 1)
		m.AdjustQueueDepth(context.Background(), -1)
	})
}

func TestNilMetricsIsANoop(t *testing.T) {
	var m *telemetry.Metrics
	require.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "tasks/get", 0, nil)
		m.RecordInterrupt(context.Background(), "T-1")
		m.AdjustQueueDepth(context.Background(), 1)
	})
}

func TestTracerStartOperationEndsSpanOnError(t *testing.T) {
	tr := telemetry.NewTracer("a2a-runtime-test")
	ctx, end := tr.StartOperation(context.Background(), "tasks/cancel")
	require.NotNil(t, ctx)
	require.NotPanics(t, func() { end(errors.New("boom")) })
}

func TestNilTracerStartOperationIsANoop(t *testing.T) {
	var tr *telemetry.Tracer
	ctx, end := tr.StartOperation(context.Background(), "tasks/cancel")
	require.NotNil(t, ctx)
	require.NotPanics(t, func() { end(nil) })
}
