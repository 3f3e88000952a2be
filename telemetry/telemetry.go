// Package telemetry wraps goa.design/clue/log for structured, context-
// carried logging and go.opentelemetry.io/otel for tracing and metrics,
// the way the rest of the ecosystem wires ambient observability: the
// logger/tracer configuration lives on the context (via clue/log.Context).
// Components take a Logger interface value through their WithLogger
// options and log through it with that context.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// Logger is the minimal structured logging seam used throughout the
// runtime. Keyvals are flattened key, value, key, value, ... pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// ClueLogger delegates to goa.design/clue/log. Construct it once and share
// it; the active clue context (format, debug) is read from ctx on every
// call.
type ClueLogger struct{}

// NewClueLogger constructs a Logger backed by clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

func kvFields(msg string, keyvals []any) []log.Fielder {
	fields := make([]log.Fielder, 0, len(keyvals)/2+1)
	fields = append(fields, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, log.KV{K: key, V: keyvals[i+1]})
	}
	return fields
}

// Debug implements Logger.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, kvFields(msg, keyvals)...)
}

// Info implements Logger.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, kvFields(msg, keyvals)...)
}

// Warn implements Logger.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, kvFields(msg, keyvals)...)
}

// Error implements Logger.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, kvFields(msg, keyvals)...)
}

// Noop discards every log call; useful as a default when the host
// application has not configured clue/log.
type Noop struct{}

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}

var (
	_ Logger = ClueLogger{}
	_ Logger = Noop{}
)

// Metrics records the handler's operational counters and timers via OTEL.
type Metrics struct {
	meter                metric.Meter
	operations           metric.Int64Counter
	operationDuration     metric.Float64Histogram
	queueDepth           metric.Int64UpDownCounter
	interrupts           metric.Int64Counter
}

// NewMetrics constructs a Metrics recorder against the global
// MeterProvider, under the given instrumentation name.
func NewMetrics(instrumentationName string) (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	ops, err := meter.Int64Counter("a2a_request_handler_operations_total")
	if err != nil {
		return nil, err
	}
	dur, err := meter.Float64Histogram("a2a_request_handler_operation_duration_seconds")
	if err != nil {
		return nil, err
	}
	depth, err := meter.Int64UpDownCounter("a2a_event_queue_depth")
	if err != nil {
		return nil, err
	}
	interrupts, err := meter.Int64Counter("a2a_request_handler_interrupts_total")
	if err != nil {
		return nil, err
	}
	return &Metrics{meter: meter, operations: ops, operationDuration: dur, queueDepth: depth, interrupts: interrupts}, nil
}

// RecordOperation records one completed Request Handler operation with its
// duration and an "ok"/"error" outcome.
func (m *Metrics) RecordOperation(ctx context.Context, method string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("outcome", outcome))
	m.operations.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordInterrupt records one onMessageSend/onMessageSendStream call that
// returned early because the task entered an interrupt state.
func (m *Metrics) RecordInterrupt(ctx context.Context, taskID string) {
	if m == nil {
		return
	}
	m.interrupts.Add(ctx, 1, metric.WithAttributes(attribute.String("taskId", taskID)))
}

// AdjustQueueDepth records a delta in the number of live per-task event
// queues.
func (m *Metrics) AdjustQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}

// Tracer starts spans for Request Handler operations via the global
// TracerProvider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer constructs a Tracer under the given instrumentation name.
func NewTracer(instrumentationName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartOperation starts a span named for the given JSON-RPC method and
// returns the derived context plus a function that ends the span, marking
// it as errored when err is non-nil.
func (t *Tracer) StartOperation(ctx context.Context, method string) (context.Context, func(err error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "a2a."+method)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
