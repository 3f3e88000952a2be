package a2a

import (
	"goa.design/a2a-runtime/push"
	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/telemetry"
)

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithTaskStore overrides the default in-memory taskstore.Store.
func WithTaskStore(store taskstore.Store) Option {
	return func(h *Handler) { h.store = store }
}

// WithQueueManager overrides the default queue.Manager.
func WithQueueManager(m *queue.Manager) Option {
	return func(h *Handler) { h.queues = m }
}

// WithPushConfigStore installs a push notification config store, enabling
// the pushNotificationConfig/* methods.
func WithPushConfigStore(store taskstore.PushConfigStore) Option {
	return func(h *Handler) { h.pushConfigs = store }
}

// WithPushSender installs the outbound push notification sender used by
// the sink during streaming, on each change of task state.
func WithPushSender(sender push.Sender) Option {
	return func(h *Handler) { h.pushSender = sender }
}

// WithLogger overrides the default no-op telemetry.Logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetrics installs an OTEL-backed metrics recorder.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTracer installs an OTEL-backed tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(h *Handler) { h.tracer = t }
}
