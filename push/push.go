// Package push implements the best-effort Push Notification sink (spec
// §4.7): on each intermediate task snapshot emitted during streaming, if a
// Sender is installed and the task has a registered config, a notification
// is dispatched; failures are logged, never surfaced to the client.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"goa.design/a2a-runtime/retry"
	"goa.design/a2a-runtime/types"
)

// Sender delivers a task snapshot to a single push notification config.
// Implementations MUST be safe for concurrent use and MUST NOT return an
// error that the caller is expected to surface to the client: the core only
// logs Send failures.
type Sender interface {
	Send(ctx context.Context, cfg types.PushNotificationConfig, task *types.Task) error
}

// HTTPSender posts the task snapshot as a JSON webhook body to
// cfg.URL, with cfg.Token sent as a bearer token when set. Delivery is
// retried with the adapted retry package and paced by a token-bucket
// limiter so a slow or flapping webhook cannot starve other tasks'
// notifications.
type HTTPSender struct {
	client  *http.Client
	retry   retry.Config
	limiter *rate.Limiter
}

// NewHTTPSender constructs an HTTPSender. A nil client is replaced by a new
// http.Client with a 10s timeout.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{
		client:  client,
		retry:   retry.DefaultConfig(),
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, cfg types.PushNotificationConfig, task *types.Task) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("push: marshal task: %w", err)
	}
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.Token)
		}
		for k, v := range cfg.Authentication {
			req.Header.Set(k, v)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: "push webhook"}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("push: webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

var _ Sender = (*HTTPSender)(nil)

// Logger is the minimal logging seam the sink needs, satisfied by
// telemetry.Logger.
type Logger interface {
	Warn(ctx context.Context, msg string, keyvals ...any)
}

// ConfigStore is the subset of taskstore.PushConfigStore the sink needs, to
// avoid an import cycle between push and taskstore.
type ConfigStore interface {
	List(ctx context.Context, taskID string) ([]types.PushNotificationConfig, error)
}

// Sink dispatches best-effort notifications for intermediate task
// snapshots. A nil Sender or ConfigStore makes Notify a no-op.
type Sink struct {
	configs ConfigStore
	sender  Sender
	logger  Logger
}

// NewSink constructs a Sink. Either argument may be nil, in which case
// Notify becomes a no-op (push notifications are then unsupported).
func NewSink(configs ConfigStore, sender Sender, logger Logger) *Sink {
	return &Sink{configs: configs, sender: sender, logger: logger}
}

// Notify dispatches task to every push config registered for task.ID,
// best-effort: failures are logged and never returned.
func (s *Sink) Notify(ctx context.Context, task *types.Task) {
	if s == nil || s.sender == nil || s.configs == nil || task == nil {
		return
	}
	configs, err := s.configs.List(ctx, task.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(ctx, "push: failed to list configs", "taskId", task.ID, "error", err)
		}
		return
	}
	for _, cfg := range configs {
		if err := s.sender.Send(ctx, cfg, task); err != nil {
			if s.logger != nil {
				s.logger.Warn(ctx, "push: delivery failed", "taskId", task.ID, "configId", cfg.ID, "error", err)
			}
		}
	}
}
