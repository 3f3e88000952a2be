// Package retry provides retry utilities used by the HTTP transport and the
// push notification sender: exponential backoff, retryable error detection,
// and streaming reconnection state. IsRetryable distinguishes transient
// transport failures, worth retrying, from A2A domain errors (*types.Error),
// which are deterministic protocol outcomes that retrying cannot change.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"goa.design/a2a-runtime/types"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial
	// attempt). A value of 0 or 1 means no retries.
	MaxAttempts int
	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases after
	// each retry. A value of 2.0 provides exponential backoff.
	BackoffMultiplier float64
	// Jitter adds randomness to the backoff to prevent thundering herd. A
	// value of 0.1 adds up to 10% jitter.
	Jitter float64
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// ExhaustedError is returned when all retry attempts have been exhausted.
type ExhaustedError struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the underlying error.
func (e *ExhaustedError) Unwrap() error { return e.LastError }

// HTTPStatusError represents an HTTP error carrying a status code, used so
// IsRetryable can distinguish retryable 5xx/429 responses from other
// failures.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable determines if an error is worth retrying: network timeouts,
// a dropped connection (EOF, unexpected EOF, connection reset), temporary
// DNS failures, a deadline exceeded, or an HTTPStatusError with a
// 429/502/503/504 status. A canceled context is never retried.
//
// A *types.Error is never retryable: every JSON-RPC domain error the A2A
// core returns (task not found, not cancelable, invalid params, ...) is a
// deterministic outcome of the request already reaching the server and
// being evaluated against durable state. Retrying changes nothing about
// that evaluation, unlike a dropped connection or a 503, where the same
// request may simply succeed against a different attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *types.Error
	if errors.As(err, &domainErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// Do executes fn, retrying while the returned error IsRetryable up to
// cfg.MaxAttempts, sleeping an exponential backoff (with jitter) between
// attempts and honoring ctx cancellation during the sleep.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(cfg, attempt)):
		}
	}
	return &ExhaustedError{Attempts: cfg.MaxAttempts, TotalDuration: time.Since(start), LastError: lastErr}
}

// Backoff computes the delay before the given attempt (1-based) under cfg,
// exported so callers driving their own retry loop (httpclient's streaming
// reconnect, which needs to reopen a connection rather than rerun a single
// function) can reuse the same backoff curve as Do.
func Backoff(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}
	return time.Duration(backoff)
}

// StreamReconnectConfig configures reconnection behavior for streaming HTTP
// transports (message/stream, tasks/resubscribe over SSE). httpclient
// reopens the POST, re-sending the same method and params, with a
// Last-Event-ID header between attempts when TrackLastEventID is set. The
// httpserver package does not read that header, so against it a reconnect
// starts a new stream for the same request rather than resuming the old one.
type StreamReconnectConfig struct {
	Config
	TrackLastEventID bool
}

// DefaultStreamReconnectConfig returns a sensible default for SSE
// reconnection.
func DefaultStreamReconnectConfig() StreamReconnectConfig {
	return StreamReconnectConfig{
		Config: Config{
			MaxAttempts:       5,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
		},
		TrackLastEventID: true,
	}
}

// StreamState tracks reconnection state for a streaming client connection.
type StreamState struct {
	LastEventID       string
	ReconnectAttempts int
}

// Reset clears accumulated reconnect attempts after a successful connect.
func (s *StreamState) Reset() { s.ReconnectAttempts = 0 }

// UpdateLastEventID records the most recently received event id.
func (s *StreamState) UpdateLastEventID(id string) {
	if id != "" {
		s.LastEventID = id
	}
}
