// Package httpclient is an A2A JSON-RPC client over HTTP, covering every
// method in the wire table (§6) including the two streaming methods decoded
// from an SSE body. It does not implement a2a.AgentExecutor; it is the
// counterpart to httpserver for callers that want to drive a remote runtime.
package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"goa.design/a2a-runtime/retry"
	"goa.design/a2a-runtime/types"
)

type (
	// Option configures the Client.
	Option func(*Client)

	// Client calls a remote A2A runtime's JSON-RPC endpoint over HTTP.
	Client struct {
		endpoint        string
		http            *http.Client
		headers         http.Header
		retry           retry.Config
		streamReconnect retry.StreamReconnectConfig
		id              uint64
	}

	rpcRequest struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		ID      uint64 `json:"id"`
		Params  any    `json:"params,omitempty"`
	}

	rpcResponse struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *types.Error    `json:"error"`
		ID      uint64          `json:"id"`
	}
)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) Option {
	return func(cl *Client) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Add(name, value)
	}
}

// WithBearerToken configures the client to send an Authorization Bearer token.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithRetry overrides the retry policy used for non-streaming calls.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) { cl.retry = cfg }
}

// WithStreamReconnect overrides the reconnection policy used for
// message/stream and tasks/resubscribe when the SSE connection drops
// before a terminal event is observed.
func WithStreamReconnect(cfg retry.StreamReconnectConfig) Option {
	return func(cl *Client) { cl.streamReconnect = cfg }
}

// New constructs a Client against endpoint, the A2A JSON-RPC URL (for
// example "https://host.example.com/a2a").
func New(endpoint string, opts ...Option) *Client {
	cl := &Client{
		endpoint:        endpoint,
		http:            &http.Client{Timeout: 30 * time.Second},
		headers:         make(http.Header),
		retry:           retry.DefaultConfig(),
		streamReconnect: retry.DefaultStreamReconnectConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.id, 1)
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.doRequest(ctx, method, params)
		if err != nil {
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	})
}

func (c *Client) doRequest(ctx context.Context, method string, params any) (*rpcResponse, error) {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: method}
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	return &rpcResp, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// GetTask invokes tasks/get.
func (c *Client) GetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	var task types.Task
	if err := c.call(ctx, "tasks/get", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask invokes tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error) {
	var task types.Task
	if err := c.call(ctx, "tasks/cancel", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendMessage invokes message/send. The result is either a *types.Task or a
// *types.Message depending on what the remote executor produced.
func (c *Client) SendMessage(ctx context.Context, params types.MessageSendParams) (types.Event, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "message/send", params, &raw); err != nil {
		return nil, err
	}
	return types.DecodeEvent(raw)
}

// SetPushNotificationConfig invokes tasks/pushNotificationConfig/set.
func (c *Client) SetPushNotificationConfig(ctx context.Context, cfg types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error) {
	var out types.TaskPushNotificationConfig
	if err := c.call(ctx, "tasks/pushNotificationConfig/set", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPushNotificationConfig invokes tasks/pushNotificationConfig/get.
func (c *Client) GetPushNotificationConfig(ctx context.Context, params types.TaskIDParams) (*types.TaskPushNotificationConfig, error) {
	var out types.TaskPushNotificationConfig
	if err := c.call(ctx, "tasks/pushNotificationConfig/get", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPushNotificationConfig invokes tasks/pushNotificationConfig/list.
func (c *Client) ListPushNotificationConfig(ctx context.Context, params types.TaskIDParams) ([]types.TaskPushNotificationConfig, error) {
	var out []types.TaskPushNotificationConfig
	if err := c.call(ctx, "tasks/pushNotificationConfig/list", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePushNotificationConfig invokes tasks/pushNotificationConfig/delete.
func (c *Client) DeletePushNotificationConfig(ctx context.Context, params types.TaskIDParams) error {
	return c.call(ctx, "tasks/pushNotificationConfig/delete", params, nil)
}

// AgentCard fetches the agent's discovery document. path defaults to
// "/.well-known/agent-card.json" when empty.
func (c *Client) AgentCard(ctx context.Context, path string) (*types.AgentCard, error) {
	if path == "" {
		path = "/.well-known/agent-card.json"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.endpointBase(), "/")+path, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: "agent card"}
	}
	var card types.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *Client) endpointBase() string {
	if i := strings.LastIndex(c.endpoint, "/"); i >= 0 {
		return c.endpoint[:i]
	}
	return c.endpoint
}

// SendMessageStream invokes message/stream, decoding the SSE body into a
// channel of events. The channel closes when the stream ends; the returned
// error func reports any terminal transport/decode error observed.
func (c *Client) SendMessageStream(ctx context.Context, params types.MessageSendParams) (<-chan types.Event, func() error, error) {
	return c.openStream(ctx, "message/stream", params)
}

// ResubscribeToTask invokes tasks/resubscribe, reattaching to an in-flight
// task's event stream.
func (c *Client) ResubscribeToTask(ctx context.Context, params types.TaskIDParams) (<-chan types.Event, func() error, error) {
	return c.openStream(ctx, "tasks/resubscribe", params)
}

// openStream drives message/stream or tasks/resubscribe to completion,
// transparently reopening the connection (re-sending the same method and
// params, with a Last-Event-ID header that the httpserver package does not
// read) when the body drops with a retryable transport error. A domain error (*types.Error)
// or an exhausted reconnect budget ends the stream for good.
func (c *Client) openStream(ctx context.Context, method string, params any) (<-chan types.Event, func() error, error) {
	out := make(chan types.Event)
	var lastErr error
	go func() {
		defer close(out)
		lastErr = c.runStream(ctx, method, params, out)
	}()
	return out, func() error { return lastErr }, nil
}

func (c *Client) runStream(ctx context.Context, method string, params any, out chan<- types.Event) error {
	cfg := c.streamReconnect
	if cfg.MaxAttempts <= 0 {
		cfg = retry.DefaultStreamReconnectConfig()
	}
	state := &retry.StreamState{}
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := c.streamOnce(ctx, method, params, out, state, cfg.TrackLastEventID)
		if err == nil {
			return nil
		}
		lastErr = err
		var domainErr *types.Error
		if errors.As(err, &domainErr) || !retry.IsRetryable(err) || attempt >= cfg.MaxAttempts {
			return err
		}
		state.ReconnectAttempts++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.Backoff(cfg.Config, attempt)):
		}
	}
	return lastErr
}

// streamOnce opens a single connection and decodes it until the body
// closes, updating state's last-seen event id as it goes.
func (c *Client) streamOnce(ctx context.Context, method string, params any, out chan<- types.Event, state *retry.StreamState, trackLastEventID bool) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if trackLastEventID && state.LastEventID != "" {
		httpReq.Header.Set("Last-Event-ID", state.LastEventID)
	}
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: method}
	}

	err = decodeSSE(resp.Body, out, state)
	if err == nil {
		state.Reset()
	}
	return err
}

// decodeSSE reads a "text/event-stream" body of JSON-RPC response
// envelopes, one per "data:" line (with an optional preceding "id:" line
// tracked into state for reconnection), and forwards each envelope's
// result (or returns its error) until the body closes.
func decodeSSE(r io.Reader, out chan<- types.Event, state *retry.StreamState) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var pendingID string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			pendingID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(payload), &resp); err != nil {
				return fmt.Errorf("httpclient: malformed SSE envelope: %w", err)
			}
			if resp.Error != nil {
				return resp.Error
			}
			ev, err := types.DecodeEvent(resp.Result)
			if err != nil {
				return err
			}
			if state != nil {
				state.UpdateLastEventID(pendingID)
			}
			out <- ev
		}
	}
	return scanner.Err()
}
