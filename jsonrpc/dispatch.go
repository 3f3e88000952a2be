package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"

	a2a "goa.design/a2a-runtime"
	"goa.design/a2a-runtime/aggregator"
	"goa.design/a2a-runtime/types"
)

const (
	methodTasksGet         = "tasks/get"
	methodTasksCancel      = "tasks/cancel"
	methodTasksResubscribe = "tasks/resubscribe"
	methodMessageSend      = "message/send"
	methodMessageStream    = "message/stream"
	methodPushConfigSet    = "tasks/pushNotificationConfig/set"
	methodPushConfigGet    = "tasks/pushNotificationConfig/get"
	methodPushConfigList   = "tasks/pushNotificationConfig/list"
	methodPushConfigDelete = "tasks/pushNotificationConfig/delete"
)

// streamingMethods names the methods whose result is a sequence of events
// rather than a single envelope.
var streamingMethods = map[string]bool{
	methodMessageStream:    true,
	methodTasksResubscribe: true,
}

// IsStreaming reports whether method's result is delivered as a sequence of
// Response envelopes (via HandleStream) rather than a single one (via
// Handle).
func IsStreaming(method string) bool { return streamingMethods[method] }

// Dispatcher binds the JSON-RPC method table to an a2a.Handler.
type Dispatcher struct {
	handler *a2a.Handler
}

// NewDispatcher constructs a Dispatcher over handler.
func NewDispatcher(handler *a2a.Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// ParseRequest decodes and minimally validates the envelope, returning the
// id (possibly nil) separately so callers can build an error Response even
// when decoding the rest of the request fails.
func ParseRequest(raw []byte) (*Request, *types.Error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &types.Error{Code: types.CodeParseError, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if req.JSONRPC != Version {
		return &req, &types.Error{Code: types.CodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC)}
	}
	if req.Method == "" {
		return &req, &types.Error{Code: types.CodeInvalidRequest, Message: "missing method"}
	}
	return &req, nil
}

// Handle dispatches a single non-streaming request and always returns a
// complete Response (never an error from Go's perspective): failures are
// encoded into the envelope per §7.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *Response {
	req, parseErr := ParseRequest(raw)
	if parseErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return newError(id, parseErr)
	}
	if IsStreaming(req.Method) {
		return newError(req.ID, &types.Error{Code: types.CodeInvalidRequest, Message: fmt.Sprintf("method %q must be invoked via the streaming transport", req.Method)})
	}
	if err := validateParams(req.Method, req.Params); err != nil {
		return newError(req.ID, types.InvalidParams(err.Error()))
	}

	result, err := d.call(ctx, req)
	if err != nil {
		return newError(req.ID, toDomainError(err))
	}
	return newResult(req.ID, result)
}

func (d *Dispatcher) call(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case methodTasksGet:
		var p types.TaskQueryParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnGetTask(ctx, p)

	case methodTasksCancel:
		var p types.TaskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnCancelTask(ctx, p)

	case methodMessageSend:
		var p types.MessageSendParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		ev, err := d.handler.OnMessageSend(ctx, p)
		if err != nil {
			return nil, err
		}
		payload, err := types.EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(payload), nil

	case methodPushConfigSet:
		var p types.TaskPushNotificationConfig
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnSetPushNotificationConfig(ctx, p)

	case methodPushConfigGet:
		var p types.TaskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnGetPushNotificationConfig(ctx, p)

	case methodPushConfigList:
		var p types.TaskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnListPushNotificationConfig(ctx, p)

	case methodPushConfigDelete:
		var p types.TaskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return nil, d.handler.OnDeletePushNotificationConfig(ctx, p)

	default:
		return nil, &types.Error{Code: types.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

// HandleStream dispatches message/stream or tasks/resubscribe, returning a
// channel of Response envelopes (one per observed event) that closes when
// the Publisher does. A pre-subscription error (bad params, unknown task)
// yields a single error Response and a closed channel, per §7.
func (d *Dispatcher) HandleStream(ctx context.Context, raw []byte) <-chan *Response {
	out := make(chan *Response, 1)

	req, parseErr := ParseRequest(raw)
	if parseErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		out <- newError(id, parseErr)
		close(out)
		return out
	}
	if !IsStreaming(req.Method) {
		out <- newError(req.ID, &types.Error{Code: types.CodeInvalidRequest, Message: fmt.Sprintf("method %q is not a streaming method", req.Method)})
		close(out)
		return out
	}
	if err := validateParams(req.Method, req.Params); err != nil {
		out <- newError(req.ID, types.InvalidParams(err.Error()))
		close(out)
		return out
	}

	pub, subscribeErr := d.subscribe(ctx, req)
	if subscribeErr != nil {
		out <- newError(req.ID, toDomainError(subscribeErr))
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for e := range pub.Events() {
			payload, encErr := types.EncodeEvent(e)
			if encErr != nil {
				out <- newError(req.ID, types.Internal(encErr.Error()))
				return
			}
			var v any
			if err := json.Unmarshal(payload, &v); err != nil {
				out <- newError(req.ID, types.Internal(err.Error()))
				return
			}
			out <- newResult(req.ID, v)
		}
		if err := pub.Err(); err != nil {
			out <- newError(req.ID, toDomainError(err))
		}
	}()
	return out
}

func (d *Dispatcher) subscribe(ctx context.Context, req *Request) (*aggregator.Publisher, error) {
	switch req.Method {
	case methodMessageStream:
		var p types.MessageSendParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnMessageSendStream(ctx, p)
	case methodTasksResubscribe:
		var p types.TaskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, types.InvalidParams(err.Error())
		}
		return d.handler.OnResubscribeToTask(ctx, p)
	default:
		return nil, &types.Error{Code: types.CodeMethodNotFound, Message: fmt.Sprintf("unknown streaming method %q", req.Method)}
	}
}
