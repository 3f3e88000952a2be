// Package jsonrpc implements the transport-facing JSON-RPC 2.0 façade
// (spec §4.6/§H, wire format §6): envelope decoding, param schema
// validation, method dispatch onto a2a.Handler, and error taxonomy
// conversion. It has no transport of its own; httpserver binds it to HTTP.
package jsonrpc

import (
	"encoding/json"

	"goa.design/a2a-runtime/types"
)

// Version is the only JSON-RPC version this façade accepts.
const Version = "2.0"

// Request is the wire envelope for an inbound call. ID is carried as raw
// JSON so it can be echoed back verbatim regardless of whether the caller
// used a string, a number, or omitted it.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the wire envelope for a single reply. At most one of Result
// or Error is set; a method with no result value (pushNotificationConfig
// delete) leaves both unset, so neither member appears on the wire.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *types.Error    `json:"error,omitempty"`
}

// newResult builds a success Response, echoing id.
func newResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// newError builds an error Response. id may be nil (JSON null) when it
// could not be determined from a malformed request, per §7.
func newError(id json.RawMessage, err *types.Error) *Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// toDomainError converts an arbitrary error into the wire *types.Error,
// defaulting to CodeInternal for anything the façade didn't already
// classify. Domain errors constructed by the types package pass through
// unchanged.
func toDomainError(err error) *types.Error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*types.Error); ok {
		return de
	}
	return types.Internal(err.Error())
}
