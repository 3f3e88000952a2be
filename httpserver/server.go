// Package httpserver binds the jsonrpc façade to HTTP: a single JSON-RPC
// endpoint for all methods (framing streaming results as
// "text/event-stream" per §H) plus a separate agent discovery endpoint that
// is not part of the JSON-RPC surface (§6).
package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"goa.design/a2a-runtime/jsonrpc"
	"goa.design/a2a-runtime/telemetry"
	"goa.design/a2a-runtime/types"
)

// maxRequestBody caps the size of a decoded JSON-RPC request body.
const maxRequestBody = 10 << 20

// Option configures the Server.
type Option func(*Server)

// WithAgentCard sets the document returned from the discovery endpoint.
// Without this option the discovery endpoint responds 404.
func WithAgentCard(card types.AgentCard) Option {
	return func(s *Server) { s.card = &card }
}

// WithAgentCardPath overrides the default discovery path
// "/.well-known/agent-card.json".
func WithAgentCardPath(path string) Option {
	return func(s *Server) { s.cardPath = path }
}

// WithRPCPath overrides the default JSON-RPC endpoint path "/a2a".
func WithRPCPath(path string) Option {
	return func(s *Server) { s.rpcPath = path }
}

// WithLogger sets the logger used for request-handling failures the client
// never sees (write errors after headers are sent, etc).
func WithLogger(l telemetry.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is an http.Handler exposing a Dispatcher over HTTP.
type Server struct {
	dispatcher *jsonrpc.Dispatcher
	mux        *http.ServeMux
	card       *types.AgentCard
	cardPath   string
	rpcPath    string
	logger     telemetry.Logger
}

// New constructs a Server wrapping dispatcher.
func New(dispatcher *jsonrpc.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: dispatcher,
		cardPath:   "/.well-known/agent-card.json",
		rpcPath:    "/a2a",
		logger:     telemetry.Noop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.rpcPath, s.handleRPC)
	mux.HandleFunc(s.cardPath, s.handleAgentCard)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if s.card == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.card); err != nil {
		s.logger.Error(r.Context(), "httpserver: encode agent card", "error", err)
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method, streamErr := peekMethod(raw)
	if streamErr == nil && jsonrpc.IsStreaming(method) {
		s.serveStream(w, r, raw)
		return
	}

	resp := s.dispatcher.Handle(r.Context(), raw)
	s.writeJSON(w, r, resp)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, raw []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var seq int
	for resp := range s.dispatcher.HandleStream(r.Context(), raw) {
		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error(r.Context(), "httpserver: encode stream envelope", "error", err)
			return
		}
		seq++
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", seq, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error(r.Context(), "httpserver: encode response", "error", err)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

func peekMethod(raw []byte) (string, error) {
	var envelope struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}
	return envelope.Method, nil
}
