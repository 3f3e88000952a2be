package httpserver_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	a2a "goa.design/a2a-runtime"
	"goa.design/a2a-runtime/httpserver"
	"goa.design/a2a-runtime/jsonrpc"
	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/types"
)

type scriptedExecutor struct{ events []types.Event }

func (e *scriptedExecutor) Execute(ctx context.Context, reqCtx *a2a.RequestContext, q *queue.EventQueue) error {
	for _, ev := range e.events {
		q.EnqueueEvent(ev)
	}
	return nil
}

func (e *scriptedExecutor) Cancel(context.Context, *a2a.RequestContext, *queue.EventQueue) error { return nil }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := a2a.NewHandler(&scriptedExecutor{events: []types.Event{
		&types.Task{ID: "T-http-1", Status: types.TaskStatus{State: types.TaskStateSubmitted}},
		&types.TaskStatusUpdateEvent{TaskID: "T-http-1", Status: types.TaskStatus{State: types.TaskStateCompleted}, Final: true},
	}})
	s := httpserver.New(jsonrpc.NewDispatcher(handler), httpserver.WithAgentCard(types.AgentCard{Name: "test-agent"}))
	return httptest.NewServer(s)
}

func TestServerHandlesMessageSend(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, err := http.Post(srv.URL+"/a2a", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Nil(t, env["error"])
	require.NotNil(t, env["result"])
}

func TestServerStreamsSSE(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":2,"method":"message/stream","params":{"message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, err := http.Post(srv.URL+"/a2a", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames, ids int
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			frames++
		case strings.HasPrefix(line, "id:"):
			ids++
		}
	}
	require.Equal(t, 2, frames)
	require.Equal(t, 2, ids)
}

func TestServerAgentCard(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/.well-known/agent-card.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card types.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	require.Equal(t, "test-agent", card.Name)
}

func TestServerRejectsNonPost(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/a2a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
