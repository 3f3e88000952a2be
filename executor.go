package a2a

import (
	"context"

	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/types"
)

// RequestContext is handed to an AgentExecutor on every invocation. TaskID
// is empty when the client did not supply one (the executor's first Task
// event then establishes it).
type RequestContext struct {
	TaskID    string
	ContextID string
	Task      *types.Task
	Message   *types.Message
}

// AgentExecutor is the user-supplied work producer. Both operations are
// synchronous from the executor's point of view: Execute must eventually
// return (its return closes the queue), and Cancel may be invoked while
// Execute is still in flight.
//
// An executor may enqueue any of *types.Task, *types.Message,
// *types.TaskStatusUpdateEvent, *types.TaskArtifactUpdateEvent on q. The
// first Task event, if any, establishes the task id when the client did not
// provide one; every subsequent event carrying a TaskID must match it.
// Returning a non-nil error is a fatal failure: the queue is closed with
// that error recorded, and the operation surfaces an internal error.
type AgentExecutor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, q *queue.EventQueue) error
	Cancel(ctx context.Context, reqCtx *RequestContext, q *queue.EventQueue) error
}
