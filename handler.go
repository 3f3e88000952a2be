// Package a2a implements the Request Handler (spec §4.6): the public
// operation surface of the A2A runtime core, orchestrating the Task/Queue
// stores, the EventQueue fabric, the TaskManager, and the ResultAggregator
// into the nine JSON-RPC-addressable operations listed in SPEC_FULL.md §6.
package a2a

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/a2a-runtime/aggregator"
	"goa.design/a2a-runtime/push"
	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/taskmanager"
	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/telemetry"
	"goa.design/a2a-runtime/types"
)

// runningAgent tracks one in-flight executor.Execute invocation so that
// onCancelTask can cancel it and onMessageSend/onMessageSendStream can wait
// on its completion.
type runningAgent struct {
	cancel context.CancelFunc
	done   chan error // closed after the executor returns; carries its error, if any
}

// Handler is the Request Handler: the control core described in §4.6. It
// owns no domain logic of its own beyond orchestration; Task identity and
// folding live in taskmanager, queue fabric in queue, and consumption modes
// in aggregator.
type Handler struct {
	executor    AgentExecutor
	store       taskstore.Store
	queues      *queue.Manager
	pushConfigs taskstore.PushConfigStore
	pushSender  push.Sender
	logger      telemetry.Logger
	metrics     *telemetry.Metrics
	tracer      *telemetry.Tracer

	mu            sync.Mutex
	runningAgents map[string]*runningAgent
}

// NewHandler constructs a Handler over executor. By default it uses an
// in-memory TaskStore and QueueManager and a no-op Logger; see Option for
// overrides.
func NewHandler(executor AgentExecutor, opts ...Option) *Handler {
	h := &Handler{
		executor:      executor,
		store:         taskstore.NewInMemory(),
		queues:        queue.NewManager(),
		logger:        telemetry.Noop{},
		runningAgents: make(map[string]*runningAgent),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) pushSink() *push.Sink {
	return push.NewSink(h.pushConfigs, h.pushSender, h.logger)
}

// OnGetTask implements tasks/get.
func (h *Handler) OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	ctx, end := h.tracer.StartOperation(ctx, "tasks/get")
	var err error
	defer func() { end(err) }()

	task, ok, getErr := h.store.Get(ctx, params.ID)
	if getErr != nil {
		err = getErr
		return nil, err
	}
	if !ok {
		err = types.TaskNotFound(params.ID)
		return nil, err
	}
	if params.HistoryLength != nil && *params.HistoryLength < len(task.History) {
		task = taskmanager.TruncateHistory(task, *params.HistoryLength)
	}
	return task, nil
}

// OnCancelTask implements tasks/cancel.
func (h *Handler) OnCancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error) {
	ctx, end := h.tracer.StartOperation(ctx, "tasks/cancel")
	var err error
	defer func() { end(err) }()

	task, ok, getErr := h.store.Get(ctx, params.ID)
	if getErr != nil {
		err = getErr
		return nil, err
	}
	if !ok {
		err = types.TaskNotFound(params.ID)
		return nil, err
	}
	if task.Status.State.Terminal() {
		err = types.TaskNotCancelable(params.ID, task.Status.State)
		return nil, err
	}

	q := h.queues.Tap(params.ID)
	if q == nil {
		q = h.queues.CreateOrTap(params.ID)
	}

	reqCtx := &RequestContext{TaskID: task.ID, ContextID: task.ContextID, Task: task}
	if cancelErr := h.executor.Cancel(ctx, reqCtx, q); cancelErr != nil {
		h.logger.Warn(ctx, "executor cancel failed", "taskId", params.ID, "error", cancelErr)
	}

	h.mu.Lock()
	running, hasRunning := h.runningAgents[params.ID]
	h.mu.Unlock()
	var done chan error
	if hasRunning {
		running.cancel()
		done = running.done
	}

	tm := taskmanager.New(h.store, task.ID, task.ContextID)
	consumer := aggregator.NewConsumer(q, done)
	agg := aggregator.New(tm)
	result, consumeErr := agg.ConsumeAll(ctx, consumer)
	if consumeErr != nil {
		err = types.Internal(fmt.Sprintf("cancel: %v", consumeErr))
		return nil, err
	}
	final, ok := result.(*types.Task)
	if !ok {
		err = types.Internal("cancel: agent did not produce a terminal task")
		return nil, err
	}

	h.cleanup(params.ID)
	return final, nil
}

func (h *Handler) cleanup(taskID string) {
	h.mu.Lock()
	delete(h.runningAgents, taskID)
	h.mu.Unlock()
	h.queues.Close(taskID)
	h.metrics.AdjustQueueDepth(context.Background(), -1)
}

// prepareSend resolves ids, applies the inbound message to any existing
// task, and creates/taps the event queue, shared by OnMessageSend and
// OnMessageSendStream.
func (h *Handler) prepareSend(ctx context.Context, params types.MessageSendParams) (tm *taskmanager.Manager, reqCtx *RequestContext, q *queue.EventQueue, queueKey string, err error) {
	msg := params.Message
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	taskID := ""
	if msg.TaskID != nil {
		taskID = *msg.TaskID
	}
	contextID := ""
	if msg.ContextID != nil {
		contextID = *msg.ContextID
	} else {
		contextID = uuid.NewString()
		msg.ContextID = &contextID
	}

	tm = taskmanager.New(h.store, taskID, contextID)

	var existing *types.Task
	if taskID != "" {
		existing, err = tm.GetTask(ctx)
		if err != nil {
			return nil, nil, nil, "", err
		}
		if existing != nil {
			updated := tm.UpdateWithMessage(&msg, existing)
			if err = h.store.Put(ctx, updated); err != nil {
				return nil, nil, nil, "", err
			}
			existing = updated
		}
	}

	reqCtx = &RequestContext{TaskID: taskID, ContextID: contextID, Task: existing, Message: &msg}

	queueKey = taskID
	if queueKey == "" {
		queueKey = "pending-" + uuid.NewString()
	}
	q = h.queues.CreateOrTap(queueKey)
	h.metrics.AdjustQueueDepth(ctx, 1)
	return tm, reqCtx, q, queueKey, nil
}

// launch starts executor.Execute asynchronously, registering it in
// runningAgents under queueKey so onCancelTask and the consumer's
// producer-done signal can observe it.
func (h *Handler) launch(reqCtx *RequestContext, q *queue.EventQueue, queueKey string) chan error {
	execCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	h.mu.Lock()
	h.runningAgents[queueKey] = &runningAgent{cancel: cancel, done: done}
	h.mu.Unlock()

	go func() {
		err := h.executor.Execute(execCtx, reqCtx, q)
		q.CloseWithError(err)
		done <- err
		close(done)
	}()
	return done
}

// rekey moves a pending-prefixed queue/runningAgent registration to the
// task id the executor announced, once the TaskManager has resolved it.
func (h *Handler) rekey(queueKey, resolvedID string) string {
	if resolvedID == "" || resolvedID == queueKey {
		return queueKey
	}
	h.queues.Rekey(queueKey, resolvedID)
	h.mu.Lock()
	if ra, ok := h.runningAgents[queueKey]; ok {
		delete(h.runningAgents, queueKey)
		h.runningAgents[resolvedID] = ra
	}
	h.mu.Unlock()
	return resolvedID
}

// watchAndRekey polls tm.TaskID and rekeys queueKey to it as soon as it
// resolves, so a concurrent tasks/cancel or tasks/resubscribe naming the
// real task id can find the queue the executor is still writing to even
// while the original message/send call is still blocked consuming it.
func (h *Handler) watchAndRekey(tm *taskmanager.Manager, queueKey string, done <-chan error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if id := tm.ResolvedTaskID(); id != "" {
			h.rekey(queueKey, id)
			return
		}
		select {
		case <-done:
			h.rekey(queueKey, tm.ResolvedTaskID())
			return
		case <-ticker.C:
		}
	}
}

// OnMessageSend implements message/send: the blocking variant.
func (h *Handler) OnMessageSend(ctx context.Context, params types.MessageSendParams) (types.Event, error) {
	ctx, end := h.tracer.StartOperation(ctx, "message/send")
	var err error
	defer func() { end(err) }()

	tm, reqCtx, q, queueKey, err := h.prepareSend(ctx, params)
	if err != nil {
		return nil, err
	}
	done := h.launch(reqCtx, q, queueKey)
	go h.watchAndRekey(tm, queueKey, done)

	agg := aggregator.New(tm)
	consumer := aggregator.NewConsumer(q, done)
	result, interrupted, consumeErr := agg.ConsumeAndBreakOnInterrupt(ctx, consumer)
	if consumeErr != nil {
		err = types.Internal(fmt.Sprintf("message/send: %v", consumeErr))
		return nil, err
	}

	resolvedKey := h.rekey(queueKey, tm.ResolvedTaskID())

	if task, ok := result.(*types.Task); ok {
		if reqCtx.TaskID != "" && task.ID != reqCtx.TaskID {
			err = types.Internal("task id mismatch in agent response")
			return nil, err
		}
	}

	if interrupted {
		if task, ok := result.(*types.Task); ok {
			h.metrics.RecordInterrupt(ctx, task.ID)
		}
		return result, nil
	}
	h.cleanup(resolvedKey)
	return result, nil
}

// OnMessageSendStream implements message/stream: launches the executor and
// returns a Publisher delivering every observed event, and fires push
// notifications as watchAndNotify describes. Cleanup runs once the producer
// completes.
func (h *Handler) OnMessageSendStream(ctx context.Context, params types.MessageSendParams) (*aggregator.Publisher, error) {
	ctx, end := h.tracer.StartOperation(ctx, "message/stream")
	tm, reqCtx, q, queueKey, err := h.prepareSend(ctx, params)
	if err != nil {
		end(err)
		return nil, err
	}
	done := h.launch(reqCtx, q, queueKey)
	go h.watchAndRekey(tm, queueKey, done)

	agg := aggregator.New(tm)
	consumer := aggregator.NewConsumer(q, done)
	pub := agg.ConsumeAndEmit(ctx, consumer)

	// Push notifications observe the same fold independently of whatever
	// the caller does with pub.Events(): polling agg.GetCurrentResult()
	// avoids contending with the caller for receives off the publisher's
	// single-delivery channel.
	go h.watchAndNotify(ctx, agg, done)

	go func() {
		<-done
		resolvedKey := h.rekey(queueKey, tm.ResolvedTaskID())
		h.cleanup(resolvedKey)
		end(pub.Err())
	}()

	return pub, nil
}

// watchAndNotify polls agg every 100ms and forwards the current snapshot to
// the push sink whenever its task state differs from the last state sent,
// and once more when done fires. A snapshot that changes only artifacts or
// history is not forwarded, and a state that is entered and left between
// two polls is never sent. Best
// effort throughout: errors from the sink are never surfaced here either,
// per push.Sink.Notify's own contract.
func (h *Handler) watchAndNotify(ctx context.Context, agg *aggregator.Aggregator, done <-chan error) {
	sink := h.pushSink()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var lastState types.TaskState
	var seenAny bool
	notify := func() {
		task := agg.GetCurrentResult()
		if task == nil {
			return
		}
		if seenAny && task.Status.State == lastState {
			return
		}
		seenAny = true
		lastState = task.Status.State
		sink.Notify(ctx, task)
	}
	for {
		select {
		case <-done:
			notify()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify()
		}
	}
}

// OnResubscribeToTask implements tasks/resubscribe: attaches to an
// in-progress task's live event stream. Late subscribers see future events
// only; there must already be a live queue for the task (i.e. the original
// executor invocation is still running), or this fails TaskNotFound.
func (h *Handler) OnResubscribeToTask(ctx context.Context, params types.TaskIDParams) (*aggregator.Publisher, error) {
	ctx, end := h.tracer.StartOperation(ctx, "tasks/resubscribe")
	var err error
	defer func() { end(err) }()

	task, ok, getErr := h.store.Get(ctx, params.ID)
	if getErr != nil {
		err = getErr
		return nil, err
	}
	if !ok {
		err = types.TaskNotFound(params.ID)
		return nil, err
	}
	tap := h.queues.Tap(params.ID)
	if tap == nil {
		err = types.TaskNotFound(params.ID)
		return nil, err
	}

	tm := taskmanager.New(h.store, task.ID, task.ContextID)
	agg := aggregator.New(tm)
	consumer := aggregator.NewConsumer(tap, nil)
	return agg.ConsumeAndEmit(ctx, consumer), nil
}

// OnSetPushNotificationConfig implements tasks/pushNotificationConfig/set.
func (h *Handler) OnSetPushNotificationConfig(ctx context.Context, p types.TaskPushNotificationConfig) (types.TaskPushNotificationConfig, error) {
	if h.pushConfigs == nil {
		return types.TaskPushNotificationConfig{}, types.PushNotSupported()
	}
	if _, ok, err := h.store.Get(ctx, p.TaskID); err != nil {
		return types.TaskPushNotificationConfig{}, err
	} else if !ok {
		return types.TaskPushNotificationConfig{}, types.TaskNotFound(p.TaskID)
	}
	cfg, err := h.pushConfigs.Set(ctx, p.TaskID, p.PushNotificationConfig)
	if err != nil {
		return types.TaskPushNotificationConfig{}, err
	}
	return types.TaskPushNotificationConfig{TaskID: p.TaskID, PushNotificationConfig: cfg}, nil
}

// OnGetPushNotificationConfig implements tasks/pushNotificationConfig/get.
func (h *Handler) OnGetPushNotificationConfig(ctx context.Context, params types.TaskIDParams) (types.TaskPushNotificationConfig, error) {
	if h.pushConfigs == nil {
		return types.TaskPushNotificationConfig{}, types.PushNotSupported()
	}
	if _, ok, err := h.store.Get(ctx, params.ID); err != nil {
		return types.TaskPushNotificationConfig{}, err
	} else if !ok {
		return types.TaskPushNotificationConfig{}, types.TaskNotFound(params.ID)
	}
	cfg, ok, err := h.pushConfigs.Get(ctx, params.ID, params.ConfigID)
	if err != nil {
		return types.TaskPushNotificationConfig{}, err
	}
	if !ok {
		return types.TaskPushNotificationConfig{}, types.TaskNotFound(params.ID)
	}
	return types.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: cfg}, nil
}

// OnListPushNotificationConfig implements tasks/pushNotificationConfig/list.
func (h *Handler) OnListPushNotificationConfig(ctx context.Context, params types.TaskIDParams) ([]types.TaskPushNotificationConfig, error) {
	if h.pushConfigs == nil {
		return nil, types.PushNotSupported()
	}
	if _, ok, err := h.store.Get(ctx, params.ID); err != nil {
		return nil, err
	} else if !ok {
		return nil, types.TaskNotFound(params.ID)
	}
	cfgs, err := h.pushConfigs.List(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	result := make([]types.TaskPushNotificationConfig, len(cfgs))
	for i, cfg := range cfgs {
		result[i] = types.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: cfg}
	}
	return result, nil
}

// OnDeletePushNotificationConfig implements tasks/pushNotificationConfig/delete.
func (h *Handler) OnDeletePushNotificationConfig(ctx context.Context, params types.TaskIDParams) error {
	if h.pushConfigs == nil {
		return types.PushNotSupported()
	}
	if _, ok, err := h.store.Get(ctx, params.ID); err != nil {
		return err
	} else if !ok {
		return types.TaskNotFound(params.ID)
	}
	return h.pushConfigs.Delete(ctx, params.ID, params.ConfigID)
}
