// Package types defines the A2A protocol data types: tasks, messages,
// artifacts, the polymorphic event and part unions, and the JSON-RPC error
// taxonomy. Field names use camelCase JSON tags to conform to the A2A wire
// protocol.
//
//nolint:tagliatelle // A2A protocol requires camelCase JSON field names
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState is the canonical lifecycle state of a Task. States move
// monotonically toward one of the terminal values and never move back out
// of one.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether s is a terminal state: once reached, a Task
// never transitions out of it.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected, TaskStateUnknown:
		return true
	default:
		return false
	}
}

// Interrupt reports whether s blocks task completion awaiting client input.
func (s TaskState) Interrupt() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Task is the authoritative state for a unit of work. Identity
// (ID, ContextID) is assigned once and never changes.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Artifacts []*Artifact    `json:"artifacts,omitempty"`
	History   []*Message     `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Kind      string         `json:"kind"`
}

// TaskStatus is a point-in-time snapshot of a Task's lifecycle state.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Message is a single turn exchanged between a user and an agent. MessageID
// is generated by the caller when absent from an inbound request.
type Message struct {
	MessageID        string         `json:"messageId"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	TaskID           *string        `json:"taskId,omitempty"`
	ContextID        *string        `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Kind             string         `json:"kind"`
}

// Artifact is a structured output deliverable attached to a Task.
type Artifact struct {
	ArtifactID string         `json:"artifactId"`
	Name       string         `json:"name,omitempty"`
	Parts      []Part         `json:"parts"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Part is the tagged union of message/artifact content variants, dispatched
// on Kind. Exactly one of Text, FileBytes+MIMEType, FileURI+MIMEType, or
// Data is populated depending on Kind.
type Part struct {
	Kind string `json:"kind"`

	Text string `json:"text,omitempty"`

	FileBytes []byte `json:"bytes,omitempty"`
	FileURI   string `json:"uri,omitempty"`
	MIMEType  string `json:"mimeType,omitempty"`
	FileName  string `json:"name,omitempty"`

	Data map[string]any `json:"data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

const (
	PartKindText     = "text"
	PartKindFile     = "file"
	PartKindData     = "data"
	fileByBytesMagic = "bytes"
)

// NewTextPart constructs a text Part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewFileBytesPart constructs a file Part carrying inline bytes.
func NewFileBytesPart(name, mimeType string, data []byte) Part {
	return Part{Kind: PartKindFile, FileName: name, MIMEType: mimeType, FileBytes: data}
}

// NewFileURIPart constructs a file Part referencing content by URI.
func NewFileURIPart(name, mimeType, uri string) Part {
	return Part{Kind: PartKindFile, FileName: name, MIMEType: mimeType, FileURI: uri}
}

// NewDataPart constructs a data Part carrying a freeform map.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// Validate reports whether the Part is internally consistent for its Kind.
func (p Part) Validate() error {
	switch p.Kind {
	case PartKindText:
		return nil
	case PartKindFile:
		if len(p.FileBytes) == 0 && p.FileURI == "" {
			return fmt.Errorf("file part requires either bytes or uri")
		}
		if len(p.FileBytes) != 0 && p.FileURI != "" {
			return fmt.Errorf("file part must not set both bytes and uri")
		}
		return nil
	case PartKindData:
		if p.Data == nil {
			return fmt.Errorf("data part requires a non-nil data map")
		}
		return nil
	default:
		return fmt.Errorf("unknown part kind %q", p.Kind)
	}
}

// Event is the polymorphic union of everything an AgentExecutor may enqueue:
// a Task snapshot, a standalone Message, or one of the two streaming-only
// update kinds. Wire-tagged by Kind.
type Event interface {
	EventKind() string
	eventTaskID() string
}

const (
	EventKindTask          = "task"
	EventKindMessage       = "message"
	EventKindStatusUpdate  = "status-update"
	EventKindArtifactEvent = "artifact-update"
)

// EventKind implements Event.
func (t *Task) EventKind() string { return EventKindTask }
func (t *Task) eventTaskID() string {
	if t == nil {
		return ""
	}
	return t.ID
}

// EventKind implements Event.
func (m *Message) EventKind() string { return EventKindMessage }
func (m *Message) eventTaskID() string {
	if m == nil || m.TaskID == nil {
		return ""
	}
	return *m.TaskID
}

// TaskStatusUpdateEvent is a streaming-only event carrying a new TaskStatus.
// Final=true marks the end of the stream for the originating operation.
type TaskStatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Kind      string         `json:"kind"`
}

// EventKind implements Event.
func (e *TaskStatusUpdateEvent) EventKind() string  { return EventKindStatusUpdate }
func (e *TaskStatusUpdateEvent) eventTaskID() string { return e.TaskID }

// TaskArtifactUpdateEvent is a streaming-only event carrying a new or
// updated Artifact. When Append is true, Artifact.Parts are concatenated
// onto the existing artifact of the same ArtifactID instead of replacing it.
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  *Artifact      `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Kind      string         `json:"kind"`
}

// EventKind implements Event.
func (e *TaskArtifactUpdateEvent) EventKind() string  { return EventKindArtifactEvent }
func (e *TaskArtifactUpdateEvent) eventTaskID() string { return e.TaskID }

// IsFinal reports whether e is a terminal event for an EventConsumer: a
// standalone Message, a TaskStatusUpdateEvent with Final=true, or a Task (or
// embedded status) that has reached a terminal TaskState.
func IsFinal(e Event) bool {
	switch ev := e.(type) {
	case *Message:
		return true
	case *Task:
		return ev.Status.State.Terminal()
	case *TaskStatusUpdateEvent:
		return ev.Final || ev.Status.State.Terminal()
	default:
		return false
	}
}

// EventTaskID returns the task id carried by e, or "" if e carries none
// (e.g. a Message with no TaskID set).
func EventTaskID(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventTaskID()
}

// envelope is the wire shape shared by every Event kind: a "kind"
// discriminator plus the raw remainder, decoded a second time into the
// concrete type once the discriminator is known.
type envelope struct {
	Kind string `json:"kind"`
}

// DecodeEvent decodes a JSON-encoded Event by dispatching on its "kind" tag.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	switch env.Kind {
	case EventKindTask:
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case EventKindMessage:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case EventKindStatusUpdate:
		var s TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case EventKindArtifactEvent:
		var a TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return &a, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}

// EncodeEvent marshals e to JSON, stamping its Kind discriminator.
func EncodeEvent(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case *Task:
		ev.Kind = EventKindTask
		return json.Marshal(ev)
	case *Message:
		ev.Kind = EventKindMessage
		return json.Marshal(ev)
	case *TaskStatusUpdateEvent:
		ev.Kind = EventKindStatusUpdate
		return json.Marshal(ev)
	case *TaskArtifactUpdateEvent:
		ev.Kind = EventKindArtifactEvent
		return json.Marshal(ev)
	default:
		return nil, fmt.Errorf("unsupported event type %T", e)
	}
}

// PushNotificationConfig is a per-task outbound webhook registration.
type PushNotificationConfig struct {
	ID             string            `json:"id,omitempty"`
	URL            string            `json:"url"`
	Token          string            `json:"token,omitempty"`
	Authentication map[string]string `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig pairs a task id with one of its configs, the
// shape used by the pushNotificationConfig/* methods.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// AgentCapabilities advertises optional protocol features.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

// AgentSkill describes one capability an agent exposes for discovery.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is the discovery document served outside the JSON-RPC surface.
type AgentCard struct {
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	URL                string                    `json:"url"`
	Version            string                    `json:"version"`
	Capabilities       AgentCapabilities         `json:"capabilities"`
	DefaultInputModes  []string                  `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string                  `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill              `json:"skills,omitempty"`
	SecuritySchemes    map[string]map[string]any `json:"securitySchemes,omitempty"`
}

// TaskQueryParams are the params for tasks/get.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams are the params shared by tasks/cancel, tasks/resubscribe, and
// the pushNotificationConfig/* methods (ConfigID is only meaningful for
// get/delete).
type TaskIDParams struct {
	ID       string         `json:"id"`
	ConfigID string         `json:"pushNotificationConfigId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageSendConfiguration controls how message/send and message/stream
// behave.
type MessageSendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	Blocking            bool     `json:"blocking,omitempty"`
	HistoryLength       *int     `json:"historyLength,omitempty"`
}

// MessageSendParams are the params for message/send and message/stream.
type MessageSendParams struct {
	Message       Message                   `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}
