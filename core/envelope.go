package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of runtime event. The taxonomy covers module
// lifecycle, execution progress, conversation and tool activity, plugin
// failures and free-form custom events.
type EventType string

// Lifecycle events emitted by the registry and coordinator.
const (
	EventModuleRegistered         EventType = "module.registered"
	EventModuleUnregistered       EventType = "module.unregistered"
	EventModuleInitializeStart    EventType = "module.initialize.start"
	EventModuleInitializeComplete EventType = "module.initialize.complete"
	EventModuleInitializeError    EventType = "module.initialize.error"
	EventModuleExecutionStart     EventType = "module.execution.start"
	EventModuleExecutionComplete  EventType = "module.execution.complete"
	EventModuleExecutionError     EventType = "module.execution.error"
	EventModuleDisposeStart       EventType = "module.dispose.start"
	EventModuleDisposeComplete    EventType = "module.dispose.complete"
	EventModuleDisposeError       EventType = "module.dispose.error"
)

// Execution and cross-cutting events.
const (
	EventExecutionStart        EventType = "execution.start"
	EventExecutionComplete     EventType = "execution.complete"
	EventExecutionError        EventType = "execution.error"
	EventConversationMessage   EventType = "conversation.message"
	EventConversationComplete  EventType = "conversation.complete"
	EventToolExecutionStart    EventType = "tool.execution.start"
	EventToolExecutionComplete EventType = "tool.execution.complete"
	EventToolExecutionError    EventType = "tool.execution.error"
	EventPluginError           EventType = "plugin.error"
	EventCustom                EventType = "custom"
)

// AllEventTypes returns the complete taxonomy, suitable as a bus allow-list.
func AllEventTypes() []EventType {
	return []EventType{
		EventModuleRegistered, EventModuleUnregistered,
		EventModuleInitializeStart, EventModuleInitializeComplete, EventModuleInitializeError,
		EventModuleExecutionStart, EventModuleExecutionComplete, EventModuleExecutionError,
		EventModuleDisposeStart, EventModuleDisposeComplete, EventModuleDisposeError,
		EventExecutionStart, EventExecutionComplete, EventExecutionError,
		EventConversationMessage, EventConversationComplete,
		EventToolExecutionStart, EventToolExecutionComplete, EventToolExecutionError,
		EventPluginError, EventCustom,
	}
}

// Payload is the tagged union of event payload shapes. Each event type carries
// one concrete payload schema instead of an untyped attribute bag.
type Payload interface{ isPayload() }

// LifecyclePayload accompanies module.* lifecycle events.
type LifecyclePayload struct {
	Extension string
	Phase     string
	Duration  time.Duration
}

func (LifecyclePayload) isPayload() {}

// ExecutionPayload accompanies execution.* and module.execution.* events.
type ExecutionPayload struct {
	Extension string
	Result    *ExecutionResult
}

func (ExecutionPayload) isPayload() {}

// ConversationPayload accompanies conversation.* events.
type ConversationPayload struct {
	Role    string
	Message string
}

func (ConversationPayload) isPayload() {}

// ToolPayload accompanies tool.* events.
type ToolPayload struct {
	Tool      string
	Arguments string
	Result    any
}

func (ToolPayload) isPayload() {}

// ErrorPayload accompanies plugin.error and *.error events.
type ErrorPayload struct {
	Source  string
	Message string
}

func (ErrorPayload) isPayload() {}

// CustomPayload carries caller-defined data on custom events.
type CustomPayload struct {
	Name string
	Data map[string]any
}

func (CustomPayload) isPayload() {}

// Envelope is the immutable unit of communication on the event bus. After
// emission it must be treated as read-only; it is consumed by zero or more
// subscribed handlers.
type Envelope struct {
	// ID uniquely identifies this envelope.
	ID string
	// Type is the event type the envelope was emitted under.
	Type EventType
	// Timestamp is the UTC emission time.
	Timestamp time.Time
	// ExecutionID, SessionID and UserID correlate the envelope with the
	// execution that produced it. Any may be empty.
	ExecutionID string
	SessionID   string
	UserID      string
	// Payload holds the type-specific event data.
	Payload Payload
	// Error carries the failure message for error events, if any.
	Error string
}

// NewEnvelope creates an envelope of the given type with a fresh id and UTC
// timestamp. Correlation ids and payload are filled by the emitter.
func NewEnvelope(evtType EventType) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      evtType,
		Timestamp: time.Now().UTC(),
	}
}

// WithCorrelation returns a copy of the envelope carrying the execution
// context's correlation ids. A nil context is a no-op.
func (e Envelope) WithCorrelation(ectx *ExecutionContext) Envelope {
	if ectx == nil {
		return e
	}
	e.ExecutionID = ectx.ExecutionID
	e.SessionID = ectx.SessionID
	e.UserID = ectx.UserID
	return e
}
