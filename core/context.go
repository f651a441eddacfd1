package core

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionContext carries the correlation identity and input of one execution
// request as it flows through admission control, hooks and the event bus.
// It is created once per execution and treated as read-only by hooks.
type ExecutionContext struct {
	// ExecutionID uniquely identifies this execution.
	ExecutionID string
	// SessionID groups executions belonging to one conversation, if any.
	SessionID string
	// UserID identifies the calling user, if any.
	UserID string
	// Input is the raw request input; admission control estimates token
	// cost from it.
	Input string
	// Model names the AI model the execution targets, used for cost rates.
	Model string
	// StartedAt is when the execution context was created (UTC).
	StartedAt time.Time
	// Metadata carries optional caller-supplied attributes.
	Metadata map[string]any
}

// NewExecutionContext creates an execution context with a fresh execution id.
func NewExecutionContext(sessionID, userID string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		StartedAt:   time.Now().UTC(),
	}
}

// WithInput returns a shallow copy carrying the given input text.
func (c *ExecutionContext) WithInput(input string) *ExecutionContext {
	nc := *c
	nc.Input = input
	return &nc
}

// WithModel returns a shallow copy targeting the given model.
func (c *ExecutionContext) WithModel(model string) *ExecutionContext {
	nc := *c
	nc.Model = model
	return &nc
}

// ExecutionResult is the typed outcome an execution produces. Producing a
// concrete result type here removes the need for defensive property probing
// downstream: consumers switch on fields, not on dynamic shapes.
type ExecutionResult struct {
	// Output is the operation's return value.
	Output any
	// TokensUsed is the actual token consumption reported by the
	// operation, when known. Zero means unreported.
	TokensUsed int
	// Model is the model that served the execution, when known.
	Model string
	// Duration is how long the operation ran.
	Duration time.Duration
}
