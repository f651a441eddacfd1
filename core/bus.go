package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/woojubb/robota-go/logging"
)

// HandlerFunc consumes one envelope. In synchronous mode a returned error
// propagates to the caller of Emit; in asynchronous mode it is isolated,
// logged and re-emitted as a plugin.error event.
type HandlerFunc func(ctx context.Context, env Envelope) error

// FilterFunc vetoes envelopes; returning false drops the envelope before any
// handler runs.
type FilterFunc func(env Envelope) bool

type handlerEntry struct {
	id     string
	fn     HandlerFunc
	once   bool
	filter FilterFunc
}

// BusOptions configures a Bus.
type BusOptions struct {
	// AllowedTypes is the dispatch allow-list. Event types not present are
	// silently dropped at Emit. Defaults to the full taxonomy.
	AllowedTypes []EventType

	// Filters maps event types to a global veto applied before any
	// listener runs.
	Filters map[EventType]FilterFunc

	// Async dispatches handlers concurrently with per-handler isolation.
	// When false, handlers run sequentially and the first error aborts
	// the emit.
	Async bool

	// Buffered accumulates envelopes in an ordered queue, dispatched in
	// FIFO order when the queue reaches BufferMaxSize or on the periodic
	// FlushInterval. Buffering changes when delivery happens, never the
	// order.
	Buffered      bool
	BufferMaxSize int
	FlushInterval time.Duration

	// Logger receives isolation and drop diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Bus is the typed publish/subscribe channel extensions use to observe each
// other's lifecycle and execution events.
type Bus struct {
	mu       sync.Mutex
	handlers map[EventType][]*handlerEntry
	allowed  map[EventType]struct{}
	filters  map[EventType]FilterFunc
	buffer   []Envelope
	opts     BusOptions
	logger   logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewBus creates a bus with the given options. Callers that enable buffering
// with a flush interval must Close the bus to stop the flush timer.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{
		AllowedTypes:  AllEventTypes(),
		BufferMaxSize: 100,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	allowed := make(map[EventType]struct{}, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[t] = struct{}{}
	}

	b := &Bus{
		handlers: make(map[EventType][]*handlerEntry),
		allowed:  allowed,
		filters:  opts.Filters,
		opts:     opts,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}

	if opts.Buffered && opts.FlushInterval > 0 {
		b.wg.Add(1)
		go b.flushLoop(opts.FlushInterval)
	}

	return b
}

// SubscribeOptions control a single subscription.
type SubscribeOptions struct {
	// Once removes the handler before its first invocation, so a handler
	// cannot re-trigger itself through re-entrant emission.
	Once bool
	// Filter vetoes individual envelopes for this handler only.
	Filter FilterFunc
}

// On subscribes a handler to an event type and returns the handler id used
// for removal.
func (b *Bus) On(evtType EventType, fn HandlerFunc, optFns ...func(o *SubscribeOptions)) string {
	var opts SubscribeOptions
	for _, optFn := range optFns {
		optFn(&opts)
	}

	entry := &handlerEntry{
		id:     uuid.NewString(),
		fn:     fn,
		once:   opts.Once,
		filter: opts.Filter,
	}

	b.mu.Lock()
	b.handlers[evtType] = append(b.handlers[evtType], entry)
	b.mu.Unlock()

	return entry.id
}

// Off removes the handler with the given id from an event type. Unknown ids
// are ignored.
func (b *Bus) Off(evtType EventType, handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[evtType]
	for i, e := range entries {
		if e.id == handlerID {
			b.handlers[evtType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Emit publishes an envelope under the given type. Types outside the
// allow-list are silently dropped. A global per-type filter may veto the
// envelope before any listener runs. With buffering enabled the envelope is
// queued and delivered later in FIFO order.
func (b *Bus) Emit(ctx context.Context, evtType EventType, env Envelope) error {
	env.Type = evtType
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	if _, ok := b.allowed[evtType]; !ok {
		b.logger.Debug("event dropped: type not in allow-list", "type", string(evtType))
		return nil
	}
	if filter, ok := b.filters[evtType]; ok && filter != nil && !filter(env) {
		b.logger.Debug("event dropped: vetoed by filter", "type", string(evtType))
		return nil
	}

	if b.opts.Buffered {
		var pending []Envelope
		b.mu.Lock()
		b.buffer = append(b.buffer, env)
		if len(b.buffer) >= b.opts.BufferMaxSize {
			pending = b.buffer
			b.buffer = nil
		}
		b.mu.Unlock()

		return b.dispatchAll(ctx, pending)
	}

	return b.dispatch(ctx, env)
}

// FlushBuffer dispatches all buffered envelopes in FIFO order. It is a no-op
// when buffering is disabled or the buffer is empty.
func (b *Bus) FlushBuffer() error {
	b.mu.Lock()
	pending := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	return b.dispatchAll(context.Background(), pending)
}

// Close stops the periodic flush timer and delivers any remaining buffered
// envelopes.
func (b *Bus) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	return b.FlushBuffer()
}

func (b *Bus) flushLoop(interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.FlushBuffer(); err != nil {
				b.logger.Error("buffered dispatch failed", "error", err)
			}
		}
	}
}

func (b *Bus) dispatchAll(ctx context.Context, envs []Envelope) error {
	for _, env := range envs {
		if err := b.dispatch(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// dispatch removes once-handlers before invoking anything, then invokes all
// matching handlers.
func (b *Bus) dispatch(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	entries := b.handlers[env.Type]
	matched := make([]*handlerEntry, 0, len(entries))
	remaining := entries[:0:0]
	for _, e := range entries {
		if e.filter != nil && !e.filter(env) {
			remaining = append(remaining, e)
			continue
		}
		matched = append(matched, e)
		if !e.once {
			remaining = append(remaining, e)
		}
	}
	b.handlers[env.Type] = remaining
	b.mu.Unlock()

	if len(matched) == 0 {
		return nil
	}

	if b.opts.Async {
		var wg sync.WaitGroup
		for _, e := range matched {
			wg.Add(1)
			go func(e *handlerEntry) {
				defer wg.Done()
				b.invokeIsolated(ctx, e, env)
			}(e)
		}
		wg.Wait()
		return nil
	}

	for _, e := range matched {
		if err := e.fn(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// invokeIsolated runs one handler, containing both errors and panics so
// sibling handlers are unaffected. Failures are logged and re-emitted as a
// plugin.error event, except when the failing envelope already is one.
func (b *Bus) invokeIsolated(ctx context.Context, e *handlerEntry, env Envelope) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		err = e.fn(ctx, env)
	}()

	if err == nil {
		return
	}

	b.logger.Error("event handler failed", "type", string(env.Type), "handler", e.id, "error", err)

	if env.Type == EventPluginError {
		return
	}
	errEnv := NewEnvelope(EventPluginError)
	errEnv.ExecutionID = env.ExecutionID
	errEnv.SessionID = env.SessionID
	errEnv.UserID = env.UserID
	errEnv.Payload = ErrorPayload{Source: string(env.Type), Message: err.Error()}
	errEnv.Error = err.Error()
	if emitErr := b.Emit(ctx, EventPluginError, errEnv); emitErr != nil {
		b.logger.Error("failed to re-emit handler error", "error", emitErr)
	}
}
