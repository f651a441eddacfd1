package testutil

import (
	"context"
	"sync"

	"github.com/woojubb/robota-go/core"
)

// Recorder collects envelopes delivered by a bus so tests can assert on
// ordering and contents. Safe for concurrent use with async buses.
type Recorder struct {
	mu   sync.Mutex
	envs []core.Envelope
}

// Handler returns a bus handler that records every envelope it receives.
func (r *Recorder) Handler() core.HandlerFunc {
	return func(ctx context.Context, env core.Envelope) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.envs = append(r.envs, env)
		return nil
	}
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []core.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

// Types returns the recorded event types in delivery order.
func (r *Recorder) Types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]core.EventType, 0, len(r.envs))
	for _, env := range r.envs {
		types = append(types, env.Type)
	}
	return types
}

// Len returns the number of recorded envelopes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}
