// Package resilience wraps arbitrary operations with retry, exponential
// backoff and circuit-breaker short-circuiting. An Isolator runs as a plugin
// in the execution pipeline so repeated failures of one extension cannot
// cascade into the rest of the runtime.
//
// The breaker is a two-state machine: it opens when consecutive failures
// reach the threshold and closes again only when a call arrives after the
// timeout has elapsed since the last failure. The reset is optimistic: the
// failure count clears when the probe is admitted, not when it succeeds.
package resilience
