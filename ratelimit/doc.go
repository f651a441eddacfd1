// Package ratelimit implements admission control for executions. A Governor
// runs as a plugin in the execution pipeline and rejects requests before they
// execute, based on a token, request and cost budget keyed by caller
// identity.
//
// Three strategies are available: token-bucket (continuous refill with an
// independent request/cost window), fixed-window (wholesale reset once the
// window elapses) and sliding-window. The sliding-window strategy is
// implemented identically to fixed-window, resetting the whole window rather
// than decaying gradually; this mirrors the reference behavior and is
// documented rather than silently corrected.
package ratelimit
