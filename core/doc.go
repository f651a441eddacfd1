// Package core defines the shared contracts of the Robota extension runtime:
// the Extension interface and its descriptor, the lifecycle state machine,
// the typed event envelope and the in-process event bus, execution contexts
// used for correlation, per-extension registration records, and the error
// taxonomy every component reports through.
//
// Sibling packages (registry, plugin, ratelimit, resilience, webhook) consume
// these contracts; core itself has no dependency on them.
package core
