// Package storage defines the narrow persistence contract the runtime
// consumes for conversation history and usage records, plus a process-local
// in-memory implementation suitable for tests and local development. Durable
// backends live in subpackages.
package storage
