// Package registry tracks registered modules, resolves a dependency-safe
// initialization order from their declared dependency types, and drives
// initialize/execute/dispose with full bookkeeping.
//
// Ordering is a hard guarantee: InitializeAll computes a topological order
// over dependency categories and refuses to start at all when the graph
// contains a cycle or references a type no registered module provides.
// Disposal runs in the exact reverse of the recorded initialization order and
// never lets one misbehaving module block shutdown of the rest.
package registry
