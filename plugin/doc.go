// Package plugin coordinates cross-cutting plugins hooked into the execution
// pipeline. Plugins declare a numeric priority and, at registration time,
// explicit dependency edges on other plugins; the coordinator resolves an
// order (priority first, then dependencies via depth-first search with cycle
// detection) and drives initialize/destroy symmetrically.
//
// The coordinator also runs the hook pipeline: BeforeExecution hooks act as
// admission control and may block an execution; AfterExecution and OnError
// hooks observe outcomes.
package plugin
