// Package pipeline executes a fixed, ordered list of stages against one
// mutable ExecutionContext per request.
//
// Stages run strictly sequentially. Once a stage sets the context's response,
// later stages are skipped unless they opt into always-run semantics; cleanup
// and formatting stages do, so request-scoped state never leaks across
// requests. A failing stage fails the whole request; the engine never retries
// a stage in place.
package pipeline
