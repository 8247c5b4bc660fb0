// Package catalog is the read-only store of prompt, gate, and framework
// definitions.
//
// Definitions load from YAML files in a directory. A filesystem watcher
// debounces change bursts into single reload messages, so the daemon picks up
// edits without restarting. Request-scoped temporary gates can be registered
// and are removed by the pipeline's cleanup stage.
package catalog
