// Package httpapi provides promptd's admin HTTP surface: health probes,
// Prometheus metrics, session inspection, and secret scrubbing.
//
// The MCP stdio transport carries all prompt execution; this API is for
// operators and sidecar tooling only.
package httpapi
