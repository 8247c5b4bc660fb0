// Package mcp exposes promptd over the Model Context Protocol.
//
// The server runs on the stdio transport and calls internal services
// directly. Every tool result is a well-formed response: input errors come
// back as guidance content, not protocol errors.
package mcp
