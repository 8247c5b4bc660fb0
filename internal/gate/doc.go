// Package gate is the only component allowed to interpret gate verdicts and
// decide whether a chain continues, retries, or waits for the caller.
//
// Verdicts are derived, never stored: raw review text is re-parsed on every
// request, and only its effect on the session's retry state persists. The
// parser trusts different patterns depending on where the text came from, so
// freeform user text cannot accidentally pass a gate.
package gate
