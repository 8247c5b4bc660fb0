// Package session is the single source of truth for chain progress.
//
// A Session survives across otherwise-stateless requests and records which
// step of a chain is current, the retry state of any gate review, and at most
// one pending review. The Manager resolves whether an incoming request
// continues an existing chain or starts a new one, and owns the per-chain
// variable store used to build chain template variables.
package session
