package gate

import (
	"sync"
	"time"
)

// VerdictDecision is a parsed verdict outcome.
type VerdictDecision string

const (
	DecisionPass VerdictDecision = "pass"
	DecisionFail VerdictDecision = "fail"
)

// Source is the provenance of raw verdict text. It gates which textual
// patterns are trusted during parsing.
type Source string

const (
	// SourceManual is freeform user text; only the explicit marker matches.
	SourceManual Source = "manual"

	// SourceAutomatic is text produced by an automated check.
	SourceAutomatic Source = "automatic"

	// SourceAnalysis is text produced by a model's self-review.
	SourceAnalysis Source = "analysis"
)

// Verdict is the parsed pass/fail outcome of a gate review.
type Verdict struct {
	Decision VerdictDecision `json:"decision"`
	Raw      string          `json:"raw"`
	Source   Source          `json:"source"`
}

// EnforcementMode is how strictly a failing verdict affects flow.
type EnforcementMode string

const (
	// ModeBlocking prevents continuation on a failing verdict.
	ModeBlocking EnforcementMode = "blocking"

	// ModeAdvisory records a failing verdict but execution proceeds.
	ModeAdvisory EnforcementMode = "advisory"

	// ModeInformational records the verdict only; it never affects flow.
	ModeInformational EnforcementMode = "informational"
)

// Outcome is the authority's ruling after recording a verdict.
type Outcome string

const (
	// OutcomeContinue lets the chain advance.
	OutcomeContinue Outcome = "continue"

	// OutcomeRetry re-issues the prompt with retry hints attached.
	OutcomeRetry Outcome = "retry"

	// OutcomeAwaitingUserAction means the retry budget is exhausted and the
	// caller must resolve the review explicitly.
	OutcomeAwaitingUserAction Outcome = "awaiting-user-action"
)

// Action is a caller's explicit resolution of an exhausted review.
type Action string

const (
	ActionRetry Action = "retry"
	ActionSkip  Action = "skip"
	ActionAbort Action = "abort"
)

// Decision is the authority's top-level enforcement decision for one request.
type Decision struct {
	Mode           EnforcementMode `json:"mode"`
	ReviewRequired bool            `json:"review_required"`
	GateIDs        []string        `json:"gate_ids,omitempty"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// Cache holds the at-most-once enforcement decision for a single request.
// It lives on the request's execution context and is discarded with it.
type Cache struct {
	mu       sync.Mutex
	decision *Decision
}

// NewCache creates an empty per-request cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached decision, or nil when none has been computed.
func (c *Cache) Get() *Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

// put stores the decision unless one already exists; the first computed
// decision wins for the lifetime of the request.
func (c *Cache) put(d *Decision) *Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decision == nil {
		c.decision = d
	}
	return c.decision
}

// Reset discards the cached decision. Intended for reprocessing the same
// request object in tests.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decision = nil
}
