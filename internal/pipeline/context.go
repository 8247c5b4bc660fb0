package pipeline

import (
	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

// ValidationStatus is the machine-readable gate status on a response.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationPending ValidationStatus = "pending"
)

// VerdictSyntax is the marker callers must echo back verbatim to resolve a
// pending review.
const VerdictSyntax = "GATE_REVIEW: PASS | GATE_REVIEW: FAIL"

// ResponseMetadata is the machine-readable part of a response.
type ResponseMetadata struct {
	SessionID        string           `json:"session_id,omitempty"`
	ChainID          string           `json:"chain_id,omitempty"`
	CurrentStep      int              `json:"current_step,omitempty"`
	TotalSteps       int              `json:"total_steps,omitempty"`
	ActiveGateIDs    []string         `json:"active_gate_ids,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status,omitempty"`

	// ReviewPrompt and VerdictSyntax are set only while a review is pending.
	ReviewPrompt  string `json:"review_prompt,omitempty"`
	VerdictSyntax string `json:"verdict_syntax,omitempty"`
}

// Response is the outbound result of one pipeline run. Input errors and
// review-required results are well-formed responses, not transport errors.
type Response struct {
	Content  string           `json:"content"`
	Metadata ResponseMetadata `json:"metadata"`
}

// GateContext is the gate-related state accumulated during one run.
type GateContext struct {
	EnabledGateIDs []string
	Mode           gate.EnforcementMode
	ReviewRequired bool
	PassedGateIDs  []string
	FailedGateIDs  []string
	LastOutcome    gate.Outcome
}

// FrameworkContext tracks the methodology selected for this request.
type FrameworkContext struct {
	Framework        *catalog.Framework
	GuidanceInjected bool
}

// ExecutionContext is the per-request record owned by one pipeline run. Its
// fields are additive: a stage adds or replaces its own concern's fields and
// never reverts another stage's writes.
type ExecutionContext struct {
	// Request is the raw inbound envelope.
	Request *command.Request

	// Parsed is set by the parse stage and upgraded to a chain by planning.
	Parsed *command.Parsed

	// Prompt is the catalog definition resolved during planning.
	Prompt *catalog.Prompt

	// Plan is the chosen execution strategy.
	Plan *session.Plan

	// Session is the per-request view of the resolved session.
	Session *session.Context

	// Gates is gate state, populated by the gate stages.
	Gates *GateContext

	// Framework is the selected methodology, if any.
	Framework *FrameworkContext

	// Decisions are the request's injection decisions by type.
	Decisions map[injection.Type]injection.Decision

	// Rendered is the executed step's rendered content.
	Rendered string

	// Metadata is free-form cross-stage signaling.
	Metadata map[string]any

	// InjectionCache and GateCache hold this request's at-most-once decisions.
	// Fresh per request; discarded with the context.
	InjectionCache *injection.Cache
	GateCache      *gate.Cache

	// Response is terminal: once set, only always-run stages still execute.
	Response *Response
}

// NewExecutionContext builds a fresh context for one request.
func NewExecutionContext(req *command.Request) *ExecutionContext {
	return &ExecutionContext{
		Request:        req,
		Metadata:       make(map[string]any),
		InjectionCache: injection.NewCache(),
		GateCache:      gate.NewCache(),
	}
}

// respond sets the terminal response unless one is already present.
func (ec *ExecutionContext) respond(r *Response) {
	if ec.Response == nil {
		ec.Response = r
	}
}
