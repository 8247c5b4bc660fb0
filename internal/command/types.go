package command

// Kind discriminates the parsed command union.
type Kind string

const (
	// KindSingle is one prompt invocation.
	KindSingle Kind = "single"

	// KindChain is an ordered list of prompt steps under one session.
	KindChain Kind = "chain"
)

// Modifier is a flag parsed from the command that tunes guidance injection.
type Modifier string

const (
	// ModifierClean disables every injection type.
	ModifierClean Modifier = "clean"

	// ModifierLean disables gate and style guidance, keeping system prompts.
	ModifierLean Modifier = "lean"

	// ModifierGuided forces system-prompt injection regardless of config.
	ModifierGuided Modifier = "guided"
)

// Step is one entry in a declared chain.
type Step struct {
	// PromptID names the prompt definition to execute.
	PromptID string `json:"prompt_id"`

	// Args are the step's own arguments, merged over request args.
	Args map[string]string `json:"args,omitempty"`

	// GateIDs are inline gate criteria declared on the step.
	GateIDs []string `json:"gate_ids,omitempty"`

	// OutputMapping maps named outputs to template variable names.
	OutputMapping map[string]string `json:"output_mapping,omitempty"`
}

// Single is the payload for a one-shot prompt invocation.
type Single struct {
	PromptID      string            `json:"prompt_id"`
	Args          map[string]string `json:"args,omitempty"`
	InlineGateIDs []string          `json:"inline_gate_ids,omitempty"`
}

// Parsed is the tagged union produced by the tokenizer. Exactly one of
// Single/Chain is populated, selected by Kind.
type Parsed struct {
	Kind      Kind       `json:"kind"`
	Single    *Single    `json:"single,omitempty"`
	Chain     []Step     `json:"chain,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// PromptID returns the command's primary prompt id: the single prompt, or the
// first chain step's prompt.
func (p *Parsed) PromptID() string {
	switch p.Kind {
	case KindSingle:
		if p.Single != nil {
			return p.Single.PromptID
		}
	case KindChain:
		if len(p.Chain) > 0 {
			return p.Chain[0].PromptID
		}
	}
	return ""
}

// HasModifier reports whether the command carries the given modifier.
func (p *Parsed) HasModifier(m Modifier) bool {
	for _, mod := range p.Modifiers {
		if mod == m {
			return true
		}
	}
	return false
}

// StepCount returns the number of executions this command declares.
func (p *Parsed) StepCount() int {
	if p.Kind == KindChain {
		return len(p.Chain)
	}
	return 1
}

// TemporaryGate is an inline gate definition scoped to one request.
type TemporaryGate struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Guidance string `json:"guidance"`
}

// Request is the inbound envelope handed to the pipeline.
type Request struct {
	// Command is the raw command text, e.g. ">>code-review file=main.go".
	Command string `json:"command"`

	// SessionID optionally names an existing session to resume.
	SessionID string `json:"session_id,omitempty"`

	// ChainID optionally names the chain by logical identity.
	ChainID string `json:"chain_id,omitempty"`

	// ForceRestart skips all resumption and starts a fresh session.
	ForceRestart bool `json:"force_restart,omitempty"`

	// TemporaryGates are request-scoped gate definitions.
	TemporaryGates []TemporaryGate `json:"temporary_gates,omitempty"`

	// GateVerdict carries freeform verdict text echoed back by the caller
	// while a review is pending.
	GateVerdict string `json:"gate_verdict,omitempty"`
}
