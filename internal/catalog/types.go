package catalog

import (
	"github.com/fyrsmithlabs/promptd/internal/injection"
)

// ChainStepDef is one declared step of a chain prompt.
type ChainStepDef struct {
	// PromptID names the prompt executed at this step.
	PromptID string `koanf:"prompt_id" json:"prompt_id"`

	// Args are step-level arguments merged over request arguments.
	Args map[string]string `koanf:"args" json:"args,omitempty"`

	// GateIDs are gates evaluated after this step.
	GateIDs []string `koanf:"gate_ids" json:"gate_ids,omitempty"`

	// OutputMapping maps named outputs to chain template variables.
	OutputMapping map[string]string `koanf:"output_mapping" json:"output_mapping,omitempty"`

	// Injection is step-level injection configuration.
	Injection injection.Config `koanf:"injection" json:"injection,omitempty"`
}

// Prompt is a prompt definition: a template, or a chain of steps.
type Prompt struct {
	ID       string `koanf:"id" json:"id"`
	Name     string `koanf:"name" json:"name,omitempty"`
	Category string `koanf:"category" json:"category,omitempty"`

	// Template is the prompt body for single execution and for steps that
	// reference this prompt.
	Template string `koanf:"template" json:"template"`

	// GateIDs apply to single execution of this prompt.
	GateIDs []string `koanf:"gate_ids" json:"gate_ids,omitempty"`

	// Chain, when non-empty, makes invoking this prompt a chain execution.
	Chain []ChainStepDef `koanf:"chain" json:"chain,omitempty"`

	// Injection is chain-level injection configuration.
	Injection injection.Config `koanf:"injection" json:"injection,omitempty"`
}

// IsChain reports whether invoking this prompt starts a chain.
func (p *Prompt) IsChain() bool {
	return len(p.Chain) > 0
}

// Gate is a quality-gate definition.
type Gate struct {
	ID   string `koanf:"id" json:"id"`
	Name string `koanf:"name" json:"name,omitempty"`

	// Guidance is the review prompt text shown when the gate requires review.
	Guidance string `koanf:"guidance" json:"guidance"`

	// EnforcementMode is blocking, advisory, or informational. Empty means
	// the system default (blocking).
	EnforcementMode string `koanf:"enforcement_mode" json:"enforcement_mode,omitempty"`

	// MaxAttempts bounds retries under blocking enforcement. Zero means the
	// system default.
	MaxAttempts int `koanf:"max_attempts" json:"max_attempts,omitempty"`

	// PassCriteria is the opaque rule text evaluated by the reviewer. Its
	// grammar is defined outside this daemon.
	PassCriteria string `koanf:"pass_criteria" json:"pass_criteria,omitempty"`

	// Temporary marks request-scoped gates registered at runtime.
	Temporary bool `koanf:"-" json:"temporary,omitempty"`
}

// Framework is a methodology definition whose guidance may be injected.
type Framework struct {
	ID       string `koanf:"id" json:"id"`
	Name     string `koanf:"name" json:"name,omitempty"`
	Guidance string `koanf:"guidance" json:"guidance"`

	// Style is optional style/formatting guidance appended under the
	// style-guidance injection type.
	Style string `koanf:"style" json:"style,omitempty"`

	// Injection configures when the framework's guidance is added.
	Injection injection.Config `koanf:"injection" json:"injection,omitempty"`
}

// document is the on-disk shape of one catalog YAML file.
type document struct {
	Prompts    []*Prompt                   `koanf:"prompts"`
	Gates      []*Gate                     `koanf:"gates"`
	Frameworks []*Framework                `koanf:"frameworks"`
	Categories map[string]injection.Config `koanf:"categories"`
}
