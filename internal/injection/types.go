package injection

import (
	"sync"
	"time"
)

// Type is a category of guidance text.
type Type string

const (
	// TypeSystemPrompt is methodology/system guidance prepended to a prompt.
	TypeSystemPrompt Type = "system-prompt"

	// TypeGateGuidance is quality-gate criteria text.
	TypeGateGuidance Type = "gate-guidance"

	// TypeStyleGuidance is style/formatting guidance.
	TypeStyleGuidance Type = "style-guidance"
)

// KnownTypes returns the fixed set of injection types, in decision order.
func KnownTypes() []Type {
	return []Type{TypeSystemPrompt, TypeGateGuidance, TypeStyleGuidance}
}

// Tier identifies which cascade level produced a decision.
type Tier string

const (
	TierModifier Tier = "modifier"
	TierOverride Tier = "override"
	TierStep     Tier = "step"
	TierChain    Tier = "chain"
	TierCategory Tier = "category"
	TierGlobal   Tier = "global"
	TierDefault  Tier = "default"
)

// RuleAction is the outcome of a conditional rule.
type RuleAction string

const (
	// ActionSkip short-circuits to inject=false.
	ActionSkip RuleAction = "skip"

	// ActionInject short-circuits to inject=true.
	ActionInject RuleAction = "inject"

	// ActionInherit falls through to frequency/default handling.
	ActionInherit RuleAction = "inherit"
)

// Condition gates a rule on request properties. Zero value matches always.
type Condition struct {
	// ArgPresent matches when the named argument is set on the request.
	ArgPresent string `koanf:"arg_present" json:"arg_present,omitempty"`

	// ChainOnly matches only chain executions.
	ChainOnly bool `koanf:"chain_only" json:"chain_only,omitempty"`
}

// Rule is a conditional attached to a tier.
type Rule struct {
	When   Condition  `koanf:"when" json:"when"`
	Action RuleAction `koanf:"action" json:"action"`
}

// FrequencyMode controls step-based injection cadence.
type FrequencyMode string

const (
	// FrequencyNever always skips, including step 1.
	FrequencyNever FrequencyMode = "never"

	// FrequencyFirstOnly injects only on step 1.
	FrequencyFirstOnly FrequencyMode = "first-only"

	// FrequencyEvery injects on step 1 and every Interval steps after.
	FrequencyEvery FrequencyMode = "every"
)

// Frequency is a step-cadence rule.
type Frequency struct {
	Mode     FrequencyMode `koanf:"mode" json:"mode"`
	Interval int           `koanf:"interval" json:"interval,omitempty"`
}

// TierConfig is one injection type's configuration at one cascade tier.
type TierConfig struct {
	// Disabled wins outright for this tier: inject=false.
	Disabled bool `koanf:"disabled" json:"disabled,omitempty"`

	// Rules are evaluated in order against the request.
	Rules []Rule `koanf:"rules" json:"rules,omitempty"`

	// Frequency applies when a step count is known and no rule short-circuits.
	Frequency *Frequency `koanf:"frequency" json:"frequency,omitempty"`
}

// Config maps injection types to their tier configuration. A type absent from
// the map means the tier is not applicable for that type.
type Config map[Type]*TierConfig

// Decision is the cached outcome for one (request, type) pair.
type Decision struct {
	Type      Type      `json:"type"`
	Inject    bool      `json:"inject"`
	Reason    string    `json:"reason"`
	Source    Tier      `json:"source"`
	DecidedAt time.Time `json:"decided_at"`
}

// Cache holds at-most-one decision per injection type for a single request.
// It is owned by the request's execution context and discarded with it.
type Cache struct {
	mu        sync.Mutex
	decisions map[Type]Decision
}

// NewCache creates an empty per-request cache.
func NewCache() *Cache {
	return &Cache{decisions: make(map[Type]Decision)}
}

// Get returns the cached decision for typ, if any.
func (c *Cache) Get(typ Type) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.decisions[typ]
	return d, ok
}

// put stores a decision unless one already exists, returning the winner.
func (c *Cache) put(typ Type, d Decision) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.decisions[typ]; ok {
		return existing
	}
	c.decisions[typ] = d
	return d
}

// Reset clears all cached decisions. Intended for tests that reprocess the
// same request object.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = make(map[Type]Decision)
}
