package injection

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/command"
)

// DecideInput carries everything a decision needs. The caller assembles it
// from the parsed command, the resolved session, and catalog configuration.
type DecideInput struct {
	// Modifiers parsed from the command.
	Modifiers []command.Modifier

	// Args is the request argument bag, for conditional rules.
	Args map[string]string

	// IsChain reports whether this request executes a chain.
	IsChain bool

	// CurrentStep is the 1-based step number. Meaningful when StepKnown.
	CurrentStep int

	// StepKnown reports whether a step count is available for frequency rules.
	StepKnown bool

	// Tier configurations, most specific first. Nil maps are skipped.
	Step     Config
	Chain    Config
	Category Config
	Global   Config
}

// Service computes injection decisions. Runtime overrides are instance state;
// per-request decisions live on the caller's Cache.
type Service struct {
	logger *zap.Logger

	mu        sync.RWMutex
	overrides map[Type]bool
}

// NewService creates a Service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:    logger,
		overrides: make(map[Type]bool),
	}
}

// SetOverride forces the decision for one injection type until cleared.
func (s *Service) SetOverride(typ Type, inject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[typ] = inject
}

// ClearOverride removes the override for one type.
func (s *Service) ClearOverride(typ Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, typ)
}

// ClearOverrides removes every override.
func (s *Service) ClearOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = make(map[Type]bool)
}

// Decide computes the decision for one injection type, returning the cached
// value if this request already decided it.
func (s *Service) Decide(in DecideInput, typ Type, cache *Cache) Decision {
	if cached, ok := cache.Get(typ); ok {
		return cached
	}
	return cache.put(typ, s.compute(in, typ))
}

// DecideAll computes decisions for the fixed set of known types.
func (s *Service) DecideAll(in DecideInput, cache *Cache) map[Type]Decision {
	out := make(map[Type]Decision, 3)
	for _, typ := range KnownTypes() {
		out[typ] = s.Decide(in, typ, cache)
	}
	return out
}

// compute walks the cascade. First applicable tier wins.
func (s *Service) compute(in DecideInput, typ Type) Decision {
	now := time.Now()

	// Tier 1: modifiers. Force-inject is checked before disables.
	if hasModifier(in.Modifiers, command.ModifierGuided) && typ == TypeSystemPrompt {
		return Decision{Type: typ, Inject: true, Reason: "%guided forces system-prompt injection", Source: TierModifier, DecidedAt: now}
	}
	if hasModifier(in.Modifiers, command.ModifierClean) {
		return Decision{Type: typ, Inject: false, Reason: "%clean disables all injection", Source: TierModifier, DecidedAt: now}
	}
	if hasModifier(in.Modifiers, command.ModifierLean) && typ != TypeSystemPrompt {
		return Decision{Type: typ, Inject: false, Reason: "%lean disables " + string(typ), Source: TierModifier, DecidedAt: now}
	}

	// Tier 2: runtime overrides.
	s.mu.RLock()
	override, overridden := s.overrides[typ]
	s.mu.RUnlock()
	if overridden {
		return Decision{Type: typ, Inject: override, Reason: "runtime override", Source: TierOverride, DecidedAt: now}
	}

	// Tiers 3-6: configuration, most specific first.
	tiers := []struct {
		tier Tier
		cfg  Config
	}{
		{TierStep, in.Step},
		{TierChain, in.Chain},
		{TierCategory, in.Category},
		{TierGlobal, in.Global},
	}
	for _, t := range tiers {
		tc, ok := t.cfg[typ]
		if !ok || tc == nil {
			continue
		}
		return s.applyTier(in, typ, t.tier, tc, now)
	}

	// Tier 7: system default.
	return Decision{Type: typ, Inject: true, Reason: "system default", Source: TierDefault, DecidedAt: now}
}

// applyTier evaluates the winning tier's disable flag, rules, and frequency.
func (s *Service) applyTier(in DecideInput, typ Type, tier Tier, tc *TierConfig, now time.Time) Decision {
	if tc.Disabled {
		return Decision{Type: typ, Inject: false, Reason: string(tier) + " config disabled", Source: tier, DecidedAt: now}
	}

	for _, rule := range tc.Rules {
		if !rule.When.matches(in) {
			continue
		}
		switch rule.Action {
		case ActionSkip:
			return Decision{Type: typ, Inject: false, Reason: string(tier) + " rule: skip", Source: tier, DecidedAt: now}
		case ActionInject:
			return Decision{Type: typ, Inject: true, Reason: string(tier) + " rule: inject", Source: tier, DecidedAt: now}
		case ActionInherit:
			// fall through to frequency/default
		}
	}

	if tc.Frequency != nil && in.StepKnown {
		inject, reason := tc.Frequency.applies(in.CurrentStep)
		return Decision{Type: typ, Inject: inject, Reason: reason, Source: tier, DecidedAt: now}
	}

	return Decision{Type: typ, Inject: true, Reason: string(tier) + " config present, no rule matched", Source: tier, DecidedAt: now}
}

// applies evaluates a frequency rule for the given 1-based step.
// "never" skips unconditionally; step 1 is special only for "every".
func (f *Frequency) applies(step int) (bool, string) {
	switch f.Mode {
	case FrequencyNever:
		return false, "frequency: never"
	case FrequencyFirstOnly:
		if step == 1 {
			return true, "frequency: first-only, step 1"
		}
		return false, fmt.Sprintf("frequency: first-only, step %d", step)
	case FrequencyEvery:
		interval := f.Interval
		if interval < 1 {
			interval = 1
		}
		if step == 1 || (step-1)%interval == 0 {
			return true, fmt.Sprintf("frequency: every %d, step %d", interval, step)
		}
		return false, fmt.Sprintf("frequency: every %d, step %d skipped", interval, step)
	default:
		return true, "frequency: unknown mode, defaulting to inject"
	}
}

func (c Condition) matches(in DecideInput) bool {
	if c.ArgPresent != "" {
		if _, ok := in.Args[c.ArgPresent]; !ok {
			return false
		}
	}
	if c.ChainOnly && !in.IsChain {
		return false
	}
	return true
}

func hasModifier(mods []command.Modifier, want command.Modifier) bool {
	for _, m := range mods {
		if m == want {
			return true
		}
	}
	return false
}
