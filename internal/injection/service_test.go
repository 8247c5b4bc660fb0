package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/command"
)

func TestDecide_SystemDefault(t *testing.T) {
	svc := NewService(nil)
	cache := NewCache()

	d := svc.Decide(DecideInput{}, TypeSystemPrompt, cache)

	assert.True(t, d.Inject)
	assert.Equal(t, TierDefault, d.Source)
}

func TestDecide_CleanModifierDisablesEverything(t *testing.T) {
	svc := NewService(nil)
	in := DecideInput{Modifiers: []command.Modifier{command.ModifierClean}}
	cache := NewCache()

	for _, typ := range KnownTypes() {
		d := svc.Decide(in, typ, cache)
		assert.False(t, d.Inject, "type %s", typ)
		assert.Equal(t, TierModifier, d.Source)
	}
}

func TestDecide_LeanKeepsSystemPrompt(t *testing.T) {
	svc := NewService(nil)
	in := DecideInput{Modifiers: []command.Modifier{command.ModifierLean}}
	cache := NewCache()

	assert.True(t, svc.Decide(in, TypeSystemPrompt, cache).Inject)
	assert.False(t, svc.Decide(in, TypeGateGuidance, cache).Inject)
	assert.False(t, svc.Decide(in, TypeStyleGuidance, cache).Inject)
}

func TestDecide_GuidedWinsOverClean(t *testing.T) {
	svc := NewService(nil)
	in := DecideInput{Modifiers: []command.Modifier{command.ModifierClean, command.ModifierGuided}}
	cache := NewCache()

	// Force-inject is checked before disables, but only for system-prompt.
	assert.True(t, svc.Decide(in, TypeSystemPrompt, cache).Inject)
	assert.False(t, svc.Decide(in, TypeGateGuidance, cache).Inject)
}

func TestDecide_OverrideBeatsConfig(t *testing.T) {
	svc := NewService(nil)
	svc.SetOverride(TypeStyleGuidance, false)
	in := DecideInput{
		Global: Config{TypeStyleGuidance: &TierConfig{}},
	}

	d := svc.Decide(in, TypeStyleGuidance, NewCache())
	assert.False(t, d.Inject)
	assert.Equal(t, TierOverride, d.Source)

	svc.ClearOverride(TypeStyleGuidance)
	d = svc.Decide(in, TypeStyleGuidance, NewCache())
	assert.True(t, d.Inject)
	assert.Equal(t, TierGlobal, d.Source)
}

func TestDecide_ClearOverridesBulk(t *testing.T) {
	svc := NewService(nil)
	svc.SetOverride(TypeSystemPrompt, false)
	svc.SetOverride(TypeGateGuidance, false)
	svc.ClearOverrides()

	d := svc.Decide(DecideInput{}, TypeSystemPrompt, NewCache())
	assert.Equal(t, TierDefault, d.Source)
}

func TestDecide_TierPrecedence(t *testing.T) {
	svc := NewService(nil)
	in := DecideInput{
		Step:     Config{TypeGateGuidance: &TierConfig{Disabled: true}},
		Chain:    Config{TypeGateGuidance: &TierConfig{}},
		Global:   Config{TypeGateGuidance: &TierConfig{}},
		Category: Config{TypeGateGuidance: &TierConfig{}},
	}

	d := svc.Decide(in, TypeGateGuidance, NewCache())
	assert.False(t, d.Inject)
	assert.Equal(t, TierStep, d.Source)
}

func TestDecide_CategoryAppliesWhenStepAndChainAbsent(t *testing.T) {
	svc := NewService(nil)
	in := DecideInput{
		Category: Config{TypeSystemPrompt: &TierConfig{Disabled: true}},
		Global:   Config{TypeSystemPrompt: &TierConfig{}},
	}

	d := svc.Decide(in, TypeSystemPrompt, NewCache())
	assert.False(t, d.Inject)
	assert.Equal(t, TierCategory, d.Source)
}

func TestDecide_ConditionalRules(t *testing.T) {
	svc := NewService(nil)

	cfg := Config{TypeSystemPrompt: &TierConfig{Rules: []Rule{
		{When: Condition{ArgPresent: "no_guidance"}, Action: ActionSkip},
		{When: Condition{ChainOnly: true}, Action: ActionInject},
		{When: Condition{}, Action: ActionInherit},
	}}}

	// First rule matches: skip.
	d := svc.Decide(DecideInput{Global: cfg, Args: map[string]string{"no_guidance": "1"}}, TypeSystemPrompt, NewCache())
	assert.False(t, d.Inject)

	// Second rule matches for chains: inject.
	d = svc.Decide(DecideInput{Global: cfg, IsChain: true}, TypeSystemPrompt, NewCache())
	assert.True(t, d.Inject)

	// Only inherit matches: falls through to default inject.
	d = svc.Decide(DecideInput{Global: cfg}, TypeSystemPrompt, NewCache())
	assert.True(t, d.Inject)
	assert.Equal(t, TierGlobal, d.Source)
}

func TestDecide_FrequencyEveryTwo(t *testing.T) {
	svc := NewService(nil)
	cfg := Config{TypeSystemPrompt: &TierConfig{
		Frequency: &Frequency{Mode: FrequencyEvery, Interval: 2},
	}}

	want := map[int]bool{1: true, 2: false, 3: true, 4: false, 5: true}
	for step, expect := range want {
		d := svc.Decide(DecideInput{Chain: cfg, StepKnown: true, CurrentStep: step}, TypeSystemPrompt, NewCache())
		assert.Equal(t, expect, d.Inject, "step %d", step)
	}
}

func TestDecide_FrequencyFirstOnly(t *testing.T) {
	svc := NewService(nil)
	cfg := Config{TypeStyleGuidance: &TierConfig{
		Frequency: &Frequency{Mode: FrequencyFirstOnly},
	}}

	for step := 1; step <= 4; step++ {
		d := svc.Decide(DecideInput{Chain: cfg, StepKnown: true, CurrentStep: step}, TypeStyleGuidance, NewCache())
		assert.Equal(t, step == 1, d.Inject, "step %d", step)
	}
}

func TestDecide_FrequencyNever_IncludingStepOne(t *testing.T) {
	svc := NewService(nil)
	cfg := Config{TypeGateGuidance: &TierConfig{
		Frequency: &Frequency{Mode: FrequencyNever},
	}}

	for step := 1; step <= 3; step++ {
		d := svc.Decide(DecideInput{Chain: cfg, StepKnown: true, CurrentStep: step}, TypeGateGuidance, NewCache())
		assert.False(t, d.Inject, "never must skip step %d", step)
	}
}

func TestDecide_FrequencyIgnoredWhenStepUnknown(t *testing.T) {
	svc := NewService(nil)
	cfg := Config{TypeSystemPrompt: &TierConfig{
		Frequency: &Frequency{Mode: FrequencyNever},
	}}

	d := svc.Decide(DecideInput{Global: cfg}, TypeSystemPrompt, NewCache())
	assert.True(t, d.Inject)
}

func TestDecide_Idempotent(t *testing.T) {
	svc := NewService(nil)
	cache := NewCache()
	in := DecideInput{Global: Config{TypeSystemPrompt: &TierConfig{}}}

	first := svc.Decide(in, TypeSystemPrompt, cache)

	// A changed input after the first call must not change the cached answer.
	svc.SetOverride(TypeSystemPrompt, false)
	second := svc.Decide(in, TypeSystemPrompt, cache)

	assert.Equal(t, first, second)
	assert.Equal(t, first.DecidedAt, second.DecidedAt)
}

func TestDecideAll(t *testing.T) {
	svc := NewService(nil)
	cache := NewCache()

	all := svc.DecideAll(DecideInput{}, cache)

	require.Len(t, all, 3)
	for _, typ := range KnownTypes() {
		assert.True(t, all[typ].Inject)
	}
}

func TestCacheReset(t *testing.T) {
	svc := NewService(nil)
	cache := NewCache()

	svc.Decide(DecideInput{}, TypeSystemPrompt, cache)
	_, ok := cache.Get(TypeSystemPrompt)
	require.True(t, ok)

	cache.Reset()
	_, ok = cache.Get(TypeSystemPrompt)
	assert.False(t, ok)
}
