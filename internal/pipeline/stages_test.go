package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
	"github.com/fyrsmithlabs/promptd/internal/render"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

const testDefinitions = `
prompts:
  - id: greet
    name: Greeting
    category: demo
    template: "Hello {{.name}}!"

  - id: step-one
    category: demo
    template: "Analyze this: {{.input}}"

  - id: step-two
    category: demo
    template: "Summarize the analysis: {{.previous_step_result}}"

  - id: analyze
    name: Two-step analysis
    category: demo
    chain:
      - prompt_id: step-one
        output_mapping:
          result: analysis_output
      - prompt_id: step-two

  - id: audited
    category: demo
    template: "Audited output for {{.input}}"
    gate_ids: [quality-gate]

  - id: noted
    category: demo
    template: "Noted output for {{.input}}"
    gate_ids: [info-gate]

  - id: advised-chain
    name: Advised two-step analysis
    category: demo
    chain:
      - prompt_id: step-one
        gate_ids: [style-gate]
      - prompt_id: step-two

gates:
  - id: quality-gate
    name: Quality gate
    guidance: "Verify the output is complete and accurate."
    enforcement_mode: blocking
    max_attempts: 3

  - id: style-gate
    name: Style gate
    guidance: "Check the output follows the style guide."
    enforcement_mode: advisory
    max_attempts: 2

  - id: info-gate
    name: Info gate
    guidance: "For information only."
    enforcement_mode: informational

frameworks:
  - id: cageerf
    name: CAGEERF
    guidance: "Follow the structured methodology."
    style: "Prefer short sentences."
`

type testHarness struct {
	engine   *Engine
	catalog  *catalog.FileCatalog
	sessions *session.Manager
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.yaml"), []byte(testDefinitions), 0o644))

	cat, err := catalog.NewFileCatalog(dir, nil)
	require.NoError(t, err)

	sessions, err := session.NewManager(nil, session.NewMemoryStore(), nil)
	require.NoError(t, err)

	authority, err := gate.NewAuthority(sessions, nil)
	require.NoError(t, err)

	engine, err := NewDefaultEngine(Dependencies{
		Parser:    command.NewParser(),
		Catalog:   cat,
		Renderer:  render.NewTemplateRenderer(),
		Sessions:  sessions,
		Authority: authority,
		Injection: injection.NewService(nil),
	})
	require.NoError(t, err)

	return &testHarness{engine: engine, catalog: cat, sessions: sessions}
}

func (h *testHarness) run(t *testing.T, req *command.Request) *Response {
	t.Helper()
	resp, err := h.engine.Run(context.Background(), NewExecutionContext(req))
	require.NoError(t, err)
	return resp
}

func TestPipeline_SinglePrompt(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>greet name=World"})

	assert.Equal(t, "Hello World!", resp.Content)
	assert.NotEmpty(t, resp.Metadata.SessionID)
	assert.Equal(t, "chain-greet", resp.Metadata.ChainID)
	assert.Equal(t, 1, resp.Metadata.TotalSteps)
	assert.Empty(t, resp.Metadata.ActiveGateIDs)
}

func TestPipeline_MalformedCommandIsGuidanceNotError(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: "greet"})
	assert.Contains(t, resp.Content, "Could not parse command")
}

func TestPipeline_UnknownPromptIsGuidanceNotError(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>nonexistent"})
	assert.Contains(t, resp.Content, `Unknown prompt "nonexistent"`)
}

func TestPipeline_ChainStepsShareVariables(t *testing.T) {
	h := newHarness(t)

	first := h.run(t, &command.Request{Command: ">>analyze the quarterly report"})
	assert.Equal(t, "Analyze this: the quarterly report", first.Content)
	assert.Equal(t, 2, first.Metadata.TotalSteps)

	// Second request resumes the chain by identity and runs step two with the
	// first step's output in scope.
	second := h.run(t, &command.Request{Command: ">>analyze the quarterly report"})
	assert.Equal(t, "Summarize the analysis: Analyze this: the quarterly report", second.Content)
	assert.Equal(t, first.Metadata.SessionID, second.Metadata.SessionID)
}

func TestPipeline_ForceRestartAbandonsChainProgress(t *testing.T) {
	h := newHarness(t)

	first := h.run(t, &command.Request{Command: ">>analyze input=a"})
	restarted := h.run(t, &command.Request{Command: ">>analyze input=a", ForceRestart: true})

	assert.NotEqual(t, first.Metadata.SessionID, restarted.Metadata.SessionID)
	// The restarted run is back at step one.
	assert.Equal(t, "Analyze this: a", restarted.Content)
}

func TestPipeline_GatedPromptOpensReview(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>audited input=report"})

	assert.Equal(t, ValidationPending, resp.Metadata.ValidationStatus)
	assert.Equal(t, []string{"quality-gate"}, resp.Metadata.ActiveGateIDs)
	assert.Contains(t, resp.Content, "Gate review required")
	assert.Contains(t, resp.Content, "Verify the output is complete and accurate.")
	assert.Contains(t, resp.Content, "Audited output for report")
	assert.Equal(t, VerdictSyntax, resp.Metadata.VerdictSyntax)
	assert.NotEmpty(t, resp.Metadata.ReviewPrompt)
}

func TestPipeline_PassingVerdictResolvesReview(t *testing.T) {
	h := newHarness(t)

	opened := h.run(t, &command.Request{Command: ">>audited input=report"})

	resolved := h.run(t, &command.Request{
		Command:     ">>audited input=report",
		SessionID:   opened.Metadata.SessionID,
		GateVerdict: "GATE_REVIEW: PASS",
	})

	assert.Equal(t, ValidationPassed, resolved.Metadata.ValidationStatus)
	assert.Contains(t, resolved.Content, "Gate review passed")

	s, err := h.sessions.Get(context.Background(), opened.Metadata.SessionID)
	require.NoError(t, err)
	assert.Nil(t, s.PendingReview)
}

func TestPipeline_FailingVerdictRetriesWithHints(t *testing.T) {
	h := newHarness(t)

	opened := h.run(t, &command.Request{Command: ">>audited input=report"})

	failed := h.run(t, &command.Request{
		Command:     ">>audited input=report",
		SessionID:   opened.Metadata.SessionID,
		GateVerdict: "GATE_REVIEW: FAIL",
	})

	assert.Equal(t, ValidationFailed, failed.Metadata.ValidationStatus)
	assert.Contains(t, failed.Content, "Hints")
	assert.Contains(t, failed.Content, "failed review")
}

func TestStricter_UnsetNeverOutranksConfigured(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"advisory over unset", "advisory", "", true},
		{"informational over unset", "informational", "", true},
		{"unset over advisory", "", "advisory", false},
		{"unset over informational", "", "informational", false},
		{"blocking over advisory", "blocking", "advisory", true},
		{"advisory over blocking", "advisory", "blocking", false},
		{"informational over advisory", "informational", "advisory", false},
		{"unrecognized resolves to blocking", "mandatory", "advisory", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stricter(tt.a, tt.b))
		})
	}
}

func TestPipeline_AdvisoryFailRecordsAndContinues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opened := h.run(t, &command.Request{Command: ">>advised-chain the report"})
	assert.Equal(t, ValidationPending, opened.Metadata.ValidationStatus)
	assert.Equal(t, []string{"style-gate"}, opened.Metadata.ActiveGateIDs)

	failed := h.run(t, &command.Request{
		Command:     ">>advised-chain the report",
		SessionID:   opened.Metadata.SessionID,
		GateVerdict: "GATE_REVIEW: FAIL",
	})

	// Advisory enforcement records the failure and moves on: no retry hints,
	// no attempt consumed, review closed, chain advanced.
	assert.Equal(t, ValidationFailed, failed.Metadata.ValidationStatus)
	assert.Contains(t, failed.Content, "enforcement does not block")
	assert.NotContains(t, failed.Content, "Hints")
	assert.Equal(t, 2, failed.Metadata.CurrentStep)

	s, err := h.sessions.Get(ctx, opened.Metadata.SessionID)
	require.NoError(t, err)
	assert.Nil(t, s.PendingReview)
	assert.Equal(t, 0, s.RetryState.AttemptCount)
	require.Len(t, s.RetryState.GateHistory, 1)
	assert.Equal(t, "fail", s.RetryState.GateHistory[0].Decision)
	assert.Equal(t, "advisory", s.RetryState.GateHistory[0].Mode)

	// The next request executes step two with step one's output in scope.
	next := h.run(t, &command.Request{
		Command:   ">>advised-chain the report",
		SessionID: opened.Metadata.SessionID,
	})
	assert.Contains(t, next.Content, "Summarize the analysis: Analyze this: the report")
}

func TestPipeline_InformationalGateNeverOpensReview(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>noted input=x"})

	assert.Contains(t, resp.Content, "Noted output for x")
	assert.NotContains(t, resp.Content, "Gate review required")
	assert.Equal(t, ValidationPassed, resp.Metadata.ValidationStatus)
}

func TestPipeline_AmbiguousVerdictKeepsReviewOpen(t *testing.T) {
	h := newHarness(t)

	opened := h.run(t, &command.Request{Command: ">>audited input=report"})

	still := h.run(t, &command.Request{
		Command:     ">>audited input=report",
		SessionID:   opened.Metadata.SessionID,
		GateVerdict: "looks fine to me",
	})

	assert.Equal(t, ValidationPending, still.Metadata.ValidationStatus)
	assert.Contains(t, still.Content, "Gate review required")

	s, err := h.sessions.Get(context.Background(), opened.Metadata.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, s.PendingReview)
	assert.Equal(t, 0, s.RetryState.AttemptCount)
}

func TestPipeline_TemporaryGatesAreRequestScoped(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{
		Command: ">>greet name=World",
		TemporaryGates: []command.TemporaryGate{
			{ID: "adhoc-check", Guidance: "Check tone is friendly."},
		},
	})

	assert.Contains(t, resp.Metadata.ActiveGateIDs, "adhoc-check")
	assert.Contains(t, resp.Content, "Check tone is friendly.")

	// The cleanup stage unregistered the gate after the run.
	_, err := h.catalog.GetGate("adhoc-check")
	assert.True(t, prompterr.IsNotFound(err))
}

func TestPipeline_CleanModifierSuppressesGateGuidance(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>audited %clean input=report"})

	// The review still opens (enforcement is not injection), but the rendered
	// content carries no injected guidance section.
	assert.Contains(t, resp.Metadata.ReviewPrompt, "Verify the output")
	assert.NotContains(t, resp.Content, "# Quality criteria")
}

func TestPipeline_FrameworkGuidanceInjection(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>greet name=World framework=cageerf"})
	assert.Contains(t, resp.Content, "Follow the structured methodology.")
	assert.Contains(t, resp.Content, "Hello World!")
}

func TestPipeline_UnknownFrameworkLeavesChainStateUntouched(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>greet name=World framework=missing"})
	assert.Contains(t, resp.Content, `Unknown framework "missing"`)

	// The input error responded before execution completed; no step result
	// reached the chain-variable store.
	vars := h.sessions.Variables().BuildTemplateVariables(resp.Metadata.ChainID)
	assert.NotContains(t, vars, "step1_result")
	assert.NotContains(t, vars, "previous_step_result")
}

func TestPipeline_FrameworkStyleInjection(t *testing.T) {
	h := newHarness(t)

	resp := h.run(t, &command.Request{Command: ">>greet name=World framework=cageerf"})
	assert.Contains(t, resp.Content, "# Style\nPrefer short sentences.")
}

func TestPipeline_LeanModifierSuppressesStyleInjection(t *testing.T) {
	h := newHarness(t)

	// %lean keeps the system-prompt guidance but drops the auxiliary types.
	resp := h.run(t, &command.Request{Command: ">>greet %lean name=World framework=cageerf"})
	assert.Contains(t, resp.Content, "Follow the structured methodology.")
	assert.NotContains(t, resp.Content, "Prefer short sentences.")
}

func TestPipeline_GuidedModifierForcesFrameworkInjection(t *testing.T) {
	h := newHarness(t)

	// %clean would normally suppress the framework guidance; %guided wins for
	// system-prompt injection.
	resp := h.run(t, &command.Request{Command: ">>greet %clean %guided name=World framework=cageerf"})
	assert.Contains(t, resp.Content, "Follow the structured methodology.")
}

type fixedScrubber struct{}

func (fixedScrubber) Scrub(text string) string { return "[scrubbed] " + text }

func TestPipeline_ScrubberAppliesToResponses(t *testing.T) {
	h := newHarness(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.yaml"), []byte(testDefinitions), 0o644))
	cat, err := catalog.NewFileCatalog(dir, nil)
	require.NoError(t, err)

	sessions, err := session.NewManager(nil, session.NewMemoryStore(), nil)
	require.NoError(t, err)
	authority, err := gate.NewAuthority(sessions, nil)
	require.NoError(t, err)

	engine, err := NewDefaultEngine(Dependencies{
		Parser:    command.NewParser(),
		Catalog:   cat,
		Renderer:  render.NewTemplateRenderer(),
		Sessions:  sessions,
		Authority: authority,
		Injection: injection.NewService(nil),
		Scrubber:  fixedScrubber{},
	})
	require.NoError(t, err)
	h.engine = engine

	resp, err := engine.Run(context.Background(), NewExecutionContext(&command.Request{Command: ">>greet name=World"}))
	require.NoError(t, err)
	assert.Equal(t, "[scrubbed] Hello World!", resp.Content)
}
