package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/hooks"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(nil, NewMemoryStore(), nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresStore(t *testing.T) {
	_, err := NewManager(nil, nil, nil)
	assert.Error(t, err)
}

func TestResolveOrCreate_NewSession(t *testing.T) {
	m := newTestManager(t)

	sc, err := m.ResolveOrCreate(context.Background(), &command.Request{}, Plan{
		PromptID:   "analyze",
		IsChain:    true,
		TotalSteps: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, TagCreateNew, sc.Tag)
	assert.Equal(t, "chain-analyze", sc.ChainID)
	assert.Equal(t, 1, sc.CurrentStep)
	assert.Equal(t, 3, sc.TotalSteps)
	assert.True(t, sc.IsChainExecution)
}

func TestResolveOrCreate_ExplicitSessionID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 2})
	require.NoError(t, err)

	second, err := m.ResolveOrCreate(ctx, &command.Request{SessionID: first.SessionID}, Plan{PromptID: "analyze", TotalSteps: 2})
	require.NoError(t, err)

	assert.Equal(t, TagResumeSessionID, second.Tag)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestResolveOrCreate_UnknownSessionIDFallsThrough(t *testing.T) {
	m := newTestManager(t)

	sc, err := m.ResolveOrCreate(context.Background(), &command.Request{SessionID: "no-such"}, Plan{PromptID: "analyze"})
	require.NoError(t, err)
	assert.Equal(t, TagCreateNew, sc.Tag)
	assert.NotEqual(t, "no-such", sc.SessionID)
}

func TestResolveOrCreate_ChainMatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 3})
	require.NoError(t, err)

	// Same chain identity, no session id.
	second, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 3})
	require.NoError(t, err)

	assert.Equal(t, TagResumeChainMatch, second.Tag)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestResolveOrCreate_ExplicitChainID(t *testing.T) {
	m := newTestManager(t)

	sc, err := m.ResolveOrCreate(context.Background(), &command.Request{ChainID: "my-chain"}, Plan{PromptID: "analyze"})
	require.NoError(t, err)
	assert.Equal(t, "my-chain", sc.ChainID)
}

func TestResolveOrCreate_ForceRestart(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 3})
	require.NoError(t, err)
	m.Variables().StoreStepResult(first.ChainID, 1, "stale output", nil)

	restarted, err := m.ResolveOrCreate(ctx, &command.Request{ForceRestart: true}, Plan{PromptID: "analyze", TotalSteps: 3})
	require.NoError(t, err)

	assert.Equal(t, TagCreateForce, restarted.Tag)
	assert.NotEqual(t, first.SessionID, restarted.SessionID)
	assert.Equal(t, 1, restarted.CurrentStep)

	// Prior session is aborted and its variables are gone.
	old, err := m.Get(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, old.Status)
	assert.NotContains(t, m.Variables().BuildTemplateVariables(first.ChainID), "step1_result")
}

func TestResolveOrCreate_ReviewSessionIDScheme(t *testing.T) {
	m := newTestManager(t)

	sc, err := m.ResolveOrCreate(context.Background(), &command.Request{}, Plan{
		PromptID:      "audit",
		RequiresGates: true,
		GateIDs:       []string{"quality-gate"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^review-audit-\d+$`, sc.SessionID)
}

func TestAdvanceStep_Monotonic(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sc, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 3})
	require.NoError(t, err)

	s, err := m.AdvanceStep(ctx, sc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStep)
	assert.Equal(t, StatusActive, s.Status)

	s, err = m.AdvanceStep(ctx, sc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.CurrentStep)
	assert.Equal(t, StatusActive, s.Status)
}

func TestAdvanceStep_CompletesPastFinalStep(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sc, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "quick", TotalSteps: 1})
	require.NoError(t, err)
	m.Variables().StoreStepResult(sc.ChainID, 1, "done", nil)

	s, err := m.AdvanceStep(ctx, sc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStep)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.True(t, s.IsComplete())

	// Completed chains release their variables.
	assert.NotContains(t, m.Variables().BuildTemplateVariables(sc.ChainID), "step1_result")
}

func TestAttachAndClearReview(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var pending, resolved bool
	m.Hooks().RegisterHandler(hooks.HookReviewPending, func(ctx context.Context, data map[string]interface{}) error {
		pending = true
		return nil
	})
	m.Hooks().RegisterHandler(hooks.HookReviewResolved, func(ctx context.Context, data map[string]interface{}) error {
		resolved = true
		return nil
	})

	sc, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "audit", RequiresGates: true})
	require.NoError(t, err)

	review := &PendingGateReview{
		Prompt:      "review this",
		GateIDs:     []string{"quality-gate"},
		CreatedAt:   time.Now(),
		MaxAttempts: 3,
	}
	require.NoError(t, m.AttachReview(ctx, sc.SessionID, review))
	assert.True(t, pending)

	s, err := m.Get(ctx, sc.SessionID)
	require.NoError(t, err)
	require.NotNil(t, s.PendingReview)
	assert.Equal(t, "review this", s.PendingReview.Prompt)

	require.NoError(t, m.ClearReview(ctx, sc.SessionID))
	assert.True(t, resolved)

	s, err = m.Get(ctx, sc.SessionID)
	require.NoError(t, err)
	assert.Nil(t, s.PendingReview)
}

func TestClearReview_NoReviewIsNoOp(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sc, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "plain"})
	require.NoError(t, err)
	assert.NoError(t, m.ClearReview(ctx, sc.SessionID))
}

func TestAbandon_FiresSessionEndHook(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var ended bool
	m.Hooks().RegisterHandler(hooks.HookSessionEnd, func(ctx context.Context, data map[string]interface{}) error {
		ended = true
		return nil
	})

	sc, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 2})
	require.NoError(t, err)
	require.NoError(t, m.Abandon(ctx, sc.SessionID))

	assert.True(t, ended)
	s, err := m.Get(ctx, sc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, s.Status)
}

func TestAbandonedSessionIsNotResumed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.ResolveOrCreate(ctx, &command.Request{}, Plan{PromptID: "analyze", TotalSteps: 2})
	require.NoError(t, err)
	require.NoError(t, m.Abandon(ctx, first.SessionID))

	second, err := m.ResolveOrCreate(ctx, &command.Request{SessionID: first.SessionID}, Plan{PromptID: "analyze", TotalSteps: 2})
	require.NoError(t, err)
	assert.Equal(t, TagCreateNew, second.Tag)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}
