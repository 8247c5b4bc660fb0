package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/command"
)

// fakeStage is a scriptable stage for engine behavior tests.
type fakeStage struct {
	name       string
	alwaysRuns bool
	fn         func(ec *ExecutionContext) error
	calls      int
}

func (f *fakeStage) Name() string     { return f.name }
func (f *fakeStage) AlwaysRuns() bool { return f.alwaysRuns }

func (f *fakeStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	f.calls++
	if f.fn != nil {
		return f.fn(ec)
	}
	return nil
}

func respondingStage(name string, content string) *fakeStage {
	return &fakeStage{name: name, fn: func(ec *ExecutionContext) error {
		ec.respond(&Response{Content: content})
		return nil
	}}
}

func TestNewEngine_RequiresStages(t *testing.T) {
	_, err := NewEngine(nil, nil)
	assert.Error(t, err)
}

func TestRun_StagesExecuteInOrder(t *testing.T) {
	var order []string
	mk := func(name string) *fakeStage {
		return &fakeStage{name: name, fn: func(ec *ExecutionContext) error {
			order = append(order, name)
			return nil
		}}
	}

	engine, err := NewEngine([]Stage{mk("one"), mk("two"), respondingStage("three", "done")}, nil)
	require.NoError(t, err)

	resp, err := engine.Run(context.Background(), NewExecutionContext(&command.Request{}))
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, []string{"one", "two"}, order)
}

func TestRun_EarlyExitSkipsLaterStages(t *testing.T) {
	skipped := &fakeStage{name: "skipped"}
	cleanup := &fakeStage{name: "cleanup", alwaysRuns: true}

	engine, err := NewEngine([]Stage{respondingStage("terminal", "early"), skipped, cleanup}, nil)
	require.NoError(t, err)

	resp, err := engine.Run(context.Background(), NewExecutionContext(&command.Request{}))
	require.NoError(t, err)

	assert.Equal(t, "early", resp.Content)
	assert.Equal(t, 0, skipped.calls)
	assert.Equal(t, 1, cleanup.calls)
}

func TestRun_StageFailureFailsTheRequest(t *testing.T) {
	boom := errors.New("boom")
	failing := &fakeStage{name: "failing", fn: func(ec *ExecutionContext) error { return boom }}
	after := &fakeStage{name: "after"}

	engine, err := NewEngine([]Stage{failing, after}, nil)
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), NewExecutionContext(&command.Request{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, 0, after.calls)
}

func TestRun_NoResponseIsAnError(t *testing.T) {
	engine, err := NewEngine([]Stage{&fakeStage{name: "noop"}}, nil)
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), NewExecutionContext(&command.Request{}))
	assert.Error(t, err)
}

func TestRespond_FirstResponseWins(t *testing.T) {
	ec := NewExecutionContext(&command.Request{})
	ec.respond(&Response{Content: "first"})
	ec.respond(&Response{Content: "second"})
	assert.Equal(t, "first", ec.Response.Content)
}
