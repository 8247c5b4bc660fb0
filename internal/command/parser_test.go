package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

func TestParse_SinglePrompt(t *testing.T) {
	p := NewParser()

	parsed, err := p.Parse(">>code-review file=main.go")
	require.NoError(t, err)

	assert.Equal(t, KindSingle, parsed.Kind)
	require.NotNil(t, parsed.Single)
	assert.Equal(t, "code-review", parsed.Single.PromptID)
	assert.Equal(t, "main.go", parsed.Single.Args["file"])
	assert.Equal(t, 1, parsed.StepCount())
}

func TestParse_FreeTextBecomesInput(t *testing.T) {
	p := NewParser()

	parsed, err := p.Parse(">>summarize the quarterly report")
	require.NoError(t, err)

	assert.Equal(t, "summarize", parsed.Single.PromptID)
	assert.Equal(t, "the quarterly report", parsed.Single.Args["input"])
}

func TestParse_Modifiers(t *testing.T) {
	p := NewParser()

	parsed, err := p.Parse(">>refactor %clean %guided target=pkg")
	require.NoError(t, err)

	assert.True(t, parsed.HasModifier(ModifierClean))
	assert.True(t, parsed.HasModifier(ModifierGuided))
	assert.False(t, parsed.HasModifier(ModifierLean))
	assert.Equal(t, "pkg", parsed.Single.Args["target"])
}

func TestParse_Errors(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"missing prefix", "code-review"},
		{"prefix only", ">>"},
		{"unknown modifier", ">>review %turbo"},
		{"empty arg key", ">>review =value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, prompterr.IsInvalidInput(err))
		})
	}
}

func TestPromptID(t *testing.T) {
	single := &Parsed{Kind: KindSingle, Single: &Single{PromptID: "a"}}
	chain := &Parsed{Kind: KindChain, Chain: []Step{{PromptID: "b"}, {PromptID: "c"}}}

	assert.Equal(t, "a", single.PromptID())
	assert.Equal(t, "b", chain.PromptID())
	assert.Equal(t, 2, chain.StepCount())
}
