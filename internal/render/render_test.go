package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

func TestRender_Substitution(t *testing.T) {
	r := NewTemplateRenderer()

	out, err := r.Render("Review {{.file}} for step {{.step}}", map[string]any{
		"file": "main.go",
		"step": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Review main.go for step 2", out)
}

func TestRender_NilVars(t *testing.T) {
	r := NewTemplateRenderer()

	out, err := r.Render("no variables here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no variables here", out)
}

func TestRender_BadTemplate(t *testing.T) {
	r := NewTemplateRenderer()

	_, err := r.Render("{{.unclosed", nil)
	require.Error(t, err)
	assert.True(t, prompterr.IsInvalidInput(err))
}

func TestRender_ChainVariables(t *testing.T) {
	r := NewTemplateRenderer()

	out, err := r.Render("Previous: {{.previous_step_result}}", map[string]any{
		"previous_step_result": "step one output",
	})
	require.NoError(t, err)
	assert.Equal(t, "Previous: step one output", out)
}
