// Package render substitutes variables into prompt templates.
//
// The Renderer interface is the seam for richer engines; the default
// implementation wraps text/template with map-based variables.
package render

import (
	"bytes"
	"text/template"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// Renderer renders a template with the given variables.
type Renderer interface {
	Render(tmpl string, vars map[string]any) (string, error)
}

// TemplateRenderer is the default text/template implementation.
//
// Missing variables render as zero values rather than failing execution: a
// step template may reference outputs of steps that have not run yet.
type TemplateRenderer struct{}

// NewTemplateRenderer creates a TemplateRenderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render substitutes vars into tmpl.
func (r *TemplateRenderer) Render(tmpl string, vars map[string]any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", prompterr.InvalidInput("parse template", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, normalize(vars)); err != nil {
		return "", prompterr.Unavailable("execute template", err)
	}
	return buf.String(), nil
}

// normalize replaces a nil variable map so template execution never sees a
// nil root.
func normalize(vars map[string]any) map[string]any {
	if vars == nil {
		return map[string]any{}
	}
	return vars
}
