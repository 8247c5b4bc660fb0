package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/pipeline"
	"github.com/fyrsmithlabs/promptd/internal/render"
	"github.com/fyrsmithlabs/promptd/internal/services"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

const testDefinitions = `
prompts:
  - id: greet
    name: Greeting
    template: "Hello {{.name}}!"
`

func newTestRegistry(t *testing.T) services.Registry {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.yaml"), []byte(testDefinitions), 0o644))

	cat, err := catalog.NewFileCatalog(dir, nil)
	require.NoError(t, err)

	sessions, err := session.NewManager(nil, session.NewMemoryStore(), nil)
	require.NoError(t, err)

	authority, err := gate.NewAuthority(sessions, nil)
	require.NoError(t, err)

	inj := injection.NewService(nil)

	engine, err := pipeline.NewDefaultEngine(pipeline.Dependencies{
		Parser:    command.NewParser(),
		Catalog:   cat,
		Renderer:  render.NewTemplateRenderer(),
		Sessions:  sessions,
		Authority: authority,
		Injection: inj,
	})
	require.NoError(t, err)

	return services.NewRegistry(services.Options{
		Engine:    engine,
		Catalog:   cat,
		Sessions:  sessions,
		Authority: authority,
		Injection: inj,
	})
}

func TestNewServer(t *testing.T) {
	registry := newTestRegistry(t)

	srv, err := NewServer(nil, registry)
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestNewServer_RequiresRegistry(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestNewServer_RequiresCoreServices(t *testing.T) {
	sessions, err := session.NewManager(nil, session.NewMemoryStore(), nil)
	require.NoError(t, err)

	// Registry without an engine must be rejected.
	_, err = NewServer(nil, services.NewRegistry(services.Options{
		Sessions: sessions,
	}))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "promptd", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.NotNil(t, cfg.Logger)
}
