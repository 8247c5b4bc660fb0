package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/secrets"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

func TestRegistry_ReturnsConfiguredServices(t *testing.T) {
	sessions, err := session.NewManager(nil, session.NewMemoryStore(), nil)
	require.NoError(t, err)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)

	inj := injection.NewService(nil)

	r := NewRegistry(Options{
		Sessions:  sessions,
		Injection: inj,
		Scrubber:  scrubber,
	})

	assert.Same(t, sessions, r.Sessions())
	assert.Same(t, inj, r.Injection())
	assert.Same(t, scrubber, r.Scrubber())
	assert.Nil(t, r.Engine())
	assert.Nil(t, r.Catalog())
	assert.Nil(t, r.Authority())
}
