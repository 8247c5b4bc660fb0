package services

import (
	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/pipeline"
	"github.com/fyrsmithlabs/promptd/internal/secrets"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

// Registry provides access to all promptd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Engine() *pipeline.Engine
	Catalog() *catalog.FileCatalog
	Sessions() *session.Manager
	Authority() *gate.Authority
	Injection() *injection.Service
	Scrubber() *secrets.Scrubber
}

// Options configures the registry with service instances.
type Options struct {
	Engine    *pipeline.Engine
	Catalog   *catalog.FileCatalog
	Sessions  *session.Manager
	Authority *gate.Authority
	Injection *injection.Service
	Scrubber  *secrets.Scrubber
}

type registry struct {
	engine    *pipeline.Engine
	catalog   *catalog.FileCatalog
	sessions  *session.Manager
	authority *gate.Authority
	injection *injection.Service
	scrubber  *secrets.Scrubber
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		engine:    opts.Engine,
		catalog:   opts.Catalog,
		sessions:  opts.Sessions,
		authority: opts.Authority,
		injection: opts.Injection,
		scrubber:  opts.Scrubber,
	}
}

func (r *registry) Engine() *pipeline.Engine      { return r.engine }
func (r *registry) Catalog() *catalog.FileCatalog { return r.catalog }
func (r *registry) Sessions() *session.Manager    { return r.sessions }
func (r *registry) Authority() *gate.Authority    { return r.authority }
func (r *registry) Injection() *injection.Service { return r.injection }
func (r *registry) Scrubber() *secrets.Scrubber   { return r.scrubber }
