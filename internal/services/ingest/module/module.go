// Package module wires ingestion runs into the API using modkit
package module

import (
	"net/http"

	modkit "recallwatch/internal/modkit"
	"recallwatch/internal/modkit/httpkit"
	str "recallwatch/internal/platform/strings"

	connectordom "recallwatch/internal/services/connector/domain"
	duprepo "recallwatch/internal/services/dedup/repo"
	dupsvc "recallwatch/internal/services/dedup/service"
	ingesthttp "recallwatch/internal/services/ingest/http"
	ingestrepo "recallwatch/internal/services/ingest/repo"
	ingestsvc "recallwatch/internal/services/ingest/service"
	recallsrepo "recallwatch/internal/services/recalls/repo"
	recallssvc "recallwatch/internal/services/recalls/service"
)

// Ports declares the injected cross-module collaborators: the connector's
// fetcher and the recalls write path
type Ports struct {
	Fetcher connectordom.FetcherPort
	Recalls recallssvc.Service
}

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *ingestsvc.Service
}

// New constructs an ingest module with the provided dependencies and options
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("ingest"),
		modkit.WithPrefix("/runs"),
	}, opts...)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Fetcher == nil {
		panic("ingest module requires the connector Fetcher port")
	}
	if injected.Recalls == nil {
		panic("ingest module requires the recalls service port")
	}

	svc := ingestsvc.New(ingestsvc.Deps{
		DB:      deps.PG,
		Runs:    ingestrepo.NewPG(),
		Groups:  duprepo.NewPG(),
		Records: recallsrepo.NewPG(),
		Fetcher: injected.Fetcher,
		Recalls: injected.Recalls,
		Recon:   dupsvc.New(dupsvc.Config{}),
	}, ingestsvc.Config{})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = svc

	external := b.Register
	m.register = func(r httpkit.Router) {
		ingesthttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Service exposes the orchestrator for the CLI and scheduler
func (m *Module) Service() *ingestsvc.Service { return m.svc }

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
