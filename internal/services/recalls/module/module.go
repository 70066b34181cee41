// Package module wires recalls into the API using modkit
package module

import (
	"net/http"

	modkit "recallwatch/internal/modkit"
	"recallwatch/internal/modkit/httpkit"
	str "recallwatch/internal/platform/strings"
	recallshttp "recallwatch/internal/services/recalls/http"
	recallsrepo "recallwatch/internal/services/recalls/repo"
	recallssvc "recallwatch/internal/services/recalls/service"
)

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

	svc recallssvc.Service
}

// New constructs a recalls module with the provided dependencies and options
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("recalls"), modkit.WithPrefix("/recalls")}, opts...)...)

	svc := recallssvc.New(deps.PG, recallsrepo.NewPG())

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
		recallshttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Service exposes the recalls service for sibling modules (ingest wiring)
func (m *Module) Service() recallssvc.Service { return m.svc }

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
