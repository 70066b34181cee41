// Package module wires the connector worker service and exposes its ports
package module

import (
	"recallwatch/internal/adapters/sources"
	"recallwatch/internal/modkit"
	"recallwatch/internal/modkit/httpkit"
	connectordom "recallwatch/internal/services/connector/domain"
	"recallwatch/internal/services/connector/service"
)

// Ports exposes the connector's fetcher for cross-module wiring
type Ports struct {
	Fetcher  connectordom.FetcherPort
	Registry *sources.Registry
}

// Module defines the connector worker module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the connector worker module with its ports
func New(deps modkit.Deps, overrides Options) *Module {
	// Load defaults, then apply non-zero overrides
	opts := FromConfig(deps.Cfg)

	if overrides.UserAgent != "" {
		opts.UserAgent = overrides.UserAgent
	}
	if overrides.OverridesPath != "" {
		opts.OverridesPath = overrides.OverridesPath
	}
	if overrides.Workers != 0 {
		opts.Workers = overrides.Workers
	}
	if overrides.MaxRetries != 0 {
		opts.MaxRetries = overrides.MaxRetries
	}
	if overrides.RetryBase != 0 {
		opts.RetryBase = overrides.RetryBase
	}
	if overrides.RequestTimeout != 0 {
		opts.RequestTimeout = overrides.RequestTimeout
	}
	if overrides.MaxPages != 0 {
		opts.MaxPages = overrides.MaxPages
	}

	client := sources.NewClient(sources.ClientOptions{
		UserAgent: opts.UserAgent,
		Timeout:   opts.RequestTimeout,
	})
	reg, err := sources.NewRegistry(client, opts.OverridesPath)
	if err != nil {
		panic("connector module: " + err.Error())
	}

	svc := service.New(reg, service.Config{
		MaxWorkers:     opts.Workers,
		MaxRetries:     opts.MaxRetries,
		RetryBase:      opts.RetryBase,
		RequestTimeout: opts.RequestTimeout,
		MaxPages:       opts.MaxPages,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Fetcher: svc, Registry: reg}
	return m
}

// Ports returns the module ports (Fetcher, Registry)
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "connector" }

// Prefix returns the module config prefix (none for worker-only service)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
