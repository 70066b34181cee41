// Package api provides the HTTP API for the application
package api

import (
	"context"

	"recallwatch/internal/platform/config"
	"recallwatch/internal/platform/logger"
	phttp "recallwatch/internal/platform/net/http"
	"recallwatch/internal/platform/store"

	"recallwatch/internal/modkit"
	"recallwatch/internal/modkit/httpkit"
	"recallwatch/internal/modkit/module"
	"recallwatch/internal/modkit/swaggerkit"

	metamod "recallwatch/internal/services/api/meta/module"
	ingestmod "recallwatch/internal/services/ingest/module"
	recallsmod "recallwatch/internal/services/recalls/module"
	recallssvc "recallwatch/internal/services/recalls/service"

	// Connector worker module (owns the Fetcher port)
	connectormod "recallwatch/internal/services/connector/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
	}

	// Construct the WORKER connector module first and extract its Fetcher port
	connector := connectormod.New(deps, connectormod.Options{})
	cports := module.MustPortsOf[connectormod.Ports](connector)

	// The recalls module owns the canonical store and the matcher index
	recalls := recallsmod.New(deps)
	rsvc := module.MustPortsOf[recallssvc.Service](recalls)

	// warm the matcher index off the request path; identifier and text
	// lookups are correct but may miss until this completes
	go func() {
		if err := rsvc.WarmIndex(context.Background()); err != nil {
			logger.Named("recalls").Warn().Err(err).Msg("index warm failed")
		}
	}()

	// Inject the connector fetcher and the recalls write path into ingest
	ingest := ingestmod.New(
		deps,
		modkit.WithPorts(ingestmod.Ports{
			Fetcher: cports.Fetcher,
			Recalls: rsvc,
		}),
	)

	mods := []module.Module{
		metamod.New(deps, modkit.WithPorts(metamod.Ports{
			Agencies: cports.Registry.Names(),
		})),
		connector, // include worker so its ports are registered
		recalls,
		ingest, // API module that depends on the connector's Fetcher
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
