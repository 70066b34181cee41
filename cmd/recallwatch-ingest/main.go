// Command recallwatch-ingest triggers one ingestion run from the CLI and
// waits for it to finish, printing the per-agency outcomes
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"recallwatch/internal/modkit"
	"recallwatch/internal/modkit/module"
	"recallwatch/internal/platform/config"
	"recallwatch/internal/platform/logger"
	"recallwatch/internal/platform/store"

	connectormod "recallwatch/internal/services/connector/module"
	ingestdom "recallwatch/internal/services/ingest/domain"
	ingestmod "recallwatch/internal/services/ingest/module"
	recallsmod "recallwatch/internal/services/recalls/module"
	recallssvc "recallwatch/internal/services/recalls/service"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		fMode     = flag.String("mode", "incremental", "run mode: full | incremental")
		fAgencies = flag.String("agencies", "", "comma separated agency subset, empty means all")
		fWait     = flag.Duration("wait", 2*time.Hour, "how long to wait for the run to finish")
	)
	flag.Parse()

	mode, ok := ingestdom.ParseMode(*fMode)
	if !ok {
		l.Panic().Str("mode", *fMode).Msg("mode must be full or incremental")
	}
	var agencies []string
	for _, a := range strings.Split(*fAgencies, ",") {
		if a = strings.TrimSpace(a); a != "" {
			agencies = append(agencies, a)
		}
	}

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	connector := connectormod.New(deps, connectormod.Options{})
	recalls := recallsmod.New(deps)
	ingest := ingestmod.New(
		deps,
		modkit.WithPorts(ingestmod.Ports{
			Fetcher: module.MustPortsOf[connectormod.Ports](connector).Fetcher,
			Recalls: module.MustPortsOf[recallssvc.Service](recalls),
		}),
	)
	svc := module.MustPortsOf[ingestdom.TriggerPort](ingest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := svc.TriggerIngestion(ctx, mode, agencies)
	if err != nil {
		l.Panic().Err(err).Msg("trigger failed")
	}
	l.Info().Str("run_id", id).Str("mode", string(mode)).Msg("ingestion run started")

	run, err := waitForRun(ctx, svc, id, *fWait)
	if err != nil {
		// interrupted: ask the orchestrator to stop, then report what we have
		l.Warn().Err(err).Msg("wait aborted, cancelling run")
		_ = svc.CancelRun(context.Background(), id)
		run, _ = svc.GetRun(context.Background(), id)
	}

	names := make([]string, 0, len(run.Outcomes))
	for name := range run.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o := run.Outcomes[name]
		l.Info().
			Str("agency", name).
			Str("status", string(o.Status)).
			Int("fetched", o.Fetched).
			Int("inserted", o.Inserted).
			Int("updated", o.Updated).
			Int("skipped", o.Skipped).
			Int("failed", o.Failed).
			Str("error", o.Error).
			Msg("agency outcome")
	}
	l.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Str("error", run.Error).Msg("run finished")

	if run.Status != ingestdom.RunSucceeded {
		os.Exit(1)
	}
}

// waitForRun polls until the run is terminal, the wait window elapses or
// the context is interrupted
func waitForRun(ctx context.Context, svc ingestdom.TriggerPort, id string, wait time.Duration) (ingestdom.Run, error) {
	deadline := time.Now().Add(wait)
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		run, err := svc.GetRun(ctx, id)
		if err == nil && run.Status.Terminal() {
			return run, nil
		}
		if time.Now().After(deadline) {
			return run, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-t.C:
		}
	}
}
