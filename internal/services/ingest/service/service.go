// Package service implements the ingestion orchestrator: one run fans out
// to every agency through the connector, normalizes and persists what came
// back, then reconciles duplicate groups over the affected date window
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"recallwatch/internal/modkit/repokit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/logger"
	connectordom "recallwatch/internal/services/connector/domain"
	dedupdom "recallwatch/internal/services/dedup/domain"
	"recallwatch/internal/services/ingest/domain"
	"recallwatch/internal/services/normalizer"
	recallsdom "recallwatch/internal/services/recalls/domain"
	recallsrepo "recallwatch/internal/services/recalls/repo"
	recallssvc "recallwatch/internal/services/recalls/service"
)

const (
	defaultRunTimeout  = 2 * time.Hour
	defaultDedupWindow = 30 * 24 * time.Hour
	defaultListLimit   = 20
	maxListLimit       = 100
	finishTimeout      = 30 * time.Second
)

// Config holds orchestrator tuning
type Config struct {
	// RunTimeout bounds a whole run; agencies still in flight when it
	// expires count as failed
	RunTimeout time.Duration

	// DedupWindow widens the reconciliation load around the batch so new
	// records can match pre-existing neighbours
	DedupWindow time.Duration
}

func (c *Config) defaults() {
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = defaultDedupWindow
	}
}

// Deps are the orchestrator's collaborators
type Deps struct {
	DB      repokit.TxRunner
	Runs    repokit.Binder[domain.StorageRepo]
	Groups  repokit.Binder[dedupdom.StorageRepo]
	Records repokit.Binder[recallsrepo.Storage]
	Fetcher connectordom.FetcherPort
	Recalls recallssvc.Service
	Recon   dedupdom.ReconcilerPort
}

// Service implements domain.TriggerPort
type Service struct {
	deps Deps
	cfg  Config
	norm *normalizer.Normalizer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// New constructs the orchestrator
func New(deps Deps, cfg Config) *Service {
	if deps.DB == nil || deps.Runs == nil || deps.Groups == nil || deps.Records == nil {
		panic("ingest.Service requires DB and repo binders")
	}
	if deps.Fetcher == nil || deps.Recalls == nil || deps.Recon == nil {
		panic("ingest.Service requires fetcher, recalls and reconciler ports")
	}
	cfg.defaults()
	return &Service{
		deps:    deps,
		cfg:     cfg,
		norm:    normalizer.New(),
		cancels: make(map[string]context.CancelFunc),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// TriggerIngestion creates a queued run and starts it on a detached context
// so the caller's request lifetime does not bound the run
func (s *Service) TriggerIngestion(ctx context.Context, mode domain.RunMode, agencyFilter []string) (string, error) {
	if err := s.validateFilter(agencyFilter); err != nil {
		return "", err
	}

	run := domain.Run{
		ID:           s.newID(),
		Mode:         mode,
		AgencyFilter: agencyFilter,
		Status:       domain.RunQueued,
		CreatedAt:    s.now().UTC(),
	}
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Runs.Bind(q).Create(ctx, run)
	})
	if err != nil {
		return "", err
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RunTimeout)
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, run.ID)
			s.mu.Unlock()
		}()
		s.execute(rctx, run.ID, mode, agencyFilter)
	}()
	return run.ID, nil
}

func (s *Service) validateFilter(agencyFilter []string) error {
	if len(agencyFilter) == 0 {
		return nil
	}
	known := make(map[string]bool)
	for _, n := range s.deps.Fetcher.Agencies() {
		known[n] = true
	}
	for _, n := range agencyFilter {
		if !known[n] {
			return perr.Newf(perr.ErrorCodeInvalidArgument, "unknown agency %q", n)
		}
	}
	return nil
}

// GetRun returns a run by id
func (s *Service) GetRun(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	var ok bool
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		run, ok, e = s.deps.Runs.Bind(q).Get(ctx, id)
		return e
	})
	if err != nil {
		return domain.Run{}, err
	}
	if !ok {
		return domain.Run{}, perr.Newf(perr.ErrorCodeNotFound, "run %s not found", id)
	}
	return run, nil
}

// ListRuns pages runs newest first
func (s *Service) ListRuns(ctx context.Context, f domain.ListFilter) (domain.RunPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var runs []domain.Run
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		runs, e = s.deps.Runs.Bind(q).List(ctx, f, limit)
		return e
	})
	if err != nil {
		return domain.RunPage{}, err
	}

	page := domain.RunPage{Runs: runs}
	if len(runs) == limit {
		last := runs[len(runs)-1]
		page.NextCursor = last.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + last.ID
	}
	return page, nil
}

// CancelRun aborts an in-flight run. The run transitions to failed; data
// already persisted stays (re-ingestion is idempotent, the next run heals)
func (s *Service) CancelRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return perr.Newf(perr.ErrorCodeConflict, "run %s already terminal", id)
	}

	s.mu.Lock()
	cancel, live := s.cancels[id]
	s.mu.Unlock()
	if live {
		cancel()
		return nil
	}

	// no live goroutine for this run (crashed or a previous process owned
	// it); reap it directly
	return s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Runs.Bind(q).Finish(ctx, id, domain.RunFailed, nil, "run cancelled", s.now().UTC())
	})
}

// Shutdown cancels every in-flight run and waits for them to finish
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute drives one run end to end and always records a terminal state
func (s *Service) execute(ctx context.Context, id string, mode domain.RunMode, agencyFilter []string) {
	log := logger.C(ctx).With().Str("run_id", id).Str("mode", string(mode)).Logger()
	start := s.now()

	outcomes := make(map[string]domain.AgencyOutcome)
	status := domain.RunFailed
	errText := ""

	defer func() {
		fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer fcancel()
		ferr := s.deps.DB.Tx(fctx, func(q repokit.Queryer) error {
			return s.deps.Runs.Bind(q).Finish(fctx, id, status, outcomes, errText, s.now().UTC())
		})
		if ferr != nil {
			log.Error().Err(ferr).Msg("run finish write failed")
		}
		log.Info().
			Str("status", string(status)).
			Int("agencies", len(outcomes)).
			Dur("took", s.now().Sub(start)).
			Msg("ingestion run finished")
	}()

	// preconditions run before any fetch; a failure here is a failed run
	// with nothing touched
	var cursors connectordom.Cursors
	if mode == domain.ModeIncremental {
		err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
			var e error
			cursors, e = s.deps.Runs.Bind(q).LastCursors(ctx)
			return e
		})
		if err != nil {
			errText = "precondition failed: " + err.Error()
			return
		}
	}
	if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Runs.Bind(q).MarkRunning(ctx, id, s.now().UTC())
	}); err != nil {
		errText = "precondition failed: " + err.Error()
		return
	}

	fctx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	var allStored []recallsdom.RecallRecord
	var minDate time.Time
	fatal := ""

	results := s.deps.Fetcher.FetchAll(fctx, cursors, agencyFilter)
	for res := range results {
		out := domain.AgencyOutcome{
			Status:     domain.AgencySucceeded,
			Fetched:    len(res.Records),
			Attempts:   res.Attempts,
			LastCursor: res.NextCursor,
		}
		if res.Err != nil {
			out.Status = domain.AgencyFailed
			out.Error = res.Err.Error()
			out.LastCursor = "" // do not advance past a failed fetch
			outcomes[res.Agency] = out
			continue
		}
		if fatal != "" {
			// storage already broke; mark the rest failed without writing
			out.Status = domain.AgencyFailed
			out.Error = "run aborted: " + fatal
			outcomes[res.Agency] = out
			continue
		}

		batch := s.normalizeAgency(res, &out, &log)
		if len(batch) > 0 {
			stored, inserted, updated, err := s.deps.Recalls.UpsertBatch(fctx, batch)
			if err != nil {
				// storage failures are fatal for the whole run
				out.Status = domain.AgencyFailed
				out.Error = err.Error()
				outcomes[res.Agency] = out
				fatal = "storage write failed: " + err.Error()
				cancelFetch()
				continue
			}
			out.Inserted, out.Updated = inserted, updated
			allStored = append(allStored, stored...)
			for i := range stored {
				if minDate.IsZero() || stored[i].RecallDate.Before(minDate) {
					minDate = stored[i].RecallDate
				}
			}
		}
		outcomes[res.Agency] = out
	}

	if fatal != "" {
		errText = fatal
		return
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		errText = "run cancelled"
		return
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	// reconciliation needs a live context; a timed-out run skips it and
	// the next run's widened window heals the groups
	if !timedOut && len(allStored) > 0 {
		if err := s.reconcile(ctx, minDate); err != nil {
			errText = err.Error()
			return
		}
	}

	var succ, fail int
	for _, o := range outcomes {
		if o.Status == domain.AgencySucceeded {
			succ++
		} else {
			fail++
		}
	}
	switch {
	case timedOut:
		// agencies still in flight when the deadline fired count as
		// failed; agencies that finished keep their data and status
		errText = "run deadline exceeded"
		if succ > 0 {
			status = domain.RunPartial
		}
	case fail == 0:
		status = domain.RunSucceeded
	case succ > 0:
		status = domain.RunPartial
	default:
		errText = "all agencies failed"
	}
}

// normalizeAgency maps one agency's raw records; malformed records are
// counted and skipped, duplicates within the run batch collapse to the
// last occurrence
func (s *Service) normalizeAgency(res connectordom.Result, out *domain.AgencyOutcome, log *logger.Logger) []recallsdom.RecallRecord {
	seen := make(map[string]int)
	var batch []recallsdom.RecallRecord
	for _, raw := range res.Records {
		rec, err := s.norm.Normalize(raw)
		if err != nil {
			out.Failed++
			log.Warn().Err(err).
				Str("agency", res.Agency).
				Str("source_native_id", raw.SourceNativeID).
				Msg("record rejected")
			continue
		}
		key := rec.Agency + "\x00" + rec.SourceNativeID
		if i, dup := seen[key]; dup {
			batch[i] = rec
			out.Skipped++
			continue
		}
		seen[key] = len(batch)
		batch = append(batch, rec)
	}
	return batch
}

// reconcile regroups everything in the affected window: the batch dates
// widened by DedupWindow so fresh records can join pre-existing groups
func (s *Service) reconcile(ctx context.Context, minDate time.Time) error {
	since := minDate.Add(-s.cfg.DedupWindow)

	var window []recallsdom.RecallRecord
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		window, e = s.deps.Records.Bind(q).FetchSince(ctx, since)
		return e
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "reconciliation load failed")
	}

	groups, err := s.deps.Recon.Reconcile(window)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeConflict, "reconciliation failed")
	}

	err = s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Groups.Bind(q).ReplaceGroups(ctx, groups)
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "group write failed")
	}
	return nil
}
