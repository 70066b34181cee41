// Package service implements the connector manager: fan-out fetching across
// every registered agency under per-source rate limits with scoped failures
package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"recallwatch/internal/adapters/sources"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/logger"
	"recallwatch/internal/services/connector/domain"
)

// Config holds connector tuning
type Config struct {
	// MaxWorkers caps concurrent agency fetches; <=0 means one worker per
	// registered agency (each agency is independent, the cap only bounds
	// outbound connections)
	MaxWorkers int

	// Per-page retry policy for transient failures. Settings follow the
	// run policy: 3 attempts, base 2s, jitter +/-20 percent
	MaxRetries int
	RetryBase  time.Duration

	// RequestTimeout bounds one page fetch when the adapter settings do
	// not carry their own timeout
	RequestTimeout time.Duration

	// MaxPages is a safety valve against adapters that never report
	// hasMore=false; 0 means unlimited
	MaxPages int
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Service implements domain.FetcherPort over a sources.Registry
type Service struct {
	reg      *sources.Registry
	cfg      Config
	limiters map[string]*rate.Limiter

	sleep func(context.Context, time.Duration) error
}

// New constructs the connector. One limiter per agency, built from the
// adapter's settings, shared across pages and across runs
func New(reg *sources.Registry, cfg Config) *Service {
	if reg == nil {
		panic("connector.Service requires a non nil registry")
	}
	cfg.defaults()

	lims := make(map[string]*rate.Limiter)
	for _, a := range reg.All() {
		s := a.Settings()
		rps := s.RatePerSec
		if rps <= 0 {
			rps = 1
		}
		burst := s.Burst
		if burst <= 0 {
			burst = 1
		}
		lims[a.Name()] = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Service{reg: reg, cfg: cfg, limiters: lims, sleep: sleepCtx}
}

// Agencies returns the registered agency names in deterministic order
func (s *Service) Agencies() []string { return s.reg.Names() }

// FetchAll fans out one worker per agency (bounded by MaxWorkers) and
// streams each agency's complete result as it finishes. A failing agency
// produces a Result with Err set and whatever pages it fetched before the
// failure; it never blocks or aborts the other agencies. A non-empty only
// list narrows the fan-out to those agencies
func (s *Service) FetchAll(ctx context.Context, since domain.Cursors, only []string) <-chan domain.Result {
	adapters := s.reg.All()
	if len(only) > 0 {
		want := make(map[string]bool, len(only))
		for _, n := range only {
			want[n] = true
		}
		kept := adapters[:0]
		for _, a := range adapters {
			if want[a.Name()] {
				kept = append(kept, a)
			}
		}
		adapters = kept
	}
	out := make(chan domain.Result, len(adapters))

	w := s.cfg.MaxWorkers
	if w <= 0 || w > len(adapters) {
		w = len(adapters)
	}
	if w == 0 {
		close(out)
		return out
	}

	sem := make(chan struct{}, w)
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a sources.Adapter) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out <- domain.Result{Agency: a.Name(), Country: a.Country(), Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			out <- s.fetchAgency(ctx, a, since[a.Name()])
		}(a)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// fetchAgency drains every page for one agency under its rate limiter
func (s *Service) fetchAgency(ctx context.Context, a sources.Adapter, cursor string) domain.Result {
	res := domain.Result{Agency: a.Name(), Country: a.Country()}
	log := logger.C(ctx).With().Str("agency", a.Name()).Logger()

	lim := s.limiters[a.Name()]
	timeout := a.Settings().Timeout
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}

	for {
		if s.cfg.MaxPages > 0 && res.Pages >= s.cfg.MaxPages {
			log.Warn().Int("pages", res.Pages).Msg("connector page cap hit")
			return res
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				res.Err = err
				return res
			}
		}

		page, attempts, err := s.fetchPageWithRetry(ctx, a, cursor, timeout)
		res.Attempts += attempts
		if err != nil {
			log.Warn().Err(err).Int("pages", res.Pages).Msg("agency fetch failed")
			res.Err = err
			return res
		}

		res.Pages++
		res.Records = append(res.Records, page.Records...)
		if !page.HasMore {
			return res
		}
		cursor = page.NextCursor
		res.NextCursor = page.NextCursor
	}
}

// fetchPageWithRetry retries transient failures (timeout, 5xx, 429) with
// exponential backoff and +/-20 percent jitter. Schema errors and other
// non-retryable failures return immediately
func (s *Service) fetchPageWithRetry(
	ctx context.Context,
	a sources.Adapter,
	cursor string,
	timeout time.Duration,
) (sources.Page, int, error) {
	var last error
	for i := 0; i < s.cfg.MaxRetries; i++ {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		page, err := a.Fetch(pctx, cursor)
		cancel()
		if err == nil {
			return page, i + 1, nil
		}
		last = err

		if !retryableFetch(err) {
			return sources.Page{}, i + 1, err
		}
		if i == s.cfg.MaxRetries-1 {
			break
		}
		if se := s.sleep(ctx, jitter(s.cfg.RetryBase<<uint(i))); se != nil {
			return sources.Page{}, i + 1, se
		}
	}
	return sources.Page{}, s.cfg.MaxRetries, last
}

// retryableFetch treats timeouts, transport errors, 5xx and rate limiting
// as transient; schema mismatches are not
func retryableFetch(err error) bool {
	if err == nil {
		return false
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeUnavailable, perr.ErrorCodeTooManyRequests:
		return true
	}
	if perr.Retryable(err) {
		return true
	}
	// per-page timeout surfaces as context.DeadlineExceeded from the
	// page context, not the run context
	return errors.Is(err, context.DeadlineExceeded)
}

// jitter spreads d by +/-20 percent
func jitter(d time.Duration) time.Duration {
	lo := d * 4 / 5
	span := d * 2 / 5
	if span <= 0 {
		return d
	}
	return lo + time.Duration(rand.Int63n(int64(span)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
