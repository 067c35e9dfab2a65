// Package explore keeps the explore cache filled with recent prices for a
// sample of the ticker universe.
package explore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
	"stockwatch/internal/store"
	"stockwatch/internal/universe"
)

// Config holds refresher configuration.
type Config struct {
	UniverseFile string
	// Interval is the refresh period and therefore the staleness bound of
	// the cache as a whole. Sampling means a given symbol may wait longer.
	Interval   time.Duration
	SampleCap  int
	RunTimeout time.Duration
}

// RunResult summarizes one refresh run.
type RunResult struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
	Universe   int           `json:"universe"`
	Requested  int           `json:"requested"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Error      string        `json:"error,omitempty"`
}

// Status is the refresher state exposed to operators.
type Status struct {
	Running     bool       `json:"running"`
	Interval    string     `json:"interval"`
	SampleCap   int        `json:"sample_cap"`
	Runs        int64      `json:"runs"`
	Failures    int64      `json:"failures"`
	SkippedBusy int64      `json:"skipped_busy"`
	LastRun     *RunResult `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithDistributedLock adds a cross-process lock taken after the local one.
func WithDistributedLock(l RunLock) Option {
	return func(r *Refresher) { r.distLock = l }
}

// WithRand sets the sampling source.
func WithRand(rng *rand.Rand) Option {
	return func(r *Refresher) { r.rng = rng }
}

// WithUniverseLoader replaces loading the universe from Config.UniverseFile.
func WithUniverseLoader(load func() (*universe.Universe, error)) Option {
	return func(r *Refresher) { r.loadUniverse = load }
}

// WithClock sets the time source used for refreshed_at.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// Refresher periodically rewrites the explore cache. At most one run is in
// flight; a run requested while another holds the lock is skipped.
type Refresher struct {
	cfg          Config
	fetcher      market.PriceFetcher
	store        store.QuoteStore
	logger       zerolog.Logger
	loadUniverse func() (*universe.Universe, error)
	rng          *rand.Rand
	now          func() time.Time

	localLock LocalLock
	distLock  RunLock

	mu     sync.RWMutex
	status Status
}

// New creates a refresher.
func New(cfg Config, fetcher market.PriceFetcher, quotes store.QuoteStore, logger zerolog.Logger, opts ...Option) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = 200
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}

	r := &Refresher{
		cfg:     cfg,
		fetcher: fetcher,
		store:   quotes,
		logger:  logging.WithOperation(logger, "explore_refresh"),
		now:     time.Now,
		status: Status{
			Interval:  cfg.Interval.String(),
			SampleCap: cfg.SampleCap,
		},
	}
	r.loadUniverse = func() (*universe.Universe, error) {
		return universe.Load(r.cfg.UniverseFile)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs once immediately and then on every interval until ctx is done.
// Each tick runs in its own goroutine so a slow run never delays the schedule.
func (r *Refresher) Start(ctx context.Context) {
	var wg conc.WaitGroup
	defer wg.Wait()

	tick := func() {
		runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
		if _, err := r.RunOnce(runCtx); errors.Is(err, errors.ErrRefreshBusy) {
			r.logger.Info().Msg("Previous explore refresh still running, tick skipped")
		}
	}

	r.logger.Info().
		Dur("interval", r.cfg.Interval).
		Int("sample_cap", r.cfg.SampleCap).
		Msg("Explore refresher started")

	wg.Go(tick)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Explore refresher stopping")
			return
		case <-ticker.C:
			wg.Go(tick)
		}
	}
}

// RunOnce performs a single refresh. It returns ErrRefreshBusy without doing
// anything when another run holds the lock. Errors and panics never escape as
// panics; they are logged and recorded in Status.
func (r *Refresher) RunOnce(ctx context.Context) (RunResult, error) {
	release, ok, _ := r.localLock.TryAcquire(ctx)
	if !ok {
		r.recordBusy()
		return RunResult{}, errors.ErrRefreshBusy
	}
	defer release()

	if r.distLock != nil {
		distRelease, ok, err := r.distLock.TryAcquire(ctx)
		switch {
		case err != nil:
			// Redis unavailable: the local lock still guarantees one run per process
			r.logger.Warn().Err(err).Msg("Distributed refresh lock unavailable, continuing with local lock")
		case !ok:
			r.recordBusy()
			return RunResult{}, errors.ErrRefreshBusy
		default:
			defer distRelease()
		}
	}

	r.setRunning(true)
	start := r.now()

	var (
		result RunResult
		runErr error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, runErr = r.run(ctx)
	})
	if rec := pc.Recovered(); rec != nil {
		runErr = fmt.Errorf("refresh panicked: %w", rec.AsError())
	}

	result.StartedAt = start
	result.FinishedAt = r.now()
	result.Duration = result.FinishedAt.Sub(start)
	if runErr != nil {
		result.Error = runErr.Error()
	}

	logging.LogRefresh(r.logger, result.Requested, result.Written, result.Skipped, result.Duration, runErr)
	r.record(result, runErr)

	return result, runErr
}

func (r *Refresher) run(ctx context.Context) (RunResult, error) {
	var result RunResult

	u, err := r.loadUniverse()
	if err != nil {
		return result, fmt.Errorf("loading universe: %w", err)
	}
	result.Universe = u.Len()

	sample := u.Sample(r.cfg.SampleCap, r.rng)
	result.Requested = len(sample)

	symbols := make([]string, len(sample))
	for i, t := range sample {
		symbols[i] = t.Symbol
	}

	snaps, err := r.fetcher.FetchCloses(ctx, symbols)
	if err != nil {
		return result, fmt.Errorf("fetching closes: %w", err)
	}

	refreshedAt := r.now().UTC()
	quotes := make([]models.CachedQuote, 0, len(sample))
	for _, t := range sample {
		snap, ok := snaps[t.Symbol]
		if !ok {
			continue
		}
		change, ok := market.ComputeChange(snap.Last, snap.Previous)
		if !ok {
			r.logger.Debug().Str("symbol", t.Symbol).Msg("Skipping symbol without usable previous close")
			continue
		}
		quotes = append(quotes, models.CachedQuote{
			Symbol:         t.Symbol,
			DisplayName:    t.Name,
			LastPrice:      null.FloatFrom(change.Last),
			AbsoluteChange: null.FloatFrom(change.Absolute),
			PercentChange:  null.FloatFrom(change.Percent),
			RefreshedAt:    refreshedAt,
		})
	}
	result.Skipped = len(sample) - len(quotes)

	written, err := r.store.UpsertQuotes(ctx, quotes)
	if err != nil {
		return result, fmt.Errorf("writing explore cache: %w", err)
	}
	result.Written = written

	return result, nil
}

func (r *Refresher) setRunning(running bool) {
	r.mu.Lock()
	r.status.Running = running
	r.mu.Unlock()
}

func (r *Refresher) recordBusy() {
	r.mu.Lock()
	r.status.SkippedBusy++
	r.mu.Unlock()
}

func (r *Refresher) record(result RunResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Running = false
	r.status.Runs++
	r.status.LastRun = &result
	if err != nil {
		r.status.Failures++
		return
	}
	finished := result.FinishedAt
	r.status.LastSuccess = &finished
}

// Status returns a copy of the refresher state.
func (r *Refresher) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.status
	if s.LastRun != nil {
		run := *s.LastRun
		s.LastRun = &run
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		s.LastSuccess = &t
	}
	return s
}

// HealthCheck reports the refresher as degraded after a failed run and
// unhealthy when nothing succeeded for three intervals.
func (r *Refresher) HealthCheck() resilience.HealthCheck {
	return func(ctx context.Context) resilience.ComponentHealth {
		s := r.Status()
		health := resilience.ComponentHealth{
			Details: map[string]interface{}{
				"runs":         s.Runs,
				"failures":     s.Failures,
				"skipped_busy": s.SkippedBusy,
			},
		}

		switch {
		case s.LastRun == nil:
			health.Status = resilience.HealthStatusHealthy
			health.Message = "waiting for first run"
		case s.LastRun.Error == "":
			health.Status = resilience.HealthStatusHealthy
			health.Message = fmt.Sprintf("last run wrote %d of %d", s.LastRun.Written, s.LastRun.Requested)
		case s.LastSuccess == nil || r.now().Sub(*s.LastSuccess) > 3*r.cfg.Interval:
			health.Status = resilience.HealthStatusUnhealthy
			health.Message = s.LastRun.Error
		default:
			health.Status = resilience.HealthStatusDegraded
			health.Message = s.LastRun.Error
		}
		return health
	}
}
