package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
)

// Run is the diagnostic handle of one dispatched sync run.
type Run struct {
	ID         uuid.UUID
	UpdaterID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      RunStats
	Err        error
}

// Done reports whether the run has finished.
func (r Run) Done() bool {
	return !r.FinishedAt.IsZero()
}

// Scheduler runs the Synchroniser for every configured updater on a fixed
// interval. An updater whose previous run is still in progress is skipped.
type Scheduler struct {
	logger          hclog.Logger
	engine          index.Engine
	synchroniser    *Synchroniser
	pollingInterval time.Duration
	newBackOff      func() backoff.BackOff

	// updaters is fixed after construction.
	updaters []updater.Updater
	byID     map[string]updater.Updater

	// mu guards busy and runs.
	mu   sync.Mutex
	busy map[string]bool
	runs map[string]*Run

	wg sync.WaitGroup
}

// Option is a functional option for creating a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithEngine sets the index engine that mappings are ensured on.
func WithEngine(engine index.Engine) Option {
	return func(s *Scheduler) {
		s.engine = engine
	}
}

// WithSynchroniser sets the synchroniser each run uses.
func WithSynchroniser(synchroniser *Synchroniser) Option {
	return func(s *Scheduler) {
		s.synchroniser = synchroniser
	}
}

// WithUpdaters sets the updaters, in the order they are dispatched.
func WithUpdaters(updaters ...updater.Updater) Option {
	return func(s *Scheduler) {
		s.updaters = append(s.updaters, updaters...)
	}
}

// WithPollingInterval sets the tick interval.
func WithPollingInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.pollingInterval = interval
	}
}

// WithMappingRetry sets the backoff used while ensuring index mappings.
func WithMappingRetry(newBackOff func() backoff.BackOff) Option {
	return func(s *Scheduler) {
		s.newBackOff = newBackOff
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		pollingInterval: time.Minute,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(time.Minute))
		},
		byID: make(map[string]updater.Updater),
		busy: make(map[string]bool),
		runs: make(map[string]*Run),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	if s.engine == nil {
		return nil, fmt.Errorf("index engine is required")
	}
	if s.synchroniser == nil {
		return nil, fmt.Errorf("synchroniser is required")
	}
	if s.pollingInterval <= 0 {
		return nil, fmt.Errorf("polling interval must be positive, got %s", s.pollingInterval)
	}

	for _, u := range s.updaters {
		if _, dup := s.byID[u.ID()]; dup {
			return nil, fmt.Errorf("duplicate updater id %q", u.ID())
		}
		s.byID[u.ID()] = u
		s.busy[u.ID()] = false
	}

	return s, nil
}

// PollingInterval returns the tick interval.
func (s *Scheduler) PollingInterval() time.Duration {
	return s.pollingInterval
}

// ListUpdaters returns the updaters in dispatch order.
func (s *Scheduler) ListUpdaters() []updater.Updater {
	out := make([]updater.Updater, len(s.updaters))
	copy(out, s.updaters)
	return out
}

// IsBusy reports whether a run of the updater is in progress.
func (s *Scheduler) IsBusy(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy, ok := s.busy[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", updater.ErrUnrecognisedUpdater, id)
	}
	return busy, nil
}

// LastRun returns the most recent run dispatched for the updater.
func (s *Scheduler) LastRun(id string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Prepare ensures every updater's index mapping exists, retrying with
// backoff, and tries to recover each watermark from its index. A mapping
// failure is returned; a recovery failure is left for the first run to
// retry.
func (s *Scheduler) Prepare(ctx context.Context) error {
	for _, u := range s.updaters {
		logger := s.logger.With("updater", u.ID(), "index", u.IndexName(), "doc_type", u.DocType())

		ensure := func() error {
			return s.engine.EnsureMapping(ctx, u.IndexName(), u.DocType(), u.GetMapping())
		}
		notify := func(err error, wait time.Duration) {
			logger.Warn("failed to ensure index mapping, retrying", "error", err, "wait", wait)
		}
		if err := backoff.RetryNotify(ensure, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
			return fmt.Errorf("failed to ensure mapping for updater %q: %w", u.ID(), err)
		}

		if _, known := u.Tracker().Watermark(); known {
			continue
		}
		w, err := s.synchroniser.loadStatus(ctx, u)
		if err != nil {
			logger.Warn("could not load index update status at startup", "error", err)
			continue
		}
		u.Tracker().Recover(w)
	}

	s.logger.Info("index updaters prepared", "count", len(s.updaters))
	return nil
}

// Run ticks once immediately and then on every polling interval until ctx
// is done. In-flight runs are not cancelled; use Wait to let them finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "updaters", len(s.updaters), "polling_interval", s.pollingInterval)
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches a sync run for every idle updater and returns the number
// dispatched. It does not wait for the runs.
func (s *Scheduler) Tick(ctx context.Context) int {
	runCtx := context.WithoutCancel(ctx)
	dispatched := 0

	for _, u := range s.updaters {
		run, ok := s.tryStart(u.ID())
		if !ok {
			s.logger.Info("skipping busy updater", "updater", u.ID())
			continue
		}

		dispatched++
		s.wg.Add(1)
		go func(u updater.Updater, run *Run) {
			defer s.wg.Done()
			s.execute(runCtx, u, run)
		}(u, run)
	}

	return dispatched
}

// RunOnce synchronises the given updaters, or all of them, one after the
// other and waits for each. Busy updaters are skipped.
func (s *Scheduler) RunOnce(ctx context.Context, ids ...string) error {
	targets := s.updaters
	if len(ids) > 0 {
		targets = make([]updater.Updater, 0, len(ids))
		for _, id := range ids {
			u, ok := s.byID[id]
			if !ok {
				return fmt.Errorf("%w: %q", updater.ErrUnrecognisedUpdater, id)
			}
			targets = append(targets, u)
		}
	}

	var result *multierror.Error
	for _, u := range targets {
		run, ok := s.tryStart(u.ID())
		if !ok {
			s.logger.Info("skipping busy updater", "updater", u.ID())
			continue
		}
		if err := s.execute(ctx, u, run); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", u.ID(), err))
		}
	}
	return result.ErrorOrNil()
}

// Wait blocks until every dispatched run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// tryStart marks the updater busy and records a new run, or returns false
// when it is already busy.
func (s *Scheduler) tryStart(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[id] {
		return nil, false
	}
	s.busy[id] = true

	run := &Run{ID: uuid.New(), UpdaterID: id, StartedAt: time.Now().UTC()}
	s.runs[id] = run
	return run, true
}

func (s *Scheduler) finish(run *Run, stats RunStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.FinishedAt = time.Now().UTC()
	run.Stats = stats
	run.Err = err
	s.busy[run.UpdaterID] = false
}

// execute runs the synchroniser and always releases the busy flag, even if
// the run panics.
func (s *Scheduler) execute(ctx context.Context, u updater.Updater, run *Run) (err error) {
	var stats RunStats

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
			u.Tracker().MarkFailure(time.Now().UTC())
			s.logger.Error("sync run panicked", "updater", u.ID(), "run_id", run.ID, "panic", r)
		}
		s.finish(run, stats, err)
	}()

	s.logger.Debug("sync run started", "updater", u.ID(), "run_id", run.ID)
	stats, err = s.synchroniser.Synchronise(ctx, u)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("sync run failed", "updater", u.ID(), "run_id", run.ID)
	}
	return err
}
