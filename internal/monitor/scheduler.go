package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tourwatch/internal/storage"
)

const (
	defaultInterval      = 12 * time.Hour
	defaultWorkers       = 4
	defaultSearchTimeout = 30 * time.Second
)

// SchedulerStore is the slice of storage the scheduler needs.
// Implemented by storage.Store.
type SchedulerStore interface {
	ListEligible(now time.Time) ([]storage.MonitoredSearch, error)
	ListExpired(now time.Time) ([]storage.MonitoredSearch, error)
	AutoStop(id string) error
	AcquireLease(id string, now, until time.Time) (bool, error)
	ReleaseLease(id string) error
}

// CycleRunner executes one search's cycle. Implemented by Runner.
type CycleRunner interface {
	RunCycle(ctx context.Context, search storage.MonitoredSearch) (CycleResult, error)
}

// Scheduler drives all eligible monitored searches on a fixed cadence.
// Searches are processed concurrently through a bounded worker pool; one
// search's failure never affects another's processing within the same tick.
type Scheduler struct {
	store         SchedulerStore
	runner        CycleRunner
	interval      time.Duration
	workers       int
	searchTimeout time.Duration
	clock         Clock
	logger        *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWorkers bounds the number of searches processed concurrently.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSearchTimeout bounds one search's processing time within a tick.
func WithSearchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.searchTimeout = d
		}
	}
}

// WithClock injects a custom clock (for testing).
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler creates a Scheduler.
func NewScheduler(store SchedulerStore, runner CycleRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         store,
		runner:        runner,
		interval:      defaultInterval,
		workers:       defaultWorkers,
		searchTimeout: defaultSearchTimeout,
		clock:         realClock{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TickReport summarizes one tick across all searches.
type TickReport struct {
	Eligible         int
	Checked          int
	Notified         int
	Skipped          int
	ProviderFailures int
	LeaseContended   int
	Expired          int
}

// Run ticks immediately, then on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tickAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickAndLog(ctx)
		}
	}
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	report := s.Tick(ctx, s.clock.Now())
	s.logger.Info("tick complete",
		"eligible", report.Eligible,
		"checked", report.Checked,
		"notified", report.Notified,
		"skipped", report.Skipped,
		"provider_failures", report.ProviderFailures,
		"expired", report.Expired,
	)
}

// Tick processes every eligible search once. Failures are isolated per
// search: a provider error, persistence error, or timeout abandons that
// search for this tick and it is retried on the next one.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickReport {
	var report TickReport
	var mu sync.Mutex

	s.stopExpired(now, &report)

	searches, err := s.store.ListEligible(now)
	if err != nil {
		s.logger.Error("listing eligible searches failed", "error", err)
		return report
	}
	report.Eligible = len(searches)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, search := range searches {
		search := search
		g.Go(func() error {
			outcome := s.runOne(gCtx, search, now)
			mu.Lock()
			defer mu.Unlock()
			switch outcome.kind {
			case outcomeChecked:
				report.Checked++
				report.Notified += outcome.notified
			case outcomeSkipped:
				report.Skipped++
			case outcomeLeaseHeld:
				report.LeaseContended++
			case outcomeFailed:
				report.ProviderFailures++
			}
			// Never propagate: one search's failure must not cancel the group.
			return nil
		})
	}
	g.Wait()

	return report
}

type outcomeKind int

const (
	outcomeChecked outcomeKind = iota
	outcomeSkipped
	outcomeLeaseHeld
	outcomeFailed
)

type searchOutcome struct {
	kind     outcomeKind
	notified int
}

func (s *Scheduler) runOne(ctx context.Context, search storage.MonitoredSearch, now time.Time) searchOutcome {
	// The lease outlives the per-search timeout so a crashed worker's claim
	// expires on its own; no two workers ever process the same search id.
	ok, err := s.store.AcquireLease(search.ID, now, now.Add(2*s.searchTimeout))
	if err != nil {
		s.logger.Error("lease acquisition failed", "search_id", search.ID, "error", err)
		return searchOutcome{kind: outcomeFailed}
	}
	if !ok {
		return searchOutcome{kind: outcomeLeaseHeld}
	}
	defer func() {
		if err := s.store.ReleaseLease(search.ID); err != nil {
			s.logger.Error("lease release failed", "search_id", search.ID, "error", err)
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	result, err := s.runner.RunCycle(cycleCtx, search)
	if err != nil {
		s.logger.Warn("cycle failed", "search_id", search.ID, "error", err)
		return searchOutcome{kind: outcomeFailed}
	}
	if !result.Checked {
		s.logger.Debug("cycle skipped", "search_id", search.ID, "reason", result.SkipReason)
		return searchOutcome{kind: outcomeSkipped}
	}
	return searchOutcome{kind: outcomeChecked, notified: result.NotificationsSent}
}

// stopExpired retires searches whose monitoring window has passed. Stopped
// searches are retained for history.
func (s *Scheduler) stopExpired(now time.Time, report *TickReport) {
	expired, err := s.store.ListExpired(now)
	if err != nil {
		s.logger.Error("listing expired searches failed", "error", err)
		return
	}
	for _, search := range expired {
		if err := s.store.AutoStop(search.ID); err != nil {
			s.logger.Error("auto-stop failed", "search_id", search.ID, "error", err)
			continue
		}
		s.logger.Info("monitoring window expired, search stopped", "search_id", search.ID)
		report.Expired++
	}
}
