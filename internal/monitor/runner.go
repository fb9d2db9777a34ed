// Package monitor drives the background monitoring loop: the per-search
// cycle (fetch, rank, diff, cap, persist, deliver) and the scheduler that
// runs all eligible searches on a cadence with bounded concurrency.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tourwatch/internal/change"
	"github.com/kalambet/tourwatch/internal/notify"
	"github.com/kalambet/tourwatch/internal/policy"
	"github.com/kalambet/tourwatch/internal/provider"
	"github.com/kalambet/tourwatch/internal/ranking"
	"github.com/kalambet/tourwatch/internal/storage"
	"github.com/kalambet/tourwatch/internal/tour"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CycleStore is the slice of storage the runner needs for one cycle.
// Implemented by storage.Store.
type CycleStore interface {
	LatestSnapshots(searchID string) (map[string]storage.ResultSnapshot, error)
	CountEventsSince(searchID string, t time.Time) (int, error)
	ApplyCycle(searchID string, checkedAt time.Time, snapshots []storage.ResultSnapshot, events []storage.NotificationEvent) error
	UpdateEventStatus(id, status string, deliveredAt *time.Time) error
}

// Runner executes one monitoring cycle for one search.
type Runner struct {
	store     CycleStore
	agg       provider.Aggregator
	deliverer notify.Deliverer
	clock     Clock
	logger    *slog.Logger
}

// NewRunner creates a Runner with the given dependencies.
func NewRunner(store CycleStore, agg provider.Aggregator, deliverer notify.Deliverer) *Runner {
	return &Runner{
		store:     store,
		agg:       agg,
		deliverer: deliverer,
		clock:     realClock{},
		logger:    slog.Default(),
	}
}

// NewRunnerWithClock creates a Runner with a custom clock (for testing).
func NewRunnerWithClock(store CycleStore, agg provider.Aggregator, deliverer notify.Deliverer, clock Clock) *Runner {
	r := NewRunner(store, agg, deliverer)
	r.clock = clock
	return r
}

// CycleResult reports what one cycle did. Checked is false when the cycle
// was skipped or the provider call failed; in both cases no state was
// mutated and the search is retried on the next tick.
type CycleResult struct {
	Checked           bool
	NotificationsSent int
	SkipReason        string
}

// RunCycle processes exactly one monitored search: fetch candidates, rank,
// classify against stored snapshots, apply the notification policy, persist
// the batch atomically, then deliver.
//
// Every candidate seen in a successful cycle gets a snapshot, notified or
// not, so a later price drop on a previously seen offer is still detectable.
func (r *Runner) RunCycle(ctx context.Context, search storage.MonitoredSearch) (CycleResult, error) {
	now := r.clock.Now()

	if search.IsPaused {
		return CycleResult{SkipReason: "paused"}, nil
	}
	if !search.IsActive {
		return CycleResult{SkipReason: "stopped"}, nil
	}
	if search.MonitorUntil.Before(now) {
		return CycleResult{SkipReason: "expired"}, nil
	}

	var query tour.SavedSearchQuery
	if err := json.Unmarshal([]byte(search.QueryJSON), &query); err != nil {
		return CycleResult{}, fmt.Errorf("corrupt query for search %s: %w", search.ID, err)
	}
	var cond tour.ResolvedConditions
	if err := json.Unmarshal([]byte(search.ConditionsJSON), &cond); err != nil {
		return CycleResult{}, fmt.Errorf("corrupt conditions for search %s: %w", search.ID, err)
	}

	if policy.InQuietHours(cond.QuietHours, now) {
		return CycleResult{SkipReason: "quiet_hours"}, nil
	}

	candidates, err := r.agg.Search(ctx, query)
	if err != nil {
		// Transient: no counters move, the next tick retries naturally.
		r.logger.Warn("provider fetch failed", "search_id", search.ID, "error", err)
		return CycleResult{}, fmt.Errorf("fetching candidates for search %s: %w", search.ID, err)
	}

	ranked := make([]tour.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, ranking.Score(c, query))
	}

	stored, err := r.store.LatestSnapshots(search.ID)
	if err != nil {
		return CycleResult{}, fmt.Errorf("loading snapshots for search %s: %w", search.ID, err)
	}
	previous := make(map[string]change.Snapshot, len(stored))
	for key, snap := range stored {
		previous[key] = change.Snapshot{
			CandidateKey: snap.CandidateKey,
			Price:        snap.Price,
			Available:    snap.Available,
			IsNotified:   snap.IsNotified,
		}
	}

	sentToday, err := r.store.CountEventsSince(search.ID, startOfDay(now))
	if err != nil {
		return CycleResult{}, fmt.Errorf("counting today's events for search %s: %w", search.ID, err)
	}

	classified := change.Classify(ranked, previous, cond)
	selected := policy.Select(classified, cond, sentToday)

	notified := make(map[string]bool, len(selected))
	for _, ch := range selected {
		notified[ch.Candidate.Candidate.Key()] = true
	}

	snapshots := make([]storage.ResultSnapshot, 0, len(ranked))
	for _, rc := range ranked {
		c := rc.Candidate
		snapshots = append(snapshots, storage.ResultSnapshot{
			SearchID:     search.ID,
			CandidateKey: c.Key(),
			Price:        c.Price,
			Currency:     c.Currency,
			Score:        rc.Score,
			Available:    c.Available,
			FoundAt:      now,
			IsNotified:   notified[c.Key()],
		})
	}

	events := make([]storage.NotificationEvent, 0, len(selected))
	for _, ch := range selected {
		events = append(events, storage.NotificationEvent{
			ID:           uuid.New().String(),
			SearchID:     search.ID,
			CandidateKey: ch.Candidate.Candidate.Key(),
			Reason:       string(ch.Reason),
			Score:        ch.Candidate.Score,
			PriceDelta:   ch.PriceDelta,
			Message:      notify.FormatMessage(ch),
			Status:       storage.EventPending,
			CreatedAt:    now,
		})
	}

	if err := r.store.ApplyCycle(search.ID, now, snapshots, events); err != nil {
		return CycleResult{}, fmt.Errorf("persisting cycle for search %s: %w", search.ID, err)
	}

	r.deliver(ctx, search, selected, events)

	return CycleResult{Checked: true, NotificationsSent: len(events)}, nil
}

// deliver hands each event to the notification channel and records the
// outcome. Delivery failures do not roll back counters or snapshots: the
// counters mean "decided to notify".
func (r *Runner) deliver(ctx context.Context, search storage.MonitoredSearch, selected []change.Change, events []storage.NotificationEvent) {
	for i, ev := range events {
		ch := selected[i]
		res := r.deliverer.Deliver(ctx, notify.Event{
			EventID:      ev.ID,
			SearchID:     search.ID,
			OwnerID:      search.OwnerID,
			CandidateKey: ev.CandidateKey,
			Reason:       ch.Reason,
			Score:        ev.Score,
			Price:        ch.Candidate.Candidate.Price,
			PriceDelta:   ev.PriceDelta,
			Currency:     ch.Candidate.Candidate.Currency,
			Text:         ev.Message,
			URL:          ch.Candidate.Candidate.URL,
			Actions:      notify.SearchActions(search.ID),
		})

		status := storage.EventSent
		var deliveredAt *time.Time
		if res.Delivered {
			t := r.clock.Now()
			deliveredAt = &t
		} else {
			status = storage.EventFailed
			r.logger.Warn("delivery failed", "search_id", search.ID, "event_id", ev.ID, "error", res.Err)
		}
		if err := r.store.UpdateEventStatus(ev.ID, status, deliveredAt); err != nil {
			r.logger.Error("recording delivery status failed", "event_id", ev.ID, "error", err)
		}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
