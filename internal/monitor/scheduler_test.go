package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/tourwatch/internal/storage"
)

type mockRunner struct {
	runFn func(ctx context.Context, search storage.MonitoredSearch) (CycleResult, error)
}

func (m *mockRunner) RunCycle(ctx context.Context, search storage.MonitoredSearch) (CycleResult, error) {
	return m.runFn(ctx, search)
}

func TestTick_FailureIsolation(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	createSearch(t, store, "ok", now.Add(time.Hour), nil)
	createSearch(t, store, "broken", now.Add(time.Hour), nil)

	runner := &mockRunner{runFn: func(_ context.Context, search storage.MonitoredSearch) (CycleResult, error) {
		if search.ID == "broken" {
			return CycleResult{}, errors.New("provider timeout")
		}
		return CycleResult{Checked: true, NotificationsSent: 1}, nil
	}}

	s := NewScheduler(store, runner)
	report := s.Tick(context.Background(), now)

	if report.Eligible != 2 {
		t.Errorf("Eligible = %d, want 2", report.Eligible)
	}
	if report.Checked != 1 || report.Notified != 1 {
		t.Errorf("Checked/Notified = %d/%d, want 1/1", report.Checked, report.Notified)
	}
	if report.ProviderFailures != 1 {
		t.Errorf("ProviderFailures = %d, want 1", report.ProviderFailures)
	}
}

func TestTick_SkippedSearchesAreCounted(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	createSearch(t, store, "s-1", now.Add(time.Hour), nil)

	runner := &mockRunner{runFn: func(_ context.Context, _ storage.MonitoredSearch) (CycleResult, error) {
		return CycleResult{SkipReason: "quiet_hours"}, nil
	}}

	report := NewScheduler(store, runner).Tick(context.Background(), now)
	if report.Skipped != 1 || report.Checked != 0 {
		t.Errorf("Skipped/Checked = %d/%d, want 1/0", report.Skipped, report.Checked)
	}
}

func TestTick_HeldLeaseSkipsSearch(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	createSearch(t, store, "s-1", now.Add(time.Hour), nil)

	ok, err := store.AcquireLease("s-1", now, now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("pre-acquiring lease: ok=%v err=%v", ok, err)
	}

	runner := &mockRunner{runFn: func(_ context.Context, _ storage.MonitoredSearch) (CycleResult, error) {
		t.Error("RunCycle called while another worker holds the lease")
		return CycleResult{}, nil
	}}

	report := NewScheduler(store, runner).Tick(context.Background(), now)
	if report.LeaseContended != 1 {
		t.Errorf("LeaseContended = %d, want 1", report.LeaseContended)
	}
	if report.Checked != 0 {
		t.Errorf("Checked = %d, want 0", report.Checked)
	}
}

func TestTick_LeaseReleasedAfterCycle(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	createSearch(t, store, "s-1", now.Add(time.Hour), nil)

	runner := &mockRunner{runFn: func(_ context.Context, _ storage.MonitoredSearch) (CycleResult, error) {
		return CycleResult{Checked: true}, nil
	}}
	s := NewScheduler(store, runner)

	if report := s.Tick(context.Background(), now); report.Checked != 1 {
		t.Fatalf("first tick Checked = %d, want 1", report.Checked)
	}
	// Second tick at the same instant: a released lease means the search is
	// processed again, not reported as contended.
	report := s.Tick(context.Background(), now)
	if report.LeaseContended != 0 || report.Checked != 1 {
		t.Errorf("second tick = %+v, want checked again", report)
	}
}

func TestTick_AutoStopsExpiredSearches(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	createSearch(t, store, "expired", now.Add(-time.Hour), nil)
	createSearch(t, store, "live", now.Add(time.Hour), nil)

	runner := &mockRunner{runFn: func(_ context.Context, search storage.MonitoredSearch) (CycleResult, error) {
		if search.ID == "expired" {
			t.Error("expired search handed to runner")
		}
		return CycleResult{Checked: true}, nil
	}}

	report := NewScheduler(store, runner).Tick(context.Background(), now)
	if report.Expired != 1 {
		t.Errorf("Expired = %d, want 1", report.Expired)
	}
	if report.Eligible != 1 {
		t.Errorf("Eligible = %d, want 1 (expired excluded)", report.Eligible)
	}

	m, err := store.GetSearch("expired")
	if err != nil {
		t.Fatalf("GetSearch: %v", err)
	}
	if m.IsActive {
		t.Error("expired search still active after tick")
	}
}

func TestTick_WorkerPoolBound(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		createSearch(t, store, id, now.Add(time.Hour), nil)
	}

	const workers = 2
	var inFlight, peak atomic.Int32
	runner := &mockRunner{runFn: func(_ context.Context, _ storage.MonitoredSearch) (CycleResult, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return CycleResult{Checked: true}, nil
	}}

	report := NewScheduler(store, runner, WithWorkers(workers)).Tick(context.Background(), now)
	if report.Checked != 6 {
		t.Fatalf("Checked = %d, want 6", report.Checked)
	}
	if got := peak.Load(); got > workers {
		t.Errorf("observed %d concurrent cycles, want at most %d", got, workers)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{runFn: func(_ context.Context, _ storage.MonitoredSearch) (CycleResult, error) {
		return CycleResult{Checked: true}, nil
	}}
	s := NewScheduler(store, runner, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
