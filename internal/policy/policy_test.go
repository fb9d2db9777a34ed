package policy

import (
	"testing"
	"time"

	"github.com/kalambet/tourwatch/internal/change"
	"github.com/kalambet/tourwatch/internal/tour"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 29, hour, minute, 0, 0, time.UTC)
}

func TestInQuietHours(t *testing.T) {
	wrap := &tour.QuietHours{Start: "22:00", End: "09:00"}
	sameDay := &tour.QuietHours{Start: "13:00", End: "15:00"}

	tests := []struct {
		name string
		qh   *tour.QuietHours
		now  time.Time
		want bool
	}{
		{"wrap inside late evening", wrap, at(23, 30), true},
		{"wrap inside early morning", wrap, at(8, 59), true},
		{"wrap outside", wrap, at(10, 0), false},
		{"wrap at start boundary", wrap, at(22, 0), true},
		{"wrap at end boundary", wrap, at(9, 0), false},
		{"same day inside", sameDay, at(14, 0), true},
		{"same day outside", sameDay, at(15, 30), false},
		{"nil window never skips", nil, at(3, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.qh, tt.now); got != tt.want {
				t.Errorf("InQuietHours(%v, %s) = %v, want %v", tt.qh, tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func mkChange(id string, score int, price int64) change.Change {
	return change.Change{
		Candidate: tour.RankedCandidate{
			Candidate: tour.CandidateResult{Provider: "p", ExternalID: id, Price: price},
			Score:     score,
		},
		Reason: change.ReasonNew,
	}
}

func TestSelect_TopMatchesCap(t *testing.T) {
	cond, err := tour.ResolveConditions(&tour.NotifyConditions{OnlyTopMatches: true})
	if err != nil {
		t.Fatalf("ResolveConditions: %v", err)
	}

	changes := []change.Change{
		mkChange("a", 71, 100),
		mkChange("b", 95, 100),
		mkChange("c", 80, 100),
		mkChange("d", 90, 100),
		mkChange("e", 85, 100),
	}
	got := Select(changes, cond, 0)
	if len(got) != 3 {
		t.Fatalf("got %d selected, want 3", len(got))
	}
	wantOrder := []string{"b", "d", "e"}
	for i, want := range wantOrder {
		if id := got[i].Candidate.Candidate.ExternalID; id != want {
			t.Errorf("selected[%d] = %q, want %q", i, id, want)
		}
	}
}

func TestSelect_DeterministicTieBreaks(t *testing.T) {
	cond, err := tour.ResolveConditions(nil)
	if err != nil {
		t.Fatalf("ResolveConditions: %v", err)
	}

	changes := []change.Change{
		mkChange("z", 80, 90000),
		mkChange("a", 80, 90000),
		mkChange("m", 80, 80000),
	}
	got := Select(changes, cond, 0)
	wantOrder := []string{"m", "a", "z"} // lower price first, then key
	for i, want := range wantOrder {
		if id := got[i].Candidate.Candidate.ExternalID; id != want {
			t.Errorf("selected[%d] = %q, want %q", i, id, want)
		}
	}
}

func TestSelect_DailyBudgetReducedBySentToday(t *testing.T) {
	max := 5
	cond, err := tour.ResolveConditions(&tour.NotifyConditions{MaxNotificationsPerDay: &max})
	if err != nil {
		t.Fatalf("ResolveConditions: %v", err)
	}

	changes := []change.Change{
		mkChange("a", 90, 100), mkChange("b", 85, 100),
		mkChange("c", 80, 100), mkChange("d", 75, 100),
	}

	if got := Select(changes, cond, 3); len(got) != 2 {
		t.Errorf("with 3 sent today, got %d, want 2", len(got))
	}
	if got := Select(changes, cond, 5); got != nil {
		t.Errorf("with budget exhausted, got %v, want nil", got)
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	cond, err := tour.ResolveConditions(nil)
	if err != nil {
		t.Fatalf("ResolveConditions: %v", err)
	}
	changes := []change.Change{mkChange("z", 70, 100), mkChange("a", 90, 100)}
	Select(changes, cond, 0)
	if changes[0].Candidate.Candidate.ExternalID != "z" {
		t.Error("Select reordered its input slice")
	}
}
