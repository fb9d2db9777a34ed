package change

import (
	"testing"

	"github.com/kalambet/tourwatch/internal/tour"
)

func mustResolve(t *testing.T, c *tour.NotifyConditions) tour.ResolvedConditions {
	t.Helper()
	rc, err := tour.ResolveConditions(c)
	if err != nil {
		t.Fatalf("ResolveConditions: %v", err)
	}
	return rc
}

func ranked(key string, price int64, score int) tour.RankedCandidate {
	return tour.RankedCandidate{
		Candidate: tour.CandidateResult{
			Provider:   "sunhub",
			ExternalID: key,
			Price:      price,
			Available:  true,
		},
		Score: score,
	}
}

func snapshot(key string, price int64) Snapshot {
	return Snapshot{CandidateKey: "sunhub:" + key, Price: price, Available: true}
}

func TestClassify_FirstCycleOnlyNew(t *testing.T) {
	cond := mustResolve(t, nil)
	changes := Classify([]tour.RankedCandidate{
		ranked("a", 100000, 85),
		ranked("b", 90000, 72),
	}, nil, cond)

	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	for _, ch := range changes {
		if ch.Reason != ReasonNew {
			t.Errorf("first cycle produced %q for %s, want only %q", ch.Reason, ch.Candidate.Candidate.Key(), ReasonNew)
		}
	}
}

func TestClassify_MinScorePreFilter(t *testing.T) {
	cond := mustResolve(t, nil) // min_match_score defaults to 70
	changes := Classify([]tour.RankedCandidate{
		ranked("low", 50000, 69),
		ranked("ok", 50000, 70),
	}, nil, cond)

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if key := changes[0].Candidate.Candidate.ExternalID; key != "ok" {
		t.Errorf("kept %q, want %q", key, "ok")
	}
}

func TestClassify_UnchangedIsIdempotent(t *testing.T) {
	cond := mustResolve(t, nil)
	prev := map[string]Snapshot{"sunhub:a": snapshot("a", 100000)}

	changes := Classify([]tour.RankedCandidate{ranked("a", 100000, 90)}, prev, cond)
	if len(changes) != 0 {
		t.Fatalf("identical price across cycles produced %d changes, want 0", len(changes))
	}
}

func TestClassify_NewSuppressedWhenDisabled(t *testing.T) {
	off := false
	cond := mustResolve(t, &tour.NotifyConditions{NotifyNewTours: &off})
	changes := Classify([]tour.RankedCandidate{ranked("a", 100000, 90)}, nil, cond)
	if len(changes) != 0 {
		t.Fatalf("got %d changes with notify_new_tours=false, want 0", len(changes))
	}
}

func TestClassify_PriceDropPredicates(t *testing.T) {
	amount := int64(5000)
	percent := 10.0
	threshold := int64(80000)

	tests := []struct {
		name      string
		cond      *tour.NotifyConditions
		prevPrice int64
		newPrice  int64
		wantDrop  bool
	}{
		{"absolute amount met", &tour.NotifyConditions{PriceDropAmount: &amount}, 100000, 95000, true},
		{"absolute amount not met", &tour.NotifyConditions{PriceDropAmount: &amount}, 100000, 96000, false},
		{"percent met", &tour.NotifyConditions{PriceDropPercent: &percent}, 100000, 90000, true},
		{"percent not met", &tour.NotifyConditions{PriceDropPercent: &percent}, 100000, 91000, false},
		{"below threshold", &tour.NotifyConditions{PriceBelowThreshold: &threshold}, 81000, 79000, true},
		{"below threshold but not a drop", &tour.NotifyConditions{PriceBelowThreshold: &threshold}, 79000, 79000, false},
		{"any one predicate suffices", &tour.NotifyConditions{PriceDropAmount: &amount, PriceBelowThreshold: &threshold}, 100000, 95000, true},
		{"price increase never drops", nil, 100000, 120000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := mustResolve(t, tt.cond)
			prev := map[string]Snapshot{"sunhub:a": snapshot("a", tt.prevPrice)}
			changes := Classify([]tour.RankedCandidate{ranked("a", tt.newPrice, 90)}, prev, cond)

			gotDrop := len(changes) == 1 && changes[0].Reason == ReasonPriceDrop
			if gotDrop != tt.wantDrop {
				t.Errorf("price %d -> %d: drop = %v, want %v", tt.prevPrice, tt.newPrice, gotDrop, tt.wantDrop)
			}
			if gotDrop {
				if delta := changes[0].PriceDelta; delta != tt.prevPrice-tt.newPrice {
					t.Errorf("PriceDelta = %d, want %d", delta, tt.prevPrice-tt.newPrice)
				}
			}
		})
	}
}

func TestClassify_AvailabilityChange(t *testing.T) {
	cond := mustResolve(t, nil)
	prev := map[string]Snapshot{
		"sunhub:a": {CandidateKey: "sunhub:a", Price: 100000, Available: false},
	}
	changes := Classify([]tour.RankedCandidate{ranked("a", 100000, 90)}, prev, cond)
	if len(changes) != 1 || changes[0].Reason != ReasonAvailabilityChange {
		t.Fatalf("got %+v, want one availability_change", changes)
	}
}

func TestClassify_PercentPredicateDefaultApplies(t *testing.T) {
	// Default 10% drop: exactly at the boundary qualifies.
	cond := mustResolve(t, nil)
	prev := map[string]Snapshot{"sunhub:a": snapshot("a", 100000)}
	changes := Classify([]tour.RankedCandidate{ranked("a", 90000, 90)}, prev, cond)
	if len(changes) != 1 || changes[0].Reason != ReasonPriceDrop {
		t.Fatalf("got %+v, want one price_drop at the 10%% boundary", changes)
	}
}
