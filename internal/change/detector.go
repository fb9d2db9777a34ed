// Package change diffs freshly ranked candidates against a search's snapshot
// history and classifies what is worth telling the user about.
package change

import (
	"github.com/kalambet/tourwatch/internal/tour"
)

// Reason classifies why a candidate qualifies for notification.
type Reason string

const (
	ReasonNew                Reason = "new"
	ReasonPriceDrop          Reason = "price_drop"
	ReasonAvailabilityChange Reason = "availability_change"
)

// Snapshot is the last known state of one candidate for one search.
type Snapshot struct {
	CandidateKey string
	Price        int64
	Available    bool
	IsNotified   bool
}

// Change is one classified candidate. PrevPrice and PriceDelta are only
// meaningful for price drops.
type Change struct {
	Candidate  tour.RankedCandidate
	Reason     Reason
	PrevPrice  int64
	PriceDelta int64 // previous price minus new price; positive on a drop
}

// Classify compares ranked candidates against the previous snapshots keyed by
// candidate identity. Candidates below the minimum match score are dropped
// before classification; a candidate matching no rule is silently unchanged.
//
// On a search's first cycle (empty previous map) only "new" classifications
// are possible, since there is nothing to compare prices against.
func Classify(ranked []tour.RankedCandidate, previous map[string]Snapshot, cond tour.ResolvedConditions) []Change {
	var changes []Change
	for _, rc := range ranked {
		if rc.Score < cond.MinMatchScore {
			continue
		}

		prev, seen := previous[rc.Candidate.Key()]
		if !seen {
			if cond.NotifyNewTours {
				changes = append(changes, Change{Candidate: rc, Reason: ReasonNew})
			}
			continue
		}

		if !prev.Available && rc.Candidate.Available {
			changes = append(changes, Change{Candidate: rc, Reason: ReasonAvailabilityChange, PrevPrice: prev.Price})
			continue
		}

		if isPriceDrop(prev.Price, rc.Candidate.Price, cond) {
			changes = append(changes, Change{
				Candidate:  rc,
				Reason:     ReasonPriceDrop,
				PrevPrice:  prev.Price,
				PriceDelta: prev.Price - rc.Candidate.Price,
			})
		}
	}
	return changes
}

// isPriceDrop applies the configured thresholds; any one condition suffices.
func isPriceDrop(prevPrice, newPrice int64, cond tour.ResolvedConditions) bool {
	drop := prevPrice - newPrice
	if cond.PriceDropAmount > 0 && drop >= cond.PriceDropAmount {
		return true
	}
	if cond.PriceDropPercent > 0 && prevPrice > 0 {
		if float64(drop)/float64(prevPrice)*100 >= cond.PriceDropPercent {
			return true
		}
	}
	if cond.PriceBelowThreshold > 0 && newPrice <= cond.PriceBelowThreshold && drop > 0 {
		return true
	}
	return false
}
