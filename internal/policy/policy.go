// Package policy decides which classified changes actually become
// notifications: quiet hours, deterministic ordering, and the daily budget.
package policy

import (
	"sort"
	"time"

	"github.com/kalambet/tourwatch/internal/change"
	"github.com/kalambet/tourwatch/internal/tour"
)

// InQuietHours reports whether now falls inside the configured window.
// Comparison is minute-of-day based; a window whose start is later than its
// end wraps past midnight (22:00-09:00 spans two calendar days).
func InQuietHours(qh *tour.QuietHours, now time.Time) bool {
	if qh == nil {
		return false
	}
	start, err := minuteOfDay(qh.Start)
	if err != nil {
		return false
	}
	end, err := minuteOfDay(qh.End)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func minuteOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Select orders classified changes and caps them to what is left of the
// search's daily notification budget. sentToday is the number of events
// already recorded since local midnight.
//
// Ordering is deterministic: score descending, ties broken by lower price,
// then by candidate key.
func Select(changes []change.Change, cond tour.ResolvedConditions, sentToday int) []change.Change {
	if len(changes) == 0 {
		return nil
	}

	sorted := make([]change.Change, len(changes))
	copy(sorted, changes)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Candidate.Score != b.Candidate.Score {
			return a.Candidate.Score > b.Candidate.Score
		}
		if a.Candidate.Candidate.Price != b.Candidate.Candidate.Price {
			return a.Candidate.Candidate.Price < b.Candidate.Candidate.Price
		}
		return a.Candidate.Candidate.Key() < b.Candidate.Candidate.Key()
	})

	budget := cond.DailyBudget() - sentToday
	if budget <= 0 {
		return nil
	}
	if len(sorted) > budget {
		sorted = sorted[:budget]
	}
	return sorted
}
