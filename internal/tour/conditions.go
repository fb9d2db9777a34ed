package tour

import (
	"fmt"
	"time"
)

// Default condition values applied by ResolveConditions.
const (
	DefaultMinMatchScore          = 70
	DefaultPriceDropPercent       = 10.0
	DefaultMaxNotificationsPerDay = 10
	TopMatchesNotificationsPerDay = 3
)

// QuietHours is a local-time window during which no notifications are
// evaluated or sent. The window may wrap past midnight (e.g. 22:00-09:00).
type QuietHours struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

// NotifyConditions is the optional-everything form accepted at search
// creation. Nil pointers mean "use the default".
type NotifyConditions struct {
	NotifyNewTours         *bool       `json:"notify_new_tours,omitempty"`
	PriceDropPercent       *float64    `json:"price_drop_percent,omitempty"`
	PriceDropAmount        *int64      `json:"price_drop_amount,omitempty"`
	PriceBelowThreshold    *int64      `json:"price_below_threshold,omitempty"`
	MinMatchScore          *int        `json:"min_match_score,omitempty"`
	OnlyTopMatches         bool        `json:"only_top_matches,omitempty"`
	MaxNotificationsPerDay *int        `json:"max_notifications_per_day,omitempty"`
	QuietHours             *QuietHours `json:"quiet_hours,omitempty"`
}

// ResolvedConditions is the fully-populated form the runtime works with.
// Resolution happens exactly once, at search creation; the engine never sees
// a nil field.
type ResolvedConditions struct {
	NotifyNewTours         bool        `json:"notify_new_tours"`
	PriceDropPercent       float64     `json:"price_drop_percent"`
	PriceDropAmount        int64       `json:"price_drop_amount"`
	PriceBelowThreshold    int64       `json:"price_below_threshold"`
	MinMatchScore          int         `json:"min_match_score"`
	OnlyTopMatches         bool        `json:"only_top_matches"`
	MaxNotificationsPerDay int         `json:"max_notifications_per_day"`
	QuietHours             *QuietHours `json:"quiet_hours,omitempty"`
}

// DailyBudget returns the maximum number of notifications per day.
func (rc ResolvedConditions) DailyBudget() int {
	if rc.OnlyTopMatches {
		return TopMatchesNotificationsPerDay
	}
	return rc.MaxNotificationsPerDay
}

// ResolveConditions validates c and fills in documented defaults. A nil c
// resolves to pure defaults.
func ResolveConditions(c *NotifyConditions) (ResolvedConditions, error) {
	rc := ResolvedConditions{
		NotifyNewTours:         true,
		PriceDropPercent:       DefaultPriceDropPercent,
		MinMatchScore:          DefaultMinMatchScore,
		MaxNotificationsPerDay: DefaultMaxNotificationsPerDay,
	}
	if c == nil {
		return rc, nil
	}

	if c.NotifyNewTours != nil {
		rc.NotifyNewTours = *c.NotifyNewTours
	}
	if c.PriceDropPercent != nil {
		if *c.PriceDropPercent < 0 || *c.PriceDropPercent > 100 {
			return ResolvedConditions{}, fmt.Errorf("price_drop_percent must be within 0..100, got %g", *c.PriceDropPercent)
		}
		rc.PriceDropPercent = *c.PriceDropPercent
	}
	if c.PriceDropAmount != nil {
		if *c.PriceDropAmount < 0 {
			return ResolvedConditions{}, fmt.Errorf("price_drop_amount must be non-negative, got %d", *c.PriceDropAmount)
		}
		rc.PriceDropAmount = *c.PriceDropAmount
	}
	if c.PriceBelowThreshold != nil {
		if *c.PriceBelowThreshold < 0 {
			return ResolvedConditions{}, fmt.Errorf("price_below_threshold must be non-negative, got %d", *c.PriceBelowThreshold)
		}
		rc.PriceBelowThreshold = *c.PriceBelowThreshold
	}
	if c.MinMatchScore != nil {
		if *c.MinMatchScore < 0 || *c.MinMatchScore > 100 {
			return ResolvedConditions{}, fmt.Errorf("min_match_score must be within 0..100, got %d", *c.MinMatchScore)
		}
		rc.MinMatchScore = *c.MinMatchScore
	}
	rc.OnlyTopMatches = c.OnlyTopMatches
	if c.MaxNotificationsPerDay != nil {
		if *c.MaxNotificationsPerDay < 1 {
			return ResolvedConditions{}, fmt.Errorf("max_notifications_per_day must be at least 1, got %d", *c.MaxNotificationsPerDay)
		}
		rc.MaxNotificationsPerDay = *c.MaxNotificationsPerDay
	}
	if c.QuietHours != nil {
		if err := validateClock(c.QuietHours.Start); err != nil {
			return ResolvedConditions{}, fmt.Errorf("quiet_hours.start: %w", err)
		}
		if err := validateClock(c.QuietHours.End); err != nil {
			return ResolvedConditions{}, fmt.Errorf("quiet_hours.end: %w", err)
		}
		qh := *c.QuietHours
		rc.QuietHours = &qh
	}
	return rc, nil
}

func validateClock(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("must be HH:MM: %w", err)
	}
	return nil
}
