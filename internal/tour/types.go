// Package tour holds the domain model shared by the monitoring engine:
// saved search queries, provider candidates, and notification conditions.
package tour

import (
	"errors"
	"fmt"
	"time"
)

// SavedSearchQuery captures what the user asked for. It is immutable once a
// monitored search is created from it; editing means stopping the search and
// creating a new one.
type SavedSearchQuery struct {
	Destinations  []string       `json:"destinations"`
	DateFrom      string         `json:"date_from,omitempty"`      // YYYY-MM-DD
	DateTo        string         `json:"date_to,omitempty"`        // YYYY-MM-DD
	FlexibleMonth string         `json:"flexible_month,omitempty"` // YYYY-MM
	Nights        int            `json:"nights"`
	Adults        int            `json:"adults"`
	ChildrenAges  []int          `json:"children_ages,omitempty"`
	Budget        int64          `json:"budget"` // minor currency units
	Currency      string         `json:"currency"`
	FreeText      string         `json:"free_text,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Priorities    map[string]int `json:"priorities,omitempty"` // criterion -> weight 0..10
}

// Children returns the number of children travelling.
func (q SavedSearchQuery) Children() int {
	return len(q.ChildrenAges)
}

// Validate checks the query is well-formed enough to monitor.
func (q SavedSearchQuery) Validate() error {
	if len(q.Destinations) == 0 {
		return errors.New("at least one destination is required")
	}
	if q.Adults < 1 {
		return errors.New("at least one adult traveller is required")
	}
	if q.Budget <= 0 {
		return errors.New("budget must be positive")
	}
	if q.FlexibleMonth == "" && (q.DateFrom == "" || q.DateTo == "") {
		return errors.New("either a fixed date window or a flexible month is required")
	}
	if q.FlexibleMonth != "" {
		if _, err := time.Parse("2006-01", q.FlexibleMonth); err != nil {
			return fmt.Errorf("flexible_month must be YYYY-MM: %w", err)
		}
	}
	for name, w := range q.Priorities {
		if w < 0 || w > 10 {
			return fmt.Errorf("priority %q must be within 0..10, got %d", name, w)
		}
	}
	return nil
}

// Meal plan categories reported by the provider aggregator.
const (
	MealAllInclusive = "all_inclusive"
	MealFullBoard    = "full_board"
	MealHalfBoard    = "half_board"
	MealBreakfast    = "breakfast"
	MealNone         = "none"
)

// CandidateResult is one offer returned by the provider aggregator.
// Identity is (Provider, ExternalID); everything else may change between
// cycles and is what the change detector diffs.
type CandidateResult struct {
	Provider       string  `json:"provider"`
	ExternalID     string  `json:"external_id"`
	Name           string  `json:"name"`
	Price          int64   `json:"price"` // minor currency units
	Currency       string  `json:"currency"`
	Available      bool    `json:"available"`
	StarRating     float64 `json:"star_rating"`
	BeachLine      int     `json:"beach_line,omitempty"`      // 1 = beachfront, 0 = unknown
	DistanceMeters int     `json:"distance_meters,omitempty"` // to beach/slope/center, 0 = unknown
	MealPlan       string  `json:"meal_plan,omitempty"`
	HotelRating    float64 `json:"hotel_rating,omitempty"` // review score 0..10, 0 = unknown
	LocationMatch  bool    `json:"location_match"`
	SafetyScore    float64 `json:"safety_score,omitempty"` // 0..10, 0 = unknown
	HasKidsClub    bool    `json:"has_kids_club,omitempty"`
	HasFamilyRooms bool    `json:"has_family_rooms,omitempty"`
	HasWaterpark   bool    `json:"has_waterpark,omitempty"`
	URL            string  `json:"url,omitempty"`
}

// Key returns the stable identity used for snapshot diffing.
func (c CandidateResult) Key() string {
	return c.Provider + ":" + c.ExternalID
}

// RankedCandidate is a candidate plus its score against one query.
// It only exists within a single monitoring cycle.
type RankedCandidate struct {
	Candidate CandidateResult
	Score     int            // 0..100
	Breakdown map[string]int // criterion -> sub-score 0..100
}
