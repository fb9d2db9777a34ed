// Package ranking scores provider candidates against a user's weighted
// preferences. Scoring is a pure function of its inputs so cycles are
// deterministic and testable.
package ranking

import (
	"math"
	"strings"

	"github.com/kalambet/tourwatch/internal/tour"
)

// Style is a detected travel style that widens the relevant criterion set.
type Style string

const (
	StyleBeach  Style = "beach"
	StyleSki    Style = "ski"
	StyleFamily Style = "family"
	StyleCity   Style = "city"
)

// Criterion names. Base criteria always apply; the rest are pulled in by
// detected styles.
const (
	CritPrice         = "price"
	CritLocation      = "location"
	CritStarRating    = "starRating"  // hotel class, 1..5 stars
	CritHotelRating   = "hotelRating" // guest review score, 0..10
	CritSafety        = "safety"
	CritBeachLine     = "beachLine"
	CritSlopeDistance = "slopeDistance"
	CritProximity     = "proximity"
	CritMealType      = "mealType"
	CritKidsClub      = "kidsClub"
	CritFamilyRooms   = "familyRooms"
	CritWaterpark     = "waterpark"
)

// baseWeights are the default weights for the always-relevant criteria.
var baseWeights = map[string]int{
	CritPrice:       8,
	CritLocation:    5,
	CritStarRating:  5,
	CritHotelRating: 5,
	CritSafety:      5,
}

// styleWeights lists the criteria each style contributes with their default
// weights. When several styles contribute the same criterion, the effective
// default is the maximum, never the sum, so an underspecified query is not
// double-penalized on a shared criterion.
var styleWeights = map[Style]map[string]int{
	StyleBeach: {
		CritBeachLine: 8,
		CritMealType:  6,
		CritWaterpark: 3,
	},
	StyleSki: {
		CritSlopeDistance: 8,
		CritMealType:      5,
	},
	StyleFamily: {
		CritKidsClub:    7,
		CritFamilyRooms: 7,
		CritWaterpark:   6,
		CritMealType:    6,
	},
	StyleCity: {
		CritProximity: 7,
	},
}

var styleKeywords = map[Style][]string{
	StyleBeach:  {"beach", "sea", "ocean", "island", "coast", "resort", "snorkel"},
	StyleSki:    {"ski", "slope", "snowboard", "alps", "piste"},
	StyleFamily: {"family", "kids", "children"},
	StyleCity:   {"city", "city-break", "excursion", "museum", "sightseeing"},
}

// DetectStyles infers travel styles from the query's free text, tags, and
// destinations. The family style requires actual children in the party;
// family-specific criteria are meaningless (and excluded, not neutral)
// without them.
func DetectStyles(q tour.SavedSearchQuery) []Style {
	text := strings.ToLower(q.FreeText)
	for _, t := range q.Tags {
		text += " " + strings.ToLower(t)
	}
	for _, d := range q.Destinations {
		text += " " + strings.ToLower(d)
	}

	var styles []Style
	for _, s := range []Style{StyleBeach, StyleSki, StyleFamily, StyleCity} {
		if s == StyleFamily {
			if q.Children() > 0 {
				styles = append(styles, s)
			}
			continue
		}
		for _, kw := range styleKeywords[s] {
			if strings.Contains(text, kw) {
				styles = append(styles, s)
				break
			}
		}
	}
	return styles
}

// relevantWeights builds the criterion -> weight map for a query: base
// criteria, plus the union of the detected styles' criteria at max default
// weight, with explicit user priorities overriding everything. A zero user
// weight removes the criterion.
func relevantWeights(q tour.SavedSearchQuery) map[string]int {
	weights := make(map[string]int, len(baseWeights))
	for name, w := range baseWeights {
		weights[name] = w
	}
	for _, s := range DetectStyles(q) {
		for name, w := range styleWeights[s] {
			if w > weights[name] {
				weights[name] = w
			}
		}
	}
	for name, w := range q.Priorities {
		if w == 0 {
			delete(weights, name)
			continue
		}
		weights[name] = w
	}
	if q.Children() == 0 {
		delete(weights, CritKidsClub)
		delete(weights, CritFamilyRooms)
	}
	return weights
}

// Score ranks one candidate against one query. Criteria whose sub-score
// cannot be resolved (unknown attribute, zero budget) are omitted from the
// weighted average rather than scored neutrally; if nothing is resolvable the
// overall score is a fixed neutral 50.
func Score(c tour.CandidateResult, q tour.SavedSearchQuery) tour.RankedCandidate {
	weights := relevantWeights(q)
	breakdown := make(map[string]int, len(weights))

	var weightedSum, totalWeight int
	for name, weight := range weights {
		sub, ok := subScore(name, c, q)
		if !ok {
			continue
		}
		breakdown[name] = sub
		weightedSum += sub * weight
		totalWeight += weight
	}

	score := 50
	if totalWeight > 0 {
		score = int(math.Round(float64(weightedSum) / float64(totalWeight)))
	}
	return tour.RankedCandidate{Candidate: c, Score: score, Breakdown: breakdown}
}

// subScore computes one criterion's 0..100 sub-score. The second return value
// is false when the criterion cannot be resolved for this candidate/query.
func subScore(name string, c tour.CandidateResult, q tour.SavedSearchQuery) (int, bool) {
	switch name {
	case CritPrice:
		return priceScore(c.Price, q.Budget)
	case CritLocation:
		// Binary: the offer either is in the requested destination or it
		// is a non-match.
		if c.LocationMatch {
			return 100, true
		}
		return 0, true
	case CritStarRating:
		if c.StarRating <= 0 {
			return 0, false
		}
		return starScore(c.StarRating), true
	case CritHotelRating:
		if c.HotelRating <= 0 {
			return 0, false
		}
		return clamp100(int(math.Round(c.HotelRating / 10 * 100))), true
	case CritSafety:
		if c.SafetyScore <= 0 {
			return 0, false
		}
		return clamp100(int(math.Round(c.SafetyScore / 10 * 100))), true
	case CritBeachLine:
		return tierScore(c.BeachLine, c.DistanceMeters)
	case CritSlopeDistance, CritProximity:
		return distanceScore(c.DistanceMeters)
	case CritMealType:
		return mealScore(c.MealPlan), true
	case CritKidsClub:
		if c.HasKidsClub {
			return 100, true
		}
		return 30, true
	case CritFamilyRooms:
		if c.HasFamilyRooms {
			return 100, true
		}
		return 40, true
	case CritWaterpark:
		if c.HasWaterpark {
			return 100, true
		}
		return 50, true
	default:
		return 0, false
	}
}

// priceScore is deliberately piecewise, not linear: any price comfortably
// under budget is fully satisfactory, and a dollar under budget is never
// penalized.
func priceScore(price, budget int64) (int, bool) {
	if budget <= 0 || price <= 0 {
		return 0, false
	}
	ratio := float64(price) / float64(budget)
	switch {
	case ratio <= 0.7:
		return 100, true
	case ratio <= 0.85:
		return 90, true
	case ratio <= 1.0:
		return 80, true
	case ratio <= 1.1:
		return 60, true
	case ratio <= 1.2:
		return 40, true
	case ratio <= 1.5:
		return 20, true
	default:
		return 0, true
	}
}

// starScore is linear with a floor boost: 4-5 star hotels are treated as
// fully satisfactory.
func starScore(stars float64) int {
	if stars >= 4 {
		return 100
	}
	if stars <= 0 {
		return 0
	}
	return clamp100(int(math.Round(stars / 5 * 100)))
}

// tierScore prefers an explicit line tier; falls back to raw distance.
func tierScore(line, distanceMeters int) (int, bool) {
	switch {
	case line == 1:
		return 100, true
	case line == 2:
		return 70, true
	case line >= 3:
		return 40, true
	}
	return distanceScore(distanceMeters)
}

func distanceScore(meters int) (int, bool) {
	if meters <= 0 {
		return 0, false
	}
	switch {
	case meters <= 300:
		return 100, true
	case meters <= 800:
		return 70, true
	case meters <= 2000:
		return 40, true
	default:
		return 20, true
	}
}

func mealScore(plan string) int {
	switch plan {
	case tour.MealAllInclusive:
		return 100
	case tour.MealFullBoard:
		return 85
	case tour.MealHalfBoard:
		return 70
	case tour.MealBreakfast:
		return 50
	default:
		return 30
	}
}

func clamp100(v int) int {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
