package ranking

import (
	"testing"

	"github.com/kalambet/tourwatch/internal/tour"
)

func beachQuery(priorities map[string]int) tour.SavedSearchQuery {
	return tour.SavedSearchQuery{
		Destinations: []string{"Antalya"},
		DateFrom:     "2026-09-10",
		DateTo:       "2026-09-24",
		Nights:       7,
		Adults:       2,
		Budget:       150000,
		Currency:     "USD",
		FreeText:     "beach holiday, warm sea",
		Priorities:   priorities,
	}
}

func TestScore_HighMatchCandidate(t *testing.T) {
	q := beachQuery(map[string]int{CritStarRating: 10, CritBeachLine: 10, CritMealType: 9})
	c := tour.CandidateResult{
		Provider:      "sunhub",
		ExternalID:    "a-1",
		Price:         140000,
		StarRating:    5,
		BeachLine:     1,
		MealPlan:      tour.MealAllInclusive,
		LocationMatch: true,
	}

	ranked := Score(c, q)
	if ranked.Score <= 90 {
		t.Errorf("Score = %d, want > 90 (breakdown: %v)", ranked.Score, ranked.Breakdown)
	}
	if got := ranked.Breakdown[CritPrice]; got != 80 {
		t.Errorf("price sub-score = %d, want 80", got)
	}
	if got := ranked.Breakdown[CritBeachLine]; got != 100 {
		t.Errorf("beachLine sub-score = %d, want 100", got)
	}
}

func TestScore_PoorMatchCandidate(t *testing.T) {
	q := beachQuery(map[string]int{CritStarRating: 10, CritBeachLine: 10, CritMealType: 9})
	c := tour.CandidateResult{
		Provider:      "sunhub",
		ExternalID:    "b-1",
		Price:         200000,
		StarRating:    3,
		BeachLine:     3,
		MealPlan:      tour.MealBreakfast,
		LocationMatch: false,
	}

	ranked := Score(c, q)
	if ranked.Score >= 40 {
		t.Errorf("Score = %d, want < 40 (breakdown: %v)", ranked.Score, ranked.Breakdown)
	}
}

func TestScore_PricePiecewise(t *testing.T) {
	// Price-only weighting isolates the piecewise table.
	q := tour.SavedSearchQuery{
		Destinations:  []string{"Rome"},
		FlexibleMonth: "2026-10",
		Adults:        2,
		Budget:        100000,
		Priorities: map[string]int{
			CritPrice: 10, CritLocation: 0, CritStarRating: 0,
			CritHotelRating: 0, CritSafety: 0,
		},
	}

	tests := []struct {
		price int64
		want  int
	}{
		{69000, 100},
		{70000, 100},
		{85000, 90},
		{99999, 80},
		{100000, 80},
		{110000, 60},
		{120000, 40},
		{150000, 20},
		{151000, 0},
	}
	for _, tt := range tests {
		ranked := Score(tour.CandidateResult{Provider: "p", ExternalID: "x", Price: tt.price}, q)
		if ranked.Score != tt.want {
			t.Errorf("price %d: Score = %d, want %d", tt.price, ranked.Score, tt.want)
		}
	}
}

func TestScore_StarFloorBoost(t *testing.T) {
	// 4+ stars are fully satisfactory, below that it is linear.
	tests := []struct {
		stars float64
		want  int
	}{
		{5, 100},
		{4, 100},
		{3, 60},
		{2.5, 50},
	}
	q := tour.SavedSearchQuery{
		Destinations:  []string{"Rome"},
		FlexibleMonth: "2026-10",
		Adults:        2,
		Budget:        100000,
		Priorities: map[string]int{
			CritStarRating: 10, CritPrice: 0, CritLocation: 0,
			CritHotelRating: 0, CritSafety: 0,
		},
	}
	for _, tt := range tests {
		ranked := Score(tour.CandidateResult{Provider: "p", ExternalID: "x", Price: 1, StarRating: tt.stars}, q)
		if ranked.Score != tt.want {
			t.Errorf("stars %.1f: Score = %d, want %d", tt.stars, ranked.Score, tt.want)
		}
	}
}

func TestScore_NoResolvableCriteriaIsNeutral(t *testing.T) {
	// Every criterion either zero-weighted or unresolvable: fixed neutral 50.
	q := tour.SavedSearchQuery{
		Destinations:  []string{"Rome"},
		FlexibleMonth: "2026-10",
		Adults:        2,
		Budget:        100000,
		Priorities: map[string]int{
			CritPrice: 0, CritLocation: 0, CritStarRating: 0,
			CritHotelRating: 0, CritSafety: 0,
		},
	}
	ranked := Score(tour.CandidateResult{Provider: "p", ExternalID: "x", Price: 50000}, q)
	if ranked.Score != 50 {
		t.Errorf("Score = %d, want neutral 50", ranked.Score)
	}
	if len(ranked.Breakdown) != 0 {
		t.Errorf("Breakdown = %v, want empty", ranked.Breakdown)
	}
}

func TestDetectStyles(t *testing.T) {
	tests := []struct {
		name string
		q    tour.SavedSearchQuery
		want []Style
	}{
		{
			name: "beach from free text",
			q:    tour.SavedSearchQuery{FreeText: "quiet beach with clear sea"},
			want: []Style{StyleBeach},
		},
		{
			name: "ski from tags",
			q:    tour.SavedSearchQuery{Tags: []string{"ski"}},
			want: []Style{StyleSki},
		},
		{
			name: "family requires children",
			q:    tour.SavedSearchQuery{Tags: []string{"family"}},
			want: nil,
		},
		{
			name: "family from children ages",
			q:    tour.SavedSearchQuery{ChildrenAges: []int{4, 9}},
			want: []Style{StyleFamily},
		},
		{
			name: "beach and family union",
			q:    tour.SavedSearchQuery{FreeText: "beach", ChildrenAges: []int{4}},
			want: []Style{StyleBeach, StyleFamily},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectStyles(tt.q)
			if len(got) != len(tt.want) {
				t.Fatalf("DetectStyles = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("DetectStyles[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRelevantWeights_UnionTakesMax(t *testing.T) {
	// Beach (waterpark 3) and family (waterpark 6) both apply: the default
	// weight must be the max, never the sum.
	q := tour.SavedSearchQuery{
		Destinations:  []string{"Crete"},
		FlexibleMonth: "2026-07",
		Adults:        2,
		ChildrenAges:  []int{5},
		Budget:        200000,
		FreeText:      "beach",
	}
	weights := relevantWeights(q)
	if got := weights[CritWaterpark]; got != 6 {
		t.Errorf("waterpark weight = %d, want max(3,6)=6", got)
	}
	if got := weights[CritMealType]; got != 6 {
		t.Errorf("mealType weight = %d, want max across styles = 6", got)
	}
}

func TestRelevantWeights_FamilyCriteriaOmittedWithoutChildren(t *testing.T) {
	q := tour.SavedSearchQuery{
		Destinations:  []string{"Crete"},
		FlexibleMonth: "2026-07",
		Adults:        2,
		Budget:        200000,
		// Even an explicit priority cannot pull a family criterion in
		// when no children travel; omission is not a neutral score.
		Priorities: map[string]int{CritKidsClub: 9},
	}
	weights := relevantWeights(q)
	if _, ok := weights[CritKidsClub]; ok {
		t.Error("kidsClub present in relevant set for a query with no children")
	}
	if _, ok := weights[CritFamilyRooms]; ok {
		t.Error("familyRooms present in relevant set for a query with no children")
	}
}

func TestScore_IsPure(t *testing.T) {
	q := beachQuery(map[string]int{CritStarRating: 10})
	c := tour.CandidateResult{Provider: "p", ExternalID: "x", Price: 120000, StarRating: 4, LocationMatch: true}
	first := Score(c, q)
	for i := 0; i < 5; i++ {
		if got := Score(c, q); got.Score != first.Score {
			t.Fatalf("Score changed across calls: %d then %d", first.Score, got.Score)
		}
	}
}
