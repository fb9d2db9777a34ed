// Package provider talks to the external travel offer aggregator. The
// aggregator is opaque to the engine; it may fan out to any number of travel
// data sources behind its own API.
package provider

import (
	"context"

	"github.com/kalambet/tourwatch/internal/tour"
)

// Aggregator executes a saved search against the external offer sources.
type Aggregator interface {
	Search(ctx context.Context, q tour.SavedSearchQuery) ([]tour.CandidateResult, error)
}
