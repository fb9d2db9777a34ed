// Package notify delivers notification events to the user's channel. The
// engine only depends on the Deliverer interface; the concrete transport
// (webhook into a chat platform, log output) stays out of the core.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/tourwatch/internal/change"
)

// Action is an inline control attached to a notification. The receiving
// channel renders it as a button (or similar) that calls back into the
// lifecycle API.
type Action struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Event is the payload handed to a Deliverer: text, an optional offer link,
// and inline lifecycle controls for the search that produced it.
type Event struct {
	EventID      string        `json:"event_id"`
	SearchID     string        `json:"search_id"`
	OwnerID      string        `json:"owner_id"`
	CandidateKey string        `json:"candidate_key"`
	Reason       change.Reason `json:"reason"`
	Score        int           `json:"score"`
	Price        int64         `json:"price"`
	PriceDelta   int64         `json:"price_delta,omitempty"`
	Currency     string        `json:"currency"`
	Text         string        `json:"text"`
	URL          string        `json:"url,omitempty"`
	Actions      []Action      `json:"actions,omitempty"`
}

// Result is the delivery outcome. Err is set when Delivered is false.
type Result struct {
	Delivered bool
	Err       error
}

// Deliverer sends one event to the notification channel.
type Deliverer interface {
	Deliver(ctx context.Context, ev Event) Result
}

// SearchActions builds the standard inline controls for a search.
func SearchActions(searchID string) []Action {
	return []Action{
		{Label: "Pause", Method: "POST", Path: "/searches/" + searchID + "/pause"},
		{Label: "Stop", Method: "POST", Path: "/searches/" + searchID + "/stop"},
	}
}

// FormatMessage renders the human-readable notification line for a change.
func FormatMessage(ch change.Change) string {
	c := ch.Candidate.Candidate
	name := c.Name
	if name == "" {
		name = c.Key()
	}

	var b strings.Builder
	switch ch.Reason {
	case change.ReasonNew:
		fmt.Fprintf(&b, "New offer: %s at %s", name, formatPrice(c.Price, c.Currency))
	case change.ReasonPriceDrop:
		fmt.Fprintf(&b, "Price drop: %s now %s (was %s, save %s)",
			name, formatPrice(c.Price, c.Currency),
			formatPrice(ch.PrevPrice, c.Currency), formatPrice(ch.PriceDelta, c.Currency))
	case change.ReasonAvailabilityChange:
		fmt.Fprintf(&b, "Back in stock: %s at %s", name, formatPrice(c.Price, c.Currency))
	default:
		fmt.Fprintf(&b, "Update: %s at %s", name, formatPrice(c.Price, c.Currency))
	}
	fmt.Fprintf(&b, ", match %d%%", ch.Candidate.Score)
	return b.String()
}

// formatPrice renders minor currency units as a whole amount with the
// currency code.
func formatPrice(minor int64, currency string) string {
	whole := minor / 100
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}
	if currency == "" {
		currency = "USD"
	}
	if cents == 0 {
		return fmt.Sprintf("%d %s", whole, currency)
	}
	return fmt.Sprintf("%d.%02d %s", whole, cents, currency)
}
