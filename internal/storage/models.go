package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the requesting owner.
var ErrNotFound = errors.New("not found")

// ErrStopped is returned when a lifecycle operation targets a stopped search.
// Stop is terminal; a stopped search never re-enters the active set.
var ErrStopped = errors.New("search is stopped")

// MonitoredSearch is a saved query plus its monitoring lifecycle state.
// Query and conditions are stored as JSON text; the query is immutable once
// the search exists.
type MonitoredSearch struct {
	ID                 string
	OwnerID            string
	QueryJSON          string
	ConditionsJSON     string
	MonitorUntil       time.Time
	IsActive           bool
	IsPaused           bool
	ChecksCount        int
	NotificationsCount int
	LastCheckedAt      *time.Time
	LastNotificationAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResultSnapshot is the last known state of one candidate for one search.
// At most one live snapshot exists per (search, candidate) pair; writes
// supersede.
type ResultSnapshot struct {
	SearchID     string
	CandidateKey string
	Price        int64
	Currency     string
	Score        int
	Available    bool
	FoundAt      time.Time
	IsNotified   bool
}

// NotificationEvent delivery statuses.
const (
	EventPending = "pending"
	EventSent    = "sent"
	EventFailed  = "failed"
)

// NotificationEvent records a decision to notify. Delivery status is tracked
// independently of the search's counters: the counters mean "decided to
// notify", not "successfully delivered".
type NotificationEvent struct {
	ID           string
	SearchID     string
	CandidateKey string
	Reason       string
	Score        int
	PriceDelta   int64
	Message      string
	Status       string
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}
