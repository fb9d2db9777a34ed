// Package api exposes the management surface: an HTTP API for creating and
// controlling monitored searches, and an MCP server mirroring the same
// operations for assistant integrations.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/tourwatch/internal/storage"
	"github.com/kalambet/tourwatch/internal/tour"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SearchStore is the slice of storage the management API needs.
// Implemented by storage.Store.
type SearchStore interface {
	CreateSearch(m storage.MonitoredSearch) error
	GetSearch(id string) (storage.MonitoredSearch, error)
	ListByOwner(ownerID string, includeStopped bool) ([]storage.MonitoredSearch, error)
	SetPaused(id, ownerID string, paused bool) error
	Stop(id, ownerID string) error
	ListEvents(searchID string, limit int) ([]storage.NotificationEvent, error)
	ListRecentEvents(limit int) ([]storage.NotificationEvent, error)
}

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Store SearchStore
	Token string
}

// NewAppHandler returns the management HTTP API. Every route except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/searches", handleCreateSearch(deps))
		r.Get("/searches", handleListSearches(deps))
		r.Get("/searches/{id}", handleGetSearch(deps))
		r.Post("/searches/{id}/pause", handleSetPaused(deps, true))
		r.Post("/searches/{id}/resume", handleSetPaused(deps, false))
		r.Post("/searches/{id}/stop", handleStop(deps))
		r.Get("/searches/{id}/events", handleListEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// CreateSearchRequest is the body of POST /searches.
type CreateSearchRequest struct {
	OwnerID          string                 `json:"owner_id"`
	Query            tour.SavedSearchQuery  `json:"query"`
	NotifyConditions *tour.NotifyConditions `json:"notify_conditions,omitempty"`
	MonitorUntil     time.Time              `json:"monitor_until"`
}

// SearchView is the API representation of a monitored search. Query and
// conditions are stored as JSON and returned verbatim.
type SearchView struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Query              json.RawMessage `json:"query"`
	NotifyConditions   json.RawMessage `json:"notify_conditions"`
	MonitorUntil       time.Time       `json:"monitor_until"`
	IsActive           bool            `json:"is_active"`
	IsPaused           bool            `json:"is_paused"`
	ChecksCount        int             `json:"checks_count"`
	NotificationsCount int             `json:"notifications_count"`
	LastCheckedAt      *time.Time      `json:"last_checked_at,omitempty"`
	LastNotificationAt *time.Time      `json:"last_notification_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

func searchView(m storage.MonitoredSearch) SearchView {
	return SearchView{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		Query:              json.RawMessage(m.QueryJSON),
		NotifyConditions:   json.RawMessage(m.ConditionsJSON),
		MonitorUntil:       m.MonitorUntil,
		IsActive:           m.IsActive,
		IsPaused:           m.IsPaused,
		ChecksCount:        m.ChecksCount,
		NotificationsCount: m.NotificationsCount,
		LastCheckedAt:      m.LastCheckedAt,
		LastNotificationAt: m.LastNotificationAt,
		CreatedAt:          m.CreatedAt,
	}
}

// createSearch validates a request and persists the new search. Conditions
// are resolved to their effective values at creation time, so later changes
// to defaults never alter an existing search's behavior.
func createSearch(store SearchStore, req CreateSearchRequest, now time.Time) (storage.MonitoredSearch, error) {
	if req.OwnerID == "" {
		return storage.MonitoredSearch{}, errors.New("owner_id is required")
	}
	if err := req.Query.Validate(); err != nil {
		return storage.MonitoredSearch{}, fmt.Errorf("invalid query: %w", err)
	}
	if req.MonitorUntil.IsZero() {
		return storage.MonitoredSearch{}, errors.New("monitor_until is required")
	}
	if !req.MonitorUntil.After(now) {
		return storage.MonitoredSearch{}, errors.New("monitor_until must be in the future")
	}

	resolved, err := tour.ResolveConditions(req.NotifyConditions)
	if err != nil {
		return storage.MonitoredSearch{}, fmt.Errorf("invalid notify_conditions: %w", err)
	}

	queryJSON, err := json.Marshal(req.Query)
	if err != nil {
		return storage.MonitoredSearch{}, fmt.Errorf("encoding query: %w", err)
	}
	condJSON, err := json.Marshal(resolved)
	if err != nil {
		return storage.MonitoredSearch{}, fmt.Errorf("encoding conditions: %w", err)
	}

	m := storage.MonitoredSearch{
		ID:             uuid.New().String(),
		OwnerID:        req.OwnerID,
		QueryJSON:      string(queryJSON),
		ConditionsJSON: string(condJSON),
		MonitorUntil:   req.MonitorUntil.UTC(),
	}
	if err := store.CreateSearch(m); err != nil {
		return storage.MonitoredSearch{}, fmt.Errorf("saving search: %w", err)
	}
	return store.GetSearch(m.ID)
}

func handleCreateSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		m, err := createSearch(deps.Store, req, time.Now().UTC())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(searchView(m))
	}
}

func handleListSearches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id is required")
			return
		}
		includeStopped := r.URL.Query().Get("all") == "true"

		searches, err := deps.Store.ListByOwner(ownerID, includeStopped)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list searches: %v", err)
			return
		}

		views := make([]SearchView, len(searches))
		for i, m := range searches {
			views[i] = searchView(m)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleGetSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Store.GetSearch(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get search: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchView(m))
	}
}

// resolveOwner returns the owner scope for a lifecycle operation. Inline
// notification actions carry no owner, so an absent owner_id falls back to
// the search's own owner after the search is confirmed to exist.
func resolveOwner(deps AppDeps, r *http.Request, id string) (string, error) {
	if ownerID := r.URL.Query().Get("owner_id"); ownerID != "" {
		return ownerID, nil
	}
	m, err := deps.Store.GetSearch(id)
	if err != nil {
		return "", err
	}
	return m.OwnerID, nil
}

func handleSetPaused(deps AppDeps, paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ownerID, err := resolveOwner(deps, r, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get search: %v", err)
			return
		}

		err = deps.Store.SetPaused(id, ownerID, paused)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		case errors.Is(err, storage.ErrStopped):
			httpError(w, http.StatusConflict, "conflict", "search is stopped and cannot be resumed")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update search: %v", err)
			return
		}

		status := "paused"
		if !paused {
			status = "active"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": status})
	}
}

func handleStop(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ownerID, err := resolveOwner(deps, r, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get search: %v", err)
			return
		}

		err = deps.Store.Stop(id, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to stop search: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "stopped"})
	}
}

func handleListEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetSearch(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "search not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get search: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", 20, 100)
		events, err := deps.Store.ListEvents(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list events: %v", err)
			return
		}
		if events == nil {
			events = []storage.NotificationEvent{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
