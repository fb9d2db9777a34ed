package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/tourwatch/internal/tour"
)

func testQuery() tour.SavedSearchQuery {
	return tour.SavedSearchQuery{
		Destinations: []string{"Antalya"},
		DateFrom:     "2026-09-10",
		DateTo:       "2026-09-24",
		Adults:       2,
		Budget:       150000,
		Currency:     "USD",
	}
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/search" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}

		var q tour.SavedSearchQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decoding query: %v", err)
		}
		if len(q.Destinations) != 1 || q.Destinations[0] != "Antalya" {
			t.Errorf("destinations = %v", q.Destinations)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"results": []tour.CandidateResult{
				{Provider: "sunhub", ExternalID: "t-1", Price: 120000, Currency: "USD", Available: true},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	results, err := c.Search(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Key() != "sunhub:t-1" {
		t.Fatalf("results = %+v, want one sunhub:t-1", results)
	}
}

func TestClient_SearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream unavailable"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Search(context.Background(), testQuery())
	if err == nil {
		t.Fatal("Search succeeded on 502")
	}
	if want := "upstream unavailable"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err, want)
	}
}

func TestClient_SearchContextTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, testQuery())
	if err == nil {
		t.Fatal("Search succeeded past its deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
