package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tourwatch/internal/storage"
	"github.com/kalambet/tourwatch/internal/tour"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store SearchStore
}

// NewMCPServer creates an MCP server exposing search management as tools, so
// an assistant can set up and control monitoring on the user's behalf.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tourwatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tourwatch — background monitoring for saved tour searches with price and availability notifications."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_search",
			mcp.WithDescription("Start monitoring a tour search. The query is re-run periodically and qualifying changes produce notifications."),
			mcp.WithString("owner_id", mcp.Description("User the search belongs to"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query as JSON: destinations, dates, adults, budget, currency, free_text, priorities"), mcp.Required()),
			mcp.WithString("monitor_until", mcp.Description("RFC3339 time after which monitoring stops"), mcp.Required()),
			mcp.WithString("notify_conditions", mcp.Description("Optional notification conditions as JSON; omitted fields use defaults")),
		),
		mcpCreateSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_searches",
			mcp.WithDescription("List a user's monitored searches."),
			mcp.WithString("owner_id", mcp.Description("User the searches belong to"), mcp.Required()),
			mcp.WithBoolean("all", mcp.Description("Include stopped searches (default false)")),
		),
		mcpListSearches(deps),
	)

	s.AddTool(
		mcp.NewTool("pause_search",
			mcp.WithDescription("Pause a monitored search. A paused search is kept but not checked until resumed."),
			mcp.WithString("search_id", mcp.Description("Search to pause"), mcp.Required()),
		),
		mcpSetPaused(deps, true),
	)

	s.AddTool(
		mcp.NewTool("resume_search",
			mcp.WithDescription("Resume a paused search. Stopped searches cannot be resumed."),
			mcp.WithString("search_id", mcp.Description("Search to resume"), mcp.Required()),
		),
		mcpSetPaused(deps, false),
	)

	s.AddTool(
		mcp.NewTool("stop_search",
			mcp.WithDescription("Stop a monitored search permanently. Its history is retained."),
			mcp.WithString("search_id", mcp.Description("Search to stop"), mcp.Required()),
		),
		mcpStopSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tourwatch://events/recent",
			"Recent Notifications",
			mcp.WithResourceDescription("Last 20 notification events across all searches"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentEvents(deps),
	)

	return s
}

func mcpCreateSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		queryJSON, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		untilStr, err := req.RequireString("monitor_until")
		if err != nil {
			return mcpError("monitor_until is required"), nil
		}

		var query tour.SavedSearchQuery
		if err := json.Unmarshal([]byte(queryJSON), &query); err != nil {
			return mcpError(fmt.Sprintf("invalid query JSON: %v", err)), nil
		}

		until, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid monitor_until: %v", err)), nil
		}

		var cond *tour.NotifyConditions
		if condJSON := req.GetString("notify_conditions", ""); condJSON != "" {
			cond = &tour.NotifyConditions{}
			if err := json.Unmarshal([]byte(condJSON), cond); err != nil {
				return mcpError(fmt.Sprintf("invalid notify_conditions JSON: %v", err)), nil
			}
		}

		m, err := createSearch(deps.Store, CreateSearchRequest{
			OwnerID:          ownerID,
			Query:            query,
			NotifyConditions: cond,
			MonitorUntil:     until,
		}, time.Now().UTC())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create search: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Monitoring search %s until %s", m.ID, m.MonitorUntil.Format(time.RFC3339))), nil
	}
}

func mcpListSearches(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ownerID, err := req.RequireString("owner_id")
		if err != nil {
			return mcpError("owner_id is required"), nil
		}
		includeStopped := req.GetBool("all", false)

		searches, err := deps.Store.ListByOwner(ownerID, includeStopped)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list searches: %v", err)), nil
		}

		views := make([]SearchView, len(searches))
		for i, m := range searches {
			views[i] = searchView(m)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal searches: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetPaused(deps MCPDeps, paused bool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("search_id")
		if err != nil {
			return mcpError("search_id is required"), nil
		}

		m, err := deps.Store.GetSearch(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("search not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get search: %v", err)), nil
		}

		err = deps.Store.SetPaused(id, m.OwnerID, paused)
		switch {
		case errors.Is(err, storage.ErrStopped):
			return mcpError("search is stopped and cannot be resumed"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to update search: %v", err)), nil
		}

		if paused {
			return mcpText(fmt.Sprintf("Paused search %s", id)), nil
		}
		return mcpText(fmt.Sprintf("Resumed search %s", id)), nil
	}
}

func mcpStopSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("search_id")
		if err != nil {
			return mcpError("search_id is required"), nil
		}

		m, err := deps.Store.GetSearch(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("search not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get search: %v", err)), nil
		}

		if err := deps.Store.Stop(id, m.OwnerID); err != nil {
			return mcpError(fmt.Sprintf("failed to stop search: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stopped search %s", id)), nil
	}
}

func mcpResourceRecentEvents(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.Store.ListRecentEvents(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		type eventSummary struct {
			ID           string `json:"id"`
			SearchID     string `json:"search_id"`
			CandidateKey string `json:"candidate_key"`
			Reason       string `json:"reason"`
			Message      string `json:"message"`
			Status       string `json:"status"`
			CreatedAt    string `json:"created_at"`
		}

		summaries := make([]eventSummary, len(events))
		for i, ev := range events {
			summaries[i] = eventSummary{
				ID:           ev.ID,
				SearchID:     ev.SearchID,
				CandidateKey: ev.CandidateKey,
				Reason:       ev.Reason,
				Message:      ev.Message,
				Status:       ev.Status,
				CreatedAt:    ev.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal events: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
