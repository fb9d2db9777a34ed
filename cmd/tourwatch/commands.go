package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/tourwatch/internal/api"
	"github.com/kalambet/tourwatch/internal/config"
	"github.com/kalambet/tourwatch/internal/tour"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Manage monitored searches",
}

var searchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a monitored search",
	Long: `Create a monitored search.

Examples:
  tourwatch search create --owner alice --destinations "Turkey,Egypt" \
    --date-from 2026-09-10 --date-to 2026-09-24 --adults 2 \
    --budget 150000 --currency USD --monitor-for 720h \
    --text "beach holiday, 5 stars, all inclusive"
  tourwatch search create --owner bob --destinations Austria \
    --flexible-month 2027-01 --nights 7 --adults 2 --budget 300000 \
    --currency EUR --monitor-for 1440h --text "ski trip" \
    --priority slopeDistance=10 --priority price=8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		destinations, _ := cmd.Flags().GetString("destinations")
		monitorFor, _ := cmd.Flags().GetDuration("monitor-for")

		adults, _ := cmd.Flags().GetInt("adults")
		nights, _ := cmd.Flags().GetInt("nights")
		budget, _ := cmd.Flags().GetInt64("budget")

		query := tour.SavedSearchQuery{
			Destinations: splitTrim(destinations),
			Adults:       adults,
			Nights:       nights,
			Budget:       budget,
		}
		query.DateFrom, _ = cmd.Flags().GetString("date-from")
		query.DateTo, _ = cmd.Flags().GetString("date-to")
		query.FlexibleMonth, _ = cmd.Flags().GetString("flexible-month")
		query.Currency, _ = cmd.Flags().GetString("currency")
		query.FreeText, _ = cmd.Flags().GetString("text")
		if tags, _ := cmd.Flags().GetString("tags"); tags != "" {
			query.Tags = splitTrim(tags)
		}
		if ages, _ := cmd.Flags().GetString("children-ages"); ages != "" {
			for _, s := range splitTrim(ages) {
				age, err := strconv.Atoi(s)
				if err != nil {
					return fmt.Errorf("invalid child age %q", s)
				}
				query.ChildrenAges = append(query.ChildrenAges, age)
			}
		}
		if priorities, _ := cmd.Flags().GetStringSlice("priority"); len(priorities) > 0 {
			query.Priorities = make(map[string]int, len(priorities))
			for _, p := range priorities {
				name, weight, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --priority %q, want name=weight", p)
				}
				w, err := strconv.Atoi(weight)
				if err != nil {
					return fmt.Errorf("invalid priority weight in %q", p)
				}
				query.Priorities[name] = w
			}
		}

		cond, err := conditionsFromFlags(cmd)
		if err != nil {
			return err
		}

		req := api.CreateSearchRequest{
			OwnerID:          owner,
			Query:            query,
			NotifyConditions: cond,
			MonitorUntil:     time.Now().UTC().Add(monitorFor),
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/searches", req)
		if err != nil {
			return err
		}

		var view api.SearchView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		printSuccess("Monitoring search %s until %s", view.ID, view.MonitorUntil.Format(time.RFC3339))
		return nil
	},
}

func conditionsFromFlags(cmd *cobra.Command) (*tour.NotifyConditions, error) {
	cond := &tour.NotifyConditions{}
	set := false

	if cmd.Flags().Changed("min-score") {
		v, _ := cmd.Flags().GetInt("min-score")
		cond.MinMatchScore = &v
		set = true
	}
	if cmd.Flags().Changed("price-drop-percent") {
		v, _ := cmd.Flags().GetFloat64("price-drop-percent")
		cond.PriceDropPercent = &v
		set = true
	}
	if cmd.Flags().Changed("price-drop-amount") {
		v, _ := cmd.Flags().GetInt64("price-drop-amount")
		cond.PriceDropAmount = &v
		set = true
	}
	if cmd.Flags().Changed("price-below") {
		v, _ := cmd.Flags().GetInt64("price-below")
		cond.PriceBelowThreshold = &v
		set = true
	}
	if cmd.Flags().Changed("max-per-day") {
		v, _ := cmd.Flags().GetInt("max-per-day")
		cond.MaxNotificationsPerDay = &v
		set = true
	}
	if v, _ := cmd.Flags().GetBool("top-only"); v {
		cond.OnlyTopMatches = true
		set = true
	}
	if cmd.Flags().Changed("no-new") {
		f := false
		cond.NotifyNewTours = &f
		set = true
	}
	if quiet, _ := cmd.Flags().GetString("quiet-hours"); quiet != "" {
		start, end, ok := strings.Cut(quiet, "-")
		if !ok {
			return nil, fmt.Errorf("invalid --quiet-hours %q, want HH:MM-HH:MM", quiet)
		}
		cond.QuietHours = &tour.QuietHours{Start: start, End: end}
		set = true
	}

	if !set {
		return nil, nil
	}
	return cond, nil
}

var searchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/searches?owner_id=%s&all=%t", owner, all)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var views []api.SearchView
		if err := decodeJSON(resp, &views); err != nil {
			return err
		}

		if len(views) == 0 {
			fmt.Println("No monitored searches found.")
			return nil
		}

		for _, v := range views {
			state := "active"
			switch {
			case !v.IsActive:
				state = "stopped"
			case v.IsPaused:
				state = "paused"
			}
			fmt.Printf("%s  %-7s  checks: %-4d notifications: %-4d until %s\n",
				colorize(colorCyan, v.ID[:8]),
				state,
				v.ChecksCount,
				v.NotificationsCount,
				v.MonitorUntil.Format("2006-01-02"),
			)
		}
		return nil
	},
}

var searchShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a monitored search as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/searches/"+args[0])
		if err != nil {
			return err
		}

		var view any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func lifecycleCmd(use, short, action, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.post(cmd.Context(), "/searches/"+args[0]+"/"+action, nil)
			if err != nil {
				return err
			}

			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}

			printSuccess("%s search %s", done, args[0])
			return nil
		},
	}
}

var searchEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "List a search's notification events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/searches/%s/events?limit=%d", args[0], limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var events []struct {
			ID        string    `json:"id"`
			Reason    string    `json:"reason"`
			Message   string    `json:"message"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		for _, ev := range events {
			fmt.Printf("%s  %-20s %-7s %s\n",
				ev.CreatedAt.Format("2006-01-02 15:04"),
				colorize(colorBold, ev.Reason),
				ev.Status,
				ev.Message,
			)
		}
		return nil
	},
}

func init() {
	searchCreateCmd.Flags().String("owner", "", "owner of the search (required)")
	searchCreateCmd.Flags().String("destinations", "", "comma-separated destinations (required)")
	searchCreateCmd.Flags().String("date-from", "", "earliest departure date (YYYY-MM-DD)")
	searchCreateCmd.Flags().String("date-to", "", "latest return date (YYYY-MM-DD)")
	searchCreateCmd.Flags().String("flexible-month", "", "flexible month (YYYY-MM) instead of fixed dates")
	searchCreateCmd.Flags().Int("nights", 0, "trip length in nights")
	searchCreateCmd.Flags().Int("adults", 2, "number of adults")
	searchCreateCmd.Flags().String("children-ages", "", "comma-separated children ages")
	searchCreateCmd.Flags().Int64("budget", 0, "budget in minor currency units (required)")
	searchCreateCmd.Flags().String("currency", "USD", "budget currency")
	searchCreateCmd.Flags().String("text", "", "free-text wishes, e.g. \"beach holiday, 5 stars\"")
	searchCreateCmd.Flags().String("tags", "", "comma-separated tags")
	searchCreateCmd.Flags().StringSlice("priority", nil, "criterion priority as name=weight (0-10), repeatable")
	searchCreateCmd.Flags().Duration("monitor-for", 30*24*time.Hour, "how long to monitor")
	searchCreateCmd.Flags().Int("min-score", 0, "minimum match score to notify (default 70)")
	searchCreateCmd.Flags().Float64("price-drop-percent", 0, "notify on price drops of at least this percent (default 10)")
	searchCreateCmd.Flags().Int64("price-drop-amount", 0, "notify on price drops of at least this amount (minor units)")
	searchCreateCmd.Flags().Int64("price-below", 0, "notify when a dropping price crosses below this amount")
	searchCreateCmd.Flags().Int("max-per-day", 0, "daily notification cap (default 10)")
	searchCreateCmd.Flags().Bool("top-only", false, "only notify for the top matches (cap 3/day)")
	searchCreateCmd.Flags().Bool("no-new", false, "do not notify about newly appearing tours")
	searchCreateCmd.Flags().String("quiet-hours", "", "suppress checks during HH:MM-HH:MM")
	searchCreateCmd.MarkFlagRequired("owner")
	searchCreateCmd.MarkFlagRequired("destinations")
	searchCreateCmd.MarkFlagRequired("budget")

	searchListCmd.Flags().String("owner", "", "owner of the searches (required)")
	searchListCmd.Flags().Bool("all", false, "include stopped searches")
	searchListCmd.MarkFlagRequired("owner")

	searchEventsCmd.Flags().Int("limit", 20, "maximum number of events to list")

	searchCmd.AddCommand(searchCreateCmd)
	searchCmd.AddCommand(searchListCmd)
	searchCmd.AddCommand(searchShowCmd)
	searchCmd.AddCommand(lifecycleCmd("pause <id>", "Pause a monitored search", "pause", "Paused"))
	searchCmd.AddCommand(lifecycleCmd("resume <id>", "Resume a paused search", "resume", "Resumed"))
	searchCmd.AddCommand(lifecycleCmd("stop <id>", "Stop a monitored search permanently", "stop", "Stopped"))
	searchCmd.AddCommand(searchEventsCmd)
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
