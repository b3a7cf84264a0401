package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"toolhost/internal/session"
	"toolhost/internal/stats"
	"toolhost/internal/store"
)

// StatsCmd reads usage aggregates back out of the store: live sessions,
// session duration distribution, and per-tool views for a day.
type StatsCmd struct {
	StoreURL     string `default:"${config_store_url}" help:"Base URL of the REST aggregate store"`
	StoreTimeout string `default:"${config_store_timeout}" help:"HTTP timeout for store requests"`
	Date         string `help:"Day to report, YYYY-MM-DD (default: today, UTC)"`
}

// statsReport is the aggregate snapshot a stats run produces.
type statsReport struct {
	Date           string           `json:"date"`
	ActiveSessions int              `json:"active_sessions"`
	DailyUsers     int              `json:"daily_users"`
	Durations      map[string]int64 `json:"session_durations"`
	ToolViews      map[string]int64 `json:"tool_views"`
	TotalViews     int64            `json:"total_views"`
}

// Run executes the stats command
func (c *StatsCmd) Run(globals *Globals) error {
	date := c.Date
	if date == "" {
		date = stats.DateKey(time.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return outputErrorCommon(globals, "INVALID_DATE", fmt.Sprintf("invalid date: %s", err), "use YYYY-MM-DD")
	}

	log, err := newServerLogger(globals)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	st, err := buildStore(globals, false, c.StoreURL, c.StoreTimeout, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := collectStats(ctx, st, date)
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", fmt.Sprintf("failed to read aggregates: %s", err), "check --store-url and connectivity")
	}

	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(report)
	}
	c.printText(globals, report)
	return nil
}

// collectStats assembles the report from the store's aggregate subtrees.
// Absent subtrees read as empty, not as errors.
func collectStats(ctx context.Context, st store.Store, date string) (*statsReport, error) {
	report := &statsReport{
		Date:      date,
		Durations: make(map[string]int64),
		ToolViews: make(map[string]int64),
	}

	active, err := st.Get(ctx, "stats/active_sessions")
	if err != nil {
		return nil, err
	}
	if m, ok := active.(map[string]store.Value); ok {
		report.ActiveSessions = len(m)
	}

	users, err := st.Get(ctx, store.Join("daily_users", date))
	if err != nil {
		return nil, err
	}
	if m, ok := users.(map[string]store.Value); ok {
		report.DailyUsers = len(m)
	}

	durations, err := st.Get(ctx, "stats/session_durations")
	if err != nil {
		return nil, err
	}
	if m, ok := durations.(map[string]store.Value); ok {
		for bucket, v := range m {
			report.Durations[bucket] = store.AsInt64(v)
		}
	}

	views, err := st.Get(ctx, store.Join("daily_views", date))
	if err != nil {
		return nil, err
	}
	if m, ok := views.(map[string]store.Value); ok {
		report.ToolViews = lo.MapValues(m, func(v store.Value, _ string) int64 {
			return store.AsInt64(v)
		})
		report.TotalViews = lo.Sum(lo.Values(report.ToolViews))
	}

	return report, nil
}

func (c *StatsCmd) printText(globals *Globals, report *statsReport) {
	fmt.Fprintln(globals.Stdout, styleHeader(fmt.Sprintf("Usage for %s", report.Date)))
	fmt.Fprintf(globals.Stdout, "  Active sessions: %d\n", report.ActiveSessions)
	fmt.Fprintf(globals.Stdout, "  Distinct users:  %d\n", report.DailyUsers)
	fmt.Fprintf(globals.Stdout, "  Tool views:      %d\n", report.TotalViews)

	if len(report.Durations) > 0 {
		fmt.Fprintln(globals.Stdout)
		fmt.Fprintln(globals.Stdout, styleHeader("Session durations"))
		table := tablewriter.NewTable(globals.Stdout)
		table.Header("Bucket", "Sessions")
		for _, bucket := range session.BucketLabels() {
			if n, ok := report.Durations[bucket]; ok {
				table.Append([]string{bucket, fmt.Sprintf("%d", n)})
			}
		}
		table.Render()
	}

	if len(report.ToolViews) > 0 {
		fmt.Fprintln(globals.Stdout)
		fmt.Fprintln(globals.Stdout, styleHeader("Views by tool"))
		ids := lo.Keys(report.ToolViews)
		sort.Slice(ids, func(i, j int) bool {
			if report.ToolViews[ids[i]] != report.ToolViews[ids[j]] {
				return report.ToolViews[ids[i]] > report.ToolViews[ids[j]]
			}
			return ids[i] < ids[j]
		})
		table := tablewriter.NewTable(globals.Stdout)
		table.Header("Tool", "Views")
		for _, id := range ids {
			table.Append([]string{id, fmt.Sprintf("%d", report.ToolViews[id])})
		}
		table.Render()
	}
}
