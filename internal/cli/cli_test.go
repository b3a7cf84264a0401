package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/config"
	"toolhost/internal/store"
)

// testGlobals creates a Globals struct with captured stdout/stderr
func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &Globals{
		Format:  format,
		Level:   "info",
		Quiet:   false,
		Verbose: false,
		Stdout:  stdout,
		Stderr:  stderr,
		Config:  config.Default(),
	}, stdout, stderr
}

// --- Config Command Tests ---

func TestConfigShowCmd_Run(t *testing.T) {
	t.Run("outputs config in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		output := stdout.String()
		assert.Contains(t, output, "Current Configuration:")
		assert.Contains(t, output, "level:")
		assert.Contains(t, output, "listen: :8487")
		assert.Contains(t, output, "heartbeat: 30s")
	})

	t.Run("outputs config in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "info", result["level"])
		server, ok := result["server"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, ":8487", server["listen"])
	})
}

// --- Error Emission Tests ---

func TestOutputErrorCommon(t *testing.T) {
	t.Run("writes NDJSON error line", func(t *testing.T) {
		globals, stdout, stderr := testGlobals("ndjson")

		err := outputErrorCommon(globals, "TEST_CODE", "something broke", "try again")
		require.Error(t, err)
		assert.Empty(t, stderr.String())

		var line map[string]string
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &line))
		assert.Equal(t, "error", line["type"])
		assert.Equal(t, "TEST_CODE", line["code"])
		assert.Equal(t, "something broke", line["message"])
		assert.Equal(t, "try again", line["hint"])
	})

	t.Run("writes human-readable error to stderr", func(t *testing.T) {
		globals, stdout, stderr := testGlobals("text")

		err := outputErrorCommon(globals, "TEST_CODE", "something broke", "try again")
		require.Error(t, err)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "Error [TEST_CODE]: something broke")
		assert.Contains(t, stderr.String(), "hint: try again")
	})
}

// --- Stats Command Tests ---

func seedAggregates(t *testing.T, mem *store.Memory, date string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "stats/active_sessions/s1", map[string]store.Value{"since": "x"}))
	require.NoError(t, mem.Set(ctx, "stats/active_sessions/s2", map[string]store.Value{"since": "y"}))
	require.NoError(t, mem.Increment(ctx, "stats/session_durations/0-10s", 3))
	require.NoError(t, mem.Increment(ctx, "stats/session_durations/5-15m", 1))
	require.NoError(t, mem.Set(ctx, store.Join("daily_users", date, "u00000001"), true))
	require.NoError(t, mem.Increment(ctx, store.Join("daily_views", date, "calc"), 7))
	require.NoError(t, mem.Increment(ctx, store.Join("daily_views", date, "timer"), 2))
}

func TestCollectStats(t *testing.T) {
	t.Run("assembles report from aggregate subtrees", func(t *testing.T) {
		mem := store.NewMemory()
		seedAggregates(t, mem, "2026-08-26")

		report, err := collectStats(context.Background(), mem, "2026-08-26")
		require.NoError(t, err)

		assert.Equal(t, 2, report.ActiveSessions)
		assert.Equal(t, 1, report.DailyUsers)
		assert.Equal(t, int64(3), report.Durations["0-10s"])
		assert.Equal(t, int64(1), report.Durations["5-15m"])
		assert.Equal(t, int64(7), report.ToolViews["calc"])
		assert.Equal(t, int64(9), report.TotalViews)
	})

	t.Run("empty store reads as zeroes", func(t *testing.T) {
		mem := store.NewMemory()

		report, err := collectStats(context.Background(), mem, "2026-08-26")
		require.NoError(t, err)

		assert.Zero(t, report.ActiveSessions)
		assert.Zero(t, report.DailyUsers)
		assert.Zero(t, report.TotalViews)
		assert.Empty(t, report.Durations)
	})
}

func TestStatsCmd_PrintText(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	cmd := &StatsCmd{}

	cmd.printText(globals, &statsReport{
		Date:           "2026-08-26",
		ActiveSessions: 2,
		DailyUsers:     1,
		Durations:      map[string]int64{"0-10s": 3},
		ToolViews:      map[string]int64{"calc": 7, "timer": 2},
		TotalViews:     9,
	})

	output := stdout.String()
	assert.Contains(t, output, "Usage for 2026-08-26")
	assert.Contains(t, output, "Active sessions: 2")
	assert.Contains(t, output, "Tool views:      9")
	assert.Contains(t, output, "0-10s")
	assert.Contains(t, output, "calc")
}

func TestStatsCmd_InvalidDate(t *testing.T) {
	globals, _, stderr := testGlobals("text")
	cmd := &StatsCmd{Date: "26-08-2026"}

	err := cmd.Run(globals)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "INVALID_DATE")
}
