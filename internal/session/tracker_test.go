package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"toolhost/internal/stats"
	"toolhost/internal/store"
	"toolhost/internal/telemetry"
)

// countingStore wraps the memory store and counts mutations per method+path,
// so tests can assert that an operation produced no remote effect at all.
type countingStore struct {
	store.Store
	mu  sync.Mutex
	ops map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: store.NewMemory(), ops: make(map[string]int)}
}

func (c *countingStore) bump(key string) {
	c.mu.Lock()
	c.ops[key]++
	c.mu.Unlock()
}

func (c *countingStore) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[key]
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.ops {
		n += v
	}
	return n
}

func (c *countingStore) Set(ctx context.Context, path string, v store.Value) error {
	c.bump("set " + path)
	return c.Store.Set(ctx, path, v)
}

func (c *countingStore) Update(ctx context.Context, path string, fields map[string]store.Value) error {
	c.bump("update " + path)
	return c.Store.Update(ctx, path, fields)
}

func (c *countingStore) Delete(ctx context.Context, path string) error {
	c.bump("delete " + path)
	return c.Store.Delete(ctx, path)
}

func (c *countingStore) Push(ctx context.Context, path string, v store.Value) (string, error) {
	c.bump("push " + path)
	return c.Store.Push(ctx, path, v)
}

func (c *countingStore) Increment(ctx context.Context, path string, delta int64) error {
	c.bump("increment " + path)
	return c.Store.Increment(ctx, path, delta)
}

func (c *countingStore) Transact(ctx context.Context, path string, fn store.TxnFunc) error {
	c.bump("transact " + path)
	return c.Store.Transact(ctx, path, fn)
}

type fixture struct {
	st   *countingStore
	bg   *telemetry.Submitter
	clk  *clock.Mock
	trk  *Tracker
	meta ClientMeta
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newCountingStore()
	bg := telemetry.NewSubmitter(zap.NewNop())
	t.Cleanup(bg.Close)
	clk := clock.NewMock()
	meta := ClientMeta{
		UserAgent:  uaChromeMac,
		Locale:     "en-US",
		Platform:   "MacIntel",
		ScreenSize: "1920x1080",
		EntryURL:   "/home",
	}
	trk := New(st, bg, stats.NewCounter(st, bg), meta, Options{
		SessionID: "sess-1",
		Clock:     clk,
		Logger:    zap.NewNop(),
	})
	t.Cleanup(trk.End)
	return &fixture{st: st, bg: bg, clk: clk, trk: trk, meta: meta}
}

func (f *fixture) get(t *testing.T, path string) store.Value {
	t.Helper()
	v, err := f.st.Store.Get(context.Background(), path)
	require.NoError(t, err)
	return v
}

func TestStartWritesInitialState(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.bg.Flush()

	assert.Equal(t, StateActive, f.trk.State())
	assert.Equal(t, "active", f.get(t, "sessions/sess-1/status"))
	assert.Equal(t, 1, f.get(t, "sessions/sess-1/page_views"))
	assert.Equal(t, "chrome", f.get(t, "sessions/sess-1/browser"))
	assert.Equal(t, true, f.get(t, "stats/active_sessions/sess-1"))

	day := stats.DateKey(f.clk.Now())
	assert.Equal(t, true, f.get(t, store.Join("daily_users", day, f.trk.PseudoUserID())))
}

func TestStartTwiceWritesOnce(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.trk.Start()
	f.bg.Flush()
	assert.Equal(t, 1, f.st.count("set sessions/sess-1"))
}

func TestPageViewCountEqualsCalls(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.trk.RecordPageView("/home", "Home")
	f.trk.RecordPageView("/tools", "Tools")
	f.trk.RecordPageView("/tools", "Tools")
	f.bg.Flush()

	assert.Equal(t, 3, f.trk.PageViews())
	assert.Equal(t, 3, f.get(t, "sessions/sess-1/page_views"))

	// Append-only, sequence-numbered records.
	assert.Equal(t, "/home", f.get(t, "page_views/sess-1/1/path"))
	assert.Equal(t, "/tools", f.get(t, "page_views/sess-1/3/path"))

	// Exact daily per-path counts via transactional increment.
	day := stats.DateKey(f.clk.Now())
	assert.Equal(t, int64(2), f.get(t, store.Join("daily_pages", day, "tools")))
	assert.Equal(t, 2, f.st.count("transact "+store.Join("daily_pages", day, "tools")))
}

func TestActivityBurstCoalescesToOneWrite(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.bg.Flush()
	before := f.st.count("update sessions/sess-1")

	f.trk.RecordActivity(SourcePointer)
	f.trk.RecordActivity(SourceKey)
	f.trk.RecordActivity(SourceScroll)
	f.bg.Flush()
	assert.Equal(t, before, f.st.count("update sessions/sess-1"), "no write inside the window")

	f.clk.Add(time.Second)
	f.bg.Flush()
	assert.Equal(t, before+1, f.st.count("update sessions/sess-1"))
}

func TestVisibilityReturnWritesImmediately(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.bg.Flush()
	before := f.st.count("update sessions/sess-1")

	f.trk.RecordActivity(SourceVisible)
	f.bg.Flush()
	assert.Equal(t, before+1, f.st.count("update sessions/sess-1"))
}

func TestToolInteraction(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.trk.RecordToolInteraction("calc", "click", map[string]store.Value{"button": "eq"})
	f.bg.Flush()

	assert.Equal(t, 1, f.st.count("push tool_interactions"))
	assert.Equal(t, int64(1), f.get(t, "tool_stats/calc/click"))

	// The log entry carries session attribution.
	entries, ok := f.get(t, "tool_interactions").(map[string]store.Value)
	require.True(t, ok)
	found := false
	for k, v := range entries {
		if strings.HasSuffix(k, "/session_id") {
			found = true
			assert.Equal(t, "sess-1", v)
		}
	}
	assert.True(t, found, "interaction entry missing session attribution")
}

func TestHeartbeatWhileActiveThenStops(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.bg.Flush()
	start := stamp(f.clk.Now())

	// Let the heartbeat goroutine register its ticker before advancing.
	time.Sleep(20 * time.Millisecond)
	f.clk.Add(30 * time.Second)
	require.Eventually(t, func() bool {
		f.bg.Flush()
		return f.get(t, "sessions/sess-1/heartbeat") != start
	}, 2*time.Second, 10*time.Millisecond)

	f.trk.End()
	f.bg.Flush()
	after := f.get(t, "sessions/sess-1/heartbeat")

	f.clk.Add(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	f.bg.Flush()
	assert.Equal(t, after, f.get(t, "sessions/sess-1/heartbeat"), "no heartbeat after end")
}

func TestEndWritesFinalStateAndBucket(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.trk.RecordPageView("/home", "Home")
	f.clk.Add(45 * time.Second)
	f.trk.End()
	f.bg.Flush()

	assert.Equal(t, StateEnded, f.trk.State())
	assert.Equal(t, "ended", f.get(t, "sessions/sess-1/status"))
	assert.Equal(t, int64(45), f.get(t, "sessions/sess-1/duration_seconds"))
	assert.Equal(t, 1, f.get(t, "sessions/sess-1/page_views"))
	assert.Nil(t, f.get(t, "stats/active_sessions/sess-1"), "presence removed")
	assert.Equal(t, int64(1), f.get(t, "stats/session_durations/30-60s"))
}

func TestEndTwiceIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.clk.Add(5 * time.Second)
	f.trk.End()
	f.trk.End()
	f.bg.Flush()

	assert.Equal(t, int64(1), f.get(t, "stats/session_durations/0-10s"))
	assert.Equal(t, 1, f.st.count("delete stats/active_sessions/sess-1"))
}

func TestOperationsAfterEndHaveNoRemoteEffect(t *testing.T) {
	f := newFixture(t)
	f.trk.Start()
	f.trk.End()
	f.bg.Flush()
	before := f.st.total()

	f.trk.RecordPageView("/late", "Late")
	f.trk.RecordActivity(SourcePointer)
	f.trk.RecordToolInteraction("calc", "click", nil)
	f.clk.Add(5 * time.Second)
	f.bg.Flush()

	assert.Equal(t, before, f.st.total())
	assert.Equal(t, 0, f.trk.PageViews())
}

func TestOperationsBeforeStartHaveNoRemoteEffect(t *testing.T) {
	f := newFixture(t)
	f.trk.RecordPageView("/early", "Early")
	f.trk.RecordActivity(SourceKey)
	f.bg.Flush()
	assert.Equal(t, 0, f.st.total())
}

func TestTrackerGoroutinesStopAfterEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := newCountingStore()
	bg := telemetry.NewSubmitter(zap.NewNop())
	trk := New(st, bg, stats.NewCounter(st, bg), ClientMeta{}, Options{Clock: clock.NewMock()})
	trk.Start()
	trk.End()
	bg.Close()
}
