// Package session owns one visitor session: its New → Active → Ended state
// machine, activity debouncing, heartbeat emission, and page-view and
// interaction accounting against the aggregate store.
//
// Lifecycle correctness is maintained purely from local in-memory state;
// remote writes are fire-and-forget and never consulted for transitions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"toolhost/internal/identity"
	"toolhost/internal/stats"
	"toolhost/internal/store"
	"toolhost/internal/telemetry"
)

// State is the tracker's lifecycle position. Transitions are one-way:
// New → Active → Ended.
type State int

const (
	StateNew State = iota
	StateActive
	StateEnded
)

// ActivitySource labels what produced an activity signal.
type ActivitySource string

const (
	SourcePointer ActivitySource = "pointer"
	SourceKey     ActivitySource = "key"
	SourceScroll  ActivitySource = "scroll"
	SourceTouch   ActivitySource = "touch"
	// SourceVisible is a visibility change back to visible; it bypasses the
	// debounce window so the timestamp is fresh right after backgrounding.
	SourceVisible ActivitySource = "visible"
)

const activityKey = "activity"

// Options tune a Tracker. Zero values fall back to production defaults.
type Options struct {
	// SessionID reuses a previously issued id; empty mints a new one.
	SessionID         string
	HeartbeatInterval time.Duration
	DebounceWindow    time.Duration
	Clock             clock.Clock
	Logger            *zap.Logger
}

const (
	defaultHeartbeat = 30 * time.Second
	defaultDebounce  = time.Second
)

// Tracker drives a single session. Create one per visitor via New and pass it
// to consumers explicitly; there is no package-level instance.
type Tracker struct {
	st      store.Store
	bg      *telemetry.Submitter
	counter *stats.Counter
	clk     clock.Clock
	log     *zap.Logger

	id     string
	pseudo string
	meta   ClientMeta

	hbInterval time.Duration
	deb        *debouncer

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	endedAt      time.Time
	lastActivity time.Time
	currentPage  string
	pageViews    int
	hbStop       chan struct{}
}

// New builds a Tracker in the New state. Nothing is written until Start.
func New(st store.Store, bg *telemetry.Submitter, counter *stats.Counter, meta ClientMeta, opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeat
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = defaultDebounce
	}
	id := opts.SessionID
	if id == "" {
		id = identity.NewSessionID()
	}
	meta = meta.WithDerived()
	return &Tracker{
		st:         st,
		bg:         bg,
		counter:    counter,
		clk:        opts.Clock,
		log:        opts.Logger.With(zap.String("session_id", id)),
		id:         id,
		pseudo:     meta.PseudoUserID(),
		meta:       meta,
		hbInterval: opts.HeartbeatInterval,
		deb:        newDebouncer(opts.Clock, opts.DebounceWindow),
		hbStop:     make(chan struct{}),
	}
}

// ID returns the session id.
func (t *Tracker) ID() string { return t.id }

// PseudoUserID returns the derived coarse visitor id.
func (t *Tracker) PseudoUserID() string { return t.pseudo }

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PageViews returns the local page-view count.
func (t *Tracker) PageViews() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageViews
}

func (t *Tracker) sessionPath() string { return store.Join("sessions", t.id) }

func stamp(ts time.Time) string { return ts.UTC().Format(time.RFC3339Nano) }

// Start transitions New → Active, writes the initial session record, marks
// the session present in the active set, and marks today's unique visitor.
// A second Start is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.state != StateNew {
		t.mu.Unlock()
		t.log.Debug("start ignored, session not new")
		return
	}
	now := t.clk.Now()
	t.state = StateActive
	t.startedAt = now
	t.lastActivity = now
	t.currentPage = t.meta.EntryURL
	t.mu.Unlock()

	record := map[string]store.Value{
		"session_id":     t.id,
		"pseudo_user_id": t.pseudo,
		"status":         "active",
		"started_at":     stamp(now),
		"last_activity":  stamp(now),
		"heartbeat":      stamp(now),
		"page_views":     1,
		"current_page":   t.meta.EntryURL,
		"user_agent":     t.meta.UserAgent,
		"locale":         t.meta.Locale,
		"platform":       t.meta.Platform,
		"screen_size":    t.meta.ScreenSize,
		"referrer":       t.meta.Referrer,
		"entry_url":      t.meta.EntryURL,
		"device_class":   t.meta.DeviceClass(),
		"browser":        t.meta.Browser,
		"os":             t.meta.OS,
	}
	t.bg.Submit("session.start", func(ctx context.Context) error {
		return t.st.Set(ctx, t.sessionPath(), record)
	})
	t.bg.Submit("session.presence", func(ctx context.Context) error {
		return t.st.Set(ctx, store.Join("stats", "active_sessions", t.id), true)
	})
	// Idempotent set: re-marking the same visitor on the same day is a no-op.
	day := stats.DateKey(now)
	t.bg.Submit("session.unique_visitor", func(ctx context.Context) error {
		return t.st.Set(ctx, store.Join("daily_users", day, t.pseudo), true)
	})

	go t.heartbeatLoop()
	t.log.Info("session started", zap.String("pseudo_user_id", t.pseudo))
}

// RecordPageView appends the next sequence-numbered page-view record, updates
// the session record, and bumps the per-date-per-path counter transactionally
// (concurrent viewers of one path must not lose increments).
func (t *Tracker) RecordPageView(path, title string) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		t.log.Debug("page view ignored, session not active")
		return
	}
	now := t.clk.Now()
	t.pageViews++
	seq := t.pageViews
	t.lastActivity = now
	t.currentPage = path
	t.mu.Unlock()

	view := map[string]store.Value{
		"path":      path,
		"title":     title,
		"timestamp": stamp(now),
	}
	t.bg.Submit("session.page_view", func(ctx context.Context) error {
		return t.st.Set(ctx, store.Join("page_views", t.id, fmt.Sprintf("%d", seq)), view)
	})
	t.bg.Submit("session.page_update", func(ctx context.Context) error {
		return t.st.Update(ctx, t.sessionPath(), map[string]store.Value{
			"page_views":    seq,
			"last_activity": stamp(now),
			"current_page":  path,
		})
	})
	t.counter.Bump(store.Join("daily_pages", stats.DateKey(now), stats.NormalizePath(path)), 1)
}

// RecordActivity notes user input. Bursts coalesce into at most one remote
// write per debounce window (last one wins); a visibility return writes
// immediately.
func (t *Tracker) RecordActivity(source ActivitySource) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	now := t.clk.Now()
	t.lastActivity = now
	t.mu.Unlock()

	write := func() {
		t.bg.Submit("session.activity", func(ctx context.Context) error {
			return t.st.Update(ctx, t.sessionPath(), map[string]store.Value{
				"last_activity": stamp(now),
			})
		})
	}
	if source == SourceVisible {
		t.deb.Fire(activityKey, write)
		return
	}
	t.deb.Signal(activityKey, write)
}

// RecordToolInteraction appends an interaction log entry, bumps the
// per-tool-action counter, and refreshes last-activity.
func (t *Tracker) RecordToolInteraction(toolID, action string, metadata map[string]store.Value) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		t.log.Debug("tool interaction ignored, session not active",
			zap.String("tool_id", toolID), zap.String("action", action))
		return
	}
	now := t.clk.Now()
	t.lastActivity = now
	t.mu.Unlock()

	entry := map[string]store.Value{
		"tool_id":        toolID,
		"action":         action,
		"session_id":     t.id,
		"pseudo_user_id": t.pseudo,
		"timestamp":      stamp(now),
		"metadata":       metadata,
	}
	t.bg.Submit("session.interaction", func(ctx context.Context) error {
		_, err := t.st.Push(ctx, "tool_interactions", entry)
		return err
	})
	t.counter.Bump(store.Join("tool_stats", toolID, action), 1)
	t.RecordActivity(SourcePointer)
}

// End transitions Active → Ended: final record write, presence removal, and a
// transactional bump of the duration histogram bucket. Best-effort: the
// embedding page may be gone before any write lands, and the external
// reconciler covers that case from heartbeat staleness. Calling End again is
// a no-op.
func (t *Tracker) End() {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		t.log.Debug("end ignored, session not active")
		return
	}
	now := t.clk.Now()
	t.state = StateEnded
	t.endedAt = now
	duration := now.Sub(t.startedAt)
	finalViews := t.pageViews
	close(t.hbStop)
	t.mu.Unlock()

	t.deb.Stop()

	t.bg.Submit("session.end", func(ctx context.Context) error {
		return t.st.Update(ctx, t.sessionPath(), map[string]store.Value{
			"status":           "ended",
			"ended_at":         stamp(now),
			"duration_seconds": int64(duration.Seconds()),
			"page_views":       finalViews,
		})
	})
	t.bg.Submit("session.presence_clear", func(ctx context.Context) error {
		return t.st.Delete(ctx, store.Join("stats", "active_sessions", t.id))
	})
	t.counter.Bump(store.Join("stats", "session_durations", DurationBucket(duration)), 1)

	t.log.Info("session ended",
		zap.Duration("duration", duration), zap.Int("page_views", finalViews))
}

// heartbeatLoop emits a liveness timestamp on a fixed interval while Active.
// It stops permanently the moment the session ends; a tick racing End is
// dropped by the state re-check.
func (t *Tracker) heartbeatLoop() {
	ticker := t.clk.Ticker(t.hbInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.hbStop:
			return
		case <-ticker.C:
			t.mu.Lock()
			active := t.state == StateActive
			now := t.clk.Now()
			t.mu.Unlock()
			if !active {
				return
			}
			t.bg.Submit("session.heartbeat", func(ctx context.Context) error {
				return t.st.Update(ctx, t.sessionPath(), map[string]store.Value{
					"heartbeat": stamp(now),
				})
			})
		}
	}
}
