package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// debouncer coalesces bursts of signals into at most one callback per window,
// last signal wins. One pending timer token exists per coalescing key; each
// new signal cancels and restarts it.
type debouncer struct {
	mu      sync.Mutex
	clk     clock.Clock
	window  time.Duration
	pending map[string]*clock.Timer
	stopped bool
}

func newDebouncer(clk clock.Clock, window time.Duration) *debouncer {
	return &debouncer{
		clk:     clk,
		window:  window,
		pending: make(map[string]*clock.Timer),
	}
}

// Signal schedules fn to run one window from now, replacing any pending run
// for the same key.
func (d *debouncer) Signal(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	d.pending[key] = d.clk.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.pending, key)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Fire cancels any pending run for key and invokes fn immediately. Used when
// staleness matters more than coalescing (visibility returning).
func (d *debouncer) Fire(key string, fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	fn()
}

// Stop cancels every pending token; further signals are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, t := range d.pending {
		t.Stop()
		delete(d.pending, k)
	}
}
