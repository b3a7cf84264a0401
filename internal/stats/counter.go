// Package stats maintains aggregate counters shared by independent,
// concurrent sessions. Two sanctioned mutation strategies exist: the store's
// native conflict-free increment for monotone totals, and optimistic
// read-modify-write transactions where the next value depends on the current
// one. Direct overwrites of aggregate fields are not offered.
package stats

import (
	"context"
	"net/url"
	"strings"
	"time"

	"toolhost/internal/store"
	"toolhost/internal/telemetry"
)

// Counter increments aggregate counters without blocking its caller; every
// mutation is handed to the background submitter.
type Counter struct {
	st store.Store
	bg *telemetry.Submitter
}

func NewCounter(st store.Store, bg *telemetry.Submitter) *Counter {
	return &Counter{st: st, bg: bg}
}

// Add bumps a monotone total through the store's native increment. Always
// converges to the true sum regardless of interleaving.
func (c *Counter) Add(path string, delta int64) {
	c.bg.Submit("counter.add "+path, func(ctx context.Context) error {
		return c.st.Increment(ctx, path, delta)
	})
}

// Bump increments through an optimistic transaction. Used where the key is
// only known at increment time or the store increment cannot express the
// write; linearizable per key under retry.
func (c *Counter) Bump(path string, delta int64) {
	c.bg.Submit("counter.bump "+path, func(ctx context.Context) error {
		return c.st.Transact(ctx, path, func(current store.Value) (store.Value, error) {
			return store.AsInt64(current) + delta, nil
		})
	})
}

// Set overwrites a non-counter stat field (e.g. a last-view timestamp).
func (c *Counter) Set(path string, v store.Value) {
	c.bg.Submit("counter.set "+path, func(ctx context.Context) error {
		return c.st.Set(ctx, path, v)
	})
}

// DateKey is the UTC day bucket used by all per-date aggregates.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Escaped to "_" in store keys: path separators plus characters the tree
// store rejects in key names.
const illegalKeyRunes = "/.#$[]"

// NormalizePath flattens a page URL or path into a store-safe daily-counter
// key. Query and fragment are dropped; the site root maps to "index".
func NormalizePath(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return "index"
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalKeyRunes, r) {
			return '_'
		}
		return r
	}, p)
}
