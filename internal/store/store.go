// Package store defines the client boundary to the remote aggregate store: a
// tree-structured, path-addressable key-value service with point reads/writes,
// conflict-free increments, and optimistic compare-and-set transactions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Value is any JSON-encodable tree value.
type Value = any

// ErrUnavailable indicates a transport or service failure talking to the
// aggregate store. Callers on write paths are expected to log and drop it.
var ErrUnavailable = errors.New("aggregate store unavailable")

// TxnFunc computes the next value for a key from its current value. It must be
// safe to call multiple times, since transactions retry on conflict.
type TxnFunc func(current Value) (Value, error)

// Store is the aggregate store client. Paths are slash-separated tree
// addresses, e.g. "tool_views/calc/total". Get returns (nil, nil) for an
// absent path.
type Store interface {
	Get(ctx context.Context, path string) (Value, error)
	Set(ctx context.Context, path string, v Value) error
	// Update merges fields into the value at path without touching siblings.
	Update(ctx context.Context, path string, fields map[string]Value) error
	Delete(ctx context.Context, path string) error
	// Push appends v under path with a generated, time-ordered child key and
	// returns that key.
	Push(ctx context.Context, path string, v Value) (string, error)
	// Increment atomically adds delta to the numeric value at path. Absent
	// values count as zero. Commutative: concurrent increments never lose.
	Increment(ctx context.Context, path string, delta int64) error
	// Transact runs a read-compute-compare-and-set cycle on path, retrying on
	// conflict. fn observes the latest committed value on every attempt.
	Transact(ctx context.Context, path string, fn TxnFunc) error
}

// AsInt64 coerces the numeric shapes JSON decoding can produce. Anything
// non-numeric counts as zero.
func AsInt64(v Value) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// Join builds a tree path from segments, dropping empties.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
