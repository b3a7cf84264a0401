package store

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process Store used by tests and dev mode. Values decompose
// into leaves keyed by full tree path, so Set of a record and a later partial
// Update merge the way the remote tree store merges them. A single mutex
// makes every operation linearizable, which is exactly the per-key guarantee
// the remote store offers.
type Memory struct {
	mu      sync.Mutex
	data    map[string]Value
	entropy *ulid.MonotonicEntropy
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:    make(map[string]Value),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Get returns the leaf at path, or a map of the subtree's descendant leaves
// keyed by their path relative to path. Absent paths yield (nil, nil).
func (m *Memory) Get(_ context.Context, path string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[path]; ok {
		return v, nil
	}
	prefix := path + "/"
	children := make(map[string]Value)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			children[strings.TrimPrefix(k, prefix)] = v
		}
	}
	if len(children) == 0 {
		return nil, nil
	}
	return children, nil
}

func (m *Memory) Set(_ context.Context, path string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(path)
	m.setLocked(path, v)
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range fields {
		child := path + "/" + k
		m.deleteLocked(child)
		m.setLocked(child, v)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(path)
	return nil
}

func (m *Memory) Push(_ context.Context, path string, v Value) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
	m.setLocked(path+"/"+key, v)
	return key, nil
}

func (m *Memory) Increment(_ context.Context, path string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = AsInt64(m.data[path]) + delta
	return nil
}

func (m *Memory) Transact(_ context.Context, path string, fn TxnFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.data[path])
	if err != nil {
		return err
	}
	if next == nil {
		m.deleteLocked(path)
		return nil
	}
	m.deleteLocked(path)
	m.setLocked(path, next)
	return nil
}

// setLocked flattens map values into descendant leaves.
func (m *Memory) setLocked(path string, v Value) {
	if fields, ok := v.(map[string]Value); ok {
		for k, fv := range fields {
			m.setLocked(path+"/"+k, fv)
		}
		return
	}
	m.data[path] = v
}

func (m *Memory) deleteLocked(path string) {
	delete(m.data, path)
	prefix := path + "/"
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
}
