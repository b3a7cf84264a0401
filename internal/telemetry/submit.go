// Package telemetry submits remote writes in the background. Writes are
// fire-and-forget: zero retries, failures logged locally and swallowed, so a
// flaky store can never block or error the user-visible path.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Each write gets its own deadline; a hung store must not pin goroutines.
const writeTimeout = 10 * time.Second

// Op is a write closure executed off the caller's control flow.
type Op func(ctx context.Context) error

// Submitter runs telemetry writes on background goroutines.
type Submitter struct {
	log    *zap.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewSubmitter(log *zap.Logger) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{log: log}
}

// Submit schedules op and returns immediately. After Close, submissions are
// dropped; dropping is fine, loss is part of the contract.
func (s *Submitter) Submit(name string, op Op) {
	if s.closed.Load() {
		s.log.Debug("telemetry write dropped, submitter closed", zap.String("op", name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("telemetry write panicked", zap.String("op", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			s.log.Warn("telemetry write failed", zap.String("op", name), zap.Error(err))
		}
	}()
}

// Close stops accepting writes and waits for in-flight ones.
func (s *Submitter) Close() {
	s.closed.Store(true)
	s.wg.Wait()
}

// Flush waits for writes submitted so far. Test hook.
func (s *Submitter) Flush() {
	s.wg.Wait()
}
