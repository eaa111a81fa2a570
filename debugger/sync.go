// Copyright © 2018 The ELPS authors

package debugger

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SyncEvent is a one-shot event. Wait blocks until Fire has been called at
// least once; firing again has no effect.
type SyncEvent struct {
	once sync.Once
	ch   chan struct{}
}

// NewSyncEvent returns an event that has not fired.
func NewSyncEvent() *SyncEvent {
	return &SyncEvent{ch: make(chan struct{})}
}

// Fire signals the event and releases every current and future waiter.
func (e *SyncEvent) Fire() {
	e.once.Do(func() {
		close(e.ch)
	})
}

// Wait blocks until the event fires or ctx is done.
func (e *SyncEvent) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the event fires.
func (e *SyncEvent) Done() <-chan struct{} {
	return e.ch
}

// Fired reports whether Fire has been called.
func (e *SyncEvent) Fired() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Semaphore is a counting semaphore whose count starts at zero. Notify adds
// one permit and Wait consumes one, blocking while none are available.
// Notifying with no waiter is harmless: the permit is kept for the next Wait.
type Semaphore struct {
	w *semaphore.Weighted
}

// NewSemaphore returns a semaphore with no permits.
func NewSemaphore() *Semaphore {
	w := semaphore.NewWeighted(math.MaxInt64)
	// Start fully acquired so that each Release(1) hands out exactly one
	// permit to a later Acquire(1).
	_ = w.Acquire(context.Background(), math.MaxInt64)
	return &Semaphore{w: w}
}

// Notify adds one permit, waking a blocked Wait if there is one.
func (s *Semaphore) Notify() {
	s.w.Release(1)
}

// Wait blocks until a permit is available and consumes it. It returns
// ctx.Err() if ctx ends first, in which case no permit is consumed.
func (s *Semaphore) Wait(ctx context.Context) error {
	return s.w.Acquire(ctx, 1)
}
