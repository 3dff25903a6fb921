package navigation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopStopped is returned when work is submitted to a loop that is no longer running.
var ErrLoopStopped = errors.New("navigation loop stopped")

// Handle cancels a scheduled callback.
type Handle interface {
	// Stop prevents the callback from running if it has not started yet.
	// It reports whether the callback was still pending.
	Stop() bool
}

// Scheduler runs fn once after delay.
type Scheduler interface {
	AfterFunc(delay time.Duration, fn func()) Handle
}

// Loop is a single goroutine executing commands and timer callbacks one at a time,
// so the controller it drives needs no locking.
type Loop struct {
	cmds     chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		cmds: make(chan func(), 64),
		done: make(chan struct{}),
	}
}

// Run executes queued work until ctx is cancelled. Queued work left at that point is dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.cmds:
			fn()
		}
	}
}

// Post queues fn without waiting for it. It reports false when the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.cmds <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	wasPending := !t.stopped.Swap(true)
	t.timer.Stop()
	return wasPending
}

// AfterFunc schedules fn on the loop after delay. A callback already queued when Stop
// is called is skipped.
func (l *Loop) AfterFunc(delay time.Duration, fn func()) Handle {
	h := &loopTimer{}
	h.timer = time.AfterFunc(delay, func() {
		l.Post(func() {
			if h.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return h
}
