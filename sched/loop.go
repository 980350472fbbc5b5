package sched

import (
	"context"
	"time"
)

// Loop owns a single goroutine that executes posted work in order.
type Loop struct {
	jobs chan func()
	done chan struct{}
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{
		jobs: make(chan func(), 256),
		done: make(chan struct{}),
	}
}

// Run executes posted work until ctx is cancelled (blocking - run in goroutine)
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.jobs:
			f()
		}
	}
}

// Post queues f for execution on the loop goroutine. Work posted after the
// loop stopped is dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.jobs <- f:
	case <-l.done:
	}
}

// Do runs f on the loop goroutine and waits for it to finish.
// Must not be called from the loop goroutine itself.
func (l *Loop) Do(f func()) {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
	case <-l.done:
	}
}

// AfterFunc arms an OS timer whose callback is delivered through the loop.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have been called after the OS timer fired but
			// before this job reached the front of the queue.
			if t.stopped {
				return
			}
			t.fired = true
			f()
		})
	})
	return t
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// loopTimer state is only touched on the loop goroutine.
type loopTimer struct {
	t       *time.Timer
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}
