// Package sched runs every callback of the control panel on one logical thread.
//
// Loop is the real implementation: driver callbacks, OS timers and UI actions
// are posted onto a single goroutine. Manual runs the same callbacks in
// virtual time so timer-driven code can be tested deterministically.
package sched

import "time"

// Timer is a pending callback created by AfterFunc.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or was stopped before.
	Stop() bool
}

// Scheduler arms one-shot callbacks. Callbacks never run concurrently with
// each other or with the code that armed them.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Poster queues work in FIFO order. Post may be called from any goroutine
// for Loop; Manual is single-goroutine.
type Poster interface {
	Post(f func())
}

// Post runs f on s as soon as possible. Use a Poster when several posts
// must keep their order.
func Post(s Scheduler, f func()) {
	s.AfterFunc(0, f)
}
