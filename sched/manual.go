package sched

import (
	"sort"
	"time"
)

// Manual is a virtual-time scheduler. Callbacks run only inside Advance,
// in deadline order; callbacks with the same deadline run in arming order.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManual creates a scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Post queues f to run on the next Advance or Flush, after work posted
// earlier.
func (m *Manual) Post(f func()) {
	m.AfterFunc(0, f)
}

func (m *Manual) Now() time.Time {
	return m.now
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	return len(m.timers)
}

// Advance moves the clock forward by d, running every callback that becomes
// due, including callbacks armed by other callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	for {
		t := m.next()
		if t == nil || t.at.After(end) {
			break
		}
		m.remove(t)
		m.now = t.at
		t.fired = true
		t.f()
	}
	m.now = end
}

// Flush runs callbacks that are due now without moving the clock.
func (m *Manual) Flush() {
	m.Advance(0)
}

func (m *Manual) next() *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.Slice(m.timers, func(i, j int) bool {
		a, b := m.timers[i], m.timers[j]
		if a.at.Equal(b.at) {
			return a.seq < b.seq
		}
		return a.at.Before(b.at)
	})
	return m.timers[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, x := range m.timers {
		if x == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	seq     uint64
	f       func()
	fired   bool
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.m.remove(t)
	return true
}
