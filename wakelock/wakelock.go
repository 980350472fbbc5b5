// Package wakelock keeps the machine from sleeping while the repeat
// sequencer plays, using a systemd-logind inhibitor lock.
package wakelock

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"midictl/debug"
	"midictl/repeat"
)

const (
	logindDest = "org.freedesktop.login1"
	logindPath = dbus.ObjectPath("/org/freedesktop/login1")
	inhibitFn  = "org.freedesktop.login1.Manager.Inhibit"
)

// handle is an acquired inhibitor. done closes when the lock is lost.
type handle struct {
	done  <-chan struct{}
	close func() error
}

type inhibitFunc func(what, who, why string) (handle, error)

// Inhibitor acquires "sleep:idle" inhibitor locks
type Inhibitor struct {
	What string
	Who  string
	Why  string

	inhibit inhibitFunc
}

// New returns an inhibitor talking to logind on the system bus
func New() *Inhibitor {
	return &Inhibitor{
		What:    "sleep:idle",
		Who:     "midictl",
		Why:     "Note repeat is playing",
		inhibit: logindInhibit,
	}
}

// Acquire takes the lock. onRevoke runs on a separate goroutine if the
// lock is lost before Release.
func (i *Inhibitor) Acquire(onRevoke func()) (repeat.Lock, error) {
	h, err := i.inhibit(i.What, i.Who, i.Why)
	if err != nil {
		return nil, fmt.Errorf("inhibit %s: %w", i.What, err)
	}

	l := &lock{h: h, stop: make(chan struct{})}
	go l.watch(onRevoke)
	debug.Log("wakelock", "acquired %s", i.What)
	return l, nil
}

type lock struct {
	h    handle
	stop chan struct{}
	once sync.Once
}

func (l *lock) watch(onRevoke func()) {
	select {
	case <-l.stop:
	case <-l.h.done:
		select {
		case <-l.stop:
			// released by us
		default:
			debug.Log("wakelock", "lock lost")
			if onRevoke != nil {
				onRevoke()
			}
		}
	}
}

// Release drops the lock. Safe to call more than once.
func (l *lock) Release() {
	l.once.Do(func() {
		close(l.stop)
		if err := l.h.close(); err != nil {
			debug.Log("wakelock", "release: %v", err)
		}
		debug.Log("wakelock", "released")
	})
}

// logindInhibit holds the inhibitor fd on a private system bus
// connection; losing the connection loses the lock.
func logindInhibit(what, who, why string) (handle, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return handle{}, err
	}

	var fd dbus.UnixFD
	obj := conn.Object(logindDest, logindPath)
	if err := obj.Call(inhibitFn, 0, what, who, why, "block").Store(&fd); err != nil {
		conn.Close()
		return handle{}, err
	}

	f := os.NewFile(uintptr(fd), "logind-inhibit")
	return handle{
		done: conn.Context().Done(),
		close: func() error {
			return errors.Join(f.Close(), conn.Close())
		},
	}, nil
}
