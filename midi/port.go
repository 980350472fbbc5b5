package midi

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"midictl/debug"
)

// ErrNoOutput is returned when sending to a device without an output port
var ErrNoOutput = errors.New("device has no output port")

// Conn is an open device. Send and Close are called from the event loop.
type Conn interface {
	Device() Device
	Send(msg gomidi.Message) error
	Close() error
}

// Opener opens devices. onMsg is invoked from the driver's goroutine.
type Opener interface {
	Open(dev Device, onMsg func(gomidi.Message)) (Conn, error)
}

// Ports opens real driver ports
type Ports struct{}

// Port is a device opened through the registered gomidi driver
type Port struct {
	dev      Device
	send     func(msg gomidi.Message) error
	stopFunc func()
	once     sync.Once
}

// Open opens the output (if any) and starts listening on the input (if any
// and onMsg is set). SysEx reception is enabled.
func (Ports) Open(dev Device, onMsg func(gomidi.Message)) (Conn, error) {
	p := &Port{dev: dev}

	if dev.Out != nil {
		send, err := gomidi.SendTo(dev.Out)
		if err != nil {
			return nil, fmt.Errorf("open output %q: %w", dev.Name, err)
		}
		p.send = send
	}

	if dev.In != nil && onMsg != nil {
		stop, err := gomidi.ListenTo(dev.In, func(msg gomidi.Message, timestampms int32) {
			onMsg(msg)
		}, gomidi.UseSysEx(), gomidi.HandleError(func(err error) {
			debug.Log("port", "listener error on %s: %v", dev.Name, err)
		}))
		if err != nil {
			if dev.Out != nil {
				_ = dev.Out.Close()
			}
			return nil, fmt.Errorf("open input %q: %w", dev.Name, err)
		}
		p.stopFunc = stop
	}

	debug.Log("port", "opened %s (%s)", dev.Name, dev.ID())
	return p, nil
}

func (p *Port) Device() Device {
	return p.dev
}

func (p *Port) Send(msg gomidi.Message) error {
	if p.send == nil {
		return ErrNoOutput
	}
	return p.send(msg)
}

// Close stops listening and closes both ports. Safe to call twice.
func (p *Port) Close() error {
	var errs []error
	p.once.Do(func() {
		if p.stopFunc != nil {
			p.stopFunc()
		}
		if p.dev.In != nil && p.dev.In.IsOpen() {
			errs = append(errs, p.dev.In.Close())
		}
		if p.dev.Out != nil && p.dev.Out.IsOpen() {
			errs = append(errs, p.dev.Out.Close())
		}
		debug.Log("port", "closed %s", p.dev.Name)
	})
	return errors.Join(errs...)
}
