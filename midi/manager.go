package midi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"midictl/debug"
)

// PortType is the direction of a port
type PortType string

const (
	PortInput  PortType = "input"
	PortOutput PortType = "output"
)

// PortState is the connection state of a port
type PortState string

const (
	PortConnected    PortState = "connected"
	PortDisconnected PortState = "disconnected"
)

// StateEvent is emitted when a port appears or disappears
type StateEvent struct {
	Name   string
	Number int
	Type   PortType
	State  PortState
}

// String formats the event the way the log shows it: inputs as "(n:)",
// outputs as "(:n)".
func (e StateEvent) String() string {
	id := fmt.Sprintf("%d:", e.Number)
	if e.Type == PortOutput {
		id = fmt.Sprintf(":%d", e.Number)
	}
	return fmt.Sprintf("%s (%s): Port is %s", e.Name, id, e.State)
}

type portKey struct {
	Type PortType
	Name string
}

// DeviceManager handles hot-plug detection of MIDI ports
type DeviceManager struct {
	devices  []Device
	ports    map[portKey]int
	mu       sync.RWMutex
	events   chan StateEvent
	pollRate time.Duration
	timeout  time.Duration
}

// NewDeviceManager creates a device manager polling every pollRate
func NewDeviceManager(pollRate time.Duration) *DeviceManager {
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &DeviceManager{
		ports:    make(map[portKey]int),
		events:   make(chan StateEvent, 64),
		pollRate: pollRate,
		timeout:  3 * time.Second,
	}
}

// Events returns a channel of port state changes
func (dm *DeviceManager) Events() <-chan StateEvent {
	return dm.events
}

// Devices returns a snapshot of the current candidate devices
func (dm *DeviceManager) Devices() []Device {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]Device, len(dm.devices))
	copy(out, dm.devices)
	return out
}

// Scan refreshes the device list once and emits state events
func (dm *DeviceManager) Scan(ctx context.Context) {
	ins, outs, ok := listPorts(dm.timeout)
	if !ok {
		// CoreMIDI is hung - skip this scan
		debug.Log("devices", "port listing timed out")
		return
	}

	next := make(map[portKey]int, len(ins)+len(outs))
	for _, p := range ins {
		next[portKey{PortInput, p.String()}] = p.Number()
	}
	for _, p := range outs {
		next[portKey{PortOutput, p.String()}] = p.Number()
	}

	dm.mu.Lock()
	changes := diffPorts(dm.ports, next)
	dm.ports = next
	dm.devices = PairPorts(ins, outs)
	dm.mu.Unlock()

	for _, ev := range changes {
		debug.Log("devices", "%s", ev)
		select {
		case dm.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			close(dm.events)
			return
		case <-ticker.C:
			dm.Scan(ctx)
		}
	}
}

// listPorts queries the driver with a timeout (CoreMIDI can hang)
func listPorts(timeout time.Duration) ([]drivers.In, []drivers.Out, bool) {
	type portsResult struct {
		ins  []drivers.In
		outs []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

// ListDevices performs a one-off port listing
func ListDevices(timeout time.Duration) ([]Device, error) {
	ins, outs, ok := listPorts(timeout)
	if !ok {
		return nil, fmt.Errorf("listing MIDI ports timed out after %s", timeout)
	}
	return PairPorts(ins, outs), nil
}

// diffPorts returns disconnect events before connect events, each group in
// name order so the log is stable.
func diffPorts(prev, next map[portKey]int) []StateEvent {
	var gone, added []StateEvent
	for k, n := range prev {
		if _, ok := next[k]; !ok {
			gone = append(gone, StateEvent{Name: k.Name, Number: n, Type: k.Type, State: PortDisconnected})
		}
	}
	for k, n := range next {
		if _, ok := prev[k]; !ok {
			added = append(added, StateEvent{Name: k.Name, Number: n, Type: k.Type, State: PortConnected})
		}
	}
	sortEvents(gone)
	sortEvents(added)
	return append(gone, added...)
}

func sortEvents(evs []StateEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].Name != evs[j].Name {
			return evs[i].Name < evs[j].Name
		}
		return evs[i].Type < evs[j].Type
	})
}
