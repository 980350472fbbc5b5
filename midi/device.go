package midi

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Device is an input and/or output port pair sharing one name
type Device struct {
	Name string
	In   drivers.In
	Out  drivers.Out
}

// ID returns "<in>:<out>" port numbers, either side empty when missing
func (d Device) ID() string {
	var in, out string
	if d.In != nil {
		in = strconv.Itoa(d.In.Number())
	}
	if d.Out != nil {
		out = strconv.Itoa(d.Out.Number())
	}
	return in + ":" + out
}

// HasInput reports whether the device can deliver messages
func (d Device) HasInput() bool { return d.In != nil }

// HasOutput reports whether the device can receive messages
func (d Device) HasOutput() bool { return d.Out != nil }

// PairPorts joins input and output ports with identical names into devices,
// in order of first appearance (inputs first).
func PairPorts(ins []drivers.In, outs []drivers.Out) []Device {
	inNames := make([]string, len(ins))
	for i, p := range ins {
		inNames[i] = p.String()
	}
	outNames := make([]string, len(outs))
	for i, p := range outs {
		outNames[i] = p.String()
	}

	var devices []Device
	for _, pr := range pairNames(inNames, outNames) {
		d := Device{Name: pr.name}
		if pr.in >= 0 {
			d.In = ins[pr.in]
		}
		if pr.out >= 0 {
			d.Out = outs[pr.out]
		}
		devices = append(devices, d)
	}
	return devices
}

type namePair struct {
	name    string
	in, out int // -1 when missing
}

func pairNames(ins, outs []string) []namePair {
	var pairs []namePair
	index := make(map[string]int)

	for i, name := range ins {
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(pairs)
		pairs = append(pairs, namePair{name: name, in: i, out: -1})
	}
	for i, name := range outs {
		if idx, ok := index[name]; ok {
			if pairs[idx].out < 0 {
				pairs[idx].out = i
			}
			continue
		}
		index[name] = len(pairs)
		pairs = append(pairs, namePair{name: name, in: -1, out: i})
	}
	return pairs
}

// FindDevice looks a device up by name for auto-connect. Besides the exact
// name it accepts the first port as named by CoreMIDI (" Port 1") and
// ALSA (" MIDI 1").
func FindDevice(devices []Device, name string) (Device, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Device{}, false
	}
	for _, suffix := range []string{"", " Port 1", " MIDI 1"} {
		if d, ok := lo.Find(devices, func(d Device) bool { return d.Name == name+suffix }); ok {
			return d, true
		}
	}
	return Device{}, false
}
