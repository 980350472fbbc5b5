// Package control implements the panel's controls: note, controller,
// program, system and input forwarding. Controls hold only their field
// values and send through the connected device.
package control

import (
	"strconv"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Device is the send side of the session
type Device interface {
	SendNote(channel, note, velocity uint8) error
	SendNoteOff(channel, note, velocity uint8) error
	SendControlChange(channel, controller, value uint8) error
	SendProgramChange(channel, program uint8) error
	SendSystemReset() error
	SendJSON(text string) (int, error)
	SendMessage(msg gomidi.Message) error
}

// Param is one bounded integer field
type Param struct {
	Name    string
	Value   int
	Min     int
	Max     int
	Default int
	// Format renders the value; nil prints the number
	Format func(int) string
}

func newParam(name string, lo, hi, def int) *Param {
	return &Param{Name: name, Value: def, Min: lo, Max: hi, Default: def}
}

// channelParam stores 0-15 and shows 1-16
func channelParam() *Param {
	p := newParam("Channel", 0, 15, 0)
	p.Format = func(v int) string { return strconv.Itoa(v + 1) }
	return p
}

// Set clamps v into range
func (p *Param) Set(v int) {
	p.Value = max(p.Min, min(p.Max, v))
}

// Step moves the value by d
func (p *Param) Step(d int) {
	p.Set(p.Value + d)
}

func (p *Param) Reset() {
	p.Value = p.Default
}

func (p *Param) String() string {
	if p.Format != nil {
		return p.Format(p.Value)
	}
	return strconv.Itoa(p.Value)
}

func (p *Param) u8() uint8 {
	return uint8(p.Value)
}

func resetAll(params []*Param) {
	for _, p := range params {
		p.Reset()
	}
}
