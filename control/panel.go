package control

import (
	"midictl/bus"
	"midictl/midi"
	"midictl/repeat"
)

// Panel groups the controls shown while a device is connected
type Panel struct {
	Note       *Note
	Controller *Controller
	Program    *Program
	System     *System
	Input      *Input
	Repeat     *repeat.Sequencer

	device  midi.Device
	visible bool
}

// NewPanel creates the controls sending to dev. input may be nil when no
// second device can be opened.
func NewPanel(dev Device, seq *repeat.Sequencer, input *Input) *Panel {
	return &Panel{
		Note:       NewNote(dev),
		Controller: NewController(dev),
		Program:    NewProgram(dev),
		System:     NewSystem(dev),
		Input:      input,
		Repeat:     seq,
	}
}

// Bind shows the controls on connect and resets them on disconnect
func (p *Panel) Bind(show *bus.Topic[midi.Device], reset *bus.Topic[struct{}]) (cancel func()) {
	c1 := show.Subscribe(p.Show)
	c2 := reset.Subscribe(func(struct{}) { p.Reset() })
	return func() {
		c1()
		c2()
	}
}

// Watch lets the input follow port changes
func (p *Panel) Watch(state *bus.Topic[midi.StateEvent]) (cancel func()) {
	if p.Input == nil {
		return func() {}
	}
	return state.Subscribe(p.Input.HandleState)
}

// Show makes the controls visible for dev
func (p *Panel) Show(dev midi.Device) {
	p.device = dev
	p.visible = true
}

// Reset hides the controls, stops playback and restores every default
func (p *Panel) Reset() {
	p.visible = false
	p.device = midi.Device{}
	if p.Repeat != nil {
		p.Repeat.Reset()
	}
	p.Note.Reset()
	p.Controller.Reset()
	p.Program.Reset()
	p.System.Reset()
	if p.Input != nil {
		p.Input.Reset()
	}
}

// Visible reports whether a device is shown
func (p *Panel) Visible() bool { return p.visible }

// Device returns the device the controls were shown for
func (p *Panel) Device() midi.Device { return p.device }
