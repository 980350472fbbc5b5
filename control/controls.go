package control

import (
	"fmt"

	"midictl/midi"
)

// Note plays a single note while held
type Note struct {
	dev Device

	Channel     *Param
	Note        *Param
	Velocity    *Param
	OffVelocity *Param

	held    bool
	heldCh  uint8
	heldKey uint8
}

func NewNote(dev Device) *Note {
	n := &Note{
		dev:         dev,
		Channel:     channelParam(),
		Note:        newParam("Note", 0, 127, 60),
		Velocity:    newParam("Velocity", 1, 127, 10),
		OffVelocity: newParam("Release", 0, 127, 64),
	}
	n.Note.Format = func(v int) string { return fmt.Sprintf("%s (%d)", midi.NoteName(uint8(v)), v) }
	return n
}

func (n *Note) Params() []*Param {
	return []*Param{n.Channel, n.Note, n.Velocity, n.OffVelocity}
}

// Held reports whether Press was called without Release
func (n *Note) Held() bool { return n.held }

// Press sends note-on. A note still held is released first.
func (n *Note) Press() error {
	if n.held {
		if err := n.Release(); err != nil {
			return err
		}
	}
	if err := n.dev.SendNote(n.Channel.u8(), n.Note.u8(), n.Velocity.u8()); err != nil {
		return err
	}
	n.held, n.heldCh, n.heldKey = true, n.Channel.u8(), n.Note.u8()
	return nil
}

// Release sends note-off for the pressed note, even if the fields changed
// since. Without a pressed note it releases the current fields.
func (n *Note) Release() error {
	ch, key := n.Channel.u8(), n.Note.u8()
	if n.held {
		ch, key = n.heldCh, n.heldKey
	}
	n.held = false
	return n.dev.SendNoteOff(ch, key, n.OffVelocity.u8())
}

// Reset releases a held note and restores the defaults
func (n *Note) Reset() {
	if n.held {
		_ = n.Release()
	}
	resetAll(n.Params())
}

// Controller sends control changes
type Controller struct {
	dev Device

	Channel    *Param
	Controller *Param
	Value      *Param
}

func NewController(dev Device) *Controller {
	c := &Controller{
		dev:        dev,
		Channel:    channelParam(),
		Controller: newParam("Controller", 0, 127, int(midi.CCChannelVolume)),
		Value:      newParam("Value", 0, 127, 0),
	}
	c.Controller.Format = func(v int) string { return fmt.Sprintf("%d %s", v, midi.CCName(uint8(v))) }
	return c
}

func (c *Controller) Params() []*Param {
	return []*Param{c.Channel, c.Controller, c.Value}
}

// Send sends the current controller value
func (c *Controller) Send() error {
	return c.dev.SendControlChange(c.Channel.u8(), c.Controller.u8(), c.Value.u8())
}

// NotesOff sends All Notes Off
func (c *Controller) NotesOff() error {
	return c.dev.SendControlChange(c.Channel.u8(), midi.CCAllNotesOff, 0)
}

// ControllersOff sends Reset All Controllers
func (c *Controller) ControllersOff() error {
	return c.dev.SendControlChange(c.Channel.u8(), midi.CCResetAllControllers, 0)
}

func (c *Controller) Reset() { resetAll(c.Params()) }

// Program selects bank and program, both 1-based
type Program struct {
	dev Device

	Channel *Param
	Program *Param
	Bank    *Param
}

func NewProgram(dev Device) *Program {
	p := &Program{
		dev:     dev,
		Channel: channelParam(),
		Program: newParam("Program", 1, 128, 1),
		Bank:    newParam("Bank", 1, 128, 1),
	}
	p.Program.Format = func(v int) string { return fmt.Sprintf("%d %s", v, midi.ProgramName(uint8(v-1))) }
	return p
}

func (p *Program) Params() []*Param {
	return []*Param{p.Channel, p.Program, p.Bank}
}

// Send sends bank select MSB 0, bank select LSB and program change
func (p *Program) Send() error {
	ch := p.Channel.u8()
	if err := p.dev.SendControlChange(ch, midi.CCBankSelect, 0); err != nil {
		return err
	}
	if err := p.dev.SendControlChange(ch, midi.CCBankSelectLSB, uint8(p.Bank.Value-1)); err != nil {
		return err
	}
	return p.dev.SendProgramChange(ch, uint8(p.Program.Value-1))
}

func (p *Program) Reset() { resetAll(p.Params()) }

// DefaultJSON is the initial System request text
const DefaultJSON = "{}"

// System sends system reset and JSON requests
type System struct {
	dev  Device
	JSON string
}

func NewSystem(dev Device) *System {
	return &System{dev: dev, JSON: DefaultJSON}
}

// SystemReset sends the system reset message
func (s *System) SystemReset() error {
	return s.dev.SendSystemReset()
}

// SendJSON sends the current JSON text as SysEx
func (s *System) SendJSON() error {
	_, err := s.dev.SendJSON(s.JSON)
	return err
}

func (s *System) Reset() { s.JSON = DefaultJSON }
