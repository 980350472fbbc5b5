// Package session owns the connection to the selected MIDI device. It fans
// out show/reset lifecycle events to the controls, logs every message sent
// and received, and decodes inbound traffic onto the Message topic.
package session

import (
	"errors"
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"

	"midictl/bus"
	"midictl/debug"
	"midictl/midi"
	"midictl/sched"
)

var (
	// ErrNotConnected is returned by the Send methods without a device
	ErrNotConnected = errors.New("no device connected")
	// ErrNoDevice is returned when an auto-connect name matches nothing
	ErrNoDevice = errors.New("device not found")
)

// DefaultReleaseVelocity is the note-off velocity used by the controls
const DefaultReleaseVelocity uint8 = 64

// Session is the single active device connection. All methods must be
// called on the event loop.
type Session struct {
	post    sched.Poster
	opener  midi.Opener
	sink    Sink
	name    string
	version string

	conn midi.Conn
	// gen changes on every connect and disconnect so messages queued by
	// an earlier connection are dropped.
	gen uint64

	// Select fires when a device is chosen, before it is opened
	Select  *bus.Topic[midi.Device]
	Show    *bus.Topic[midi.Device]
	Reset   *bus.Topic[struct{}]
	Message *bus.Topic[midi.Event]
	State   *bus.Topic[midi.StateEvent]
}

// Option configures a Session
type Option func(*Session)

// WithVersion sets the name and version shown by PrintStatus
func WithVersion(name, version string) Option {
	return func(s *Session) {
		s.name = name
		s.version = version
	}
}

// New creates a disconnected session. Inbound messages are handed to post,
// which must run them on the same loop as every other Session call.
func New(post sched.Poster, opener midi.Opener, sink Sink, opts ...Option) *Session {
	s := &Session{
		post:    post,
		opener:  opener,
		sink:    sink,
		name:    "midictl",
		Select:  bus.NewTopic[midi.Device]("select"),
		Show:    bus.NewTopic[midi.Device]("show"),
		Reset:   bus.NewTopic[struct{}]("reset"),
		Message: bus.NewTopic[midi.Event]("message"),
		State:   bus.NewTopic[midi.StateEvent]("state"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connected reports whether a device is open
func (s *Session) Connected() bool {
	return s.conn != nil
}

// Device returns the connected device
func (s *Session) Device() (midi.Device, bool) {
	if s.conn == nil {
		return midi.Device{}, false
	}
	return s.conn.Device(), true
}

// Connect resets the controls, closes the current device, opens dev and
// shows the controls again. Reset runs while the old device is still open
// so sounding notes are released on it.
func (s *Session) Connect(dev midi.Device) error {
	s.Select.Publish(dev)
	s.Reset.Publish(struct{}{})
	s.close()

	gen := s.gen
	conn, err := s.opener.Open(dev, func(msg gomidi.Message) {
		s.post.Post(func() { s.receive(gen, msg) })
	})
	if err != nil {
		s.sink.Print(fmt.Sprintf("Unable to connect to %s: %v", dev.Name, err))
		return fmt.Errorf("connect %q: %w", dev.Name, err)
	}

	s.conn = conn
	s.printDevice("Connected")
	s.Show.Publish(dev)
	return nil
}

// Disconnect resets the controls and closes the current device
func (s *Session) Disconnect() {
	s.Reset.Publish(struct{}{})
	if s.conn != nil {
		s.printDevice("Disconnected")
	}
	s.close()
}

func (s *Session) close() {
	s.gen++
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		debug.Log("session", "close %s: %v", s.conn.Device().Name, err)
	}
	s.conn = nil
}

// AutoConnect connects to the device called name. The name may omit the
// first-port suffix added by the OS.
func (s *Session) AutoConnect(devices []midi.Device, name string) error {
	s.sink.Print(fmt.Sprintf("Found request to auto-connect to device: %s", name))
	dev, ok := midi.FindDevice(devices, name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoDevice, name)
	}
	s.sink.Print(fmt.Sprintf("Trying to connect to %s ...", dev.Name))
	return s.Connect(dev)
}

// HandleState logs a port change and disconnects when the connected
// device goes away.
func (s *Session) HandleState(ev midi.StateEvent) {
	s.sink.Print(ev.String())
	s.State.Publish(ev)

	if s.conn == nil || ev.State != midi.PortDisconnected {
		return
	}
	dev := s.conn.Device()
	if dev.Name != ev.Name {
		return
	}
	// the input decides, output-only devices go with their output
	if ev.Type == midi.PortInput || (!dev.HasInput() && ev.Type == midi.PortOutput) {
		s.Disconnect()
	}
}

// PrintStatus logs the version and all candidate devices
func (s *Session) PrintStatus(devices []midi.Device) {
	line := s.name
	if s.version != "" {
		line += ", version " + s.version
	}
	s.sink.Print(line)

	current, connected := s.Device()
	for _, d := range devices {
		what := "Found"
		if connected && d.Name == current.Name {
			what = "Connected to"
		}
		s.sink.Print(fmt.Sprintf("%s %s (%s)", what, d.Name, d.ID()))
	}
}

func (s *Session) print(line string) {
	name := "-"
	if s.conn != nil {
		name = s.conn.Device().Name
	}
	s.sink.Print(name + ": " + line)
}

func (s *Session) printDevice(line string) {
	if s.conn == nil {
		s.print(line)
		return
	}
	dev := s.conn.Device()
	s.sink.Print(fmt.Sprintf("%s (%s): %s", dev.Name, dev.ID(), line))
}

func (s *Session) send(msg gomidi.Message) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.Send(msg); err != nil {
		s.print(fmt.Sprintf("Unable to send: %v", err))
		return fmt.Errorf("send %s: %w", msg, err)
	}
	return nil
}

func noteLabel(note uint8) string {
	return fmt.Sprintf("%s(%d)", midi.NoteName(note), note)
}

// SendNote sends note-on
func (s *Session) SendNote(channel, note, velocity uint8) error {
	channel, note, velocity = channel&0x0F, note&0x7F, velocity&0x7F
	if err := s.send(gomidi.NoteOn(channel, note, velocity)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending Note %s with velocity %d on channel #%d", noteLabel(note), velocity, channel+1))
	return nil
}

// SendNoteOff sends note-off with a release velocity
func (s *Session) SendNoteOff(channel, note, velocity uint8) error {
	channel, note, velocity = channel&0x0F, note&0x7F, velocity&0x7F
	if err := s.send(gomidi.NoteOffVelocity(channel, note, velocity)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending NoteOff %s with velocity %d on channel #%d", noteLabel(note), velocity, channel+1))
	return nil
}

func (s *Session) SendControlChange(channel, controller, value uint8) error {
	channel, controller, value = channel&0x0F, controller&0x7F, value&0x7F
	if err := s.send(gomidi.ControlChange(channel, controller, value)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending Control Change #%d with value %d on channel #%d", controller, value, channel+1))
	return nil
}

// SendProgramChange sends a 0-based program; the log shows it 1-based
func (s *Session) SendProgramChange(channel, program uint8) error {
	channel, program = channel&0x0F, program&0x7F
	if err := s.send(gomidi.ProgramChange(channel, program)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending Program Change #%d on channel #%d", int(program)+1, channel+1))
	return nil
}

func (s *Session) SendAftertouchChannel(channel, pressure uint8) error {
	channel, pressure = channel&0x0F, pressure&0x7F
	if err := s.send(gomidi.AfterTouch(channel, pressure)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending Aftertouch Channel #%d on channel #%d", pressure, channel+1))
	return nil
}

// SendPitchBend sends a bend of -8192..8191
func (s *Session) SendPitchBend(channel uint8, value int16) error {
	channel = channel & 0x0F
	value = max(-8192, min(8191, value))
	if err := s.send(gomidi.Pitchbend(channel, value)); err != nil {
		return err
	}
	s.print(fmt.Sprintf("Sending Pitch Bend #%d on channel #%d", value, channel+1))
	return nil
}

func (s *Session) SendSystemReset() error {
	if err := s.send(midi.SystemReset()); err != nil {
		return err
	}
	s.print("Sending SystemReset")
	return nil
}

// SendSystemExclusive frames data with F0/F7 and returns the message length.
// Data bytes must be 7-bit; nothing is sent otherwise.
func (s *Session) SendSystemExclusive(data []byte) (int, error) {
	if err := midi.CheckSysEx(data); err != nil {
		s.printDevice(fmt.Sprintf("Unable to send SystemExclusive: %v", err))
		return 0, err
	}
	msg := gomidi.SysEx(data)
	if err := s.send(msg); err != nil {
		return 0, err
	}
	length := len(msg)
	s.printDevice(fmt.Sprintf("Sending SystemExclusive length=%d", length))
	return length, nil
}

// SendJSON parses text as a JSON object and sends it as SysEx. A parse
// error is logged and returned; nothing is sent.
func (s *Session) SendJSON(text string) (int, error) {
	payload, err := midi.ParseJSON(text)
	if err != nil {
		s.printDevice(fmt.Sprintf("Unable to parse JSON string: %v", err))
		return 0, err
	}
	data := append([]byte{midi.ManufacturerJSON}, payload...)
	return s.SendSystemExclusive(data)
}

// SendMessage forwards a raw message without logging it
func (s *Session) SendMessage(msg gomidi.Message) error {
	return s.send(msg)
}

func (s *Session) receive(gen uint64, msg gomidi.Message) {
	if gen != s.gen || s.conn == nil {
		debug.Log("session", "dropped message from closed connection: %s", msg)
		return
	}

	ev := midi.Decode(msg)
	ch := int(ev.Channel) + 1
	switch ev.Kind {
	case midi.KindNote:
		if ev.Data2 > 0 {
			s.print(fmt.Sprintf("Received Note %s with velocity %d on channel #%d", noteLabel(ev.Data1), ev.Data2, ch))
		} else {
			s.print(fmt.Sprintf("Received NoteOff %s on channel #%d", noteLabel(ev.Data1), ch))
		}
	case midi.KindNoteOff:
		s.print(fmt.Sprintf("Received NoteOff %s with velocity %d on channel #%d", noteLabel(ev.Data1), ev.Data2, ch))
	case midi.KindAftertouch:
		s.print(fmt.Sprintf("Received Aftertouch for note %s with pressure %d on channel #%d", noteLabel(ev.Data1), ev.Data2, ch))
	case midi.KindControlChange:
		s.print(fmt.Sprintf("Received ControlChange %d with value %d on channel #%d", ev.Data1, ev.Data2, ch))
	case midi.KindAftertouchChannel:
		s.print(fmt.Sprintf("Received Aftertouch Channel with value %d on channel #%d", ev.Data2, ch))
	case midi.KindProgramChange:
		s.print(fmt.Sprintf("Received Program Change #%d on channel #%d", int(ev.Data1)+1, ch))
	case midi.KindPitchBend:
		s.print(fmt.Sprintf("Received Pitch Bend %d on channel #%d", ev.Bend, ch))
	case midi.KindSystemExclusive:
		s.printDevice(fmt.Sprintf("Received SystemExclusive length=%d", len(ev.Raw)))
		if payload, ok := midi.DecodeJSON(ev.SysEx); ok {
			s.printDevice("Received JSON with keys: " + strings.Join(midi.JSONKeys(payload), ", "))
		} else {
			s.printDevice("Received unrecognized SystemExclusive")
		}
	default:
		debug.LogEvery(100, "session", "ignored %s", msg)
		return
	}

	s.Message.Publish(ev)
}
