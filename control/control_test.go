package control

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"midictl/bus"
	"midictl/midi"
	"midictl/repeat"
	"midictl/sched"
)

type fakeDevice struct {
	calls []string
	raw   []gomidi.Message
	err   error
}

func (d *fakeDevice) record(format string, args ...any) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	return nil
}

func (d *fakeDevice) SendNote(ch, note, vel uint8) error {
	return d.record("on %d %d %d", ch, note, vel)
}

func (d *fakeDevice) SendNoteOff(ch, note, vel uint8) error {
	return d.record("off %d %d %d", ch, note, vel)
}

func (d *fakeDevice) SendControlChange(ch, cc, v uint8) error {
	return d.record("cc %d %d %d", ch, cc, v)
}

func (d *fakeDevice) SendProgramChange(ch, p uint8) error {
	return d.record("pc %d %d", ch, p)
}

func (d *fakeDevice) SendSystemReset() error {
	return d.record("reset")
}

func (d *fakeDevice) SendJSON(text string) (int, error) {
	return len(text), d.record("json %s", text)
}

func (d *fakeDevice) SendMessage(msg gomidi.Message) error {
	d.raw = append(d.raw, msg)
	return d.err
}

func (d *fakeDevice) joined() string { return strings.Join(d.calls, "|") }

func TestParamClamps(t *testing.T) {
	p := newParam("x", 1, 10, 5)
	p.Set(0)
	if p.Value != 1 {
		t.Fatalf("value=%d", p.Value)
	}
	p.Step(100)
	if p.Value != 10 {
		t.Fatalf("value=%d", p.Value)
	}
	p.Reset()
	if p.Value != 5 || p.String() != "5" {
		t.Fatalf("value=%d", p.Value)
	}
	if channelParam().String() != "1" {
		t.Fatal("channel must display 1-based")
	}
}

func TestNotePressRelease(t *testing.T) {
	d := &fakeDevice{}
	n := NewNote(d)
	if n.Note.Value != 60 || n.Velocity.Value != 10 || n.OffVelocity.Value != 64 {
		t.Fatalf("defaults %d/%d/%d", n.Note.Value, n.Velocity.Value, n.OffVelocity.Value)
	}

	_ = n.Press()
	n.Note.Set(72)
	n.Channel.Set(3)
	_ = n.Release()
	if d.joined() != "on 0 60 10|off 0 60 64" {
		t.Fatalf("calls=%s", d.joined())
	}
	if n.Held() {
		t.Fatal("still held")
	}

	_ = n.Press()
	_ = n.Press()
	if !strings.HasSuffix(d.joined(), "on 3 72 10|off 3 72 64|on 3 72 10") {
		t.Fatalf("calls=%s", d.joined())
	}

	n.Reset()
	if n.Held() || n.Note.Value != 60 || n.Channel.Value != 0 {
		t.Fatal("reset incomplete")
	}
	if !strings.HasSuffix(d.joined(), "on 3 72 10|off 3 72 64") {
		t.Fatalf("reset must release the held note: %s", d.joined())
	}
}

func TestNotePressError(t *testing.T) {
	d := &fakeDevice{err: errors.New("not connected")}
	n := NewNote(d)
	if err := n.Press(); err == nil || n.Held() {
		t.Fatalf("err=%v held=%v", err, n.Held())
	}
}

func TestController(t *testing.T) {
	d := &fakeDevice{}
	c := NewController(d)
	if c.Controller.Value != 7 || !strings.Contains(c.Controller.String(), "Channel Volume") {
		t.Fatalf("controller=%s", c.Controller)
	}
	c.Value.Set(100)
	_ = c.Send()
	_ = c.NotesOff()
	_ = c.ControllersOff()
	if d.joined() != "cc 0 7 100|cc 0 123 0|cc 0 121 0" {
		t.Fatalf("calls=%s", d.joined())
	}
}

func TestProgram(t *testing.T) {
	d := &fakeDevice{}
	p := NewProgram(d)
	if !strings.Contains(p.Program.String(), "Acoustic Grand Piano") {
		t.Fatalf("program=%s", p.Program)
	}
	p.Channel.Set(9)
	p.Program.Set(128)
	p.Bank.Set(3)
	_ = p.Send()
	if d.joined() != "cc 9 0 0|cc 9 32 2|pc 9 127" {
		t.Fatalf("calls=%s", d.joined())
	}
}

func TestSystem(t *testing.T) {
	d := &fakeDevice{}
	s := NewSystem(d)
	s.JSON = `{"method":"reboot"}`
	_ = s.SendJSON()
	_ = s.SystemReset()
	s.Reset()
	if d.joined() != `json {"method":"reboot"}|reset` || s.JSON != DefaultJSON {
		t.Fatalf("calls=%s json=%s", d.joined(), s.JSON)
	}
}

func TestInputTransform(t *testing.T) {
	in := NewInput(&fakeDevice{}, nil, nil, nil)

	tests := []struct {
		name      string
		transpose int
		channel   int
		msg       gomidi.Message
		want      gomidi.Message
	}{
		{"passthrough", 0, 0, gomidi.NoteOn(2, 60, 100), gomidi.NoteOn(2, 60, 100)},
		{"up", 12, 0, gomidi.NoteOn(2, 60, 100), gomidi.NoteOn(2, 72, 100)},
		{"clamp high", 48, 0, gomidi.NoteOn(0, 100, 1), gomidi.NoteOn(0, 127, 1)},
		{"clamp low", -48, 0, gomidi.NoteOffVelocity(0, 10, 0), gomidi.NoteOffVelocity(0, 0, 0)},
		{"channel", 0, 16, gomidi.PolyAfterTouch(1, 60, 5), gomidi.PolyAfterTouch(15, 60, 5)},
		{"cc untouched", 12, 5, gomidi.ControlChange(1, 60, 5), gomidi.ControlChange(1, 60, 5)},
		{"pitch bend untouched", 12, 5, gomidi.Pitchbend(1, 100), gomidi.Pitchbend(1, 100)},
	}
	for _, tt := range tests {
		in.SetTranspose(tt.transpose)
		in.Channel.Set(tt.channel)
		original := append(gomidi.Message(nil), tt.msg...)
		got := in.Transform(tt.msg)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: got % x want % x", tt.name, []byte(got), []byte(tt.want))
		}
		if !bytes.Equal(tt.msg, original) {
			t.Errorf("%s: input message modified", tt.name)
		}
	}
}

func TestInputTranspose(t *testing.T) {
	in := NewInput(&fakeDevice{}, nil, nil, nil)
	in.SetTranspose(10)
	if in.Transpose() != 12 || in.TransposeLabel() != "+12" {
		t.Fatalf("transpose=%s", in.TransposeLabel())
	}
	in.SetTranspose(-100)
	if in.Transpose() != -48 {
		t.Fatalf("transpose=%d", in.Transpose())
	}
	in.StepTranspose(1)
	if in.Transpose() != -36 {
		t.Fatalf("transpose=%d", in.Transpose())
	}
	for i := 0; i < 20; i++ {
		in.StepTranspose(1)
	}
	if in.Transpose() != 48 {
		t.Fatalf("transpose=%d", in.Transpose())
	}
}

// embedded interfaces satisfy the driver port types; only the
// overridden methods are called
type fakeIn struct {
	drivers.In
	name string
}

func (p fakeIn) String() string { return p.name }
func (p fakeIn) Number() int    { return 0 }

type fakeOut struct {
	drivers.Out
}

type fakeConn struct {
	dev    midi.Device
	closed bool
}

func (c *fakeConn) Device() midi.Device           { return c.dev }
func (c *fakeConn) Send(msg gomidi.Message) error { return nil }
func (c *fakeConn) Close() error                  { c.closed = true; return nil }

type fakeOpener struct {
	conn  *fakeConn
	onMsg func(gomidi.Message)
}

func (o *fakeOpener) Open(dev midi.Device, onMsg func(gomidi.Message)) (midi.Conn, error) {
	o.conn = &fakeConn{dev: dev}
	o.onMsg = onMsg
	return o.conn, nil
}

type fakeGuard struct {
	acquired, released int
	revoke             func()
}

func (g *fakeGuard) Acquire(onRevoke func()) (repeat.Lock, error) {
	g.acquired++
	g.revoke = onRevoke
	return g, nil
}

func (g *fakeGuard) Release() { g.released++ }

func TestInputForwarding(t *testing.T) {
	d := &fakeDevice{}
	o := &fakeOpener{}
	clock := sched.NewManual(time.Unix(0, 0))
	g := &fakeGuard{}
	in := NewInput(d, o, clock, g)

	if err := in.Connect(midi.Device{Name: "Out only"}); err == nil {
		t.Fatal("expected error for a device without input")
	}

	src := midi.Device{Name: "Keys", In: fakeIn{name: "Keys"}, Out: fakeOut{}}
	if err := in.Connect(src); err != nil {
		t.Fatal(err)
	}
	if o.conn.dev.Out != nil {
		t.Fatal("source output must stay closed")
	}
	if got, ok := in.Source(); !ok || got.Name != "Keys" {
		t.Fatalf("source=%v,%v", got, ok)
	}
	in.SetTranspose(-12)
	o.onMsg(gomidi.NoteOn(0, 60, 90))
	if len(d.raw) != 0 {
		t.Fatal("forwarded outside the loop")
	}
	clock.Flush()
	if len(d.raw) != 1 || !bytes.Equal(d.raw[0], gomidi.NoteOn(0, 48, 90)) {
		t.Fatalf("raw=%v", d.raw)
	}

	if err := in.SetKeepAwake(true); err != nil {
		t.Fatal(err)
	}
	if !in.KeepAwake() || g.acquired != 1 {
		t.Fatal("lock not taken")
	}
	g.revoke()
	clock.Flush()
	if in.KeepAwake() {
		t.Fatal("revoked lock still reported")
	}

	_ = in.SetKeepAwake(true)
	stale := o.onMsg
	in.Reset()
	if !o.conn.closed || g.released != 1 || in.KeepAwake() {
		t.Fatalf("closed=%v released=%d", o.conn.closed, g.released)
	}
	stale(gomidi.NoteOn(0, 60, 1))
	clock.Flush()
	if len(d.raw) != 1 {
		t.Fatal("forwarded after disconnect")
	}
}

func TestSources(t *testing.T) {
	devices := []midi.Device{
		{Name: "A", In: fakeIn{name: "A"}},
		{Name: "B"},
		{Name: "C", In: fakeIn{name: "C"}},
	}
	got := Sources(devices, "A")
	if len(got) != 1 || got[0].Name != "C" {
		t.Fatalf("sources=%v", got)
	}
}

func TestPanelReset(t *testing.T) {
	d := &fakeDevice{}
	clock := sched.NewManual(time.Unix(0, 0))
	seq := repeat.New(clock, d)
	p := NewPanel(d, seq, NewInput(d, &fakeOpener{}, clock, nil))

	show := bus.NewTopic[midi.Device]("show")
	reset := bus.NewTopic[struct{}]("reset")
	cancel := p.Bind(show, reset)

	show.Publish(midi.Device{Name: "Synth"})
	if !p.Visible() || p.Device().Name != "Synth" {
		t.Fatal("not shown")
	}

	p.Note.Note.Set(10)
	p.System.JSON = "{\"a\":1}"
	_ = seq.Configure(repeat.FieldVelocity, 99)
	seq.Start()

	reset.Publish(struct{}{})
	if p.Visible() || seq.Running() || p.Note.Note.Value != 60 || p.System.JSON != DefaultJSON {
		t.Fatal("reset incomplete")
	}
	if seq.Config() != repeat.DefaultConfig() {
		t.Fatalf("cfg=%+v", seq.Config())
	}
	if !strings.HasSuffix(d.joined(), "off 0 60 64") {
		t.Fatalf("sounding note not released: %s", d.joined())
	}

	cancel()
	if show.Len() != 0 || reset.Len() != 0 {
		t.Fatal("still subscribed")
	}
}

func TestInputFollowsPortRemoval(t *testing.T) {
	d := &fakeDevice{}
	clock := sched.NewManual(time.Unix(0, 0))
	opener := &fakeOpener{}
	p := NewPanel(d, repeat.New(clock, d), NewInput(d, opener, clock, nil))

	state := bus.NewTopic[midi.StateEvent]("state")
	cancel := p.Watch(state)
	defer cancel()

	if err := p.Input.Connect(midi.Device{Name: "Keys", In: fakeIn{name: "Keys"}}); err != nil {
		t.Fatal(err)
	}

	state.Publish(midi.StateEvent{Name: "Keys", Type: midi.PortOutput, State: midi.PortDisconnected})
	state.Publish(midi.StateEvent{Name: "Other", Type: midi.PortInput, State: midi.PortDisconnected})
	if _, ok := p.Input.Source(); !ok {
		t.Fatal("unrelated change stopped forwarding")
	}

	state.Publish(midi.StateEvent{Name: "Keys", Type: midi.PortInput, State: midi.PortDisconnected})
	if _, ok := p.Input.Source(); ok || !opener.conn.closed {
		t.Fatal("source removal must stop forwarding")
	}
}

func TestWatchWithoutInput(t *testing.T) {
	d := &fakeDevice{}
	p := NewPanel(d, nil, nil)
	state := bus.NewTopic[midi.StateEvent]("state")
	p.Watch(state)()
	if state.Len() != 0 {
		t.Fatal("subscribed without input")
	}
}
