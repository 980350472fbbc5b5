package control

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	gomidi "gitlab.com/gomidi/midi/v2"

	"midictl/debug"
	"midictl/midi"
	"midictl/repeat"
	"midictl/sched"
)

// Transpositions are the selectable transpose steps, in display order
var Transpositions = []int{48, 36, 24, 12, 0, -12, -24, -36, -48}

// Input forwards a second device's notes to the connected device,
// optionally transposed and moved to another channel.
type Input struct {
	dev    Device
	opener midi.Opener
	post   sched.Poster
	guard  repeat.Guard

	transpose int
	// Channel 0 keeps the source channel, 1-16 replaces it
	Channel *Param

	conn midi.Conn
	gen  uint64
	lock repeat.Lock
}

func NewInput(dev Device, opener midi.Opener, post sched.Poster, guard repeat.Guard) *Input {
	ch := newParam("Channel", 0, 16, 0)
	ch.Format = func(v int) string {
		if v == 0 {
			return "-"
		}
		return strconv.Itoa(v)
	}
	return &Input{dev: dev, opener: opener, post: post, guard: guard, Channel: ch}
}

// Sources lists devices that can be forwarded, leaving out the one the
// session is connected to.
func Sources(devices []midi.Device, connected string) []midi.Device {
	return lo.Filter(devices, func(d midi.Device, _ int) bool {
		return d.HasInput() && d.Name != connected
	})
}

func (in *Input) Transpose() int { return in.transpose }

// TransposeLabel formats the transpose with an explicit sign
func (in *Input) TransposeLabel() string {
	if in.transpose > 0 {
		return fmt.Sprintf("+%d", in.transpose)
	}
	return strconv.Itoa(in.transpose)
}

// SetTranspose picks the nearest allowed step
func (in *Input) SetTranspose(v int) {
	best := 0
	for _, t := range Transpositions {
		if abs(v-t) < abs(v-best) {
			best = t
		}
	}
	in.transpose = best
}

// StepTranspose moves up (d > 0) or down along Transpositions
func (in *Input) StepTranspose(d int) {
	i := 0
	for j, t := range Transpositions {
		if t == in.transpose {
			i = j
		}
	}
	// the list is sorted descending
	i = max(0, min(len(Transpositions)-1, i-d))
	in.transpose = Transpositions[i]
}

func (in *Input) Params() []*Param {
	return []*Param{in.Channel}
}

// Transform applies transpose and channel override to note on/off and
// polyphonic aftertouch. Other messages are returned unchanged.
func (in *Input) Transform(msg gomidi.Message) gomidi.Message {
	if len(msg) < 2 {
		return msg
	}
	status := msg[0] & 0xF0
	switch status {
	case midi.StatusNoteOn, midi.StatusNoteOff, midi.StatusAftertouch:
	default:
		return msg
	}

	out := make(gomidi.Message, len(msg))
	copy(out, msg)
	if in.transpose != 0 {
		out[1] = uint8(max(0, min(127, int(out[1])+in.transpose)))
	}
	if in.Channel.Value > 0 {
		out[0] = status | uint8(in.Channel.Value-1)
	}
	return out
}

// Forward sends a transformed copy of msg to the connected device
func (in *Input) Forward(msg gomidi.Message) error {
	return in.dev.SendMessage(in.Transform(msg))
}

// Connect starts listening on src
func (in *Input) Connect(src midi.Device) error {
	in.Disconnect()
	if !src.HasInput() {
		return fmt.Errorf("%s has no input port", src.Name)
	}

	gen := in.gen
	// only listen, the source output stays closed
	listen := midi.Device{Name: src.Name, In: src.In}
	conn, err := in.opener.Open(listen, func(msg gomidi.Message) {
		in.post.Post(func() {
			if gen != in.gen {
				return
			}
			if err := in.Forward(msg); err != nil {
				debug.LogEvery(50, "input", "forward: %v", err)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("listen to %q: %w", src.Name, err)
	}
	in.conn = conn
	return nil
}

// Source returns the device being forwarded
func (in *Input) Source() (midi.Device, bool) {
	if in.conn == nil {
		return midi.Device{}, false
	}
	return in.conn.Device(), true
}

// Disconnect stops forwarding and releases the wake lock
func (in *Input) Disconnect() {
	in.gen++
	if in.conn != nil {
		if err := in.conn.Close(); err != nil {
			debug.Log("input", "close: %v", err)
		}
		in.conn = nil
	}
	_ = in.SetKeepAwake(false)
}

// KeepAwake reports whether a wake lock is held for live playing
func (in *Input) KeepAwake() bool { return in.lock != nil }

// SetKeepAwake takes or drops a wake lock while forwarding
func (in *Input) SetKeepAwake(on bool) error {
	if !on {
		if in.lock != nil {
			in.lock.Release()
			in.lock = nil
		}
		return nil
	}
	if in.lock != nil {
		return nil
	}
	if in.guard == nil {
		return fmt.Errorf("no wake lock available")
	}
	if in.conn == nil {
		return fmt.Errorf("no input selected")
	}

	var lock repeat.Lock
	lock, err := in.guard.Acquire(func() {
		in.post.Post(func() {
			if in.lock == lock {
				in.lock = nil
			}
		})
	})
	if err != nil {
		return err
	}
	in.lock = lock
	return nil
}

// HandleState stops forwarding when the source's input port goes away
func (in *Input) HandleState(ev midi.StateEvent) {
	src, ok := in.Source()
	if !ok || ev.State != midi.PortDisconnected || ev.Type != midi.PortInput || ev.Name != src.Name {
		return
	}
	debug.Log("input", "source %s removed", src.Name)
	in.Disconnect()
}

// Reset disconnects the source and restores the defaults
func (in *Input) Reset() {
	in.Disconnect()
	in.transpose = 0
	in.Channel.Reset()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
