package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Kind identifies a decoded inbound message
type Kind int

const (
	KindOther Kind = iota
	KindNote
	KindNoteOff
	KindAftertouch
	KindControlChange
	KindProgramChange
	KindAftertouchChannel
	KindPitchBend
	KindSystemExclusive
)

var kindNames = map[Kind]string{
	KindOther:             "other",
	KindNote:              "note",
	KindNoteOff:           "noteOff",
	KindAftertouch:        "aftertouch",
	KindControlChange:     "controlChange",
	KindProgramChange:     "programChange",
	KindAftertouchChannel: "aftertouchChannel",
	KindPitchBend:         "pitchBend",
	KindSystemExclusive:   "systemExclusive",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MIDI status nibbles
const (
	StatusNoteOff         uint8 = 0x80
	StatusNoteOn          uint8 = 0x90
	StatusAftertouch      uint8 = 0xA0
	StatusControlChange   uint8 = 0xB0
	StatusProgramChange   uint8 = 0xC0
	StatusChannelPressure uint8 = 0xD0
	StatusPitchBend       uint8 = 0xE0
	StatusSysEx           uint8 = 0xF0
	StatusSysExEnd        uint8 = 0xF7
	StatusSystemReset     uint8 = 0xFF
)

// Event is a decoded inbound message.
//
// Data1 carries the note, controller or program number; Data2 the velocity,
// pressure or controller value. Note-on with velocity 0 stays KindNote.
type Event struct {
	Kind    Kind
	Channel uint8 // 0-15
	Data1   uint8
	Data2   uint8
	Bend    int16  // pitch bend, -8192..8191
	SysEx   []byte // payload without F0/F7
	Raw     gomidi.Message
}

// Decode classifies a raw message. Unknown or truncated messages decode
// as KindOther.
func Decode(msg gomidi.Message) Event {
	ev := Event{Kind: KindOther, Raw: msg}
	bt := []byte(msg)
	if len(bt) == 0 {
		return ev
	}

	status := bt[0]
	if status == StatusSysEx {
		ev.Kind = KindSystemExclusive
		data := bt[1:]
		if n := len(data); n > 0 && data[n-1] == StatusSysExEnd {
			data = data[:n-1]
		}
		ev.SysEx = data
		return ev
	}
	if status >= StatusSysEx {
		return ev
	}

	ev.Channel = status & 0x0F
	switch status & 0xF0 {
	case StatusNoteOn:
		if len(bt) >= 3 {
			ev.Kind, ev.Data1, ev.Data2 = KindNote, bt[1]&0x7F, bt[2]&0x7F
		}
	case StatusNoteOff:
		if len(bt) >= 3 {
			ev.Kind, ev.Data1, ev.Data2 = KindNoteOff, bt[1]&0x7F, bt[2]&0x7F
		}
	case StatusAftertouch:
		if len(bt) >= 3 {
			ev.Kind, ev.Data1, ev.Data2 = KindAftertouch, bt[1]&0x7F, bt[2]&0x7F
		}
	case StatusControlChange:
		if len(bt) >= 3 {
			ev.Kind, ev.Data1, ev.Data2 = KindControlChange, bt[1]&0x7F, bt[2]&0x7F
		}
	case StatusProgramChange:
		if len(bt) >= 2 {
			ev.Kind, ev.Data1 = KindProgramChange, bt[1]&0x7F
		}
	case StatusChannelPressure:
		if len(bt) >= 2 {
			ev.Kind, ev.Data2 = KindAftertouchChannel, bt[1]&0x7F
		}
	case StatusPitchBend:
		if len(bt) >= 3 {
			value := int(bt[2]&0x7F)<<7 | int(bt[1]&0x7F)
			ev.Kind, ev.Bend = KindPitchBend, int16(value-8192)
		}
	}
	return ev
}

// SystemReset returns the single-byte system reset message.
func SystemReset() gomidi.Message {
	return gomidi.Message{StatusSystemReset}
}
