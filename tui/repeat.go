package tui

import (
	"fmt"

	"midictl/midi"
	"midictl/repeat"
	"midictl/widgets"
)

// repeatOrder is the row order of the Repeat section
var repeatOrder = []repeat.Field{
	repeat.FieldStartNote,
	repeat.FieldCount,
	repeat.FieldVelocity,
	repeat.FieldLength,
	repeat.FieldBeat,
	repeat.FieldPause,
	repeat.FieldChannel,
	repeat.FieldDanger,
}

func repeatValue(c repeat.Config, f repeat.Field) int {
	switch f {
	case repeat.FieldStartNote:
		return c.StartNote
	case repeat.FieldCount:
		return c.Count
	case repeat.FieldVelocity:
		return c.Velocity
	case repeat.FieldLength:
		return c.Length
	case repeat.FieldBeat:
		return c.Beat
	case repeat.FieldPause:
		return c.Pause
	case repeat.FieldChannel:
		return c.Channel
	case repeat.FieldDanger:
		if c.Danger {
			return 1
		}
	}
	return 0
}

func repeatFields(c repeat.Config) []widgets.Field {
	note := func(n int) string { return fmt.Sprintf("%s (%d)", midi.NoteName(uint8(n)), n) }

	beat := fmt.Sprintf("%d ms", c.BeatMsec())
	if c.BeatMsec() == 0 {
		beat = "all at once"
	}
	danger := "off"
	if c.Danger {
		danger = "on"
	}

	beatMax := repeat.SafeBeat
	if c.Danger {
		beatMax = 127
	}

	return []widgets.Field{
		{Label: "Note", Value: note(c.StartNote), Slider: true, Pos: c.StartNote, Max: 127},
		{Label: "Count", Value: fmt.Sprintf("%d (to %s)", c.Count, note(c.End())), Slider: true, Pos: c.Count, Min: 1, Max: 128},
		{Label: "Velocity", Value: fmt.Sprint(c.Velocity), Slider: true, Pos: c.Velocity, Min: 1, Max: 127},
		{Label: "Length", Value: fmt.Sprintf("%d ms", c.LengthMsec()), Slider: true, Pos: c.Length, Max: 127},
		{Label: "Beat", Value: beat, Slider: true, Pos: c.Beat, Max: beatMax},
		{Label: "Pause", Value: fmt.Sprintf("%d ms", c.PauseMsec()), Slider: true, Pos: c.Pause, Max: 127},
		{Label: "Channel", Value: fmt.Sprint(c.Channel + 1)},
		{Label: "Danger", Value: danger},
	}
}

// stepRepeat moves row idx by d. Danger toggles on any step.
func stepRepeat(seq *repeat.Sequencer, idx, d int) {
	if idx < 0 || idx >= len(repeatOrder) {
		return
	}
	f := repeatOrder[idx]
	value := repeatValue(seq.Config(), f) + d
	if f == repeat.FieldDanger {
		value = 1 - repeatValue(seq.Config(), f)
	}
	_ = seq.Configure(f, value)
}
