package repeat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"midictl/config"
)

// ErrUnknownField is returned by Configure for a field it does not know
var ErrUnknownField = errors.New("unknown repeat field")

// Field names one configurable value
type Field int

const (
	FieldStartNote Field = iota
	FieldCount
	FieldVelocity
	FieldLength
	FieldBeat
	FieldPause
	FieldChannel
	FieldDanger
)

var fieldNames = [...]string{"note", "count", "velocity", "length", "beat", "pause", "channel", "danger"}

func (f Field) String() string {
	if f >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField looks a field up by name ("note", "count", ...)
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "startnote" {
		return FieldStartNote, nil
	}
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

const (
	// SafeBeat is the highest beat slider position without danger mode
	SafeBeat = 110
	// DefaultSlider is the initial length/beat/pause position and the value
	// the beat/pause coupling falls back to
	DefaultSlider = 63

	sliderMax = 127
)

// Config is the playback configuration. Mutate it only through Configure,
// which keeps every field in range.
type Config struct {
	StartNote int // 0-127
	Count     int // 1-128, StartNote+Count-1 <= 127
	Velocity  int // 1-127
	Length    int // slider 0-127
	Beat      int // slider 0-127, <= SafeBeat unless Danger
	Pause     int // slider 0-127
	Channel   int // 0-15
	Danger    bool
}

// DefaultConfig returns the startup configuration
func DefaultConfig() Config {
	return Config{
		StartNote: 60,
		Count:     1,
		Velocity:  10,
		Length:    DefaultSlider,
		Beat:      DefaultSlider,
		Pause:     DefaultSlider,
		Channel:   0,
	}
}

// End is the last note of the range
func (c Config) End() int {
	return c.StartNote + c.Count - 1
}

// Configure sets one field. Out-of-range values are clamped; dependent
// fields are adjusted so the range and the beat/pause coupling stay valid.
// For FieldDanger any non-zero value enables danger mode.
func (c *Config) Configure(f Field, value int) error {
	switch f {
	case FieldStartNote:
		c.StartNote = clamp(value, 0, 127)
		if c.Count > 128-c.StartNote {
			c.Count = 128 - c.StartNote
		}
	case FieldCount:
		c.Count = clamp(value, 1, 128)
		if c.StartNote > 128-c.Count {
			c.StartNote = 128 - c.Count
		}
	case FieldVelocity:
		c.Velocity = clamp(value, 1, 127)
	case FieldLength:
		c.Length = clamp(value, 0, sliderMax)
	case FieldBeat:
		c.Beat = clamp(value, 0, sliderMax)
		if !c.Danger && c.Beat > SafeBeat {
			c.Beat = SafeBeat
		}
		if c.Beat == sliderMax && c.Pause == 0 {
			c.Pause = DefaultSlider
		}
	case FieldPause:
		c.Pause = clamp(value, 0, sliderMax)
		if c.Pause == 0 && c.Beat == sliderMax {
			c.Beat = DefaultSlider
		}
	case FieldChannel:
		c.Channel = clamp(value, 0, 15)
	case FieldDanger:
		c.Danger = value != 0
		if !c.Danger && c.Beat > SafeBeat {
			c.Beat = SafeBeat
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	return nil
}

// Normalize returns c with every field passed through Configure, so a
// hand-built Config obeys the same invariants.
func (c Config) Normalize() Config {
	n := DefaultConfig()
	n.Danger = c.Danger
	_ = n.Configure(FieldStartNote, c.StartNote)
	_ = n.Configure(FieldCount, c.Count)
	_ = n.Configure(FieldVelocity, c.Velocity)
	_ = n.Configure(FieldLength, c.Length)
	_ = n.Configure(FieldPause, c.Pause)
	_ = n.Configure(FieldBeat, c.Beat)
	_ = n.Configure(FieldChannel, c.Channel)
	return n
}

// Apply overlays startup values from the config file. Its channel is
// 1-based.
func (c *Config) Apply(r config.RepeatConfig) {
	set := func(f Field, v *int, offset int) {
		if v != nil {
			_ = c.Configure(f, *v+offset)
		}
	}
	set(FieldStartNote, r.Note, 0)
	set(FieldCount, r.Count, 0)
	set(FieldVelocity, r.Velocity, 0)
	set(FieldLength, r.Length, 0)
	set(FieldPause, r.Pause, 0)
	set(FieldBeat, r.Beat, 0)
	set(FieldChannel, r.Channel, -1)
}

// LengthMsec is how long each note sounds
func (c Config) LengthMsec() int {
	return quadratic(5000, c.Length)
}

// BeatMsec is the gap between notes of a cycle; 0 plays the whole range at once
func (c Config) BeatMsec() int {
	return quadratic(2000, sliderMax-c.Beat)
}

// PauseMsec is the extra gap after each cycle
func (c Config) PauseMsec() int {
	return quadratic(5000, c.Pause)
}

func (c Config) length() time.Duration { return msec(c.LengthMsec()) }
func (c Config) beat() time.Duration   { return msec(c.BeatMsec()) }
func (c Config) pause() time.Duration  { return msec(c.PauseMsec()) }

// quadratic is ceil(scale * (pos/127)^2) in integer arithmetic
func quadratic(scale, pos int) int {
	pos = clamp(pos, 0, sliderMax)
	const den = sliderMax * sliderMax
	return (scale*pos*pos + den - 1) / den
}

func msec(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
