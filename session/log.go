package session

import (
	"fmt"

	"midictl/debug"
)

// LogLines is the scrollback size
const LogLines = 100

// Sink receives user-facing status lines
type Sink interface {
	Print(line string)
}

// Log keeps the newest LogLines lines and mirrors them to the debug log.
// Owned by the event loop.
type Log struct {
	lines []string
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{}
}

func (l *Log) Print(line string) {
	debug.Log("log", "%s", line)
	l.lines = append(l.lines, line)
	if n := len(l.lines) - LogLines; n > 0 {
		l.lines = append(l.lines[:0:0], l.lines[n:]...)
	}
}

// Printf formats and prints a line
func (l *Log) Printf(format string, args ...any) {
	l.Print(fmt.Sprintf(format, args...))
}

// Lines returns a copy of the scrollback, oldest first
func (l *Log) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Clear empties the scrollback
func (l *Log) Clear() {
	l.lines = nil
}
