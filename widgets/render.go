package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"midictl/theme"
)

// RenderSlider renders value within [lo,hi] as a bar of width cells,
// colored along the palette.
func RenderSlider(th *theme.Theme, value, lo, hi, width int) string {
	if width <= 0 {
		return ""
	}
	norm := 0.0
	if hi > lo {
		norm = float64(value-lo) / float64(hi-lo)
	}
	norm = max(0, min(1, norm))
	filled := int(norm*float64(width) + 0.5)

	bar := lipgloss.NewStyle().Foreground(th.Color(norm)).
		Render(strings.Repeat(string(th.Symbols.Filled), filled))
	return bar + th.Dim().Render(strings.Repeat(string(th.Symbols.Empty), width-filled))
}

// Field is one labelled row of a section
type Field struct {
	Label string
	Value string
	// Slider draws a bar when Max > Min
	Slider   bool
	Pos      int
	Min, Max int
}

// RenderFields renders rows as "› Label  value  bar", marking the selected row
func RenderFields(th *theme.Theme, fields []Field, selected int, active bool) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Label))
	}

	var lines []string
	for i, f := range fields {
		cursor := " "
		label := fmt.Sprintf("%-*s", width, f.Label)
		if active && i == selected {
			cursor = th.Selected().Render(string(th.Symbols.Cursor))
			label = th.Selected().Render(label)
		}
		line := fmt.Sprintf("%s %s  %-22s", cursor, label, f.Value)
		if f.Slider && f.Max > f.Min {
			line += " " + RenderSlider(th, f.Pos, f.Min, f.Max, 24)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderKeyboard renders notes [lo,hi] one cell per key; sounding notes
// are highlighted.
func RenderKeyboard(th *theme.Theme, lo, hi int, sounding map[int]bool, isBlack func(int) bool) string {
	var out strings.Builder
	on := lipgloss.NewStyle().Foreground(th.Success())
	for n := lo; n <= hi; n++ {
		switch {
		case sounding[n]:
			out.WriteString(on.Render(string(th.Symbols.Sounding)))
		case isBlack(n):
			out.WriteString(th.Dim().Render(string(th.Symbols.Black)))
		default:
			out.WriteString(th.Dim().Render(string(th.Symbols.White)))
		}
	}
	return out.String()
}

// RenderLog renders the newest height lines
func RenderLog(th *theme.Theme, lines []string, height int) string {
	if height <= 0 {
		return ""
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return th.Dim().Render(strings.Join(lines, "\n"))
}

// RenderKeyHelp formats key bindings in one line per section
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		var keys []string
		for _, k := range sec.Keys {
			keys = append(keys, k.Key+":"+k.Desc)
		}
		line := strings.Join(keys, "  ")
		if sec.Title != "" {
			line = sec.Title + "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
