package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"midictl/theme"
)

func TestRenderSliderWidth(t *testing.T) {
	th := theme.New(nil)
	for _, v := range []int{0, 30, 63, 127, 200, -5} {
		if w := lipgloss.Width(RenderSlider(th, v, 0, 127, 16)); w != 16 {
			t.Errorf("value %d: width %d", v, w)
		}
	}
	if RenderSlider(th, 1, 0, 1, 0) != "" {
		t.Fatal("zero width must render nothing")
	}
	full := RenderSlider(th, 127, 0, 127, 8)
	if strings.Count(full, string(th.Symbols.Filled)) != 8 {
		t.Fatalf("full=%q", full)
	}
}

func TestRenderFields(t *testing.T) {
	th := theme.New(nil)
	out := RenderFields(th, []Field{
		{Label: "Note", Value: "C4 (60)"},
		{Label: "Velocity", Value: "10", Slider: true, Pos: 10, Min: 1, Max: 127},
	}, 1, true)

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
	if !strings.Contains(lines[0], "C4 (60)") || !strings.Contains(lines[1], string(th.Symbols.Cursor)) {
		t.Fatalf("out=%q", out)
	}
}

func TestRenderKeyboard(t *testing.T) {
	th := theme.New(nil)
	black := func(n int) bool { return n%12 == 1 }
	out := RenderKeyboard(th, 60, 63, map[int]bool{62: true}, black)
	if lipgloss.Width(out) != 4 || strings.Count(out, string(th.Symbols.Sounding)) != 1 {
		t.Fatalf("out=%q", out)
	}
}

func TestRenderLogKeepsNewest(t *testing.T) {
	th := theme.New(nil)
	out := RenderLog(th, []string{"a", "b", "c"}, 2)
	if strings.Contains(out, "a") || !strings.Contains(out, "c") {
		t.Fatalf("out=%q", out)
	}
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{
		{Title: "Repeat", Keys: []KeyBinding{{"space", "start/stop"}, {"x", "reset"}}},
	})
	if out != "Repeat  space:start/stop  x:reset" {
		t.Fatalf("out=%q", out)
	}
}
