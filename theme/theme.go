package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// sliders
	Filled rune // █
	Empty  rune // ░

	// playback
	Playing rune // ▶
	Stopped rune // ■

	// keyboard strip
	Sounding rune // ●
	White    rune // ·
	Black    rune // ▪

	Cursor rune // ›
}

func New(palette *Palette) *Theme {
	if palette == nil || len(palette.Colors) == 0 {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Filled:   '█',
			Empty:    '░',
			Playing:  '▶',
			Stopped:  '■',
			Sounding: '●',
			White:    '·',
			Black:    '▪',
			Cursor:   '›',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.25
	RoleFG      = 0.5
	RoleAccent  = 0.6
	RoleCursor  = 0.75
	RoleWarning = 0.85
	RoleSuccess = 1.0
)

func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Header styles section titles
func (t *Theme) Header() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent()).Bold(true)
}

// Dim styles help and secondary text
func (t *Theme) Dim() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted())
}

// Selected styles the field under the cursor
func (t *Theme) Selected() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Cursor()).Bold(true)
}

// Alert styles notices and errors
func (t *Theme) Alert() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning())
}
