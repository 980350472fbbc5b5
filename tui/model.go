package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"midictl/control"
	"midictl/midi"
	"midictl/sched"
	"midictl/session"
	"midictl/theme"
	"midictl/widgets"
)

// Deps are the loop-owned objects the model drives. The loop must be
// running before NewModel is called.
type Deps struct {
	Loop    *sched.Loop
	Session *session.Session
	Log     *session.Log
	Panel   *control.Panel
	Devices *midi.DeviceManager
	Theme   *theme.Theme
}

type sectionID int

const (
	secDevice sectionID = iota
	secNote
	secController
	secProgram
	secSystem
	secInput
	secRepeat
	secLog
)

var sectionTitles = map[sectionID]string{
	secDevice:     "Device",
	secNote:       "Note",
	secController: "Controller",
	secProgram:    "Program",
	secSystem:     "System",
	secInput:      "Input",
	secRepeat:     "Repeat",
	secLog:        "Log",
}

const (
	refreshRate = 100 * time.Millisecond
	logHeight   = 12
)

// state lives on the loop goroutine
type state struct {
	sounding  map[int]bool
	inputPick int
}

type Model struct {
	d  Deps
	st *state

	visible []sectionID
	focus   sectionID
	cursor  map[sectionID]int
	fields  map[sectionID]int

	editing bool
	json    textinput.Model

	body     string
	quitting bool
}

type tickMsg time.Time

type DeviceEventMsg midi.StateEvent

func NewModel(d Deps) Model {
	ti := textinput.New()
	ti.Prompt = "JSON> "
	ti.Placeholder = control.DefaultJSON
	ti.CharLimit = 4096
	ti.Width = 60

	st := &state{sounding: make(map[int]bool)}
	d.Loop.Do(func() {
		d.Session.Message.Subscribe(func(ev midi.Event) {
			switch {
			case ev.Kind == midi.KindNote && ev.Data2 > 0:
				st.sounding[int(ev.Data1)] = true
			case ev.Kind == midi.KindNote, ev.Kind == midi.KindNoteOff:
				delete(st.sounding, int(ev.Data1))
			}
		})
		d.Session.Reset.Subscribe(func(struct{}) { clear(st.sounding) })
	})

	m := Model{
		d:      d,
		st:     st,
		focus:  secDevice,
		cursor: make(map[sectionID]int),
		fields: make(map[sectionID]int),
		json:   ti,
	}
	m.refresh()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ListenForDevices delivers the next port change
func ListenForDevices(dm *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-dm.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), ListenForDevices(m.d.Devices))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			cmd = m.updateEditor(msg)
			break
		}
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			m.d.Loop.Do(func() {
				m.d.Panel.Repeat.Stop()
				m.d.Session.Disconnect()
			})
			return m, tea.Quit
		}
		cmd = m.handleKey(msg.String())

	case tickMsg:
		cmd = tick()

	case DeviceEventMsg:
		ev := midi.StateEvent(msg)
		m.d.Loop.Do(func() { m.d.Session.HandleState(ev) })
		cmd = ListenForDevices(m.d.Devices)
	}

	m.refresh()
	return m, cmd
}

func (m *Model) updateEditor(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.json.Blur()
		return nil
	case "enter":
		text := m.json.Value()
		m.editing = false
		m.json.Blur()
		m.d.Loop.Do(func() {
			m.d.Panel.System.JSON = text
			_ = m.d.Panel.System.SendJSON()
		})
		return nil
	}
	var cmd tea.Cmd
	m.json, cmd = m.json.Update(msg)
	return cmd
}

func (m *Model) handleKey(key string) tea.Cmd {
	switch key {
	case "tab":
		m.moveFocus(1)
		return nil
	case "shift+tab":
		m.moveFocus(-1)
		return nil
	case "up", "k":
		m.cursor[m.focus] = max(0, m.cursor[m.focus]-1)
		return nil
	case "down", "j":
		m.cursor[m.focus] = min(max(0, m.fields[m.focus]-1), m.cursor[m.focus]+1)
		return nil
	}

	if m.focus == secSystem && key == "e" {
		var text string
		m.d.Loop.Do(func() { text = m.d.Panel.System.JSON })
		m.json.SetValue(text)
		m.editing = true
		return m.json.Focus()
	}

	step := map[string]int{"left": -1, "h": -1, "right": 1, "l": 1, "shift+left": -10, "H": -10, "shift+right": 10, "L": 10}
	if d, ok := step[key]; ok {
		m.d.Loop.Do(func() { m.step(m.focus, m.cursor[m.focus], d) })
		return nil
	}

	m.d.Loop.Do(func() { m.action(m.focus, m.cursor[m.focus], key) })
	return nil
}

func (m *Model) moveFocus(d int) {
	if len(m.visible) == 0 {
		return
	}
	i := 0
	for j, s := range m.visible {
		if s == m.focus {
			i = j
		}
	}
	i = (i + d + len(m.visible)) % len(m.visible)
	m.focus = m.visible[i]
}

// refresh renders the body on the loop so View never touches loop state
func (m *Model) refresh() {
	m.d.Loop.Do(func() {
		m.visible = []sectionID{secDevice}
		if m.d.Panel.Visible() {
			m.visible = append(m.visible, secNote, secController, secProgram, secSystem)
			if m.d.Panel.Input != nil {
				m.visible = append(m.visible, secInput)
			}
			m.visible = append(m.visible, secRepeat)
		}
		m.visible = append(m.visible, secLog)

		found := false
		for _, s := range m.visible {
			found = found || s == m.focus
		}
		if !found {
			m.focus = secDevice
		}

		m.body = m.render()
	})
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var out strings.Builder
	out.WriteString(m.body)
	if m.editing {
		out.WriteString("\n\n")
		out.WriteString(m.json.View())
	}
	out.WriteString("\n\n")
	out.WriteString(m.d.Theme.Dim().Render("tab:section  ↑↓:field  ←→:adjust  shift:×10  q:quit"))
	return out.String()
}

// Everything below runs on the loop goroutine.

func (m *Model) render() string {
	th := m.d.Theme
	var out strings.Builder

	status := "not connected"
	if dev, ok := m.d.Session.Device(); ok {
		status = fmt.Sprintf("%s (%s)", dev.Name, dev.ID())
	}
	out.WriteString(th.Header().Render("midictl") + "  " + status + "\n")

	for _, sec := range m.visible {
		title := sectionTitles[sec]
		active := sec == m.focus
		if active {
			title = th.Selected().Render("[" + title + "]")
		} else {
			title = th.Header().Render(" " + title + " ")
		}
		out.WriteString("\n" + title + "\n")

		fields := m.fieldsFor(sec)
		m.fields[sec] = len(fields)
		if m.cursor[sec] >= len(fields) {
			m.cursor[sec] = max(0, len(fields)-1)
		}
		if len(fields) > 0 {
			out.WriteString(widgets.RenderFields(th, fields, m.cursor[sec], active) + "\n")
		}
		if extra := m.extra(sec); extra != "" {
			out.WriteString(extra + "\n")
		}
		if active {
			out.WriteString(th.Dim().Render(widgets.RenderKeyHelp([]widgets.KeySection{{Keys: sectionKeys[sec]}})) + "\n")
		}
	}
	return out.String()
}

var sectionKeys = map[sectionID][]widgets.KeyBinding{
	secDevice:     {{Key: "enter", Desc: "connect"}, {Key: "d", Desc: "disconnect"}, {Key: "s", Desc: "status"}},
	secNote:       {{Key: "space", Desc: "press/release"}},
	secController: {{Key: "enter", Desc: "send"}, {Key: "n", Desc: "notes off"}, {Key: "c", Desc: "controllers off"}},
	secProgram:    {{Key: "enter", Desc: "send"}},
	secSystem:     {{Key: "e", Desc: "edit JSON"}, {Key: "enter", Desc: "send JSON"}, {Key: "r", Desc: "system reset"}},
	secInput:      {{Key: "←→", Desc: "pick source"}, {Key: "enter", Desc: "listen"}, {Key: "d", Desc: "stop"}},
	secRepeat:     {{Key: "space", Desc: "start/stop"}, {Key: "x", Desc: "reset"}},
	secLog:        {{Key: "s", Desc: "status"}, {Key: "c", Desc: "clear"}},
}

func paramFields(params []*control.Param) []widgets.Field {
	out := make([]widgets.Field, len(params))
	for i, p := range params {
		out[i] = widgets.Field{Label: p.Name, Value: p.String(), Slider: true, Pos: p.Value, Min: p.Min, Max: p.Max}
	}
	return out
}

func (m *Model) fieldsFor(sec sectionID) []widgets.Field {
	p := m.d.Panel
	switch sec {
	case secDevice:
		current, connected := m.d.Session.Device()
		var out []widgets.Field
		for _, dev := range m.d.Devices.Devices() {
			value := dev.ID()
			if connected && dev.Name == current.Name {
				value += "  connected"
			}
			out = append(out, widgets.Field{Label: dev.Name, Value: value})
		}
		return out
	case secNote:
		fields := paramFields(p.Note.Params())
		if p.Note.Held() {
			fields[1].Value += "  held"
		}
		return fields
	case secController:
		return paramFields(p.Controller.Params())
	case secProgram:
		return paramFields(p.Program.Params())
	case secSystem:
		return []widgets.Field{{Label: "JSON", Value: p.System.JSON}}
	case secInput:
		return m.inputFields()
	case secRepeat:
		return repeatFields(p.Repeat.Config())
	}
	return nil
}

func (m *Model) extra(sec sectionID) string {
	th := m.d.Theme
	switch sec {
	case secRepeat:
		seq := m.d.Panel.Repeat
		line := string(th.Symbols.Stopped) + " stopped"
		if seq.Running() {
			line = string(th.Symbols.Playing) + " playing"
		}
		if n := seq.Notice(); n != "" {
			line += "  " + th.Alert().Render(n)
		}
		return "  " + line
	case secLog:
		keys := widgets.RenderKeyboard(th, 36, 96, m.st.sounding, func(n int) bool { return midi.IsBlack(uint8(n)) })
		return "  " + keys + "\n" + widgets.RenderLog(th, m.d.Log.Lines(), logHeight)
	}
	return ""
}

func (m *Model) sources() []midi.Device {
	current, _ := m.d.Session.Device()
	return control.Sources(m.d.Devices.Devices(), current.Name)
}

func (m *Model) inputFields() []widgets.Field {
	in := m.d.Panel.Input
	source := "-"
	if cands := m.sources(); len(cands) > 0 {
		m.st.inputPick = min(m.st.inputPick, len(cands)-1)
		source = cands[m.st.inputPick].Name
	}
	if dev, ok := in.Source(); ok {
		source = dev.Name + "  listening"
	}
	awake := "off"
	if in.KeepAwake() {
		awake = "on"
	}
	return []widgets.Field{
		{Label: "Source", Value: source},
		{Label: "Transpose", Value: in.TransposeLabel()},
		{Label: "Channel", Value: in.Channel.String()},
		{Label: "Keep awake", Value: awake},
	}
}

func (m *Model) step(sec sectionID, idx, d int) {
	p := m.d.Panel
	switch sec {
	case secNote:
		p.Note.Params()[idx].Step(d)
	case secController:
		p.Controller.Params()[idx].Step(d)
		if idx == 2 {
			_ = p.Controller.Send()
		}
	case secProgram:
		p.Program.Params()[idx].Step(d)
	case secInput:
		m.stepInput(idx, d)
	case secRepeat:
		stepRepeat(p.Repeat, idx, d)
	}
}

func (m *Model) stepInput(idx, d int) {
	in := m.d.Panel.Input
	switch idx {
	case 0:
		if n := len(m.sources()); n > 0 {
			m.st.inputPick = ((m.st.inputPick+d)%n + n) % n
		}
	case 1:
		in.StepTranspose(d)
	case 2:
		in.Channel.Step(d)
	case 3:
		if err := in.SetKeepAwake(!in.KeepAwake()); err != nil {
			m.d.Log.Printf("Keep awake: %v", err)
		}
	}
}

func (m *Model) action(sec sectionID, idx int, key string) {
	p := m.d.Panel
	switch sec {
	case secDevice:
		devices := m.d.Devices.Devices()
		switch key {
		case "enter":
			if idx < len(devices) {
				_ = m.d.Session.Connect(devices[idx])
			}
		case "d":
			m.d.Session.Disconnect()
		case "s":
			m.d.Session.PrintStatus(devices)
		}
	case secNote:
		if key == " " {
			if p.Note.Held() {
				_ = p.Note.Release()
			} else {
				_ = p.Note.Press()
			}
		}
	case secController:
		switch key {
		case "enter":
			_ = p.Controller.Send()
		case "n":
			_ = p.Controller.NotesOff()
		case "c":
			_ = p.Controller.ControllersOff()
		}
	case secProgram:
		if key == "enter" {
			_ = p.Program.Send()
		}
	case secSystem:
		switch key {
		case "enter":
			_ = p.System.SendJSON()
		case "r":
			_ = p.System.SystemReset()
		}
	case secInput:
		switch key {
		case "enter":
			if cands := m.sources(); m.st.inputPick < len(cands) {
				if err := p.Input.Connect(cands[m.st.inputPick]); err != nil {
					m.d.Log.Printf("Input: %v", err)
				}
			}
		case "d":
			p.Input.Disconnect()
		}
	case secRepeat:
		switch key {
		case " ":
			if p.Repeat.Running() {
				p.Repeat.Stop()
			} else {
				p.Repeat.Start()
			}
		case "x":
			p.Repeat.Reset()
		}
	case secLog:
		switch key {
		case "s":
			m.d.Session.PrintStatus(m.d.Devices.Devices())
		case "c":
			m.d.Log.Clear()
		}
	}
}
