package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midictl/config"
	"midictl/control"
	"midictl/debug"
	"midictl/midi"
	"midictl/repeat"
	"midictl/sched"
	"midictl/session"
	"midictl/theme"
	"midictl/tui"
	"midictl/wakelock"
)

const version = "2.0.0"

var flags struct {
	config  string
	connect string
	debug   bool
}

var rootCmd = &cobra.Command{
	Use:          "midictl",
	Short:        "Send notes, controllers and note repeats to MIDI devices",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "",
		"config file (default ~/.config/midictl/config.json)")
	rootCmd.PersistentFlags().StringVarP(&flags.connect, "connect", "d", "",
		"device to connect to at startup")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false,
		"write a debug log to ~/.config/midictl/debug.log")

	rootCmd.AddCommand(listCmd, repeatCmd, monitorCmd, jsonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.config != "" {
		cfg, err = config.LoadFile(flags.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if flags.connect != "" {
		cfg.Connect = flags.connect
	}
	if flags.debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		if err := debug.Enable(""); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
	}
	return cfg, nil
}

// app is everything owned by the event loop
type app struct {
	cfg     *config.Config
	loop    *sched.Loop
	session *session.Session
	panel   *control.Panel
	devices *midi.DeviceManager
}

// newApp starts the loop and builds the session and controls. sink
// receives every status line.
func newApp(ctx context.Context, cfg *config.Config, sink session.Sink) *app {
	loop := sched.NewLoop()
	go loop.Run(ctx)

	sess := session.New(loop, midi.Ports{}, sink, session.WithVersion("midictl", version))

	rc := repeat.DefaultConfig()
	rc.Apply(cfg.Repeat)
	seq := repeat.New(loop, sess,
		repeat.WithGuard(wakelock.New()),
		repeat.WithPrinter(sink),
		repeat.WithConfig(rc),
	)

	input := control.NewInput(sess, midi.Ports{}, loop, wakelock.New())
	panel := control.NewPanel(sess, seq, input)
	loop.Do(func() {
		panel.Bind(sess.Show, sess.Reset)
		panel.Watch(sess.State)
	})

	return &app{
		cfg:     cfg,
		loop:    loop,
		session: sess,
		panel:   panel,
		devices: midi.NewDeviceManager(time.Duration(cfg.PollInterval)),
	}
}

// start scans once, auto-connects and begins hot-plug polling. The
// initial events are consumed here so they are not replayed later.
func (a *app) start(ctx context.Context) {
	a.devices.Scan(ctx)
	for drained := false; !drained; {
		select {
		case <-a.devices.Events():
		default:
			drained = true
		}
	}

	a.loop.Do(func() {
		a.session.PrintStatus(a.devices.Devices())
		if a.cfg.Connect != "" {
			if err := a.session.AutoConnect(a.devices.Devices(), a.cfg.Connect); err != nil {
				debug.Log("main", "auto-connect: %v", err)
			}
		}
	})
	go a.devices.Run(ctx)
}

// forwardEvents feeds hot-plug events to the session when no TUI does
func (a *app) forwardEvents() {
	go func() {
		for ev := range a.devices.Events() {
			a.loop.Post(func() { a.session.HandleState(ev) })
		}
	}()
}

func (a *app) shutdown() {
	a.loop.Do(func() {
		a.panel.Repeat.Stop()
		if a.panel.Input != nil {
			a.panel.Input.Disconnect()
		}
		a.session.Disconnect()
	})
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debug.Disable()

	var palette *theme.Palette
	if cfg.Palette != "" {
		if palette, err = theme.LoadGPL(cfg.Palette); err != nil {
			fmt.Fprintf(os.Stderr, "palette: %v\n", err)
		}
	}
	th := theme.New(palette)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log := session.NewLog()
	a := newApp(ctx, cfg, log)
	a.start(ctx)

	m := tui.NewModel(tui.Deps{
		Loop:    a.loop,
		Session: a.session,
		Log:     log,
		Panel:   a.panel,
		Devices: a.devices,
		Theme:   th,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	a.shutdown()
	return nil
}
