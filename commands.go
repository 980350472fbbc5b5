package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"midictl/debug"
	"midictl/midi"
	"midictl/repeat"
	"midictl/session"
)

// stdoutSink prints status lines for the headless commands
type stdoutSink struct{}

func (stdoutSink) Print(line string) {
	fmt.Println(line)
	debug.Log("log", "%s", line)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List MIDI devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := midi.ListDevices(3 * time.Second)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No MIDI devices found")
		}
		for _, d := range devices {
			fmt.Printf("%-40s %s\n", d.Name, d.ID())
		}
		return nil
	},
}

var repeatFlags struct {
	note, count, velocity int
	length, beat, pause   int
	channel               int
	danger                bool
}

var repeatCmd = &cobra.Command{
	Use:   "repeat",
	Short: "Play a note repeat on --connect until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runRepeat,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print messages received from --connect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return headless(cmd, func(a *app) error { return nil }, true)
	},
}

var jsonCmd = &cobra.Command{
	Use:   "json TEXT",
	Short: "Send TEXT as a JSON SystemExclusive message to --connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return headless(cmd, func(a *app) error {
			var err error
			a.loop.Do(func() { _, err = a.session.SendJSON(args[0]) })
			return err
		}, false)
	},
}

func init() {
	f := repeatCmd.Flags()
	f.IntVar(&repeatFlags.note, "note", 60, "first note (0-127)")
	f.IntVar(&repeatFlags.count, "count", 1, "number of notes")
	f.IntVar(&repeatFlags.velocity, "velocity", 10, "velocity (1-127)")
	f.IntVar(&repeatFlags.length, "length", repeat.DefaultSlider, "note length slider (0-127)")
	f.IntVar(&repeatFlags.beat, "beat", repeat.DefaultSlider, "beat slider (0-127, 127 plays all notes at once)")
	f.IntVar(&repeatFlags.pause, "pause", repeat.DefaultSlider, "pause slider (0-127)")
	f.IntVar(&repeatFlags.channel, "channel", 1, "MIDI channel (1-16)")
	f.BoolVar(&repeatFlags.danger, "danger", false, "allow beat settings above the safe limit")
}

func runRepeat(cmd *cobra.Command, args []string) error {
	return headless(cmd, func(a *app) error {
		seq := a.panel.Repeat
		changed := cmd.Flags().Changed
		set := func(name string, f repeat.Field, v int) {
			if changed(name) {
				_ = seq.Configure(f, v)
			}
		}

		a.loop.Do(func() {
			if repeatFlags.danger {
				_ = seq.Configure(repeat.FieldDanger, 1)
			}
			set("note", repeat.FieldStartNote, repeatFlags.note)
			set("count", repeat.FieldCount, repeatFlags.count)
			set("velocity", repeat.FieldVelocity, repeatFlags.velocity)
			set("length", repeat.FieldLength, repeatFlags.length)
			set("pause", repeat.FieldPause, repeatFlags.pause)
			set("beat", repeat.FieldBeat, repeatFlags.beat)
			set("channel", repeat.FieldChannel, repeatFlags.channel-1)

			c := seq.Config()
			fmt.Printf("Repeating %s-%s, length %dms, beat %dms, pause %dms\n",
				midi.NoteName(uint8(c.StartNote)), midi.NoteName(uint8(c.End())),
				c.LengthMsec(), c.BeatMsec(), c.PauseMsec())
			seq.Start()
		})
		return nil
	}, true)
}

// headless connects to --connect, runs fn on it and, if wait is set,
// keeps running until interrupted.
func headless(cmd *cobra.Command, fn func(*app) error, wait bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debug.Disable()
	if cfg.Connect == "" {
		return errors.New("no device given, use --connect or set \"connect\" in the config")
	}

	// the loop outlives the signal so shutdown can still silence notes
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg, stdoutSink{})
	a.start(ctx)
	a.forwardEvents()

	var connected bool
	a.loop.Do(func() { connected = a.session.Connected() })
	if !connected {
		return fmt.Errorf("%w: %q", session.ErrNoDevice, cfg.Connect)
	}

	if err := fn(a); err != nil {
		a.shutdown()
		return err
	}
	if wait {
		<-interrupted.Done()
	}
	a.shutdown()
	return nil
}
