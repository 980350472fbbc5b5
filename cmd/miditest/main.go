package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midictl/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "pairs":
		listPairs()
	case "poll":
		pollDevices()
	case "loopback":
		if len(os.Args) < 3 {
			usage()
			return
		}
		loopback(os.Args[2])
	case "notes":
		if len(os.Args) < 3 {
			usage()
			return
		}
		testNotes(os.Args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list            - List all MIDI ports")
	fmt.Println("  pairs           - List ports paired into devices")
	fmt.Println("  poll            - Print hot-plug events")
	fmt.Println("  loopback DEVICE - Send a JSON SysEx to DEVICE and wait for it to come back")
	fmt.Println("  notes DEVICE    - Play a short scale on DEVICE")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for _, p := range r.ins {
			fmt.Printf("  %d: %s\n", p.Number(), p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for _, p := range r.outs {
			fmt.Printf("  %d: %s\n", p.Number(), p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI driver is hung.")
		fmt.Println("On macOS: sudo killall coreaudiod midiserver")
	}
}

func listPairs() {
	devices, err := midi.ListDevices(3 * time.Second)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, d := range devices {
		fmt.Printf("  %-40s %-8s in=%v out=%v\n", d.Name, d.ID(), d.HasInput(), d.HasOutput())
	}
}

func pollDevices() {
	fmt.Println("Polling for device changes every second...")
	fmt.Println("Plug and unplug devices to test. Ctrl+C to exit.")

	dm := midi.NewDeviceManager(time.Second)
	go dm.Run(context.Background())

	for ev := range dm.Events() {
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), ev)
	}
}

func find(name string) (midi.Device, bool) {
	devices, err := midi.ListDevices(3 * time.Second)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return midi.Device{}, false
	}
	dev, ok := midi.FindDevice(devices, name)
	if !ok {
		fmt.Printf("No device matching %q\n", name)
	}
	return dev, ok
}

// loopback needs a device that echoes its input, such as a virtual
// loopback port.
func loopback(name string) {
	dev, ok := find(name)
	if !ok {
		return
	}
	if !dev.HasInput() || !dev.HasOutput() {
		fmt.Println("Loopback needs both an input and an output port")
		return
	}

	got := make(chan midi.Event, 16)
	conn, err := midi.Ports{}.Open(dev, func(msg gomidi.Message) {
		got <- midi.Decode(msg)
	})
	if err != nil {
		fmt.Printf("Error opening device: %v\n", err)
		return
	}
	defer conn.Close()

	payload, err := midi.ParseJSON(`{"test":"loopback","time":"` + time.Now().Format(time.RFC3339) + `"}`)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Sending %d byte JSON SysEx to %s\n", len(payload)+3, dev.Name)
	if err := conn.Send(midi.JSONMessage(payload)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-got:
			if ev.Kind != midi.KindSystemExclusive {
				fmt.Printf("  ignoring %s\n", ev.Kind)
				continue
			}
			back, ok := midi.DecodeJSON(ev.SysEx)
			if !ok {
				fmt.Println("  received SysEx that is not JSON")
				continue
			}
			fmt.Printf("  received keys %s\n", strings.Join(midi.JSONKeys(back), ","))
			return
		case <-timeout:
			fmt.Println("No SysEx came back within 2 seconds")
			return
		}
	}
}

func testNotes(name string) {
	dev, ok := find(name)
	if !ok {
		return
	}
	conn, err := midi.Ports{}.Open(dev, nil)
	if err != nil {
		fmt.Printf("Error opening device: %v\n", err)
		return
	}
	defer conn.Close()

	fmt.Printf("Playing C major on %s...\n", dev.Name)
	for _, n := range []uint8{60, 62, 64, 65, 67, 69, 71, 72} {
		fmt.Printf("  %s\n", midi.NoteName(n))
		_ = conn.Send(gomidi.NoteOn(0, n, 80))
		time.Sleep(150 * time.Millisecond)
		_ = conn.Send(gomidi.NoteOffVelocity(0, n, 64))
	}
	fmt.Println("Done!")
}
