// cmd/songbird-sim/main.go
//
// Host simulator for the Songbird appliance. The control core, meters and
// services are the exact packages the firmware runs; only the edges are
// simulated: decoded audio files or a test tone stand in for the USB
// transport, memory-backed pins stand in for GPIO, and a terminal panel
// stands in for the OLED and LEDs.
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

	"songbird-go/bus"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/meter"
	"songbird-go/platform"
	"songbird-go/services/audio"
	"songbird-go/services/bridge"
	"songbird-go/services/control"
	"songbird-go/services/heartbeat"
	"songbird-go/sim"
	"songbird-go/sim/scenario"
	"songbird-go/sim/source"
	"songbird-go/sim/tui"
	"songbird-go/types"
)

var (
	flagSource  string
	flagToneHz  float64
	flagToneAmp float64
	flagSpeaker bool
	flagCapture string
	flagListen  string
	flagConnect string
)

var rootCmd = &cobra.Command{
	Use:   "songbird-sim",
	Short: "Songbird appliance simulator",
	Long: `Runs the Songbird control core on a workstation against a simulated
USB audio loopback. A decoded file (wav/mp3/ogg) or a generated tone feeds
the same metering, mode and snapshot pipeline the firmware ticks on
hardware.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulator with an interactive front panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSim(cmd.Context(), nil)
	},
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>",
	Short: "Play a scripted scenario headless and print transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.LoadFile(args[0])
		if err != nil {
			return err
		}
		return runSim(cmd.Context(), sc)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagSource, "source", "", "audio file for the loopback input (wav, mp3, ogg); empty plays a tone")
	pf.Float64Var(&flagToneHz, "tone-hz", 440, "tone frequency when no source file is given")
	pf.Float64Var(&flagToneAmp, "tone-amp", 0.5, "tone amplitude in [0,1]")
	pf.BoolVar(&flagSpeaker, "speaker", false, "play the routed output on the host audio device")
	pf.StringVar(&flagCapture, "capture", "", "write the routed output to a WAV file")
	pf.StringVar(&flagListen, "listen", "", "serve the bus bridge to one websocket peer on this address")
	pf.StringVar(&flagConnect, "connect", "", "dial the bus bridge out to this websocket URL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenarioCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------
// Wiring
// -----------------------------------------------------------------------------

// runSim stands the appliance up around a simulated audio port, then either
// hands the terminal to the front panel or plays the scripted scenario.
func runSim(parent context.Context, sc *scenario.Scenario) error {
	engine, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b := bus.NewBus(16)
	reg := hal.NewRegistry(platform.NewMemPins())
	var levelIn, levelOut meter.Cell

	go audio.Run(ctx, b.NewConnection("audio"), reg, engine, &levelIn, &levelOut)
	go control.Run(ctx, b.NewConnection("control"), reg, hal.SystemClock{}, &levelIn, &levelOut)
	go bridge.Run(ctx, b.NewConnection("bridge"))
	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	publishConfig(b.NewConnection("sim-config"))

	var runErr error
	if sc == nil {
		runErr = tui.Run(ctx, b.NewConnection("panel"), engine, types.DefaultAudio().Amp.VolumeSteps)
	} else {
		runErr = playScenario(ctx, b.NewConnection("scenario"), engine, sc)
	}

	// Stop the block clock and finalise the capture before tearing the
	// services down, so the close error is reported here and not lost in a
	// service goroutine.
	if cerr := engine.Close(); runErr == nil {
		runErr = cerr
	}
	cancel()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr == nil && flagCapture != "" {
		fmt.Printf("capture written to %s\n", flagCapture)
	}
	return runErr
}

// buildEngine assembles the simulated audio port from the source flags.
func buildEngine() (*sim.Engine, error) {
	var (
		src    source.Source
		reopen func() (source.Source, error)
		err    error
	)
	if flagSource != "" {
		src, err = source.Open(flagSource)
		if err != nil {
			return nil, err
		}
		// Files loop: a finite clip keeps the meters moving the way a
		// streaming host would.
		reopen = func() (source.Source, error) { return source.Open(flagSource) }
	} else {
		src = source.NewTone(flagToneHz, 48000, flagToneAmp)
	}

	var capture *sim.Capture
	if flagCapture != "" {
		capture, err = sim.NewCapture(flagCapture, src.SampleRate())
		if err != nil {
			src.Close()
			return nil, err
		}
	}

	engine, err := sim.New(sim.Config{
		Source:  src,
		Reopen:  reopen,
		Speaker: flagSpeaker,
		Capture: capture,
	})
	if err != nil {
		src.Close()
		return nil, err
	}
	return engine, nil
}

// publishConfig seeds the retained config sections the services wait on.
// The simulator plays the config service's role so scripts can tweak the
// published values later through the same topics.
func publishConfig(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(bus.Topic{"config", "control"}, types.DefaultControl(), true))
	conn.Publish(conn.NewMessage(bus.Topic{"config", "audio"}, types.DefaultAudio(), true))
	conn.Publish(conn.NewMessage(bus.Topic{"config", "heartbeat"}, types.DefaultHeartbeat(), true))

	switch {
	case flagListen != "":
		conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, bridge.Config{
			Transport: bridge.TransportConfig{Type: "ws", WS: &bridge.WSConfig{ListenAddr: flagListen}},
		}, true))
	case flagConnect != "":
		conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, bridge.Config{
			Transport: bridge.TransportConfig{Type: "ws", WS: &bridge.WSConfig{URL: flagConnect}},
		}, true))
	}
}

// -----------------------------------------------------------------------------
// Scenario playback
// -----------------------------------------------------------------------------

func playScenario(ctx context.Context, conn *bus.Connection, engine *sim.Engine, sc *scenario.Scenario) error {
	go printTransitions(ctx, conn)

	name := sc.Name
	if name == "" {
		name = "scenario"
	}
	fmt.Printf("playing %s (%d events)\n", name, len(sc.Events))

	return sc.Run(ctx, func(ev scenario.Event) {
		switch {
		case ev.Press != "":
			req := conn.NewMessage(bus.Topic{"control", "ctl", "press"}, types.PressRequest{Button: ev.Press}, false)
			if err := requestOK(ctx, conn, req); err != nil {
				fmt.Printf("press %s: %v\n", ev.Press, err)
				return
			}
			fmt.Printf("press %s\n", ev.Press)
		case ev.USB != "":
			engine.SetPresent(ev.USB == "present")
			fmt.Printf("usb %s\n", ev.USB)
		case ev.Volume != nil:
			req := conn.NewMessage(bus.Topic{"audio", "ctl", "volume"}, map[string]any{"steps": *ev.Volume}, false)
			if err := requestOK(ctx, conn, req); err != nil {
				fmt.Printf("volume %d: %v\n", *ev.Volume, err)
				return
			}
			fmt.Printf("volume %d\n", *ev.Volume)
		}
	})
}

func requestOK(ctx context.Context, conn *bus.Connection, req *bus.Message) error {
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := conn.RequestWait(rctx, req)
	if err != nil {
		return err
	}
	var r types.ErrorReply
	if derr := util.DecodeJSON(reply.Payload, &r); derr == nil && !r.OK && r.Error != "" {
		return fmt.Errorf("%s", r.Error)
	}
	return nil
}

// printTransitions tails the retained appliance state so a headless run
// shows what the panel would.
func printTransitions(ctx context.Context, conn *bus.Connection) {
	modeSub := conn.Subscribe(bus.Topic{"control", "mode"})
	defer conn.Unsubscribe(modeSub)
	routeSub := conn.Subscribe(bus.Topic{"control", "route"})
	defer conn.Unsubscribe(routeSub)
	usbSub := conn.Subscribe(bus.Topic{"audio", "usb"})
	defer conn.Unsubscribe(usbSub)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-modeSub.Channel():
			var ms types.ModeState
			if util.DecodeJSON(m.Payload, &ms) == nil {
				fmt.Printf("  mode -> %s\n", ms.Name)
			}
		case m := <-routeSub.Channel():
			var rs types.RouteState
			if util.DecodeJSON(m.Payload, &rs) == nil {
				fmt.Printf("  route -> enabled=%t muted=%t\n", rs.Enabled, rs.Muted)
			}
		case m := <-usbSub.Channel():
			var us types.USBState
			if util.DecodeJSON(m.Payload, &us) == nil {
				fmt.Printf("  usb -> present=%t rate=%d\n", us.Present, us.RateHz)
			}
		}
	}
}
