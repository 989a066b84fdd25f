// cmd/songbird/main.go
//
// Appliance entry point. Builds the bus, binds the platform peripherals
// and starts every service; the retained config sections published last
// bring the loops from awaiting_config to ready. The same wiring runs on
// RP2 boards (tinygo -target=pico) and on a workstation, where the null
// audio port leaves the appliance showing "Connect USB Audio".
package main

import (
	"context"
	"time"

	"songbird-go/bus"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/meter"
	"songbird-go/platform"
	"songbird-go/services/audio"
	"songbird-go/services/bridge"
	"songbird-go/services/config"
	"songbird-go/services/console"
	"songbird-go/services/control"
	"songbird-go/services/display"
	"songbird-go/services/heartbeat"
	"songbird-go/types"
)

// deviceID selects the embedded config set.
const deviceID = "songbird"

func main() {
	// Allow USB CDC to enumerate before anything prints.
	time.Sleep(2 * time.Second)
	println("[songbird] boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)
	setup := platform.New()

	b := bus.NewBus(16)
	reg := hal.NewRegistry(setup.Pins)

	// The level cells are the only state shared between the audio and UI
	// timing domains: the audio service writes them per block, the control
	// service reads them per tick.
	var levelIn, levelOut meter.Cell

	go watchServiceStates(b.NewConnection("monitor"))

	println("[songbird] starting services ...")
	go audio.Run(ctx, b.NewConnection("audio"), reg, setup.Audio, &levelIn, &levelOut)
	go control.Run(ctx, b.NewConnection("control"), reg, hal.SystemClock{}, &levelIn, &levelOut)
	go display.Run(ctx, b.NewConnection("display"), setup.Display)
	go bridge.Run(ctx, b.NewConnection("bridge"))
	go console.Run(ctx, b.NewConnection("console"), reg, setup.Console)
	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[songbird] heartbeat start failed:", err.Error())
	}

	// Config goes out last: every loop above is already subscribed, so each
	// retained section lands exactly once.
	println("[songbird] publishing device config ...")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	select {}
}

// watchServiceStates mirrors the per-service state topics to the boot
// console, so a flashed board reports how far bring-up got without any
// debugger attached.
func watchServiceStates(conn *bus.Connection) {
	sub := conn.Subscribe(bus.Topic{"+", "state"})
	for m := range sub.Channel() {
		svc, _ := m.Topic.At(0).(string)
		var st types.ServiceState
		if err := util.DecodeJSON(m.Payload, &st); err != nil {
			continue
		}
		println("[songbird]", svc, st.Level, st.Status)
	}
}
