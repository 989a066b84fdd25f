// services/control/service.go
package control

import (
	"context"
	"time"

	"songbird-go/bus"
	core "songbird-go/control"
	"songbird-go/errcode"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/meter"
	"songbird-go/types"
	"songbird-go/x/mathx"
)

const serviceName = "control"

var (
	topicConfig   = bus.Topic{"config", "control"}
	topicCtl      = bus.Topic{"control", "ctl", "+"}
	topicMode     = bus.Topic{"control", "mode"}
	topicRoute    = bus.Topic{"control", "route"}
	topicState    = bus.Topic{"control", "state"}
	topicSnapshot = bus.Topic{"ui", "snapshot"}
	topicUSB      = bus.Topic{"audio", "usb"}
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run owns the UI timing domain. It blocks until ctx is cancelled: waits for
// config on config/control, claims the button and LED pins, then ticks the
// coordinator and publishes mode, route, snapshot and button events.
//
// The in/out cells are written by the audio service at block rate; this loop
// only ever reads them.
func Run(ctx context.Context, conn *bus.Connection, reg *hal.Registry, clock hal.Clock, in, out *meter.Cell) {
	s := &service{
		conn:    conn,
		reg:     reg,
		clock:   clock,
		inCell:  in,
		outCell: out,
	}
	s.loop(ctx)
}

type service struct {
	conn    *bus.Connection
	reg     *hal.Registry
	clock   hal.Clock
	inCell  *meter.Cell
	outCell *meter.Cell

	cfg     types.ControlConfig
	coord   *core.Coordinator
	buttons [types.NumButtons]hal.GPIOHandle
	ledIn   hal.PWMHandle
	ledOut  hal.PWMHandle
	claimed []int

	usb      types.USBState
	synth    [types.NumButtons]uint8 // remaining synthetic hold ticks
	forcePub bool
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)
	ctrlSub := s.conn.Subscribe(topicCtl)
	defer s.conn.Unsubscribe(ctrlSub)
	usbSub := s.conn.Subscribe(topicUSB)
	defer s.conn.Unsubscribe(usbSub)

	s.publishState("idle", "awaiting_config", nil)

	// The tick channel stays nil until the first config lands, so the
	// select simply never fires it before then.
	var tick *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if tick != nil {
			tick.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.ControlConfig
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			if tick != nil {
				tick.Stop()
			}
			tick = time.NewTicker(time.Duration(s.cfg.UITickMs) * time.Millisecond)
			tickC = tick.C
			s.publishState("ready", "configured", nil)
			s.tick() // seed the retained outputs before the first period elapses

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case msg := <-usbSub.Channel():
			var st types.USBState
			if err := util.DecodeJSON(msg.Payload, &st); err == nil {
				s.usb = st
			}

		case <-tickC:
			s.tick()
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(cfg types.ControlConfig) error {
	def := types.DefaultControl()
	if cfg.UITickMs == 0 {
		cfg.UITickMs = def.UITickMs
	}
	if cfg.Buttons.DebounceMs == 0 {
		cfg.Buttons.DebounceMs = def.Buttons.DebounceMs
	}

	s.releasePins()

	pull := hal.PullUp
	if !cfg.Buttons.ActiveLow {
		pull = hal.PullDown
	}
	for i := 0; i < types.NumButtons; i++ {
		pin := cfg.Buttons.Pin(types.ButtonID(i))
		h, err := s.reg.ClaimGPIO(serviceName, pin, hal.FuncGPIOIn)
		if err != nil {
			s.releasePins()
			return err
		}
		s.claimed = append(s.claimed, pin)
		if err := h.ConfigureInput(pull); err != nil {
			s.releasePins()
			return err
		}
		s.buttons[i] = h
	}

	ledIn, err := s.reg.ClaimPWM(serviceName, cfg.LEDs.InPin)
	if err != nil {
		s.releasePins()
		return err
	}
	s.claimed = append(s.claimed, cfg.LEDs.InPin)
	ledOut, err := s.reg.ClaimPWM(serviceName, cfg.LEDs.OutPin)
	if err != nil {
		s.releasePins()
		return err
	}
	s.claimed = append(s.claimed, cfg.LEDs.OutPin)

	ledIn.Set(0)
	ledOut.Set(0)

	s.cfg = cfg
	s.ledIn = ledIn
	s.ledOut = ledOut
	s.coord = core.NewCoordinator(cfg)
	s.forcePub = true
	return nil
}

func (s *service) releasePins() {
	for _, pin := range s.claimed {
		s.reg.Release(serviceName, pin)
	}
	s.claimed = s.claimed[:0]
	for i := range s.buttons {
		s.buttons[i] = nil
	}
	s.ledIn = nil
	s.ledOut = nil
}

// -----------------------------------------------------------------------------
// Tick
// -----------------------------------------------------------------------------

func (s *service) tick() {
	// A failed re-config leaves the pins released; stay quiet until a good
	// config arrives.
	if s.coord == nil || s.ledIn == nil {
		return
	}
	now := s.clock.Now()

	var in core.TickInput
	for i := range s.buttons {
		raw := false
		if h := s.buttons[i]; h != nil {
			raw = h.Get()
			if s.cfg.Buttons.ActiveLow {
				raw = !raw
			}
		}
		if s.synth[i] > 0 {
			raw = true
			s.synth[i]--
		}
		in.Raw[i] = raw
	}
	in.In = s.inCell.Load()
	in.Out = s.outCell.Load()
	in.USBPresent = s.usb.Present
	in.RateHz = s.usb.RateHz

	res := s.coord.Tick(now, in)
	ts := now.UnixMilli()

	// Edge events, non-retained.
	for i, ev := range res.Events {
		if ev == types.EventNone {
			continue
		}
		id := types.ButtonID(i)
		s.conn.Publish(s.conn.NewMessage(
			bus.Topic{"control", "event", id.String(), ev.String()},
			map[string]any{"ts_ms": ts},
			false,
		))
	}

	if res.ModeChanged || s.forcePub {
		s.forcePub = false
		mode := res.Snapshot.Mode
		s.conn.Publish(s.conn.NewMessage(topicMode, types.ModeState{
			Mode: mode,
			Name: mode.String(),
			TS:   ts,
		}, true))
		s.conn.Publish(s.conn.NewMessage(topicRoute, types.RouteState{
			Enabled: res.Route.Enabled,
			Muted:   res.Route.Muted,
			TS:      ts,
		}, true))
	}

	s.conn.Publish(s.conn.NewMessage(topicSnapshot, res.Snapshot, true))

	s.ledIn.Set(res.Snapshot.In.Brightness)
	s.ledOut.Set(res.Snapshot.Out.Brightness)
}

// -----------------------------------------------------------------------------
// Control verbs
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 3 {
		return
	}
	verb, _ := msg.Topic[2].(string)

	switch verb {
	case "press":
		var req types.PressRequest
		if err := util.DecodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload.Error())
			return
		}
		id, ok := types.ButtonFromName(req.Button)
		if !ok {
			s.replyErr(msg, errcode.UnknownButton.Error())
			return
		}
		if s.coord == nil {
			s.replyErr(msg, "not configured")
			return
		}
		s.synth[id] = s.holdTicks()
		s.replyOK(msg, map[string]any{"button": req.Button})
	default:
		s.replyErr(msg, errcode.UnknownVerb.Error())
	}
}

// holdTicks is how many UI ticks a synthetic press spans so the debounce
// window commits it before the release starts.
func (s *service) holdTicks() uint8 {
	ticks := mathx.CeilDiv(s.cfg.Buttons.DebounceMs, s.cfg.UITickMs) + 1
	if ticks > 250 {
		ticks = 250
	}
	return uint8(ticks)
}

// ---- helpers ----

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": time.Now().UnixMilli()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, e string) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": e}, false)
}
