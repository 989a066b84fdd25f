// services/audio/service.go
package audio

import (
	"context"
	"sync/atomic"
	"time"

	"songbird-go/bus"
	"songbird-go/drivers/hpamp"
	"songbird-go/errcode"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/meter"
	"songbird-go/types"
)

const serviceName = "audio"

var (
	topicConfig = bus.Topic{"config", "audio"}
	topicCtl    = bus.Topic{"audio", "ctl", "+"}
	topicLevels = bus.Topic{"audio", "levels"}
	topicUSB    = bus.Topic{"audio", "usb"}
	topicState  = bus.Topic{"audio", "state"}
	topicRoute  = bus.Topic{"control", "route"}
)

// usbPollPeriod is how often the port is asked for link presence and rate.
const usbPollPeriod = 250 * time.Millisecond

// blockPeaks is the audio domain's hand-off into the service loop, one per
// processed block.
type blockPeaks struct {
	in  float32
	out float32
}

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run owns the audio timing domain boundary. It blocks until ctx is
// cancelled: meters every block the port reports, keeps the shared level
// cells fresh, throttles retained level publications, applies the routing
// flags to the port and the headphone amp, and answers volume verbs.
//
// The in/out cells are the same ones the control service reads each UI tick.
func Run(ctx context.Context, conn *bus.Connection, reg *hal.Registry, port hal.AudioPort, in, out *meter.Cell) {
	s := &service{
		conn:    conn,
		reg:     reg,
		port:    port,
		inCell:  in,
		outCell: out,
		blocks:  make(chan blockPeaks, 32),
	}
	s.loop(ctx)
}

type service struct {
	conn    *bus.Connection
	reg     *hal.Registry
	port    hal.AudioPort
	inCell  *meter.Cell
	outCell *meter.Cell

	// blocks is fed from the port callback and drained here. The callback
	// never blocks: overflow bumps the drop counter instead.
	blocks  chan blockPeaks
	dropped uint32

	cfg        types.AudioConfig
	configured bool
	inMeter    meter.Meter
	outMeter   meter.Meter
	amp        *hpamp.Amp
	claimed    []int

	route     types.RouteState
	usb       types.USBState
	usbSeeded bool
	lastPub   time.Time
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)
	ctlSub := s.conn.Subscribe(topicCtl)
	defer s.conn.Unsubscribe(ctlSub)
	routeSub := s.conn.Subscribe(topicRoute)
	defer s.conn.Unsubscribe(routeSub)

	s.publishState("idle", "awaiting_config", nil)

	if err := s.port.Start(s.onBlock); err != nil {
		s.publishState("error", "port_start_failed", err)
	}
	s.pollUSB()

	usbTick := time.NewTicker(usbPollPeriod)
	defer usbTick.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.amp != nil {
				s.amp.Shutdown()
			}
			_ = s.port.Close()
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.AudioConfig
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctlSub.Channel():
			s.handleControl(msg)

		case msg := <-routeSub.Channel():
			var rs types.RouteState
			if err := util.DecodeJSON(msg.Payload, &rs); err == nil {
				s.applyRoute(rs)
			}

		case blk := <-s.blocks:
			if s.configured {
				s.handleBlock(blk)
			}

		case <-usbTick.C:
			s.pollUSB()
		}
	}
}

// onBlock runs in the audio timing domain.
func (s *service) onBlock(inPeak, outPeak float32) {
	select {
	case s.blocks <- blockPeaks{in: inPeak, out: outPeak}:
	default:
		atomic.AddUint32(&s.dropped, 1)
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(cfg types.AudioConfig) error {
	def := types.DefaultAudio()
	if cfg.Meter == (types.MeterConfig{}) {
		cfg.Meter = def.Meter
	}
	if cfg.Amp == (types.AmpConfig{}) {
		cfg.Amp = def.Amp
	}
	if cfg.Meter.Smoothing <= 0 || cfg.Meter.Smoothing > 1 {
		cfg.Meter.Smoothing = def.Meter.Smoothing
	}
	if cfg.Amp.VolumeSteps <= 0 {
		cfg.Amp.VolumeSteps = def.Amp.VolumeSteps
	}
	if cfg.LevelPeriodMs == 0 {
		cfg.LevelPeriodMs = def.LevelPeriodMs
	}

	s.releasePins()

	clk, err := s.claimOut(cfg.Amp.VolClockPin)
	if err != nil {
		return err
	}
	ud, err := s.claimOut(cfg.Amp.VolUDPin)
	if err != nil {
		s.releasePins()
		return err
	}
	sd, err := s.claimOut(cfg.Amp.ShutdownPin)
	if err != nil {
		s.releasePins()
		return err
	}

	amp := hpamp.New(clk, ud, sd, hpamp.Config{Steps: cfg.Amp.VolumeSteps})
	if err := amp.Init(); err != nil {
		s.releasePins()
		return err
	}
	amp.Calibrate()
	amp.SetVolume(cfg.Amp.VolumeSteps / 2)

	s.cfg = cfg
	s.amp = amp
	s.inMeter = meter.New(cfg.Meter)
	s.outMeter = meter.New(cfg.Meter)
	s.inCell.Store(s.inMeter.Reading())
	s.outCell.Store(s.outMeter.Reading())
	s.lastPub = time.Time{}
	s.configured = true

	// A route may have arrived while unconfigured; bring the new amp in line.
	s.applyRoute(s.route)
	return nil
}

func (s *service) claimOut(pin int) (hal.GPIOHandle, error) {
	h, err := s.reg.ClaimGPIO(serviceName, pin, hal.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	s.claimed = append(s.claimed, pin)
	return h, nil
}

func (s *service) releasePins() {
	for _, pin := range s.claimed {
		s.reg.Release(serviceName, pin)
	}
	s.claimed = s.claimed[:0]
	s.amp = nil
	s.configured = false
}

// -----------------------------------------------------------------------------
// Blocks, route, USB
// -----------------------------------------------------------------------------

func (s *service) handleBlock(b blockPeaks) {
	inRead := s.inMeter.Update(b.in)
	outRead := s.outMeter.Update(b.out)
	s.inCell.Store(inRead)
	s.outCell.Store(outRead)

	now := time.Now()
	if now.Sub(s.lastPub) < time.Duration(s.cfg.LevelPeriodMs)*time.Millisecond {
		return
	}
	s.lastPub = now
	s.conn.Publish(s.conn.NewMessage(topicLevels, types.Levels{
		In:  inRead,
		Out: outRead,
		TS:  now.UnixMilli(),
	}, true))
}

func (s *service) applyRoute(rs types.RouteState) {
	s.route = rs
	s.port.SetRoute(rs.Enabled, rs.Muted)
	if s.amp == nil {
		return
	}
	// The amp stays powered while muted: the output stage is silenced at
	// the port, and unmuting must not wait for amp spin-up.
	if rs.Enabled {
		s.amp.Enable()
	} else {
		s.amp.Shutdown()
	}
}

func (s *service) pollUSB() {
	present := s.port.Present()
	rate := s.port.SampleRate()
	if s.usbSeeded && present == s.usb.Present && rate == s.usb.RateHz {
		return
	}
	s.usbSeeded = true
	s.usb = types.USBState{Present: present, RateHz: rate, TS: time.Now().UnixMilli()}
	s.conn.Publish(s.conn.NewMessage(topicUSB, s.usb, true))
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
	case "volume":
		if s.amp == nil {
			s.replyErr(msg, "not configured")
			return
		}
		var p struct {
			Steps *int `json:"steps"`
		}
		if err := util.DecodeJSON(msg.Payload, &p); err != nil || p.Steps == nil {
			s.replyErr(msg, errcode.InvalidParams.Error())
			return
		}
		pos := s.amp.SetVolume(*p.Steps)
		s.replyOK(msg, map[string]any{"position": pos})

	case "stats":
		m := map[string]any{
			"dropped": atomic.LoadUint32(&s.dropped),
			"present": s.usb.Present,
			"rate_hz": s.usb.RateHz,
		}
		if s.amp != nil {
			m["position"] = s.amp.Position()
			m["amp_enabled"] = s.amp.Enabled()
		}
		s.replyOK(msg, m)

	default:
		s.replyErr(msg, errcode.UnknownVerb.Error())
	}
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
