// services/display/service.go
package display

import (
	"context"
	"time"

	"songbird-go/bus"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/types"
)

var (
	topicConfig   = bus.Topic{"config", "display"}
	topicSnapshot = bus.Topic{"ui", "snapshot"}
	topicState    = bus.Topic{"display", "state"}
)

// Factory binds the panel once its geometry is known. Platform code passes
// the real constructor; tests pass one returning a recording fake.
type Factory func(cfg types.DisplayConfig) (hal.Display, error)

// content is the drawable subset of a snapshot. Comparable, so one frame's
// redraw decision is a struct compare.
type content struct {
	status  string
	rate    string
	barIn   uint8
	barOut  uint8
	birdIn  bool
	birdOut bool
}

func contentFrom(s types.Snapshot) content {
	return content{
		status:  s.Status,
		rate:    s.RateLabel,
		barIn:   s.In.Segments,
		barOut:  s.Out.Segments,
		birdIn:  s.In.Singing,
		birdOut: s.Out.Singing,
	}
}

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run blocks until ctx is cancelled. It waits for the display geometry on
// config/display, builds the panel through the factory, then redraws from
// ui/snapshot, pushing only the fields that changed since the last flush.
func Run(ctx context.Context, conn *bus.Connection, factory Factory) {
	s := &service{conn: conn, factory: factory}
	s.loop(ctx)
}

type service struct {
	conn    *bus.Connection
	factory Factory

	disp  hal.Display
	last  content
	drawn bool
}

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)
	snapSub := s.conn.Subscribe(topicSnapshot)
	defer s.conn.Unsubscribe(snapSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.DisplayConfig
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			disp, err := s.factory(cfg)
			if err != nil {
				s.publishState("error", "display_init_failed", err)
				continue
			}
			s.disp = disp
			s.drawn = false
			s.publishState("ready", "configured", nil)

		case msg := <-snapSub.Channel():
			if s.disp == nil {
				continue
			}
			var snap types.Snapshot
			if err := util.DecodeJSON(msg.Payload, &snap); err != nil {
				continue
			}
			s.draw(contentFrom(snap))
		}
	}
}

// draw pushes changed fields and flushes. Identical frames are dropped
// before touching the panel, so a steady snapshot stream costs nothing.
func (s *service) draw(c content) {
	if s.drawn && c == s.last {
		return
	}

	if !s.drawn || c.status != s.last.status {
		s.disp.SetStatus(c.status)
	}
	if !s.drawn || c.rate != s.last.rate {
		s.disp.SetRate(c.rate)
	}
	if !s.drawn || c.barIn != s.last.barIn || c.barOut != s.last.barOut {
		s.disp.SetBars(c.barIn, c.barOut)
	}
	if !s.drawn || c.birdIn != s.last.birdIn || c.birdOut != s.last.birdOut {
		s.disp.SetBirds(c.birdIn, c.birdOut)
	}

	if err := s.disp.Flush(); err != nil {
		s.publishState("degraded", "flush_failed", err)
		return
	}
	s.last = c
	s.drawn = true
}

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": time.Now().UnixMilli()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}
