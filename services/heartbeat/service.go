package heartbeat

import (
	"context"
	"time"

	"songbird-go/bus"
	"songbird-go/internal/util"
	"songbird-go/types"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicMode            = bus.Topic{"control", "mode"}
	topicHeartbeat       = bus.Topic{"system", "heartbeat"}
)

// Service publishes a retained uptime beacon so off-board peers can tell a
// live appliance from a stale retained snapshot. The beacon mirrors the
// current mode.
type Service struct {
	start time.Time
	seq   uint32
	mode  types.Mode
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	modeSub := conn.Subscribe(topicMode)
	defer conn.Unsubscribe(modeSub)

	cfg := types.DefaultHeartbeat()
	tick := time.NewTicker(time.Duration(cfg.PeriodMs) * time.Millisecond)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			s.publish(conn)
		case msg := <-cfgSub.Channel():
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				println("Warn: heartbeat config decode failed:", err.Error())
				continue
			}
			if cfg.PeriodMs > 0 {
				tick.Reset(time.Duration(cfg.PeriodMs) * time.Millisecond)
			}
		case msg := <-modeSub.Channel():
			var ms types.ModeState
			if err := util.DecodeJSON(msg.Payload, &ms); err == nil {
				s.mode = ms.Mode
			}
		}
	}
}

func (s *Service) publish(conn *bus.Connection) {
	s.seq++
	hb := types.Heartbeat{
		Seq:      s.seq,
		UptimeMs: time.Since(s.start).Milliseconds(),
		Mode:     s.mode.String(),
		TS:       time.Now().UnixMilli(),
	}
	conn.Publish(conn.NewMessage(topicHeartbeat, hb, true))
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.start = time.Now()
	go s.serviceLoop(ctx, conn)
	return nil
}
