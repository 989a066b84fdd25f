package heartbeat

import (
	"context"
	"testing"
	"time"

	"songbird-go/bus"
	"songbird-go/types"
)

func recvHeartbeat(t *testing.T, sub *bus.Subscription) types.Heartbeat {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		hb, ok := msg.Payload.(types.Heartbeat)
		if !ok {
			t.Fatalf("payload type %T, want types.Heartbeat", msg.Payload)
		}
		return hb
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
	return types.Heartbeat{}
}

func TestHeartbeat_SeqIncrementsAndMirrorsMode(t *testing.T) {
	b := bus.NewBus(16)
	svcConn := b.NewConnection("heartbeat")
	obsConn := b.NewConnection("observer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{}
	if err := svc.Start(ctx, svcConn); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Shrink the period so the test does not idle for seconds.
	obsConn.Publish(obsConn.NewMessage(topicConfigHeartbeat, types.HeartbeatConfig{PeriodMs: 20}, true))

	sub := obsConn.Subscribe(topicHeartbeat)
	defer obsConn.Unsubscribe(sub)

	first := recvHeartbeat(t, sub)
	if first.Mode != types.ModeStandby.String() {
		t.Fatalf("initial mode = %q, want %q", first.Mode, types.ModeStandby.String())
	}

	// A retained mode change shows up in subsequent beacons.
	obsConn.Publish(obsConn.NewMessage(topicMode, types.ModeState{
		Mode: types.ModeActive,
		Name: types.ModeActive.String(),
		TS:   time.Now().UnixMilli(),
	}, true))

	deadline := time.Now().Add(2 * time.Second)
	var last types.Heartbeat
	for time.Now().Before(deadline) {
		last = recvHeartbeat(t, sub)
		if last.Mode == types.ModeActive.String() {
			break
		}
	}
	if last.Mode != types.ModeActive.String() {
		t.Fatalf("mode never reached %q, last %+v", types.ModeActive.String(), last)
	}
	if last.Seq <= first.Seq {
		t.Fatalf("seq did not increase: first %d, last %d", first.Seq, last.Seq)
	}
	if last.UptimeMs < first.UptimeMs {
		t.Fatalf("uptime went backwards: %d -> %d", first.UptimeMs, last.UptimeMs)
	}
}

func TestHeartbeat_RetainedBeaconSurvivesLateSubscribe(t *testing.T) {
	b := bus.NewBus(16)
	svcConn := b.NewConnection("heartbeat")
	obsConn := b.NewConnection("observer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{}
	if err := svc.Start(ctx, svcConn); err != nil {
		t.Fatalf("start: %v", err)
	}
	obsConn.Publish(obsConn.NewMessage(topicConfigHeartbeat, types.HeartbeatConfig{PeriodMs: 20}, true))

	// Let at least one beacon land before anyone is listening.
	early := obsConn.Subscribe(topicHeartbeat)
	recvHeartbeat(t, early)
	obsConn.Unsubscribe(early)

	// A late subscriber still sees the last beacon immediately.
	late := obsConn.Subscribe(topicHeartbeat)
	defer obsConn.Unsubscribe(late)
	hb := recvHeartbeat(t, late)
	if hb.Seq == 0 {
		t.Fatalf("retained beacon has zero seq: %+v", hb)
	}
}
