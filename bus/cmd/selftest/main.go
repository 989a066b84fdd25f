// bus/cmd/selftest/main.go
//
// On-target mirror of the bus package tests. `go test` does not run on a
// flashed board, so each check here repeats one bus_test.go case and
// reports PASS/FAIL over serial. Builds and runs unchanged on the host.
package main

import (
	"context"
	"os"
	"sort"
	"time"

	"songbird-go/bus"
	"songbird-go/x/fmtx"
)

// --- helpers mirroring the test utilities ------------------------------------

func wantMsg(sub *bus.Subscription, want string) (ok bool, why string) {
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			return false, "unexpected payload"
		}
		return true, ""
	case <-time.After(200 * time.Millisecond):
		return false, "timeout"
	}
}

func wantNone(sub *bus.Subscription) bool {
	select {
	case <-sub.Channel():
		return false
	case <-time.After(60 * time.Millisecond):
		return true
	}
}

func wantSet(sub *bus.Subscription, want ...string) (ok bool, why string) {
	got := make([]string, 0, len(want))
	timeout := time.After(time.Second)
	for len(got) < len(want) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				return false, "non-string payload"
			}
			got = append(got, s)
		case <-timeout:
			return false, "timeout"
		}
	}
	sorted := append([]string(nil), want...)
	sort.Strings(got)
	sort.Strings(sorted)
	for i := range sorted {
		if got[i] != sorted[i] {
			return false, "payload set mismatch"
		}
	}
	if !wantNone(sub) {
		return false, "extra message behind the expected set"
	}
	return true, ""
}

// --- individual checks (one per bus_test.go case) ----------------------------

func TestPublishReachesSubscriber() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.T("system", "heartbeat"))

	conn.Publish(conn.NewMessage(bus.T("system", "heartbeat"), "beat", false))

	ok, why := wantMsg(sub, "beat")
	if !ok {
		fmtx.Printf("TestPublishReachesSubscriber: %s\r\n", why)
	}
	return ok
}

func TestRetainedReachesLateSubscriber() bool {
	b := bus.NewBus(2)
	conn := b.NewConnection("selftest")

	conn.Publish(conn.NewMessage(bus.T("control", "mode"), "active", true))
	sub := conn.Subscribe(bus.T("control", "mode"))

	ok, why := wantMsg(sub, "active")
	if !ok {
		fmtx.Printf("TestRetainedReachesLateSubscriber: %s\r\n", why)
	}
	return ok
}

func TestQueueOverflowDropsOldest() bool {
	b := bus.NewBus(2)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("burst"))

	for i := 0; i < 4; i++ {
		c.Publish(c.NewMessage(bus.T("burst"), i, false))
	}

	// Queue length 2: publishes 0 and 1 are displaced, 2 and 3 remain.
	for _, want := range []int{2, 3} {
		select {
		case m := <-sub.Channel():
			if m.Payload != want {
				fmtx.Printf("TestQueueOverflowDropsOldest: payload %v, want %d\r\n", m.Payload, want)
				return false
			}
		case <-time.After(100 * time.Millisecond):
			fmtx.Printf("TestQueueOverflowDropsOldest: timeout waiting for %d\r\n", want)
			return false
		}
	}
	if !wantNone(sub) {
		println("TestQueueOverflowDropsOldest: queue held more than its length")
		return false
	}
	return true
}

func TestWildcardMatching() bool {
	cases := []struct {
		pattern bus.Topic
		topic   bus.Topic
		match   bool
	}{
		{bus.T("audio", "+", "get"), bus.T("audio", "levels", "get"), true},
		{bus.T("audio", "+", "get"), bus.T("audio", "mute", "set"), false},
		// "+" consumes exactly one token, never zero.
		{bus.T("audio", "+", "get"), bus.T("audio", "get"), false},
		{bus.T("+", "state"), bus.T("bridge", "state"), true},
		{bus.T("+", "state"), bus.T("bridge", "link", "state"), false},
		// "#" also matches the parent level itself.
		{bus.T("control", "#"), bus.T("control"), true},
		{bus.T("control", "#"), bus.T("control", "event", "up", "pressed"), true},
		{bus.T("control", "event", "#"), bus.T("control", "mode"), false},
		{bus.T("#"), bus.T("anything", "at", "all"), true},
	}
	for i, tc := range cases {
		b := bus.NewBus(4)
		c := b.NewConnection("selftest")
		sub := c.Subscribe(tc.pattern)
		c.Publish(c.NewMessage(tc.topic, "ping", false))
		if tc.match {
			if ok, why := wantMsg(sub, "ping"); !ok {
				fmtx.Printf("TestWildcardMatching: case %d %s\r\n", i, why)
				return false
			}
		} else if !wantNone(sub) {
			fmtx.Printf("TestWildcardMatching: case %d matched, want none\r\n", i)
			return false
		}
	}
	return true
}

func TestFanout() bool {
	b := bus.NewBus(8)
	c := b.NewConnection("selftest")

	exact := c.Subscribe(bus.T("audio", "levels"))
	plus := c.Subscribe(bus.T("audio", "+"))
	hash := c.Subscribe(bus.T("#"))
	other := c.Subscribe(bus.T("audio", "usb"))

	c.Publish(c.NewMessage(bus.T("audio", "levels"), "tick", false))

	for _, s := range []*bus.Subscription{exact, plus, hash} {
		if ok, why := wantMsg(s, "tick"); !ok {
			fmtx.Printf("TestFanout: %s\r\n", why)
			return false
		}
	}
	if !wantNone(other) {
		println("TestFanout: non-matching leaf got the message")
		return false
	}
	return true
}

func TestRetainedReplayAcrossPatterns() bool {
	b := bus.NewBus(32)
	c := b.NewConnection("selftest")

	c.Publish(c.NewMessage(bus.T("config"), "root", true))
	c.Publish(c.NewMessage(bus.T("config", "audio"), "audio", true))
	c.Publish(c.NewMessage(bus.T("config", "audio", "meter"), "meter", true))
	c.Publish(c.NewMessage(bus.T("config", "display"), "display", true))

	if ok, why := wantSet(c.Subscribe(bus.T("config", "#")), "root", "audio", "meter", "display"); !ok {
		fmtx.Printf("TestRetainedReplayAcrossPatterns: config/# %s\r\n", why)
		return false
	}
	if ok, why := wantSet(c.Subscribe(bus.T("config", "+", "#")), "audio", "meter", "display"); !ok {
		fmtx.Printf("TestRetainedReplayAcrossPatterns: config/+/# %s\r\n", why)
		return false
	}
	if ok, why := wantSet(c.Subscribe(bus.T("config", "+")), "audio", "display"); !ok {
		fmtx.Printf("TestRetainedReplayAcrossPatterns: config/+ %s\r\n", why)
		return false
	}
	return true
}

func TestRetainedClearedByNilPayload() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")

	c.Publish(c.NewMessage(bus.T("audio", "usb"), "attached", true))
	c.Publish(c.NewMessage(bus.T("audio", "mute"), "on", true))
	c.Publish(c.NewMessage(bus.T("audio", "usb"), nil, true))

	ok, why := wantSet(c.Subscribe(bus.T("audio", "#")), "on")
	if !ok {
		fmtx.Printf("TestRetainedClearedByNilPayload: %s\r\n", why)
	}
	return ok
}

func TestRequestWaitRoundTrip() bool {
	b := bus.NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("server")

	reqTopic := bus.T("control", "mode", "get")
	srvSub := server.Subscribe(reqTopic)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-srvSub.Channel(); ok {
			server.Reply(msg, "active", false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := client.NewMessage(reqTopic, nil, false)
	reply, err := client.RequestWait(ctx, req)
	server.Unsubscribe(srvSub)
	<-done

	if err != nil {
		println("TestRequestWaitRoundTrip: timeout/error")
		return false
	}
	if s, ok := reply.Payload.(string); !ok || s != "active" {
		println("TestRequestWaitRoundTrip: bad reply payload")
		return false
	}
	if len(req.ReplyTo) == 0 || !reply.Topic.Equal(req.ReplyTo) {
		println("TestRequestWaitRoundTrip: ReplyTo/topic mismatch")
		return false
	}
	return true
}

func TestRequestWaitTimeout() bool {
	b := bus.NewBus(8)
	client := b.NewConnection("client")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := client.NewMessage(bus.T("nobody", "home"), nil, false)
	if _, err := client.RequestWait(ctx, req); err == nil {
		println("TestRequestWaitTimeout: expected an error")
		return false
	}
	return true
}

func TestRequestManualSubscription() bool {
	b := bus.NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("server")

	reqTopic := bus.T("audio", "levels", "get")
	srvSub := server.Subscribe(reqTopic)
	defer server.Unsubscribe(srvSub)

	req := client.NewMessage(reqTopic, nil, false)
	replySub := client.Request(req)
	defer client.Unsubscribe(replySub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-srvSub.Channel(); ok {
			server.Reply(msg, map[string]any{"in": 0.25, "out": 0.5}, false)
		}
	}()

	select {
	case got := <-replySub.Channel():
		m, ok := got.Payload.(map[string]any)
		if !ok {
			println("TestRequestManualSubscription: wrong payload type")
			return false
		}
		if m["out"] != 0.5 {
			println("TestRequestManualSubscription: bad reply content")
			return false
		}
	case <-time.After(time.Second):
		println("TestRequestManualSubscription: timeout")
		return false
	}
	<-done
	return true
}

func TestTopicRejectsNonComparableToken() (ok bool) {
	defer func() {
		if recover() == nil {
			println("TestTopicRejectsNonComparableToken: expected panic, got none")
			ok = false
		} else {
			ok = true
		}
	}()
	_ = bus.T([]byte{1, 2, 3}) // []byte is not comparable; T must panic
	return false               // only reached if no panic
}

func TestTopicAppendDoesNotAlias() bool {
	base := bus.T("control", "event")
	a := base.Append("up")
	b := base.Append("down")

	if !a.Equal(bus.Topic{"control", "event", "up"}) {
		println("TestTopicAppendDoesNotAlias: bad first append")
		return false
	}
	if !b.Equal(bus.Topic{"control", "event", "down"}) {
		println("TestTopicAppendDoesNotAlias: append reused backing array")
		return false
	}
	if !base.Equal(bus.Topic{"control", "event"}) {
		println("TestTopicAppendDoesNotAlias: base modified by append")
		return false
	}
	return true
}

// --- main: run every check and report -----------------------------------------

type testFn struct {
	name string
	fn   func() bool
}

func main() {
	// Give the USB CDC time to enumerate so early lines are not lost.
	time.Sleep(250 * time.Millisecond)

	tests := []testFn{
		{"TestPublishReachesSubscriber", TestPublishReachesSubscriber},
		{"TestRetainedReachesLateSubscriber", TestRetainedReachesLateSubscriber},
		{"TestQueueOverflowDropsOldest", TestQueueOverflowDropsOldest},
		{"TestWildcardMatching", TestWildcardMatching},
		{"TestFanout", TestFanout},
		{"TestRetainedReplayAcrossPatterns", TestRetainedReplayAcrossPatterns},
		{"TestRetainedClearedByNilPayload", TestRetainedClearedByNilPayload},
		{"TestRequestWaitRoundTrip", TestRequestWaitRoundTrip},
		{"TestRequestWaitTimeout", TestRequestWaitTimeout},
		{"TestRequestManualSubscription", TestRequestManualSubscription},
		{"TestTopicRejectsNonComparableToken", TestTopicRejectsNonComparableToken},
		{"TestTopicAppendDoesNotAlias", TestTopicAppendDoesNotAlias},
	}

	passed, failed := 0, 0
	println("== bus self-test starting ==")
	for _, tc := range tests {
		if tc.fn() {
			fmtx.Printf("[PASS] %s\r\n", tc.name)
			passed++
		} else {
			fmtx.Printf("[FAIL] %s\r\n", tc.name)
			failed++
		}
		// small pause between checks to keep timings sane over slow serial
		time.Sleep(10 * time.Millisecond)
	}
	fmtx.Printf("== done: %d passed, %d failed ==\r\n", passed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}
