package bus

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"system", "heartbeat"})
	conn.Publish(conn.NewMessage(Topic{"system", "heartbeat"}, "beat", false))

	wantMsg(t, sub, "beat")
}

func TestRetainedReachesLateSubscriber(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"control", "mode"}, "active", true))
	sub := conn.Subscribe(Topic{"control", "mode"})

	wantMsg(t, sub, "active")
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	sub := c.Subscribe(Topic{"burst"})

	for i := 0; i < 4; i++ {
		c.Publish(c.NewMessage(Topic{"burst"}, i, false))
	}

	// Queue length 2: publishes 0 and 1 are displaced, 2 and 3 remain.
	for _, want := range []int{2, 3} {
		select {
		case m := <-sub.Channel():
			if m.Payload != want {
				t.Fatalf("payload = %v, want %d", m.Payload, want)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("no message, want %d", want)
		}
	}
	wantNone(t, sub)
}

func TestWildcardMatching(t *testing.T) {
	cases := []struct {
		pattern Topic
		topic   Topic
		match   bool
	}{
		{Topic{"audio", "+", "get"}, Topic{"audio", "levels", "get"}, true},
		{Topic{"audio", "+", "get"}, Topic{"audio", "mute", "set"}, false},
		// "+" consumes exactly one token, never zero.
		{Topic{"audio", "+", "get"}, Topic{"audio", "get"}, false},
		{Topic{"+", "state"}, Topic{"bridge", "state"}, true},
		{Topic{"+", "state"}, Topic{"bridge", "link", "state"}, false},
		// "#" also matches the parent level itself.
		{Topic{"control", "#"}, Topic{"control"}, true},
		{Topic{"control", "#"}, Topic{"control", "event", "up", "pressed"}, true},
		{Topic{"control", "event", "#"}, Topic{"control", "mode"}, false},
		{Topic{"#"}, Topic{"anything", "at", "all"}, true},
	}
	for _, tc := range cases {
		b := NewBus(4)
		c := b.NewConnection("test")
		sub := c.Subscribe(tc.pattern)
		c.Publish(c.NewMessage(tc.topic, "ping", false))
		if tc.match {
			wantMsg(t, sub, "ping")
		} else {
			wantNone(t, sub)
		}
	}
}

func TestFanout(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	exact := c.Subscribe(Topic{"audio", "levels"})
	plus := c.Subscribe(Topic{"audio", "+"})
	hash := c.Subscribe(Topic{"#"})
	other := c.Subscribe(Topic{"audio", "usb"})

	c.Publish(c.NewMessage(Topic{"audio", "levels"}, "tick", false))

	wantMsg(t, exact, "tick")
	wantMsg(t, plus, "tick")
	wantMsg(t, hash, "tick")
	wantNone(t, other)
}

func TestRetainedReplayAcrossPatterns(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(Topic{"config"}, "root", true))
	c.Publish(c.NewMessage(Topic{"config", "audio"}, "audio", true))
	c.Publish(c.NewMessage(Topic{"config", "audio", "meter"}, "meter", true))
	c.Publish(c.NewMessage(Topic{"config", "display"}, "display", true))

	wantSet(t, c.Subscribe(Topic{"config", "#"}), "root", "audio", "meter", "display")
	wantSet(t, c.Subscribe(Topic{"config", "+", "#"}), "audio", "meter", "display")
	wantSet(t, c.Subscribe(Topic{"config", "+"}), "audio", "display")
}

func TestRetainedClearedByNilPayload(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(Topic{"audio", "usb"}, "attached", true))
	c.Publish(c.NewMessage(Topic{"audio", "mute"}, "on", true))
	c.Publish(c.NewMessage(Topic{"audio", "usb"}, nil, true))

	wantSet(t, c.Subscribe(Topic{"audio", "#"}), "on")
}

func TestRequestWaitRoundTrip(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("server")

	reqTopic := Topic{"control", "mode", "get"}
	srvSub := server.Subscribe(reqTopic)
	defer server.Unsubscribe(srvSub)
	go func() {
		if msg, ok := <-srvSub.Channel(); ok {
			server.Reply(msg, "active", false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := client.NewMessage(reqTopic, nil, false)
	reply, err := client.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if s, _ := reply.Payload.(string); s != "active" {
		t.Fatalf("reply payload = %#v, want active", reply.Payload)
	}
	if len(req.ReplyTo) == 0 || !reply.Topic.Equal(req.ReplyTo) {
		t.Fatalf("reply arrived on %v, request asked for %v", reply.Topic, req.ReplyTo)
	}
}

func TestRequestWaitTimeout(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := client.NewMessage(Topic{"nobody", "home"}, nil, false)
	if _, err := client.RequestWait(ctx, req); err == nil {
		t.Fatal("want error when no responder answers")
	}
}

func TestRequestManualSubscription(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("client")
	server := b.NewConnection("server")

	reqTopic := Topic{"audio", "levels", "get"}
	srvSub := server.Subscribe(reqTopic)
	defer server.Unsubscribe(srvSub)

	req := client.NewMessage(reqTopic, nil, false)
	replySub := client.Request(req)
	defer client.Unsubscribe(replySub)

	go func() {
		if msg, ok := <-srvSub.Channel(); ok {
			server.Reply(msg, map[string]any{"in": 0.25, "out": 0.5}, false)
		}
	}()

	select {
	case got := <-replySub.Channel():
		m, ok := got.Payload.(map[string]any)
		if !ok {
			t.Fatalf("reply payload = %#v, want a map", got.Payload)
		}
		if m["out"] != 0.5 {
			t.Fatalf("reply content = %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply on the manual subscription")
	}
}

func TestTopicRejectsNonComparableToken(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("T accepted a non-comparable token")
		}
	}()
	_ = T([]byte{1, 2, 3})
}

func TestTopicAppendDoesNotAlias(t *testing.T) {
	base := T("control", "event")
	a := base.Append("up")
	b := base.Append("down")

	if !a.Equal(Topic{"control", "event", "up"}) {
		t.Fatalf("unexpected first append: %v", a)
	}
	if !b.Equal(Topic{"control", "event", "down"}) {
		t.Fatalf("append reused backing array: %v", b)
	}
	if !base.Equal(Topic{"control", "event"}) {
		t.Fatalf("base modified by append: %v", base)
	}
}

// wantMsg expects exactly the given string payload next on sub.
func wantMsg(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if s, ok := got.Payload.(string); !ok || s != want {
			t.Fatalf("payload = %#v, want %q", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("no message, want %q", want)
	}
}

// wantNone expects sub to stay quiet.
func wantNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message on %v: %#v", got.Topic, got.Payload)
	case <-time.After(60 * time.Millisecond):
	}
}

// wantSet expects sub to deliver exactly the given payloads, in any order,
// and nothing more.
func wantSet(t *testing.T, sub *Subscription, want ...string) {
	t.Helper()
	got := make([]string, 0, len(want))
	timeout := time.After(time.Second)
	for len(got) < len(want) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload: %#v", m.Payload)
			}
			got = append(got, s)
		case <-timeout:
			t.Fatalf("got %d of %d messages: %v", len(got), len(want), got)
		}
	}
	sorted := append([]string(nil), want...)
	sort.Strings(got)
	sort.Strings(sorted)
	for i := range sorted {
		if got[i] != sorted[i] {
			t.Fatalf("messages %v, want %v", got, sorted)
		}
	}
	wantNone(t, sub)
}
