package button

import (
	"testing"
	"time"

	"songbird-go/types"
)

const window = 30 * time.Millisecond

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

type step struct {
	ms   int
	raw  bool
	want types.ButtonEvent
}

func runSteps(t *testing.T, b *Button, steps []step) {
	t.Helper()
	for i, s := range steps {
		if got := b.Poll(s.raw, at(s.ms)); got != s.want {
			t.Fatalf("step %d (t=%dms raw=%v): got %v, want %v", i, s.ms, s.raw, got, s.want)
		}
	}
}

func TestPressCommitsAfterStableWindow(t *testing.T) {
	b := New(window)
	runSteps(t, &b, []step{
		{0, false, types.EventNone},
		{25, true, types.EventNone},   // contact closes
		{50, true, types.EventNone},   // 25ms stable, inside window
		{60, true, types.EventPressed},
		{85, true, types.EventNone},   // held, no repeat edge
		{110, true, types.EventNone},
	})
	if b.State() != StatePressed {
		t.Fatalf("state after hold: got %v, want pressed", b.State())
	}
	if !b.Down() {
		t.Fatal("debounced reading should be down after commit")
	}
}

func TestBouncesInsideWindowProduceNoEdges(t *testing.T) {
	b := New(window)

	// Contact chatter: flips every 10ms, never stable long enough.
	raw := false
	for ms := 0; ms <= 200; ms += 10 {
		raw = !raw
		if got := b.Poll(raw, at(ms)); got != types.EventNone {
			t.Fatalf("bounce at %dms produced %v", ms, got)
		}
	}
	if b.Down() {
		t.Fatal("debounced state changed during chatter")
	}

	// Settles high: exactly one edge once the window elapses.
	edges := 0
	for ms := 210; ms <= 400; ms += 10 {
		if got := b.Poll(true, at(ms)); got != types.EventNone {
			if got != types.EventPressed {
				t.Fatalf("unexpected edge %v", got)
			}
			edges++
		}
	}
	if edges != 1 {
		t.Fatalf("expected exactly one press edge after settling, got %d", edges)
	}
}

func TestReleasedIsOnePollState(t *testing.T) {
	b := New(window)
	runSteps(t, &b, []step{
		{0, true, types.EventNone},
		{40, true, types.EventPressed},
		{65, false, types.EventNone}, // contact opens
		{100, false, types.EventReleased},
	})
	if b.State() != StateReleased {
		t.Fatalf("state on release poll: got %v, want released", b.State())
	}

	if got := b.Poll(false, at(125)); got != types.EventNone {
		t.Fatalf("poll after release: got %v, want none", got)
	}
	if b.State() != StateIdle {
		t.Fatalf("released persisted past one poll: %v", b.State())
	}
	if b.Previous() != StateReleased {
		t.Fatalf("previous state: got %v, want released", b.Previous())
	}
}

func TestFullPressReleaseCycle(t *testing.T) {
	b := New(window)
	runSteps(t, &b, []step{
		{0, false, types.EventNone},
		{10, true, types.EventNone},
		{15, false, types.EventNone}, // bounce
		{20, true, types.EventNone},  // bounce
		{55, true, types.EventPressed},
		{80, true, types.EventNone},
		{90, false, types.EventNone},
		{95, true, types.EventNone},  // release bounce
		{100, false, types.EventNone},
		{135, false, types.EventReleased},
		{160, false, types.EventNone},
	})
}

func TestEdgesNeverCoincide(t *testing.T) {
	b := New(window)
	pressed, released := 0, 0
	raws := []bool{false, true, true, true, false, false, false, true, true, true, false, false, false}
	for i, raw := range raws {
		switch b.Poll(raw, at(i*40)) { // every poll past the window
		case types.EventPressed:
			pressed++
		case types.EventReleased:
			released++
		}
	}
	if pressed != 2 || released != 2 {
		t.Fatalf("expected 2 press / 2 release edges, got %d/%d", pressed, released)
	}
}
