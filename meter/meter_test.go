package meter

import (
	"sync"
	"testing"

	"songbird-go/types"
)

func testCfg() types.MeterConfig {
	return types.MeterConfig{
		Threshold: 0.01,
		Smoothing: 0.1,
		Segments:  8,
		BarMax:    0.8,
		BrightOff: 0,
		BrightMin: 8,
		BrightMax: 255,
	}
}

// instant returns a meter that tracks input immediately, isolating the
// quantization mappings from the smoothing.
func instant() Meter {
	cfg := testCfg()
	cfg.Smoothing = 1
	return New(cfg)
}

func TestSmoothedStaysBounded(t *testing.T) {
	m := New(testCfg())
	inputs := []float32{0, 0.5, 3.7, -2.0, 1.0, 0.9999, -0.0001, 42}
	for i := 0; i < 200; i++ {
		r := m.Update(inputs[i%len(inputs)])
		if r.Level < 0 || r.Level > 1 {
			t.Fatalf("tick %d: smoothed %v outside [0,1]", i, r.Level)
		}
	}
}

func TestSmoothingConvergesFromBelow(t *testing.T) {
	m := New(testCfg())

	prev := float32(0)
	var last types.LevelValue
	for i := 0; i < 100; i++ {
		last = m.Update(0.05)
		if last.Level > 0.05 {
			t.Fatalf("tick %d: smoothed %v overshot steady input 0.05", i, last.Level)
		}
		if last.Level < prev {
			t.Fatalf("tick %d: smoothed %v decreased from %v on steady input", i, last.Level, prev)
		}
		prev = last.Level
	}
	if last.Level < 0.045 {
		t.Fatalf("smoothed %v did not approach 0.05 after 100 ticks", last.Level)
	}

	// 0.05 maps to bar segment 0 (floor(0.05/0.8*8)), but the LEDs must
	// still show it: above threshold means at least dimly visible.
	if last.Segments != 0 {
		t.Fatalf("segments = %d, want 0 for level 0.05", last.Segments)
	}
	if last.Brightness < 8 {
		t.Fatalf("brightness = %d, want >= min visible", last.Brightness)
	}
	if !last.Singing {
		t.Fatal("singing flag should be set above threshold")
	}
}

func TestSegmentsMonotonicInLevel(t *testing.T) {
	prev := uint8(0)
	for i := 0; i <= 100; i++ {
		m := instant()
		r := m.Update(float32(i) / 100)
		if r.Segments < prev {
			t.Fatalf("segments decreased: level %v -> %d (prev %d)", float32(i)/100, r.Segments, prev)
		}
		if r.Segments > 8 {
			t.Fatalf("segments %d out of range at level %v", r.Segments, float32(i)/100)
		}
		prev = r.Segments
	}
}

func TestSegmentsRepeatableForSameLevel(t *testing.T) {
	m := instant()
	first := m.Update(0.5)
	for i := 0; i < 10; i++ {
		if r := m.Update(0.5); r.Segments != first.Segments {
			t.Fatalf("segments changed on identical input: %d -> %d", first.Segments, r.Segments)
		}
	}
}

func TestFullBarAtAndAboveBarMax(t *testing.T) {
	m := instant()
	if r := m.Update(0.8); r.Segments != 8 {
		t.Fatalf("segments at bar_max: got %d, want 8", r.Segments)
	}
	m = instant()
	if r := m.Update(1.0); r.Segments != 8 {
		t.Fatalf("segments above bar_max: got %d, want 8", r.Segments)
	}
}

func TestBrightnessOffBelowThreshold(t *testing.T) {
	m := instant()
	r := m.Update(0.005)
	if r.Brightness != 0 {
		t.Fatalf("brightness below threshold: got %d, want 0", r.Brightness)
	}
	if r.Singing {
		t.Fatal("singing flag set below threshold")
	}

	r = m.Update(1.0)
	if r.Brightness != 255 {
		t.Fatalf("brightness at full scale: got %d, want 255", r.Brightness)
	}
}

func TestBrightnessNeverInvisibleButNonzero(t *testing.T) {
	for i := 0; i <= 100; i++ {
		m := instant()
		r := m.Update(float32(i) / 100)
		if r.Brightness != 0 && r.Brightness < 8 {
			t.Fatalf("level %v: brightness %d below min visible", float32(i)/100, r.Brightness)
		}
	}
}

func TestCellCrossDomainHandoff(t *testing.T) {
	var cell Cell
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writer hammers the cell the way the audio callback does.
	wg.Add(1)
	go func() {
		defer wg.Done()
		m := New(testCfg())
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			cell.Store(m.Update(float32(i%100) / 100))
		}
	}()

	// Reader sees whole readings, never a torn pair of fields.
	for i := 0; i < 1000; i++ {
		v := cell.Load()
		if v.Level < 0 || v.Level > 1 {
			t.Fatalf("torn or invalid read: %+v", v)
		}
		if v.Segments > 8 {
			t.Fatalf("torn or invalid read: %+v", v)
		}
	}
	close(stop)
	wg.Wait()
}
