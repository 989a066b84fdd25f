package sim

import (
	"math"
	"path/filepath"
	"testing"

	"songbird-go/sim/source"
)

func TestCaptureWritesDecodableWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopback.wav")
	c, err := NewCapture(path, 48000)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	block := make([]float32, 480)
	for i := range block {
		block[i] = 0.5
	}
	if err := c.Append(block); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := source.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if src.SampleRate() != 48000 || src.Channels() != 1 {
		t.Fatalf("format = %d Hz %d ch", src.SampleRate(), src.Channels())
	}
	dst := make([]float32, 480)
	n, err := src.ReadSamples(dst)
	if n != 480 {
		t.Fatalf("ReadSamples = %d, %v", n, err)
	}
	for i := 0; i < n; i++ {
		if math.Abs(float64(dst[i])-0.5) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.5", i, dst[i])
		}
	}
}

func TestCaptureClampsOverrange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot.wav")
	c, err := NewCapture(path, 48000)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	if err := c.Append([]float32{2, -2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := source.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	dst := make([]float32, 2)
	if n, err := src.ReadSamples(dst); n != 2 {
		t.Fatalf("ReadSamples = %d, %v", n, err)
	}
	if dst[0] < 0.99 || dst[0] > 1 {
		t.Fatalf("positive clip = %v", dst[0])
	}
	if dst[1] > -0.99 || dst[1] < -1.01 {
		t.Fatalf("negative clip = %v", dst[1])
	}
}
