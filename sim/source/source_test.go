package source

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
)

// wavBytes builds a canonical 44-byte-header mono PCM16 file.
func wavBytes(sampleRate int, samples []int16) []byte {
	data := make([]byte, 44+2*len(samples))
	copy(data[0:4], "RIFF")
	binary.LittleEndian.PutUint32(data[4:8], uint32(36+2*len(samples)))
	copy(data[8:12], "WAVE")
	copy(data[12:16], "fmt ")
	binary.LittleEndian.PutUint32(data[16:20], 16)
	binary.LittleEndian.PutUint16(data[20:22], 1)
	binary.LittleEndian.PutUint16(data[22:24], 1)
	binary.LittleEndian.PutUint32(data[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(data[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(data[32:34], 2)
	binary.LittleEndian.PutUint16(data[34:36], 16)
	copy(data[36:40], "data")
	binary.LittleEndian.PutUint32(data[40:44], uint32(2*len(samples)))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[44+2*i:], uint16(s))
	}
	return data
}

func TestWAVDecode(t *testing.T) {
	raw := wavBytes(48000, []int16{0, 16384, -16384, 32767})
	src, err := openWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("openWAV: %v", err)
	}
	if src.SampleRate() != 48000 || src.Channels() != 1 {
		t.Fatalf("format = %d Hz %d ch", src.SampleRate(), src.Channels())
	}
	dst := make([]float32, 4)
	n, err := src.ReadSamples(dst)
	if n != 4 {
		t.Fatalf("ReadSamples = %d, %v", n, err)
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768}
	for i := range want {
		if diff := float64(dst[i] - want[i]); math.Abs(diff) > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, dst[i], want[i])
		}
	}
	if n, err := src.ReadSamples(dst); n != 0 || err != io.EOF {
		t.Fatalf("after end: n=%d err=%v", n, err)
	}
}

func TestWAVRejectsGarbage(t *testing.T) {
	if _, err := openWAV(bytes.NewReader([]byte("definitely not riff data"))); err == nil {
		t.Fatal("expected error for non-wav input")
	}
}

type stereoSource struct {
	frames int
}

func (s *stereoSource) SampleRate() int { return 48000 }
func (s *stereoSource) Channels() int   { return 2 }
func (s *stereoSource) Close() error    { return nil }

func (s *stereoSource) ReadSamples(dst []float32) (int, error) {
	if s.frames == 0 {
		return 0, io.EOF
	}
	n := 0
	for n+2 <= len(dst) && s.frames > 0 {
		dst[n] = 1
		dst[n+1] = 0
		n += 2
		s.frames--
	}
	return n, nil
}

func TestMonoDownmixAverages(t *testing.T) {
	m := Mono(&stereoSource{frames: 8})
	if m.Channels() != 1 {
		t.Fatalf("Channels = %d, want 1", m.Channels())
	}
	dst := make([]float32, 8)
	n, err := m.ReadSamples(dst)
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if n != 8 {
		t.Fatalf("frames = %d, want 8", n)
	}
	for i := 0; i < n; i++ {
		if dst[i] != 0.5 {
			t.Fatalf("frame %d = %v, want 0.5", i, dst[i])
		}
	}
}

func TestMonoPassThrough(t *testing.T) {
	src := NewTone(440, 48000, 1)
	if Mono(src) != src {
		t.Fatal("mono source should pass through unwrapped")
	}
}

func TestToneGeneratesSine(t *testing.T) {
	src := NewTone(1000, 48000, 0.5)
	dst := make([]float32, 48)
	n, err := src.ReadSamples(dst)
	if n != 48 || err != nil {
		t.Fatalf("ReadSamples = %d, %v", n, err)
	}
	if math.Abs(float64(dst[0])) > 1e-6 {
		t.Fatalf("first sample = %v, want 0", dst[0])
	}
	// Quarter period of 1 kHz at 48 kHz is 12 samples.
	if diff := math.Abs(float64(dst[12]) - 0.5); diff > 1e-3 {
		t.Fatalf("quarter-period sample = %v, want 0.5", dst[12])
	}
	for i, v := range dst {
		if v > 0.5001 || v < -0.5001 {
			t.Fatalf("sample %d = %v exceeds amplitude", i, v)
		}
	}
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	if _, err := Open("capture.flac"); err == nil {
		t.Fatal("expected error for unregistered format")
	}
}

func TestDecodersRegistered(t *testing.T) {
	for _, ext := range []string{"wav", "mp3", "ogg"} {
		if _, ok := decoders[ext]; !ok {
			t.Fatalf("%s decoder not registered", ext)
		}
	}
}
