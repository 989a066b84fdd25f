package source

import (
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func init() { register("wav", openWAV) }

type wavSource struct {
	dec   *wav.Decoder
	buf   *goaudio.IntBuffer
	scale float32
}

func openWAV(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("source: not a wav file")
	}
	bits := int(dec.BitDepth)
	switch bits {
	case 8, 16, 24, 32:
	default:
		bits = 16
	}
	return &wavSource{
		dec:   dec,
		buf:   &goaudio.IntBuffer{Data: make([]int, 4096), Format: dec.Format()},
		scale: 1 / float32(uint32(1)<<(bits-1)),
	}, nil
}

func (s *wavSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *wavSource) Channels() int   { return int(s.dec.NumChans) }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]
	n, err := s.dec.PCMBuffer(s.buf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(s.buf.Data[i]) * s.scale
	}
	// A short read with no error means the data chunk ran out.
	if n < len(dst) && err == nil {
		return n, io.EOF
	}
	return n, err
}
