package source

import (
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

func init() { register("mp3", openMP3) }

type mp3Source struct {
	dec *gomp3.Decoder
	buf []byte
}

func openMP3(r io.ReadSeeker) (Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	return &mp3Source{dec: dec}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }

// go-mp3 always emits 16-bit little-endian stereo.
func (s *mp3Source) Channels() int { return 2 }
func (s *mp3Source) Close() error  { return nil }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]
	n, err := s.dec.Read(s.buf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768
	}
	return samples, err
}
