// Package source decodes the audio fed into the simulated loopback.
// Decoders register by file extension; Open picks one and owns the file
// handle for the life of the source.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source is a stream of interleaved float32 samples in [-1,1].
type Source interface {
	SampleRate() int
	Channels() int
	// ReadSamples fills dst and returns the count written. n == 0 with
	// io.EOF ends the stream.
	ReadSamples(dst []float32) (n int, err error)
	Close() error
}

type opener func(r io.ReadSeeker) (Source, error)

// decoders is populated from init functions, read-only afterwards.
var decoders = map[string]opener{}

func register(ext string, open opener) { decoders[ext] = open }

// Open decodes the file at path, picking the decoder by extension.
func Open(path string) (Source, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	open, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("source: unsupported format %q", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{Source: src, f: f}, nil
}

type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Mono downmixes an interleaved source to one channel by averaging.
// A mono source passes through unchanged.
func Mono(src Source) Source {
	if src.Channels() == 1 {
		return src
	}
	return &monoMixer{src: src}
}

type monoMixer struct {
	src Source
	tmp []float32
}

func (m *monoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *monoMixer) Channels() int   { return 1 }
func (m *monoMixer) Close() error    { return m.src.Close() }

func (m *monoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	ch := m.src.Channels()
	need := len(dst) * ch
	if cap(m.tmp) < need {
		m.tmp = make([]float32, need)
	}
	m.tmp = m.tmp[:need]
	n, err := m.src.ReadSamples(m.tmp)
	if n == 0 {
		return 0, err
	}
	frames := n / ch
	inv := 1 / float32(ch)
	for f := 0; f < frames; f++ {
		sum := float32(0)
		base := f * ch
		for c := 0; c < ch; c++ {
			sum += m.tmp[base+c]
		}
		dst[f] = sum * inv
	}
	return frames, err
}
