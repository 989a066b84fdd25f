package source

import (
	"io"

	"github.com/jfreymuth/oggvorbis"
)

func init() { register("ogg", openVorbis) }

type vorbisSource struct {
	dec *oggvorbis.Reader
}

func openVorbis(r io.ReadSeeker) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &vorbisSource{dec: dec}, nil
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) Close() error    { return nil }

func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	// The reader decodes whole frames; trim dst to a frame boundary so
	// channels stay aligned.
	ch := s.dec.Channels()
	usable := (len(dst) / ch) * ch
	if usable == 0 {
		return 0, nil
	}
	n, err := s.dec.Read(dst[:usable])
	if n == 0 && err != nil {
		return 0, err
	}
	return n, err
}
