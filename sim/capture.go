package sim

import (
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"songbird-go/x/mathx"
)

// Capture persists the routed output as a mono 16-bit WAV.
type Capture struct {
	f   *os.File
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

// NewCapture creates path, replacing any previous run.
func NewCapture(path string, sampleRate int) (*Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Capture{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Append encodes one block of [-1,1] samples.
func (c *Capture) Append(block []float32) error {
	if cap(c.buf.Data) < len(block) {
		c.buf.Data = make([]int, len(block))
	}
	c.buf.Data = c.buf.Data[:len(block)]
	for i, v := range block {
		c.buf.Data[i] = mathx.Clamp(int(v*32767), -32768, 32767)
	}
	return c.enc.Write(c.buf)
}

// Close finalises the RIFF sizes.
func (c *Capture) Close() error {
	err := c.enc.Close()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}
