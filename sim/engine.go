// Package sim hosts the USB-audio loopback stand-in. A decoded source
// feeds timed blocks through the routing gain into optional speaker and
// capture sinks, and the block peaks drive the same metering path the
// firmware runs on hardware.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"songbird-go/errcode"
	"songbird-go/hal"
	"songbird-go/sim/source"
	"songbird-go/x/mathx"
	"songbird-go/x/ramp"
	"songbird-go/x/ringx"
)

// Config describes one engine run.
type Config struct {
	// Source supplies the loopback input. The engine downmixes to mono.
	Source source.Source
	// Reopen, when set, replaces the source at EOF so files loop. It
	// must yield the same sample format as Source.
	Reopen func() (source.Source, error)
	// BlockLen is samples per processed block. Default 480 (10 ms at 48 kHz).
	BlockLen int
	// RampLen is the mute/unmute gain ramp length in samples. Default 240.
	RampLen int
	// Speaker opens the host audio device for the routed output.
	Speaker bool
	// Capture, when set, receives every routed output block. The engine
	// closes it on Close.
	Capture *Capture
}

// Engine implements the audio port contract on top of decoded audio. The
// block clock is a wall-time ticker, so peaks arrive at the same cadence
// a real USB block callback would deliver them.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	src     source.Source
	target  float32
	present bool
	started bool
	closed  bool

	ring   *ringx.Ring
	otoCtx *oto.Context
	player *oto.Player

	cancel context.CancelFunc
	done   chan struct{}
	capErr error
}

var _ hal.AudioPort = (*Engine)(nil)

// New prepares an engine; blocks begin flowing on Start.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, errors.New("sim: config needs a source")
	}
	if cfg.BlockLen <= 0 {
		cfg.BlockLen = 480
	}
	if cfg.RampLen <= 0 {
		cfg.RampLen = 240
	}
	e := &Engine{
		cfg:     cfg,
		src:     source.Mono(cfg.Source),
		present: true,
		ring:    ringx.New(8192),
	}
	if cfg.Speaker {
		otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   e.src.SampleRate(),
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			return nil, err
		}
		<-ready
		e.otoCtx = otoCtx
	}
	return e, nil
}

// Start begins the block clock. onBlock receives the pre-gain input peak
// and the post-gain output peak for every block.
func (e *Engine) Start(onBlock hal.BlockFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errcode.PortClosed
	}
	if e.started {
		return errcode.Busy
	}
	e.started = true
	if e.otoCtx != nil {
		e.player = e.otoCtx.NewPlayer(&ringReader{ring: e.ring})
		e.player.Play()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx, onBlock)
	return nil
}

// SetRoute aims the output gain: audible only when enabled and not
// muted. The ramp spreads the move across samples so edges never click.
func (e *Engine) SetRoute(enabled, muted bool) {
	var t float32
	if enabled && !muted {
		t = 1
	}
	e.mu.Lock()
	e.target = t
	e.mu.Unlock()
}

func (e *Engine) Present() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.present && !e.closed
}

// SetPresent simulates plugging or pulling the USB link.
func (e *Engine) SetPresent(present bool) {
	e.mu.Lock()
	e.present = present
	e.mu.Unlock()
}

func (e *Engine) SampleRate() uint32 {
	if !e.Present() {
		return 0
	}
	return uint32(e.source().SampleRate())
}

// Close stops the block clock and finalises the sinks.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-e.done
	}
	if e.player != nil {
		_ = e.player.Close()
	}
	var err error
	if e.cfg.Capture != nil {
		err = e.cfg.Capture.Close()
	}
	if err == nil {
		err = e.capErr
	}
	if cerr := e.source().Close(); err == nil {
		err = cerr
	}
	return err
}

// ---- block clock ----

func (e *Engine) loop(ctx context.Context, onBlock hal.BlockFunc) {
	defer close(e.done)

	block := make([]float32, e.cfg.BlockLen)
	gain := ramp.NewGain(0, e.cfg.RampLen)
	period := time.Duration(e.cfg.BlockLen) * time.Second / time.Duration(e.source().SampleRate())
	tick := time.NewTicker(period)
	defer tick.Stop()

	ended := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		n := 0
		if !ended {
			n, ended = e.fill(block)
		}
		for i := n; i < len(block); i++ {
			block[i] = 0
		}

		inPeak := peak(block)
		e.mu.Lock()
		target := e.target
		e.mu.Unlock()
		gain.SetTarget(target)
		gain.Apply(block)
		outPeak := peak(block)

		onBlock(inPeak, outPeak)

		if e.cfg.Capture != nil {
			if err := e.cfg.Capture.Append(block); err != nil && e.capErr == nil {
				e.capErr = err
			}
		}
		if e.player != nil {
			e.ring.TryWriteFrom(block)
		}
	}
}

// fill reads one block, swapping in a fresh source at EOF when the
// config provides Reopen. The second return is true once the stream is
// finished for good; the clock then keeps ticking silence so the meters
// decay the way they would after a host stops streaming.
func (e *Engine) fill(block []float32) (int, bool) {
	reopened := false
	for {
		n, err := e.source().ReadSamples(block)
		if n > 0 {
			return n, false
		}
		if err == nil {
			return 0, false
		}
		if e.cfg.Reopen == nil || reopened {
			return 0, true
		}
		reopened = true
		next, rerr := e.cfg.Reopen()
		if rerr != nil {
			return 0, true
		}
		old := e.src
		e.mu.Lock()
		e.src = source.Mono(next)
		e.mu.Unlock()
		old.Close()
	}
}

func (e *Engine) source() source.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func peak(block []float32) float32 {
	var p float32
	for _, v := range block {
		if v < 0 {
			v = -v
		}
		p = mathx.Max(p, v)
	}
	return p
}

// ---- speaker ----

// ringReader feeds the oto player. Shortfalls pad with silence so the
// device clock never starves.
type ringReader struct {
	ring *ringx.Ring
	tmp  []float32
}

func (r *ringReader) Read(p []byte) (int, error) {
	samples := len(p) / 4
	if samples == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if cap(r.tmp) < samples {
		r.tmp = make([]float32, samples)
	}
	tmp := r.tmp[:samples]
	got := r.ring.TryReadInto(tmp)
	for i := got; i < samples; i++ {
		tmp[i] = 0
	}
	for i, v := range tmp {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	for i := samples * 4; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}
