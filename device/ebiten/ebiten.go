// Package ebiten provides the pull-model device backend on top of ebiten
// audio. The platform owns the audio goroutine, it reads bytes from the
// player and every read pulls frames through the callback.
package ebiten

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/signal"
)

// frame of ebiten stream is always two float32 samples.
const (
	numChannels = 2
	frameBytes  = numChannels * 4
)

var (
	contextOnce       sync.Once
	context           *ebitaudio.Context
	contextSampleRate int
)

// sharedContext returns the process-wide audio context. Ebiten allows only
// one and its sample rate cannot be changed.
func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextSampleRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz", contextSampleRate)
	}
	return context, nil
}

type (
	// Output is the device driven by ebiten player.
	Output struct {
		cfg    device.Config
		ctx    *ebitaudio.Context
		mu     sync.Mutex
		reader *reader
		player *ebitaudio.Player
	}

	// reader converts pulled frames into float32 little endian bytes.
	reader struct {
		mu       sync.Mutex
		callback device.Callback
		buf      signal.Float64
		view     signal.Float64
	}
)

// New returns output for the shared ebiten context. Ebiten streams are
// always stereo.
func New(cfg device.Config) (*Output, error) {
	if cfg.Device == "" {
		cfg.Device = "ebiten"
	}
	cfg.Float = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Channels != numChannels {
		return nil, &device.ParamError{Device: cfg.Device, Param: "channels", Value: cfg.Channels}
	}
	ctx, err := sharedContext(cfg.SampleRate)
	if err != nil {
		return nil, &device.ParamError{Device: cfg.Device, Param: "sample rate", Value: cfg.SampleRate, Err: err}
	}
	return &Output{
		cfg: cfg,
		ctx: ctx,
		reader: &reader{
			buf:  signal.EmptyFloat64(numChannels, cfg.BufferSize()),
			view: make(signal.Float64, numChannels),
		},
	}, nil
}

// Config returns device config.
func (o *Output) Config() device.Config {
	return o.cfg
}

// SetCallback sets the function that fills requested frames.
func (o *Output) SetCallback(cb device.Callback) {
	o.reader.mu.Lock()
	defer o.reader.mu.Unlock()
	o.reader.callback = cb
}

// Start creates the player and starts playback.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return device.ErrInvalidState
	}
	o.reader.mu.Lock()
	cb := o.reader.callback
	o.reader.mu.Unlock()
	if cb == nil {
		return device.ErrNoCallback
	}
	player, err := o.ctx.NewPlayerF32(o.reader)
	if err != nil {
		return &device.OpenError{Device: o.cfg.Device, Err: err}
	}
	player.SetBufferSize(signal.DurationOf(o.cfg.SampleRate, int64(o.cfg.BufferSize())))
	player.Play()
	o.player = player
	return nil
}

// Stop pauses and closes the player.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return device.ErrInvalidState
	}
	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	return err
}

// Position returns what the listener actually hears.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return 0
	}
	return o.player.Position()
}

// Read pulls the frames that fit into p.
func (r *reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(p) / frameBytes
	if frames == 0 || r.callback == nil {
		return 0, nil
	}
	if frames > r.buf.Size() {
		r.buf = signal.EmptyFloat64(numChannels, frames)
	}
	for c := range r.buf {
		r.view[c] = r.buf[c][:frames]
	}
	r.callback(r.view)
	for i := 0; i < frames; i++ {
		for c := range r.view {
			u := math.Float32bits(float32(r.view[c][i]))
			binary.LittleEndian.PutUint32(p[(i*numChannels+c)*4:], u)
		}
	}
	return frames * frameBytes, nil
}

var _ io.Reader = (*reader)(nil)
