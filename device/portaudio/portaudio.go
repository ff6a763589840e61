// Package portaudio provides the blocking portaudio device backend.
package portaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/signal"
)

// DefaultDevice selects the default output device of the host api.
const DefaultDevice = "default"

// Backend writes float frames into portaudio blocking stream. Interleaved
// config uses single buffer, otherwise every channel has its own one.
type Backend struct {
	cfg         device.Config
	stream      *portaudio.Stream
	inter       []float32
	planar      [][]float32
	underflowed bool
}

// New initializes portaudio and starts the stream on the device with
// provided name.
func New(cfg device.Config) (*Backend, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	cfg.Float = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, &device.OpenError{Device: cfg.Device, Err: err}
	}
	b := &Backend{cfg: cfg}
	var buf any
	if cfg.Interleaved {
		b.inter = make([]float32, cfg.PeriodSize*cfg.Channels)
		buf = &b.inter
	} else {
		b.planar = make([][]float32, cfg.Channels)
		for c := range b.planar {
			b.planar[c] = make([]float32, cfg.PeriodSize)
		}
		buf = &b.planar
	}
	stream, err := open(cfg, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, &device.OpenError{Device: cfg.Device, Err: err}
	}
	b.stream = stream
	return b, nil
}

func open(cfg device.Config, buf any) (*portaudio.Stream, error) {
	if cfg.Device == DefaultDevice {
		stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.PeriodSize, buf)
		if err != nil {
			return nil, &device.OpenError{Device: cfg.Device, Err: err}
		}
		return stream, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &device.OpenError{Device: cfg.Device, Err: err}
	}
	for _, d := range devices {
		if d.Name != cfg.Device {
			continue
		}
		if d.MaxOutputChannels < cfg.Channels {
			return nil, &device.ParamError{
				Device: cfg.Device,
				Param:  "channels",
				Value:  cfg.Channels,
				Err:    fmt.Errorf("device supports %d channels", d.MaxOutputChannels),
			}
		}
		p := portaudio.HighLatencyParameters(nil, d)
		p.Output.Channels = cfg.Channels
		p.SampleRate = float64(cfg.SampleRate)
		p.FramesPerBuffer = cfg.PeriodSize
		stream, err := portaudio.OpenStream(p, buf)
		if err != nil {
			return nil, &device.ParamError{Device: cfg.Device, Param: "stream parameters", Value: p, Err: err}
		}
		return stream, nil
	}
	return nil, &device.OpenError{Device: cfg.Device, Err: errors.New("device not found")}
}

// Put writes at most one period. Short blocks are padded with silence.
// Output underflow is reported as xrun after the frames were accepted.
func (b *Backend) Put(block signal.Float64) (int, error) {
	n := min(block.Size(), b.cfg.PeriodSize)
	if b.cfg.Interleaved {
		clear(b.inter)
		block.Slice(0, n).WriteInterFloat32(b.inter)
	} else {
		for c := range b.planar {
			src := block[c%len(block)]
			for i := range b.planar[c] {
				if i < n {
					b.planar[c][i] = float32(src[i])
				} else {
					b.planar[c][i] = 0
				}
			}
		}
	}
	err := b.stream.Write()
	if errors.Is(err, portaudio.OutputUnderflowed) {
		b.underflowed = true
		return n, device.ErrXrun
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Status returns xrun after output underflow.
func (b *Backend) Status() device.State {
	if b.underflowed {
		return device.Xrun
	}
	return device.Running
}

// Prepare clears the underflow. Portaudio keeps the stream running.
func (b *Backend) Prepare() error {
	b.underflowed = false
	return nil
}

// Close stops the stream and terminates portaudio.
func (b *Backend) Close() error {
	if err := b.stream.Stop(); err != nil {
		return err
	}
	if err := b.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
