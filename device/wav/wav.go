// Package wav provides wav file decoding for samplers and the wav file
// device used to record and render the output.
package wav

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/signal"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")

// ErrInvalidFile is returned when file is not a valid wav.
var ErrInvalidFile = errors.New("wav is not valid")

// pcm is the audio format tag of integer pcm.
const pcm = 1

type (
	// Writer encodes signal into wav file.
	Writer struct {
		path     string
		bitDepth signal.BitDepth
		file     *os.File
		encoder  *wav.Encoder
		ib       *audio.IntBuffer
	}

	// Backend is the file device. It accepts frames as fast as they're
	// put, so the thread renders faster than real time.
	Backend struct {
		w *Writer
	}
)

// Read decodes the whole wav file. Returns the signal and its sample rate.
func Read(path string) (signal.Float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrInvalidFile)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth32 {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrUnsupportedBitDepth)
	}
	ib, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	floats := signal.InterInt{
		Data:        ib.Data,
		NumChannels: ib.Format.NumChannels,
		BitDepth:    bitDepth,
	}.AsFloat64()
	return floats, int(decoder.SampleRate), nil
}

// NewWriter creates the file and the encoder.
func NewWriter(path string, bitDepth signal.BitDepth, sampleRate, numChannels int) (*Writer, error) {
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth32 {
		return nil, ErrUnsupportedBitDepth
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		path:     path,
		bitDepth: bitDepth,
		file:     f,
		encoder:  wav.NewEncoder(f, sampleRate, int(bitDepth), numChannels, pcm),
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: numChannels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: int(bitDepth),
		},
	}, nil
}

// Write implements device.Writer.
func (w *Writer) Write(block signal.Float64) error {
	w.ib.Data = block.AsInterInt(w.bitDepth)
	return w.encoder.Write(w.ib)
}

// Close flushes the encoder and closes the file.
func (w *Writer) Close() error {
	if err := w.encoder.Close(); err != nil {
		return err
	}
	return w.file.Close()
}

// NewBackend opens the file device. Device name in config is the path.
func NewBackend(cfg device.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bitDepth := cfg.BitDepth
	if cfg.Float {
		bitDepth = signal.BitDepth32
	}
	w, err := NewWriter(cfg.Device, bitDepth, cfg.SampleRate, cfg.Channels)
	if err != nil {
		if errors.Is(err, ErrUnsupportedBitDepth) {
			return nil, &device.ParamError{Device: cfg.Device, Param: "bit depth", Value: bitDepth, Err: err}
		}
		return nil, &device.OpenError{Device: cfg.Device, Err: err}
	}
	return &Backend{w: w}, nil
}

// Put writes the whole block.
func (b *Backend) Put(block signal.Float64) (int, error) {
	if err := b.w.Write(block); err != nil {
		return 0, err
	}
	return block.Size(), nil
}

// Status is always running.
func (b *Backend) Status() device.State {
	return device.Running
}

// Prepare does nothing.
func (b *Backend) Prepare() error {
	return nil
}

// Close closes the file.
func (b *Backend) Close() error {
	return b.w.Close()
}
