/*
Package device provides audio device backends and the drivers that run
them.

Output is what the output node drives: it calls back into the node to pull
exactly the requested number of frames and writes them to the device.
Blocking backends implement Backend and are driven by a Thread: a
goroutine with explicit stop flag and join. Pull-model backends, where the
platform owns the audio thread, implement Output directly.

Errors at construction are reported as OpenError or ParamError. Once the
stream is running, xruns and suspends are recovered in place and only
logged.
*/
package device

import (
	"errors"
	"fmt"

	"github.com/psychosynth/psynth/signal"
)

var (
	// ErrXrun is returned by backend when under-run or over-run happened.
	ErrXrun = errors.New("xrun")
	// ErrSuspended is returned by backend when device was suspended.
	ErrSuspended = errors.New("device suspended")
	// ErrInvalidState is returned when output is started twice or stopped
	// while it's not running.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoCallback is returned when output is started without callback.
	ErrNoCallback = errors.New("callback is not set")
)

// State is the status of the device stream.
type State int

const (
	// Running stream accepts frames.
	Running State = iota
	// Xrun stream needs to be prepared.
	Xrun
	// Suspended stream needs to be resumed or prepared.
	Suspended
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Xrun:
		return "xrun"
	case Suspended:
		return "suspended"
	}
	return fmt.Sprintf("state %d", int(s))
}

type (
	// Config holds construction parameters of the device. They are
	// supplied by the application and never decided by backends.
	Config struct {
		Device      string
		BitDepth    signal.BitDepth
		Float       bool
		Channels    int
		SampleRate  int
		PeriodSize  int
		Periods     int
		Interleaved bool
	}

	// Callback fills the whole buffer with the next frames.
	Callback func(buf signal.Float64)

	// Output is the device driven by the output node.
	Output interface {
		Config() Config
		SetCallback(Callback)
		Start() error
		Stop() error
	}

	// Backend is a blocking device stream. Put writes frames and returns
	// the number of frames actually accepted.
	Backend interface {
		Put(block signal.Float64) (int, error)
		Status() State
		Prepare() error
		Close() error
	}

	// Resumer is implemented by backends that can resume suspended stream
	// without re-preparing it.
	Resumer interface {
		Resume() error
	}

	// Passive consumes copies of the output signal without driving the
	// graph. Push must never block.
	Passive interface {
		Push(block signal.Float64) bool
	}

	// Writer writes signal to the encoded media, e.g. a file.
	Writer interface {
		Write(block signal.Float64) error
		Close() error
	}

	// OpenError is returned when device cannot be opened.
	OpenError struct {
		Device string
		Err    error
	}

	// ParamError is returned when device doesn't accept a parameter.
	ParamError struct {
		Device string
		Param  string
		Value  any
		Err    error
	}
)

// Validate checks that config values are usable.
func (c Config) Validate() error {
	switch {
	case c.Channels <= 0:
		return &ParamError{Device: c.Device, Param: "channels", Value: c.Channels}
	case c.SampleRate <= 0:
		return &ParamError{Device: c.Device, Param: "sample rate", Value: c.SampleRate}
	case c.PeriodSize <= 0:
		return &ParamError{Device: c.Device, Param: "period size", Value: c.PeriodSize}
	case c.Periods <= 0:
		return &ParamError{Device: c.Device, Param: "periods", Value: c.Periods}
	}
	if !c.Float {
		switch c.BitDepth {
		case signal.BitDepth8, signal.BitDepth16, signal.BitDepth24, signal.BitDepth32:
		default:
			return &ParamError{Device: c.Device, Param: "bit depth", Value: c.BitDepth}
		}
	}
	return nil
}

// BufferSize returns the device buffer size in frames.
func (c Config) BufferSize() int {
	return c.PeriodSize * c.Periods
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open device %q: %v", e.Device, e.Err)
}

// Unwrap returns the cause.
func (e *OpenError) Unwrap() error {
	return e.Err
}

func (e *ParamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %q: invalid %s: %v", e.Device, e.Param, e.Value)
	}
	return fmt.Sprintf("device %q: set %s to %v: %v", e.Device, e.Param, e.Value, e.Err)
}

// Unwrap returns the cause.
func (e *ParamError) Unwrap() error {
	return e.Err
}

// view points dst channels to the frames of src starting at offset.
func view(dst, src signal.Float64, offset int) signal.Float64 {
	for c := range src {
		dst[c] = src[c][offset:]
	}
	return dst
}
