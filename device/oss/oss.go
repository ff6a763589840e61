//go:build linux

// Package oss provides the Open Sound System device backend.
package oss

import (
	"encoding/binary"
	"errors"
	"math/bits"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/signal"
)

// DefaultDevice is used when config has no device name.
const DefaultDevice = "/dev/dsp"

// ioctl requests from sys/soundcard.h.
const (
	sndctlDSPReset       = 0x00005000
	sndctlDSPSpeed       = 0xC0045002
	sndctlDSPSetFmt      = 0xC0045005
	sndctlDSPChannels    = 0xC0045006
	sndctlDSPSetFragment = 0xC004500A
)

// sample formats, little endian.
const (
	afmtS8    = 0x00000040
	afmtS16LE = 0x00000010
	afmtS32LE = 0x00001000
	afmtS24LE = 0x00010000
)

// Backend writes interleaved integer frames into the dsp device.
type Backend struct {
	fd       int
	cfg      device.Config
	sample   int
	frame    int
	buf      []byte
	encode   func([]byte, int)
	bitDepth signal.BitDepth
}

// New opens the device and negotiates the format. Values not accepted by
// the device are reported as device.ParamError.
func New(cfg device.Config) (*Backend, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.Float {
		cfg.BitDepth = signal.BitDepth32
		cfg.Float = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(cfg.Device, unix.O_WRONLY, 0)
	if err != nil {
		return nil, &device.OpenError{Device: cfg.Device, Err: err}
	}
	b := &Backend{
		fd:       fd,
		cfg:      cfg,
		sample:   cfg.BitDepth.Bytes(),
		bitDepth: cfg.BitDepth,
	}
	if err := b.setup(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	b.frame = cfg.Channels * b.sample
	b.buf = make([]byte, cfg.PeriodSize*b.frame)
	return b, nil
}

func (b *Backend) setup() error {
	var format int
	switch b.bitDepth {
	case signal.BitDepth8:
		format = afmtS8
		b.encode = func(p []byte, v int) { p[0] = byte(int8(v)) }
	case signal.BitDepth16:
		format = afmtS16LE
		b.encode = func(p []byte, v int) { binary.LittleEndian.PutUint16(p, uint16(int16(v))) }
	case signal.BitDepth24:
		format = afmtS24LE
		// 24 bit samples are aligned to 32 bits.
		b.sample = 4
		b.encode = func(p []byte, v int) { binary.LittleEndian.PutUint32(p, uint32(int32(v))) }
	case signal.BitDepth32:
		format = afmtS32LE
		b.encode = func(p []byte, v int) { binary.LittleEndian.PutUint32(p, uint32(int32(v))) }
	}
	if err := b.negotiate("format", sndctlDSPSetFmt, format, true); err != nil {
		return err
	}
	if err := b.negotiate("channels", sndctlDSPChannels, b.cfg.Channels, true); err != nil {
		return err
	}
	if err := b.negotiate("sample rate", sndctlDSPSpeed, b.cfg.SampleRate, false); err != nil {
		return err
	}
	// fragment is a hint, device may choose other size.
	fragment := b.cfg.Periods<<16 | bits.Len(uint(b.cfg.PeriodSize*b.cfg.Channels*b.sample))-1
	_, _ = ioctl(b.fd, sndctlDSPSetFragment, fragment)
	return nil
}

// negotiate sets the value and checks what the device accepted. If exact
// is false, values within 1% are accepted.
func (b *Backend) negotiate(param string, req uint, value int, exact bool) error {
	got, err := ioctl(b.fd, req, value)
	if err != nil {
		return &device.ParamError{Device: b.cfg.Device, Param: param, Value: value, Err: err}
	}
	if got == value || (!exact && abs(got-value)*100 <= value) {
		return nil
	}
	return &device.ParamError{
		Device: b.cfg.Device,
		Param:  param,
		Value:  value,
		Err:    errors.New("device offered different value"),
	}
}

// Put writes interleaved frames. Returns the number of complete frames
// written.
func (b *Backend) Put(block signal.Float64) (int, error) {
	size := min(block.Size(), b.cfg.PeriodSize)
	if size == 0 {
		return 0, nil
	}
	ints := block.Slice(0, size).AsInterInt(b.bitDepth)
	for i, v := range ints {
		b.encode(b.buf[i*b.sample:], v)
	}
	n, err := unix.Write(b.fd, b.buf[:size*b.frame])
	if n < 0 {
		n = 0
	}
	switch {
	case err == nil:
	case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
		err = nil
	case errors.Is(err, unix.EPIPE):
		err = device.ErrXrun
	}
	return n / b.frame, err
}

// Status is always running. OSS recovers under-runs by itself.
func (b *Backend) Status() device.State {
	return device.Running
}

// Prepare drops queued frames and restarts the stream on next write.
func (b *Backend) Prepare() error {
	_, err := ioctl(b.fd, sndctlDSPReset, 0)
	return err
}

// Close closes the device.
func (b *Backend) Close() error {
	return unix.Close(b.fd)
}

// ioctl passes value by pointer and returns what device wrote back.
func ioctl(fd int, req uint, value int) (int, error) {
	v := int32(value)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return 0, errno
	}
	return int(v), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
