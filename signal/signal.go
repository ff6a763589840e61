// Package signal provides the audio block types shared by the engine. It
// allows to:
// 	- describe the audio format of a graph or a device
// 	- convert interleaved data to non-interleaved and back
//	- convert bit depth for int signals
package signal

import (
	"math"
	"time"
)

// Float64 is a non-interleaved float64 signal. The first dimension is the
// channel, the second is the frame.
type Float64 [][]float64

// Int is a non-interleaved int signal.
type Int [][]int

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// Format describes the audio format of a block: how many channels it has,
// what's the sample rate and how many frames are processed per block.
type Format struct {
	Channels   int
	SampleRate int
	BlockSize  int
}

// DefaultFormat is used when nothing else is configured.
var DefaultFormat = Format{
	Channels:   2,
	SampleRate: 44100,
	BlockSize:  64,
}

// Control returns the format of control-rate signals derived from audio
// format. Control signals are single channel.
func (f Format) Control() Format {
	f.Channels = 1
	return f
}

// BlockDuration returns the time duration of a single block.
func (f Format) BlockDuration() time.Duration {
	return DurationOf(f.SampleRate, int64(f.BlockSize))
}

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

// devider is used when int to float conversion is done.
func (bitDepth BitDepth) devider() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8
	case BitDepth16:
		return math.MaxInt16
	case BitDepth24:
		return 1<<23 - 1
	case BitDepth32:
		return math.MaxInt32
	default:
		return 1
	}
}

// multiplier is used when float to int conversion is done.
func (bitDepth BitDepth) multiplier() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8 - 1
	case BitDepth16:
		return math.MaxInt16 - 1
	case BitDepth24:
		return 1<<23 - 2
	case BitDepth32:
		return math.MaxInt32 - 1
	default:
		return 1
	}
}

// Bytes returns the number of bytes used to store one sample.
func (bitDepth BitDepth) Bytes() int {
	return int(bitDepth) / 8
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// FramesOf returns number of frames that fit into the duration for this
// sample rate.
func FramesOf(sampleRate int, d time.Duration) int {
	return int(float64(sampleRate) * d.Seconds())
}

// AsFloat64 converts interleaved int signal to float64.
func (ints InterInt) AsFloat64() Float64 {
	if ints.Data == nil || ints.NumChannels == 0 {
		return nil
	}
	floats := make([][]float64, ints.NumChannels)
	bufSize := int(math.Ceil(float64(len(ints.Data)) / float64(ints.NumChannels)))

	// determine the devider for bit depth conversion
	devider := float64(ints.BitDepth.devider())

	for i := range floats {
		floats[i] = make([]float64, bufSize)
		pos := 0
		for j := i; j < len(ints.Data); j = j + ints.NumChannels {
			floats[i][pos] = float64(ints.Data[j]) / devider
			pos++
		}
	}
	return floats
}

// AsInterInt converts float64 signal to interleaved int. Values are
// clipped to [-1, 1] before conversion.
func (floats Float64) AsInterInt(bitDepth BitDepth) []int {
	var numChannels int
	if numChannels = len(floats); numChannels == 0 {
		return nil
	}

	// determine the multiplier for bit depth conversion
	multiplier := float64(bitDepth.multiplier())

	ints := make([]int, len(floats[0])*numChannels)

	for j := range floats {
		for i := range floats[j] {
			ints[i*numChannels+j] = int(Clip(floats[j][i]) * multiplier)
		}
	}
	return ints
}

// ReadInterFloat32 writes interleaved float32 data into the signal. Returns
// number of frames read.
func (floats Float64) ReadInterFloat32(data []float32) int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return 0
	}
	frames := len(data) / numChannels
	if size := floats.Size(); frames > size {
		frames = size
	}
	for i := 0; i < frames; i++ {
		for c := range floats {
			floats[c][i] = float64(data[i*numChannels+c])
		}
	}
	return frames
}

// WriteInterFloat32 writes the signal into interleaved float32 buffer.
// Returns number of frames written.
func (floats Float64) WriteInterFloat32(data []float32) int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return 0
	}
	frames := len(data) / numChannels
	if size := floats.Size(); frames > size {
		frames = size
	}
	for i := 0; i < frames; i++ {
		for c := range floats {
			data[i*numChannels+c] = float32(floats[c][i])
		}
	}
	return frames
}

// EmptyFloat64 returns an empty buffer of specified dimentions.
func EmptyFloat64(numChannels int, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// NumChannels returns number of channels in this sample slice
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Zero sets all samples to zero.
func (floats Float64) Zero() {
	for i := range floats {
		for j := range floats[i] {
			floats[i][j] = 0
		}
	}
}

// CopyFrom copies source samples into this signal. Channels are wrapped if
// source has less channels than destination.
func (floats Float64) CopyFrom(source Float64) {
	if source.NumChannels() == 0 {
		floats.Zero()
		return
	}
	for i := range floats {
		copy(floats[i], source[i%len(source)])
	}
}

// Append buffers set to existing one one
// new buffer is returned if b is nil
func (floats Float64) Append(source Float64) Float64 {
	if floats == nil {
		floats = make([][]float64, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float64, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Slice creates a new copy of buffer from start position with defined legth
// if buffer doesn't have enough samples - shorten block is returned
//
// if start >= buffer size, nil is returned
// if start + len >= buffer size, len is decreased till the end of slice
// if start < 0, nil is returned
func (floats Float64) Slice(start int, len int) Float64 {
	if floats == nil || start >= floats.Size() || start < 0 {
		return nil
	}
	end := start + len
	result := make([][]float64, floats.NumChannels())
	for i := range floats {
		if end > floats.Size() {
			end = floats.Size()
		}
		result[i] = append(result[i], floats[i][start:end]...)
	}
	return result
}

// Clip limits the value to [-1, 1] range.
func Clip(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
