// Package mp3 provides mp3 decoding for samplers and the mp3 recorder
// writer.
package mp3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/viert/lame"

	"github.com/psychosynth/psynth/signal"
)

// decoded stream is always 16 bit stereo.
const (
	numChannels = 2
	bitDepth    = signal.BitDepth16
)

// Writer encodes signal into mp3 file.
type Writer struct {
	f   *os.File
	wr  *lame.LameWriter
	buf bytes.Buffer
}

// NewWriter creates the file and initializes the encoder.
func NewWriter(path string, sampleRate, numChannels, bitRate, quality int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		f:  f,
		wr: lame.NewWriter(f),
	}
	w.wr.Encoder.SetBitrate(bitRate)
	w.wr.Encoder.SetQuality(quality)
	w.wr.Encoder.SetNumChannels(numChannels)
	w.wr.Encoder.SetInSamplerate(sampleRate)
	w.wr.Encoder.SetMode(lame.JOINT_STEREO)
	w.wr.Encoder.SetVBR(lame.VBR_RH)
	w.wr.Encoder.InitParams()
	return w, nil
}

// Write implements device.Writer.
func (w *Writer) Write(block signal.Float64) error {
	w.buf.Reset()
	ints := block.AsInterInt(bitDepth)
	for i := range ints {
		if err := binary.Write(&w.buf, binary.LittleEndian, int16(ints[i])); err != nil {
			return err
		}
	}
	_, err := w.wr.Write(w.buf.Bytes())
	return err
}

// Close flushes the encoder and closes the file.
func (w *Writer) Close() error {
	if err := w.wr.Close(); err != nil {
		return err
	}
	return w.f.Close()
}

// Read decodes the whole mp3 file. Returns the signal and its sample
// rate.
func Read(path string) (signal.Float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, err
	}
	ints := make([]int, 0, max(d.Length(), 0)/int64(bitDepth.Bytes()))
	var val int16
	for {
		if err := binary.Read(d, binary.LittleEndian, &val); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, 0, err
		}
		ints = append(ints, int(val))
	}
	if len(ints)%numChannels == 1 {
		ints = append(ints, 0)
	}
	floats := signal.InterInt{
		Data:        ints,
		NumChannels: numChannels,
		BitDepth:    bitDepth,
	}.AsFloat64()
	return floats, d.SampleRate(), nil
}
