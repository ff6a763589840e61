package ring

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/psychosynth/psynth/signal"
)

const (
	// GrainSize is the length of overlap-add grain in frames.
	GrainSize = 512
	// chunkSize is the number of frames fetched from the source at once.
	chunkSize = 256
)

// ErrFactor is returned when scale factor is not positive.
var ErrFactor = errors.New("scale factor must be positive")

type (
	// Source provides frames to the Scaler. Read returns the number of
	// frames written into dst, zero when nothing is available now.
	Source interface {
		Read(dst signal.Float64) int
	}

	// SourceFunc adapts a function to Source interface.
	SourceFunc func(dst signal.Float64) int

	// Scaler changes the rate, tempo and pitch of the source signal.
	//
	// Rate changes both speed and pitch, it's done by linear interpolation
	// between source frames. Tempo and pitch are changed independently with
	// overlap-add time stretch on top of resampling: the signal is
	// resampled by rate*pitch and stretched by tempo/pitch. When tempo and
	// pitch are both 1, stretch is bypassed.
	Scaler struct {
		src      Source
		channels int
		rate     float64
		tempo    float64
		pitch    float64

		// resampler state
		phase float64
		cur   []float64
		next  []float64
		chunk signal.Float64
		pos   int
		size  int

		// stretcher state
		window []float64
		fifo   signal.Float64
		fetch  signal.Float64
		grain  []float64
		acc    signal.Float64
		out    signal.Float64
		outPos int
		anaPos float64
	}
)

// Read calls the function.
func (fn SourceFunc) Read(dst signal.Float64) int {
	return fn(dst)
}

// NewScaler returns a scaler with unit factors.
func NewScaler(channels int, src Source) *Scaler {
	window := make([]float64, GrainSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/GrainSize)
	}
	s := &Scaler{
		src:      src,
		channels: channels,
		rate:     1,
		tempo:    1,
		pitch:    1,
		cur:      make([]float64, channels),
		next:     make([]float64, channels),
		chunk:    signal.EmptyFloat64(channels, chunkSize),
		window:   window,
		fifo:     signal.EmptyFloat64(channels, 0),
		fetch:    signal.EmptyFloat64(channels, chunkSize),
		grain:    make([]float64, GrainSize),
		acc:      signal.EmptyFloat64(channels, GrainSize),
		out:      signal.EmptyFloat64(channels, 0),
	}
	s.Reset()
	return s
}

// Rate returns the rate factor.
func (s *Scaler) Rate() float64 { return s.rate }

// Tempo returns the tempo factor.
func (s *Scaler) Tempo() float64 { return s.tempo }

// Pitch returns the pitch factor.
func (s *Scaler) Pitch() float64 { return s.pitch }

// SetRate sets the resampling factor: 2 plays twice faster and an octave
// higher.
func (s *Scaler) SetRate(v float64) error {
	if v <= 0 {
		return fmt.Errorf("rate %v: %w", v, ErrFactor)
	}
	s.rate = v
	return nil
}

// SetTempo sets the speed factor that keeps the pitch.
func (s *Scaler) SetTempo(v float64) error {
	if v <= 0 {
		return fmt.Errorf("tempo %v: %w", v, ErrFactor)
	}
	s.tempo = v
	return nil
}

// SetPitch sets the pitch factor that keeps the speed.
func (s *Scaler) SetPitch(v float64) error {
	if v <= 0 {
		return fmt.Errorf("pitch %v: %w", v, ErrFactor)
	}
	s.pitch = v
	return nil
}

// Reset drops all buffered frames. Factors are kept.
func (s *Scaler) Reset() {
	// two frames must be fetched before the first output.
	s.phase = 2
	s.pos, s.size = 0, 0
	for c := range s.cur {
		s.cur[c], s.next[c] = 0, 0
	}
	s.acc.Zero()
	for c := range s.fifo {
		s.fifo[c] = s.fifo[c][:0]
		s.out[c] = s.out[c][:0]
	}
	s.outPos = 0
	s.anaPos = 0
}

// Read fills dst with scaled frames. Returns the number of frames written,
// it's less than dst size only when the source has no more frames now.
func (s *Scaler) Read(dst signal.Float64) int {
	if s.tempo == 1 && s.pitch == 1 {
		return s.resample(dst, s.rate)
	}
	return s.stretch(dst)
}

// resample fills dst using linear interpolation. Phase accumulator keeps
// the fractional position between cur and next frames.
func (s *Scaler) resample(dst signal.Float64, step float64) int {
	n := dst.Size()
	for i := 0; i < n; i++ {
		for s.phase >= 1 {
			if !s.advance() {
				return i
			}
			s.phase--
		}
		for c := range dst {
			cur, next := s.cur[c%s.channels], s.next[c%s.channels]
			dst[c][i] = cur + (next-cur)*s.phase
		}
		s.phase += step
	}
	return n
}

// advance shifts the interpolation pair by one source frame.
func (s *Scaler) advance() bool {
	if s.pos == s.size {
		s.size = s.src.Read(s.chunk)
		s.pos = 0
		if s.size == 0 {
			return false
		}
	}
	for c := range s.cur {
		s.cur[c] = s.next[c]
		s.next[c] = s.chunk[c][s.pos]
	}
	s.pos++
	return true
}

// stretch fills dst with overlap-add grains. Each grain is windowed and
// added to the accumulator at synthesis hop of half a grain. Analysis hop
// is the synthesis hop scaled by tempo/pitch.
func (s *Scaler) stretch(dst signal.Float64) int {
	const hop = GrainSize / 2
	n := dst.Size()
	written := 0
	for written < n {
		if ready := len(s.out[0]) - s.outPos; ready > 0 {
			count := min(ready, n-written)
			for c := range dst {
				copy(dst[c][written:written+count], s.out[c%s.channels][s.outPos:s.outPos+count])
			}
			s.outPos += count
			written += count
			continue
		}
		start := int(s.anaPos)
		for len(s.fifo[0]) < start+GrainSize {
			got := s.resample(s.fetch, s.rate*s.pitch)
			if got == 0 {
				return written
			}
			for c := range s.fifo {
				s.fifo[c] = append(s.fifo[c], s.fetch[c][:got]...)
			}
		}
		for c := range s.acc {
			vecmath.MulBlock(s.grain, s.fifo[c][start:start+GrainSize], s.window)
			vecmath.AddBlockInPlace(s.acc[c], s.grain)
			s.out[c] = append(s.out[c][:0], s.acc[c][:hop]...)
			copy(s.acc[c], s.acc[c][hop:])
			clear(s.acc[c][GrainSize-hop:])
		}
		s.outPos = 0

		s.anaPos += hop * s.tempo / s.pitch
		if drop := min(int(s.anaPos), len(s.fifo[0])); drop > 0 {
			for c := range s.fifo {
				remaining := copy(s.fifo[c], s.fifo[c][drop:])
				s.fifo[c] = s.fifo[c][:remaining]
			}
			s.anaPos -= float64(drop)
		}
	}
	return written
}
