package node

import (
	"math"

	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// Wave is the shape of the oscillator.
type Wave int

// Supported waves.
const (
	Sine Wave = iota
	Square
	Triangle
	Sawtooth
	Exp
)

// Ports and controls of oscillators.
const (
	InFrequency = 0
	InAmplitude = 1

	ParamWave      = "wave"
	ParamFrequency = "frequency"
	ParamAmplitude = "amplitude"
	StatePhase     = "phase"
)

// oscillator generates periodic wave. Frequency input modulates the
// frequency exponentially in octaves, amplitude input multiplies the
// amplitude.
type oscillator struct {
	phase     float64
	wave      *graph.Param
	frequency *graph.Param
	amplitude *graph.Param
	state     *graph.State
}

// NewOscillator returns audio oscillator.
func NewOscillator(f signal.Format) *graph.Node {
	return newOscillator(KindOscillator, f, graph.Audio, 220, 0.3)
}

// NewLFO returns control oscillator.
func NewLFO(f signal.Format) *graph.Node {
	return newOscillator(KindLFO, f, graph.Control, 1, 1)
}

func newOscillator(kind string, f signal.Format, out graph.PortType, frequency, amplitude float64) *graph.Node {
	o := &oscillator{
		wave:      graph.NewParam(ParamWave, graph.Int, int(Sine)),
		frequency: graph.NewParam(ParamFrequency, graph.Float, frequency),
		amplitude: graph.NewParam(ParamAmplitude, graph.Float, amplitude),
		state:     graph.NewState(StatePhase),
	}
	n := graph.NewNode(kind, f, o)
	mustRegister(n,
		graph.NewInPort("frequency", graph.Control),
		graph.NewInPort("amplitude", graph.Control),
		graph.NewOutPort("output", out),
		o.wave,
		o.frequency,
		o.amplitude,
		o.state,
	)
	return n
}

// Process implements graph.Impl.
func (o *oscillator) Process(n *graph.Node) {
	var (
		out       = n.OutAt(0).Data()
		fm        = n.InAt(InFrequency)
		am        = n.InAt(InAmplitude)
		fmData    = fm.Data()
		amData    = am.Data()
		fmOn      = fm.Connected()
		amOn      = am.Connected()
		wave      = Wave(o.wave.RTInt())
		frequency = o.frequency.RTFloat()
		amplitude = o.amplitude.RTFloat()
		rate      = float64(n.Format().SampleRate)
	)
	ch := out[0]
	for i := range ch {
		freq := frequency
		if fmOn {
			freq *= math.Exp2(fmData[0][i])
		}
		amp := amplitude
		if amOn {
			amp *= amData[0][i]
		}
		ch[i] = amp * wave.value(o.phase)
		o.phase += freq / rate
		o.phase -= math.Floor(o.phase)
	}
	for c := 1; c < len(out); c++ {
		copy(out[c], ch)
	}
	o.state.Set(o.phase)
}

// value returns the value of the wave at the phase in [0, 1).
func (w Wave) value(phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	case Sawtooth:
		return 2*phase - 1
	case Exp:
		if phase < 0.5 {
			return 2*math.Exp2(-8*phase*2) - 1
		}
		return 1 - 2*math.Exp2(-8*(phase-0.5)*2)
	}
	return math.Sin(2 * math.Pi * phase)
}

// mustRegister panics if components of built-in node cannot be
// registered.
func mustRegister(n *graph.Node, components ...graph.Component) {
	if err := n.Register(components...); err != nil {
		panic(err)
	}
}
