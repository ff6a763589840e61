package node

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// Response is the type of the filter.
type Response int

// Supported responses.
const (
	LowPass Response = iota
	HighPass
	BandPass
	Notch
)

// Ports and params of the filter.
const (
	InInput  = 0
	InCutoff = 1

	ParamResponse  = "response"
	ParamResonance = "resonance"
)

// filter is a biquad filter with one section per channel. Cutoff input
// modulates the frequency exponentially in octaves, it's read once per
// block and the coefficients are redesigned without resetting the state.
type filter struct {
	response  *graph.Param
	frequency *graph.Param
	resonance *graph.Param
	sections  []*biquad.Section
}

// NewFilter returns audio filter.
func NewFilter(f signal.Format) *graph.Node {
	o := &filter{
		response:  graph.NewParam(ParamResponse, graph.Int, int(LowPass)),
		frequency: graph.NewParam(ParamFrequency, graph.Float, 440.0),
		resonance: graph.NewParam(ParamResonance, graph.Float, math.Sqrt2/2),
		sections:  make([]*biquad.Section, f.Channels),
	}
	for c := range o.sections {
		o.sections[c] = biquad.NewSection(biquad.Coefficients{})
	}
	n := graph.NewNode(KindFilter, f, o)
	mustRegister(n,
		graph.NewInPort("input", graph.Audio),
		graph.NewInPort("cutoff", graph.Control),
		graph.NewOutPort("output", graph.Audio),
		o.response,
		o.frequency,
		o.resonance,
	)
	return n
}

// Process implements graph.Impl.
func (o *filter) Process(n *graph.Node) {
	frequency := o.frequency.RTFloat() * math.Exp2(n.InAt(InCutoff).Value(0))
	k := coefficients(Response(o.response.RTInt()), frequency, o.resonance.RTFloat(), float64(n.Format().SampleRate))
	in := n.InAt(InInput).Data()
	out := n.OutAt(0).Data()
	for c, s := range o.sections {
		s.Coefficients = k
		s.ProcessBlockTo(out[c], in[c%len(in)])
	}
}

// coefficients designs the section for the response. Frequency is clamped
// below nyquist.
func coefficients(r Response, frequency, q, sampleRate float64) biquad.Coefficients {
	frequency = math.Max(10, math.Min(frequency, sampleRate*0.49))
	if q <= 0 {
		q = 0.01
	}
	switch r {
	case HighPass:
		return design.Highpass(frequency, q, sampleRate)
	case BandPass:
		return design.Bandpass(frequency, q, sampleRate)
	case Notch:
		return design.Notch(frequency, q, sampleRate)
	default:
		return design.Lowpass(frequency, q, sampleRate)
	}
}
