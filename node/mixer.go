package node

import (
	"fmt"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// MixerInputs is the number of inputs of registered mixers.
const MixerInputs = 4

// Mode is the way mixer combines its inputs.
type Mode int

// Supported modes.
const (
	Sum Mode = iota
	Product
)

// ParamMode is the name of the mixer mode param.
const ParamMode = "mode"

type mixer struct {
	mode      *graph.Param
	amplitude *graph.Param
}

// NewMixer returns audio mixer with provided number of inputs.
func NewMixer(f signal.Format, inputs int) *graph.Node {
	return newMixer(KindMixer, f, graph.Audio, inputs)
}

// NewControlMixer returns control mixer with provided number of inputs.
func NewControlMixer(f signal.Format, inputs int) *graph.Node {
	return newMixer(KindControlMixer, f, graph.Control, inputs)
}

func newMixer(kind string, f signal.Format, typ graph.PortType, inputs int) *graph.Node {
	m := &mixer{
		mode:      graph.NewParam(ParamMode, graph.Int, int(Sum)),
		amplitude: graph.NewParam(ParamAmplitude, graph.Float, 1.0),
	}
	n := graph.NewNode(kind, f, m)
	for i := 0; i < inputs; i++ {
		mustRegister(n, graph.NewInPort(fmt.Sprintf("input%d", i), typ))
	}
	mustRegister(n,
		graph.NewOutPort("output", typ),
		m.mode,
		m.amplitude,
	)
	return n
}

// Process implements graph.Impl. Disconnected inputs are ignored. If
// nothing is connected, output is silent.
func (m *mixer) Process(n *graph.Node) {
	out := n.OutAt(0).Data()
	mode := Mode(m.mode.RTInt())
	first := true
	for _, in := range n.Inputs() {
		if !in.Connected() {
			continue
		}
		data := in.Data()
		for c := range out {
			src := data[c%len(data)]
			switch {
			case first:
				copy(out[c], src)
			case mode == Product:
				vecmath.MulBlockInPlace(out[c], src)
			default:
				vecmath.AddBlockInPlace(out[c], src)
			}
		}
		first = false
	}
	if first {
		out.Zero()
		return
	}
	amplitude := m.amplitude.RTFloat()
	for c := range out {
		vecmath.ScaleBlock(out[c], out[c], amplitude)
	}
}
