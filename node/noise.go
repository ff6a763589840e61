package node

import (
	"math/rand/v2"

	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// Color of the noise.
type Color int

// Supported colors.
const (
	White Color = iota
	Pink
)

// ParamColor is the name of the noise color param.
const ParamColor = "color"

// noise generates white or pink noise. Pink noise is white noise filtered
// with Paul Kellet's economy filter.
type noise struct {
	rnd       *rand.Rand
	b0        float64
	b1        float64
	b2        float64
	color     *graph.Param
	amplitude *graph.Param
}

// NewNoise returns audio noise generator. Amplitude input multiplies the
// amplitude param.
func NewNoise(f signal.Format) *graph.Node {
	o := &noise{
		rnd:       rand.New(rand.NewPCG(1, 2)),
		color:     graph.NewParam(ParamColor, graph.Int, int(White)),
		amplitude: graph.NewParam(ParamAmplitude, graph.Float, 0.3),
	}
	n := graph.NewNode(KindNoise, f, o)
	mustRegister(n,
		graph.NewInPort("amplitude", graph.Control),
		graph.NewOutPort("output", graph.Audio),
		o.color,
		o.amplitude,
	)
	return n
}

// Process implements graph.Impl.
func (o *noise) Process(n *graph.Node) {
	out := n.OutAt(0).Data()
	am := n.InAt(0)
	amData := am.Data()
	amOn := am.Connected()
	color := Color(o.color.RTInt())
	amplitude := o.amplitude.RTFloat()

	ch := out[0]
	for i := range ch {
		v := o.rnd.Float64()*2 - 1
		if color == Pink {
			o.b0 = 0.99765*o.b0 + v*0.0990460
			o.b1 = 0.96300*o.b1 + v*0.2965164
			o.b2 = 0.57000*o.b2 + v*1.0526913
			v = (o.b0 + o.b1 + o.b2 + v*0.1848) * 0.11
		}
		amp := amplitude
		if amOn {
			amp *= amData[0][i]
		}
		ch[i] = amp * v
	}
	for c := 1; c < len(out); c++ {
		copy(out[c], ch)
	}
}
