package graph

import (
	"fmt"

	"github.com/psychosynth/psynth/signal"
)

// PortType is the element type tag of a port.
type PortType int

const (
	// Audio ports carry multi-channel sample blocks.
	Audio PortType = iota
	// Control ports carry single-channel control-rate blocks.
	Control
)

// FadeLength is the number of frames an input fades in after its source
// has changed.
const FadeLength = 256

func (t PortType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Control:
		return "control"
	}
	return fmt.Sprintf("port type %d", int(t))
}

// channels returns the number of channels port of this type has in the
// provided format.
func (t PortType) channels(f signal.Format) int {
	if t == Control {
		return 1
	}
	return f.Channels
}

// Ref is a non-owning reference to a port: the id of its node and the index
// of the port on that node. References are resolved through the patch the
// nodes belong to.
type Ref struct {
	Node ID
	Port int
}

// Valid returns true if reference points to a node.
func (r Ref) Valid() bool {
	return r.Node != NoID
}

type (
	// OutPort is an output of a node. It keeps the references to all
	// connected inputs, so disconnect is proportional to the fan-out.
	OutPort struct {
		name  string
		typ   PortType
		node  *Node
		index int
		data  signal.Float64
		refs  []Ref
	}

	// InPort is an input of a node. It references at most one output.
	InPort struct {
		name    string
		typ     PortType
		node    *Node
		index   int
		src     Ref
		fade    int
		silence signal.Float64
		scratch signal.Float64
	}
)

// NewOutPort creates a detached output port. Its buffer is allocated when
// it's registered on a node.
func NewOutPort(name string, typ PortType) *OutPort {
	return &OutPort{name: name, typ: typ}
}

// NewInPort creates a detached input port.
func NewInPort(name string, typ PortType) *InPort {
	return &InPort{name: name, typ: typ}
}

// Name returns the name of the port.
func (out *OutPort) Name() string { return out.name }

// Type returns the type of the port.
func (out *OutPort) Type() PortType { return out.typ }

// Node returns the node the port belongs to.
func (out *OutPort) Node() *Node { return out.node }

// Index returns the position of the port on its node.
func (out *OutPort) Index() int { return out.index }

// Data returns the buffer of the port. Node implementations write their
// output into it.
func (out *OutPort) Data() signal.Float64 { return out.data }

// Refs returns the references to connected inputs. Must be called from
// the domain that owns the graph.
func (out *OutPort) Refs() []Ref { return out.refs }

func (out *OutPort) attach(n *Node, index int) {
	out.node = n
	out.index = index
	out.data = signal.EmptyFloat64(out.typ.channels(n.format), n.format.BlockSize)
}

func (out *OutPort) removeRef(r Ref) {
	for i := range out.refs {
		if out.refs[i] == r {
			out.refs = append(out.refs[:i], out.refs[i+1:]...)
			return
		}
	}
}

func (out *OutPort) replaceRef(old, r Ref) {
	for i := range out.refs {
		if out.refs[i] == old {
			out.refs[i] = r
			return
		}
	}
}

// Name returns the name of the port.
func (in *InPort) Name() string { return in.name }

// Type returns the type of the port.
func (in *InPort) Type() PortType { return in.typ }

// Node returns the node the port belongs to.
func (in *InPort) Node() *Node { return in.node }

// Index returns the position of the port on its node.
func (in *InPort) Index() int { return in.index }

// Source returns the reference to the connected output. Must be called
// from the domain that owns the graph.
func (in *InPort) Source() (Ref, bool) {
	return in.src, in.src.Valid()
}

// Connected returns true if port has a source. Must be called from the
// domain that owns the graph.
func (in *InPort) Connected() bool {
	return in.src.Valid()
}

func (in *InPort) attach(n *Node, index int) {
	in.node = n
	in.index = index
	channels := in.typ.channels(n.format)
	in.silence = signal.EmptyFloat64(channels, n.format.BlockSize)
	in.scratch = signal.EmptyFloat64(channels, n.format.BlockSize)
}

// ref returns the reference to this port.
func (in *InPort) ref() Ref {
	return Ref{Node: in.node.id, Port: in.index}
}

// Connect connects the input to the output. Ports must have the same type
// and their nodes must belong to the same patch. If validation fails, no
// state is changed. If the node is attached to a process, the connection
// is applied in the real-time domain.
func (in *InPort) Connect(out *OutPort) error {
	if in.node == nil || out.node == nil {
		return fmt.Errorf("connect %q to %q: %w", in.name, out.name, ErrNotAttached)
	}
	if in.typ != out.typ {
		return fmt.Errorf("connect %s %q to %s %q: %w", out.typ, out.name, in.typ, in.name, ErrPortType)
	}
	p := in.node.patch
	if p == nil || p != out.node.patch {
		return fmt.Errorf("connect node %d to node %d: %w", out.node.id, in.node.id, ErrCrossPatch)
	}
	in.node.apply(func() {
		in.disconnect(p)
		in.src = Ref{Node: out.node.id, Port: out.index}
		out.refs = append(out.refs, in.ref())
		in.fade = FadeLength
	})
	return nil
}

// Disconnect removes the source of the input. If the node is attached to a
// process, it's applied in the real-time domain.
func (in *InPort) Disconnect() {
	if in.node == nil {
		return
	}
	p := in.node.patch
	in.node.apply(func() {
		in.disconnect(p)
	})
}

// disconnect removes the source. Patch is captured by the caller, because
// the node might be detached by the time this is executed.
func (in *InPort) disconnect(p *Patch) {
	if !in.src.Valid() {
		return
	}
	if out := p.rtOutPort(in.src); out != nil {
		out.removeRef(in.ref())
	}
	in.src = Ref{}
}

// source resolves the connected output port.
func (in *InPort) source() *OutPort {
	if !in.src.Valid() || in.node.rtPatch == nil {
		return nil
	}
	return in.node.rtPatch.rtOutPort(in.src)
}

// sourceNode resolves the node of the connected output port.
func (in *InPort) sourceNode() *Node {
	if out := in.source(); out != nil {
		return out.node
	}
	return nil
}

// Data returns the input signal for the current block. If nothing is
// connected, silence is returned. When the source has changed recently,
// the signal is faded in to avoid clicks.
func (in *InPort) Data() signal.Float64 {
	out := in.source()
	if out == nil {
		return in.silence
	}
	if in.fade <= 0 {
		return out.data
	}
	start := FadeLength - in.fade
	for c := range in.scratch {
		src := out.data[c%len(out.data)]
		for i := range in.scratch[c] {
			gain := float64(start+i) / FadeLength
			if gain > 1 {
				gain = 1
			}
			in.scratch[c][i] = src[i] * gain
		}
	}
	return in.scratch
}

// Value returns the first sample of the first channel of the input or the
// fallback if nothing is connected. Used to read control inputs at block
// rate.
func (in *InPort) Value(fallback float64) float64 {
	if !in.src.Valid() {
		return fallback
	}
	d := in.Data()
	if d.Size() == 0 {
		return fallback
	}
	return d[0][0]
}

// advance moves the fade envelope by one block.
func (in *InPort) advance() {
	if in.fade > 0 {
		in.fade -= in.node.format.BlockSize
	}
}
