/*
Package graph implements the node, port, control and patch model of the
engine.

A Node is a uniform container of typed ports and controls. What a node
computes is defined by its Impl, the kind tag is only used to look up
constructors and patch rules. Nodes are owned by a Patch, which is an arena
addressed by node ids. Back references (input to its source, node to its
patch or process) are non-owning.

Every block, sinks are processed. Processing is memoized: a node pulls its
connected sources first, then runs its own computation. Advance is called
once per block to reset the memoization.

When a node is attached to a process, all mutations of the graph state
read by the real-time domain are pushed as events into that domain.
Otherwise they are applied immediately.
*/
package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/psychosynth/psynth/event"
	"github.com/psychosynth/psynth/signal"
)

// ID is a stable identity of a node.
type ID int64

// NoID is the zero id, it never identifies a node.
const NoID ID = 0

var lastID atomic.Int64

func nextID() ID {
	return ID(lastID.Add(1))
}

type (
	// Impl is the per-kind computation of the node. Process is called once
	// per block after all connected sources are processed.
	Impl interface {
		Process(n *Node)
	}

	// Starter is implemented by nodes that drive their own external I/O,
	// e.g. audio devices. Processor starts and stops them.
	Starter interface {
		Start() error
		Stop() error
	}

	// Advancer is implemented by nodes that need to do something at the
	// end of every block.
	Advancer interface {
		Advance(n *Node)
	}

	// ProcessAttacher is implemented by nodes that need to know about the
	// process they are attached to.
	ProcessAttacher interface {
		AttachProcess(n *Node, h Host)
		DetachProcess(n *Node)
	}

	// Host is the process the node is attached to. It provides the access
	// to the event buffers of all domains.
	Host interface {
		PushRT(event.Event)
		PushAsync(event.Event)
		PushUser(event.Event)
		RTRequestProcess()
		NodeAttached(*Node)
		NodeDetached(*Node)
	}

	// Option configures node at construction.
	Option func(*Node)

	// Node is a processing unit that exposes ports and controls.
	Node struct {
		id     ID
		kind   string
		format signal.Format
		impl   Impl
		sink   bool

		ins         []*InPort
		outs        []*OutPort
		params      []*Param
		states      []*State
		nextParamID int

		// patch is changed by user domain, rtPatch is its copy used by
		// the real-time domain.
		patch   *Patch
		rtPatch *Patch
		host    Host

		processed bool
	}
)

// AsSink marks the node as a sink: it terminates the pull chain and is
// processed every block.
func AsSink() Option {
	return func(n *Node) {
		n.sink = true
	}
}

// NewNode creates a detached node of provided kind. Every node has the
// position param with ParamPosition id.
func NewNode(kind string, f signal.Format, impl Impl, options ...Option) *Node {
	n := &Node{
		id:     nextID(),
		kind:   kind,
		format: f,
		impl:   impl,
	}
	for _, option := range options {
		option(n)
	}
	n.mustRegister(NewParam(PositionName, Vector, Vec2{}))
	return n
}

// ID returns the stable id of the node.
func (n *Node) ID() ID { return n.id }

// Kind returns the kind tag of the node.
func (n *Node) Kind() string { return n.kind }

// Format returns the audio format of the node.
func (n *Node) Format() signal.Format { return n.format }

// Impl returns the computation of the node.
func (n *Node) Impl() Impl { return n.impl }

// IsSink returns true if the node terminates pull chain.
func (n *Node) IsSink() bool { return n.sink }

// Patch returns the patch the node is attached to.
func (n *Node) Patch() *Patch { return n.patch }

// Host returns the process the node is attached to.
func (n *Node) Host() Host { return n.host }

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}

// Position returns the user value of position param.
func (n *Node) Position() Vec2 {
	return n.params[0].Vec2()
}

// SetPosition sets the position param.
func (n *Node) SetPosition(v Vec2) error {
	return n.params[0].Set(v)
}

// apply executes the mutation in the real-time domain if the node is
// attached to a process. Otherwise it's executed immediately.
func (n *Node) apply(e event.Event) {
	if n.host != nil {
		n.host.PushRT(e)
		return
	}
	e()
}

// AttachToPatch attaches node to the patch. Node can be attached to at most
// one patch.
func (n *Node) AttachToPatch(p *Patch) error {
	if n.patch != nil {
		return attachError(n, "attach to patch", ErrAlreadyAttached)
	}
	n.patch = p
	return nil
}

// DetachFromPatch detaches node from its patch. Node must be detached from
// the process first.
func (n *Node) DetachFromPatch() error {
	if n.patch == nil {
		return attachError(n, "detach from patch", ErrNotAttached)
	}
	if n.host != nil {
		return attachError(n, "detach from patch while attached to process", ErrAlreadyAttached)
	}
	n.patch = nil
	return nil
}

// AttachToProcess attaches node to the process. Node can be attached to
// at most one process.
func (n *Node) AttachToProcess(h Host) error {
	if n.host != nil {
		return attachError(n, "attach to process", ErrAlreadyAttached)
	}
	n.host = h
	if a, ok := n.impl.(ProcessAttacher); ok {
		a.AttachProcess(n, h)
	}
	h.NodeAttached(n)
	return nil
}

// DetachFromProcess detaches node from its process.
func (n *Node) DetachFromProcess() error {
	if n.host == nil {
		return attachError(n, "detach from process", ErrNotAttached)
	}
	h := n.host
	h.NodeDetached(n)
	if a, ok := n.impl.(ProcessAttacher); ok {
		a.DetachProcess(n)
	}
	n.host = nil
	return nil
}

// Component is a port or a control of a node.
type Component interface {
	Name() string
}

// Register adds components to the node. Names must be unique within
// the same class of components.
func (n *Node) Register(components ...Component) error {
	for _, c := range components {
		if err := n.register(c); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) mustRegister(components ...Component) {
	if err := n.Register(components...); err != nil {
		panic(err)
	}
}

func (n *Node) register(c Component) error {
	switch v := c.(type) {
	case *InPort:
		if _, err := n.In(v.name); err == nil {
			return componentError(n, "input", v.name, ErrDuplicateComponent)
		}
		v.attach(n, len(n.ins))
		n.ins = append(n.ins, v)
	case *OutPort:
		if _, err := n.Out(v.name); err == nil {
			return componentError(n, "output", v.name, ErrDuplicateComponent)
		}
		v.attach(n, len(n.outs))
		n.outs = append(n.outs, v)
	case *Param:
		if _, err := n.Param(v.name); err == nil {
			return componentError(n, "param", v.name, ErrDuplicateComponent)
		}
		v.node = n
		v.id = n.nextParamID
		n.nextParamID++
		n.params = append(n.params, v)
	case *State:
		if _, err := n.State(v.name); err == nil {
			return componentError(n, "state", v.name, ErrDuplicateComponent)
		}
		v.node = n
		v.index = len(n.states)
		n.states = append(n.states, v)
	default:
		return fmt.Errorf("register %T: %w", c, ErrUnknownComponent)
	}
	return nil
}

// Unregister removes component from the node. Ports are disconnected
// first and can only be unregistered while the node is detached from the
// process, because the indices of the following ports are shifted.
func (n *Node) Unregister(c Component) error {
	switch v := c.(type) {
	case *InPort:
		i := indexOf(n.ins, v)
		if i < 0 {
			return componentError(n, "input", v.name, ErrUnknownComponent)
		}
		if n.host != nil {
			return attachError(n, "unregister input", ErrAlreadyAttached)
		}
		v.Disconnect()
		n.ins = append(n.ins[:i], n.ins[i+1:]...)
		n.apply(func() {
			n.reindexInputs(i)
		})
	case *OutPort:
		i := indexOf(n.outs, v)
		if i < 0 {
			return componentError(n, "output", v.name, ErrUnknownComponent)
		}
		if n.host != nil {
			return attachError(n, "unregister output", ErrAlreadyAttached)
		}
		n.disconnectOut(v)
		n.outs = append(n.outs[:i], n.outs[i+1:]...)
		n.apply(func() {
			n.reindexOutputs(i)
		})
	case *Param:
		i := indexOf(n.params, v)
		if i < 0 || v.id == ParamPosition {
			return componentError(n, "param", v.name, ErrUnknownComponent)
		}
		n.params = append(n.params[:i], n.params[i+1:]...)
	case *State:
		i := indexOf(n.states, v)
		if i < 0 {
			return componentError(n, "state", v.name, ErrUnknownComponent)
		}
		n.states = append(n.states[:i], n.states[i+1:]...)
		for j := i; j < len(n.states); j++ {
			n.states[j].index = j
		}
	default:
		return fmt.Errorf("unregister %T: %w", c, ErrUnknownComponent)
	}
	return nil
}

// reindexInputs renumbers inputs starting from the index and moves the
// references held by their sources.
func (n *Node) reindexInputs(from int) {
	p := n.patch
	for j := from; j < len(n.ins); j++ {
		in := n.ins[j]
		old := in.ref()
		in.index = j
		if out := p.rtOutPort(in.src); out != nil {
			out.replaceRef(old, in.ref())
		}
	}
}

// reindexOutputs renumbers outputs starting from the index and moves the
// source references of the connected inputs.
func (n *Node) reindexOutputs(from int) {
	p := n.patch
	for j := from; j < len(n.outs); j++ {
		out := n.outs[j]
		out.index = j
		for _, r := range out.refs {
			if dst := p.rtNode(r.Node); dst != nil {
				if in := dst.InAt(r.Port); in != nil && in.src.Node == n.id {
					in.src.Port = j
				}
			}
		}
	}
}

func indexOf[T comparable](s []T, v T) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}

// In returns input port by name.
func (n *Node) In(name string) (*InPort, error) {
	for _, in := range n.ins {
		if in.name == name {
			return in, nil
		}
	}
	return nil, componentError(n, "input", name, ErrUnknownComponent)
}

// Out returns output port by name.
func (n *Node) Out(name string) (*OutPort, error) {
	for _, out := range n.outs {
		if out.name == name {
			return out, nil
		}
	}
	return nil, componentError(n, "output", name, ErrUnknownComponent)
}

// Param returns param by name.
func (n *Node) Param(name string) (*Param, error) {
	for _, p := range n.params {
		if p.name == name {
			return p, nil
		}
	}
	return nil, componentError(n, "param", name, ErrUnknownComponent)
}

// ParamByID returns param by its stable id.
func (n *Node) ParamByID(id int) (*Param, error) {
	for _, p := range n.params {
		if p.id == id {
			return p, nil
		}
	}
	return nil, componentError(n, "param", fmt.Sprint(id), ErrUnknownComponent)
}

// State returns output control by name.
func (n *Node) State(name string) (*State, error) {
	for _, s := range n.states {
		if s.name == name {
			return s, nil
		}
	}
	return nil, componentError(n, "state", name, ErrUnknownComponent)
}

// Inputs returns all input ports in registration order.
func (n *Node) Inputs() []*InPort { return n.ins }

// Outputs returns all output ports in registration order.
func (n *Node) Outputs() []*OutPort { return n.outs }

// Params returns all params in registration order.
func (n *Node) Params() []*Param { return n.params }

// States returns all output controls in registration order.
func (n *Node) States() []*State { return n.states }

// InAt returns input port by index or nil.
func (n *Node) InAt(i int) *InPort {
	if i < 0 || i >= len(n.ins) {
		return nil
	}
	return n.ins[i]
}

// OutAt returns output port by index or nil.
func (n *Node) OutAt(i int) *OutPort {
	if i < 0 || i >= len(n.outs) {
		return nil
	}
	return n.outs[i]
}

// Process runs the computation of the node for the current block. If the
// node was already processed in this block, it returns immediately.
// Otherwise all connected sources are processed first. The flag is raised
// before pulling the sources, so cycles read the previous block.
func (n *Node) Process() {
	if n.processed {
		return
	}
	n.processed = true
	for _, in := range n.ins {
		if src := in.sourceNode(); src != nil {
			src.Process()
		}
	}
	n.impl.Process(n)
}

// Processed returns true if node was processed in the current block.
func (n *Node) Processed() bool { return n.processed }

// Advance resets the memoization for the next block.
func (n *Node) Advance() {
	for _, in := range n.ins {
		in.advance()
	}
	if a, ok := n.impl.(Advancer); ok {
		a.Advance(n)
	}
	n.processed = false
}

// Disconnect removes all connections of the node.
func (n *Node) Disconnect() {
	for _, in := range n.ins {
		in.Disconnect()
	}
	for _, out := range n.outs {
		n.disconnectOut(out)
	}
}

// disconnectOut disconnects all inputs that reference the output.
func (n *Node) disconnectOut(out *OutPort) {
	p := n.patch
	n.apply(func() {
		refs := append([]Ref(nil), out.refs...)
		for _, r := range refs {
			if dst := p.rtNode(r.Node); dst != nil {
				if in := dst.InAt(r.Port); in != nil {
					in.disconnect(p)
				}
			}
		}
		out.refs = out.refs[:0]
	})
}
