package graph

import (
	"fmt"

	"github.com/psychosynth/psynth/signal"
)

// Kinds of nodes provided by this package.
const (
	KindPatch    = "patch"
	KindPatchIn  = "patch_in"
	KindPatchOut = "patch_out"
)

type (
	// Patch is an ordered container of nodes. It owns its children: they
	// are stored in an arena addressed by id. The user domain mutates the
	// arena directly, the real-time list is updated through the events
	// when the patch is attached to a process.
	//
	// Patch is a node itself, so it can be a child of another patch. Its
	// ports are forwarded inside by the boundary nodes.
	Patch struct {
		node   *Node
		format signal.Format
		nodes  map[ID]*Node
		order  []ID

		rtNodes []*Node
		rtIndex map[ID]*Node
	}

	// patchImpl is the computation of the patch node.
	patchImpl struct {
		p *Patch
	}

	// PatchIn forwards the input of the patch node inside the patch.
	PatchIn struct {
		port *InPort
	}

	// PatchOut forwards the signal from inside the patch to the output of
	// the patch node.
	PatchOut struct {
		port *OutPort
	}
)

// NewPatch creates a new empty patch.
func NewPatch(f signal.Format) *Patch {
	p := &Patch{
		format:  f,
		nodes:   make(map[ID]*Node),
		rtIndex: make(map[ID]*Node),
	}
	p.node = NewNode(KindPatch, f, patchImpl{p: p})
	return p
}

// Node returns the node that represents this patch.
func (p *Patch) Node() *Node { return p.node }

// Format returns the format of the patch.
func (p *Patch) Format() signal.Format { return p.format }

// Len returns the number of child nodes.
func (p *Patch) Len() int { return len(p.order) }

// Nodes returns child nodes in the order they were added.
func (p *Patch) Nodes() []*Node {
	nodes := make([]*Node, 0, len(p.order))
	for _, id := range p.order {
		nodes = append(nodes, p.nodes[id])
	}
	return nodes
}

// Get returns child node by id.
func (p *Patch) Get(id ID) (*Node, error) {
	if n, ok := p.nodes[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("patch %d get %d: %w", p.node.id, id, ErrUnknownNode)
}

// Add transfers the ownership of the node to the patch. If the patch is
// attached to a process, the node is attached to it too.
func (p *Patch) Add(n *Node) error {
	if n.host != nil {
		return attachError(n, "add to patch", ErrAlreadyAttached)
	}
	if err := n.AttachToPatch(p); err != nil {
		return err
	}
	p.nodes[n.id] = n
	p.order = append(p.order, n.id)
	p.node.apply(func() {
		p.rtIndex[n.id] = n
		p.rtNodes = append(p.rtNodes, n)
		n.rtPatch = p
	})
	if h := p.node.host; h != nil {
		return n.AttachToProcess(h)
	}
	return nil
}

// Remove disconnects the node, detaches it from the process and removes
// it from the patch.
func (p *Patch) Remove(n *Node) error {
	if p.nodes[n.id] != n {
		return fmt.Errorf("patch %d remove %v: %w", p.node.id, n, ErrUnknownNode)
	}
	var boundary Component
	switch b := n.impl.(type) {
	case *PatchIn:
		boundary = b.port
	case *PatchOut:
		boundary = b.port
	}
	if boundary != nil && p.node.host != nil {
		return attachError(n, "remove boundary while attached to process", ErrAlreadyAttached)
	}

	n.Disconnect()
	if n.host != nil {
		if err := n.DetachFromProcess(); err != nil {
			return err
		}
	}
	delete(p.nodes, n.id)
	if i := indexOf(p.order, n.id); i >= 0 {
		p.order = append(p.order[:i], p.order[i+1:]...)
	}
	p.node.apply(func() {
		delete(p.rtIndex, n.id)
		if i := indexOf(p.rtNodes, n); i >= 0 {
			p.rtNodes = append(p.rtNodes[:i], p.rtNodes[i+1:]...)
		}
		n.rtPatch = nil
	})
	if boundary != nil {
		if err := p.node.Unregister(boundary); err != nil {
			return err
		}
	}
	return n.DetachFromPatch()
}

// Clear removes all nodes from the patch.
func (p *Patch) Clear() error {
	for _, n := range p.Nodes() {
		if err := p.Remove(n); err != nil {
			return err
		}
	}
	return nil
}

// AddInput registers a new input on the patch node and adds the boundary
// node that forwards it inside the patch. Returned node has a single
// output.
func (p *Patch) AddInput(name string, typ PortType) (*Node, error) {
	if p.node.host != nil {
		return nil, attachError(p.node, "add boundary", ErrAlreadyAttached)
	}
	port := NewInPort(name, typ)
	if err := p.node.Register(port); err != nil {
		return nil, err
	}
	b := NewNode(KindPatchIn, p.format, &PatchIn{port: port})
	b.mustRegister(NewOutPort("output", typ))
	if err := p.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// AddOutput registers a new output on the patch node and adds the
// boundary node that forwards the signal outside. Returned node has a
// single input.
func (p *Patch) AddOutput(name string, typ PortType) (*Node, error) {
	if p.node.host != nil {
		return nil, attachError(p.node, "add boundary", ErrAlreadyAttached)
	}
	port := NewOutPort(name, typ)
	if err := p.node.Register(port); err != nil {
		return nil, err
	}
	b := NewNode(KindPatchOut, p.format, &PatchOut{port: port})
	b.mustRegister(NewInPort("input", typ))
	if err := p.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// rtNode returns the child node visible to the real-time domain.
func (p *Patch) rtNode(id ID) *Node {
	if p == nil {
		return nil
	}
	return p.rtIndex[id]
}

// rtOutPort resolves the reference to the output port.
func (p *Patch) rtOutPort(r Ref) *OutPort {
	if n := p.rtNode(r.Node); n != nil {
		return n.OutAt(r.Port)
	}
	return nil
}

// Process pulls the signal through the output boundaries.
func (i patchImpl) Process(n *Node) {
	for _, c := range i.p.rtNodes {
		if _, ok := c.impl.(*PatchOut); ok {
			c.Process()
		}
	}
}

// AttachProcess attaches all children to the process.
func (i patchImpl) AttachProcess(n *Node, h Host) {
	for _, c := range i.p.Nodes() {
		// children can only be attached through the patch.
		_ = c.AttachToProcess(h)
	}
}

// DetachProcess detaches all children from the process.
func (i patchImpl) DetachProcess(n *Node) {
	nodes := i.p.Nodes()
	for j := len(nodes) - 1; j >= 0; j-- {
		_ = nodes[j].DetachFromProcess()
	}
}

// Process copies the input of the patch node.
func (b *PatchIn) Process(n *Node) {
	// the patch node might not be processed yet if a sink inside the patch
	// pulls first.
	if src := b.port.sourceNode(); src != nil {
		src.Process()
	}
	n.outs[0].data.CopyFrom(b.port.Data())
}

// Process copies the signal to the output of the patch node.
func (b *PatchOut) Process(n *Node) {
	b.port.data.CopyFrom(n.ins[0].Data())
}
