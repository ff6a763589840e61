/*
Package patcher connects nodes by their proximity.

Patcher keeps candidate links between every pair of tracked nodes that the
compatibility table allows. Links are ordered by the squared distance
between nodes, ties are resolved in favor of the consumer closer to the
origin. Update walks the links from the nearest one and materializes them
as port connections, so the nearest producer wins the consumer input and
every producer output feeds at most one consumer.

Patcher is not safe for concurrent use. It's expected to be used from a
single goroutine of the user domain.
*/
package patcher

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/graph"
)

var (
	// ErrTracked is returned when node is added twice.
	ErrTracked = errors.New("node is already tracked")
	// ErrNotTracked is returned when node is not tracked.
	ErrNotTracked = errors.New("node is not tracked")
)

type (
	// Link is a materialized connection reported to listeners.
	Link struct {
		Source *graph.Node
		Dest   *graph.Node
		Out    int
		In     int
	}

	// Listener is notified when patcher changes connections.
	Listener interface {
		LinkAdded(Link)
		LinkRemoved(Link)
	}

	// Patcher is a proximity-driven connection policy.
	Patcher struct {
		log       logrus.FieldLogger
		table     *Table
		nodes     map[graph.ID]*tracked
		links     *btree.BTreeG[*link]
		listeners []Listener
		seq       uint64
		dirty     bool
	}

	tracked struct {
		node  *graph.Node
		links []*link
	}

	// link is a candidate connection.
	link struct {
		src    *graph.Node
		dst    *graph.Node
		rule   Rule
		dist   float64
		center float64
		seq    uint64
		// in is the materialized input, want is the input selected by
		// the current update pass.
		in   int
		want int
	}

	// socket identifies a port of a node.
	socket struct {
		node graph.ID
		port int
	}
)

// degree of the links b-tree.
const degree = 8

// New returns patcher that uses provided compatibility table.
func New(log logrus.FieldLogger, table *Table) *Patcher {
	return &Patcher{
		log:   log,
		table: table,
		nodes: make(map[graph.ID]*tracked),
		links: btree.NewG[*link](degree, less),
	}
}

func less(a, b *link) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if a.center != b.center {
		return a.center < b.center
	}
	return a.seq < b.seq
}

// AddListener adds the listener of link changes.
func (p *Patcher) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// RemoveListener removes the listener.
func (p *Patcher) RemoveListener(l Listener) {
	for i := range p.listeners {
		if p.listeners[i] == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of tracked nodes.
func (p *Patcher) Len() int {
	return len(p.nodes)
}

// Links returns the number of candidate links.
func (p *Patcher) Links() int {
	return p.links.Len()
}

// AddNode starts tracking the node. Candidate links are created with all
// tracked nodes the table allows.
func (p *Patcher) AddNode(n *graph.Node) error {
	if _, ok := p.nodes[n.ID()]; ok {
		return fmt.Errorf("add %v: %w", n, ErrTracked)
	}
	t := &tracked{node: n}
	for _, other := range p.nodes {
		if r, ok := p.table.Lookup(n.Kind(), other.node.Kind()); ok {
			p.addLink(t, other, r)
		}
		if r, ok := p.table.Lookup(other.node.Kind(), n.Kind()); ok {
			p.addLink(other, t, r)
		}
	}
	p.nodes[n.ID()] = t
	p.dirty = true
	return nil
}

func (p *Patcher) addLink(src, dst *tracked, r Rule) {
	p.seq++
	l := &link{
		src:  src.node,
		dst:  dst.node,
		rule: r,
		seq:  p.seq,
		in:   -1,
		want: -1,
	}
	l.score()
	src.links = append(src.links, l)
	dst.links = append(dst.links, l)
	p.links.ReplaceOrInsert(l)
}

// score updates the distances of the link. Link must not be in the tree.
func (l *link) score() {
	dst := l.dst.Position()
	l.dist = l.src.Position().SquaredDistance(dst)
	l.center = dst.SquaredLength()
}

// RemoveNode stops tracking the node. Its materialized links are
// disconnected.
func (p *Patcher) RemoveNode(n *graph.Node) error {
	t, ok := p.nodes[n.ID()]
	if !ok {
		return fmt.Errorf("remove %v: %w", n, ErrNotTracked)
	}
	for _, l := range t.links {
		p.links.Delete(l)
		if l.in >= 0 {
			p.disconnect(l)
		}
		other := l.src
		if other == n {
			other = l.dst
		}
		if o, ok := p.nodes[other.ID()]; ok {
			o.remove(l)
		}
	}
	delete(p.nodes, n.ID())
	p.dirty = true
	return nil
}

func (t *tracked) remove(l *link) {
	for i := range t.links {
		if t.links[i] == l {
			t.links = append(t.links[:i], t.links[i+1:]...)
			return
		}
	}
}

// SetParamNode must be called after a param of the tracked node has
// changed. Only position changes affect the patcher: links of the node
// are rescored.
func (p *Patcher) SetParamNode(n *graph.Node, id int) error {
	t, ok := p.nodes[n.ID()]
	if !ok {
		return fmt.Errorf("set param %d of %v: %w", id, n, ErrNotTracked)
	}
	if id != graph.ParamPosition {
		return nil
	}
	for _, l := range t.links {
		p.links.Delete(l)
		l.score()
		p.links.ReplaceOrInsert(l)
	}
	p.dirty = true
	return nil
}

// Update recomputes the connections if anything has changed since the
// last update. Links are visited in ascending distance order. A link is
// selected if its producer output doesn't feed another consumer yet, its
// consumer has a free input and it doesn't close a cycle. Then all
// materialized links that weren't selected are disconnected and the
// selected ones are connected.
func (p *Patcher) Update() {
	if !p.dirty {
		return
	}
	p.dirty = false

	var (
		usedOut   = map[socket]bool{}
		usedIn    = map[socket]bool{}
		edges     = map[graph.ID][]graph.ID{}
		connected = map[socket]*link{}
		selected  []*link
	)
	p.links.Ascend(func(l *link) bool {
		l.want = -1
		if l.in >= 0 {
			connected[socket{l.dst.ID(), l.in}] = l
		}
		return true
	})
	p.links.Ascend(func(l *link) bool {
		out := socket{l.src.ID(), l.rule.Out}
		if usedOut[out] {
			return true
		}
		in := p.selectInput(l, usedIn, connected)
		if in < 0 || reaches(edges, l.dst.ID(), l.src.ID()) {
			return true
		}
		l.want = in
		usedOut[out] = true
		usedIn[socket{l.dst.ID(), in}] = true
		edges[l.src.ID()] = append(edges[l.src.ID()], l.dst.ID())
		selected = append(selected, l)
		return true
	})

	p.links.Ascend(func(l *link) bool {
		if l.in >= 0 && l.in != l.want {
			p.disconnect(l)
		}
		return true
	})
	for _, l := range selected {
		if l.in != l.want {
			p.connect(l)
		}
	}
}

// selectInput returns the input of the consumer the link should use or
// -1 if there is none. Inputs claimed in this pass are skipped. For any
// input rules the input the link already uses is kept, otherwise the
// free one is preferred, then the one used by the furthest link.
func (p *Patcher) selectInput(l *link, claimed map[socket]bool, connected map[socket]*link) int {
	id := l.dst.ID()
	if l.rule.In != AnyInput {
		in := l.dst.InAt(l.rule.In)
		if in == nil || in.Type() != l.rule.Socket || claimed[socket{id, l.rule.In}] {
			return -1
		}
		return l.rule.In
	}
	if l.in >= 0 && !claimed[socket{id, l.in}] {
		return l.in
	}
	best := -1
	var bestDist float64
	for _, in := range l.dst.Inputs() {
		s := socket{id, in.Index()}
		if in.Type() != l.rule.Socket || claimed[s] {
			continue
		}
		c, ok := connected[s]
		if !ok {
			return in.Index()
		}
		if best < 0 || c.dist > bestDist {
			best, bestDist = in.Index(), c.dist
		}
	}
	return best
}

// reaches returns true if there is a path from one node to another.
func reaches(edges map[graph.ID][]graph.ID, from, to graph.ID) bool {
	if from == to {
		return true
	}
	visited := map[graph.ID]bool{from: true}
	stack := []graph.ID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range edges[id] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// connect materializes the selected input of the link.
func (p *Patcher) connect(l *link) {
	in := l.dst.InAt(l.want)
	out := l.src.OutAt(l.rule.Out)
	if out == nil {
		p.log.WithField("node", l.src.String()).Warn("patch rule refers missing output")
		return
	}
	if err := in.Connect(out); err != nil {
		p.log.WithError(err).Warn("failed to connect link")
		return
	}
	l.in = l.want
	p.notify(l, true)
}

// disconnect removes the materialized connection of the link.
func (p *Patcher) disconnect(l *link) {
	if in := l.dst.InAt(l.in); in != nil {
		in.Disconnect()
	}
	p.notify(l, false)
	l.in = -1
}

func (p *Patcher) notify(l *link, added bool) {
	v := Link{
		Source: l.src,
		Dest:   l.dst,
		Out:    l.rule.Out,
		In:     l.in,
	}
	for _, listener := range p.listeners {
		if added {
			listener.LinkAdded(v)
		} else {
			listener.LinkRemoved(v)
		}
	}
}

// Clear stops tracking all nodes and disconnects materialized links.
func (p *Patcher) Clear() {
	p.links.Ascend(func(l *link) bool {
		if l.in >= 0 {
			p.disconnect(l)
		}
		return true
	})
	p.links.Clear(false)
	p.nodes = make(map[graph.ID]*tracked)
	p.dirty = false
}
