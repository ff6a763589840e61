package psynth

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/event"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/metric"
	"github.com/psychosynth/psynth/signal"
)

// state of the processor.
type state int

const (
	idle state = iota
	running
)

func (s state) String() string {
	if s == running {
		return "running"
	}
	return "idle"
}

// Processor owns the root patch and runs the block loop. It implements
// graph.Host: nodes of the root patch and all nested patches are attached
// to it.
//
// There are three execution domains. Real-time domain is whoever calls
// RTRequestProcess, usually a device goroutine. Async domain is the
// worker goroutine of the processor. User domain is any goroutine that
// mutates the graph and calls UserUpdate. Each domain owns an event
// buffer, other domains push events into it.
type Processor struct {
	id     string
	ctx    *Context
	log    logrus.FieldLogger
	format signal.Format
	root   *graph.Patch

	rt    event.Buffer
	async event.Buffer
	user  event.Buffer

	mu       sync.Mutex
	state    state
	starters []*graph.Node
	notify   chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup

	// owned by real-time domain.
	sinks   []*graph.Node
	nodes   []*graph.Node
	measure metric.MeasureFunc
}

// NewProcessor returns idle processor with empty root patch.
func NewProcessor(ctx *Context, f signal.Format) *Processor {
	id := xid.New().String()
	p := &Processor{
		id:     id,
		ctx:    ctx,
		log:    ctx.Logger("processor").WithField("processor", id),
		format: f,
		root:   graph.NewPatch(f),
		notify: make(chan struct{}, 1),
	}
	p.measure = metric.Meter(p, f.SampleRate)()
	// root patch is never attached to other one.
	_ = p.root.Node().AttachToProcess(p)
	return p
}

// ID returns unique id of the processor.
func (p *Processor) ID() string { return p.id }

// Context returns the context of the processor.
func (p *Processor) Context() *Context { return p.ctx }

// Format returns the audio format of the processor.
func (p *Processor) Format() signal.Format { return p.format }

// Root returns the root patch.
func (p *Processor) Root() *graph.Patch { return p.root }

// Running returns true if processor was started.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == running
}

// Start spawns the async worker and starts all process nodes. Errors of
// process nodes are returned, but the processor stays running.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != idle {
		return fmt.Errorf("start %s processor: %w", p.state, ErrInvalidState)
	}
	p.quit = make(chan struct{})
	p.wg.Add(1)
	go p.runAsync(p.notify, p.quit)
	p.state = running

	var errs nodeErrors
	for _, n := range p.starters {
		if err := n.Impl().(graph.Starter).Start(); err != nil {
			errs = append(errs, fmt.Errorf("start %v: %w", n, err))
		}
	}
	p.log.Info("processor started")
	return errs.ret()
}

// Stop stops all process nodes first and then joins the async worker.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != running {
		return fmt.Errorf("stop %s processor: %w", p.state, ErrInvalidState)
	}
	var errs nodeErrors
	for i := len(p.starters) - 1; i >= 0; i-- {
		n := p.starters[i]
		if err := n.Impl().(graph.Starter).Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %v: %w", n, err))
		}
	}
	close(p.quit)
	p.wg.Wait()
	p.state = idle
	p.log.Info("processor stopped")
	return errs.ret()
}

// runAsync executes async events every time it's notified. Remaining
// events are executed before exit.
func (p *Processor) runAsync(notify <-chan struct{}, quit <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-notify:
			p.async.Update()
		case <-quit:
			p.async.Update()
			return
		}
	}
}

// PushRT pushes event into real-time domain. It's executed at the
// beginning of the next block.
func (p *Processor) PushRT(e event.Event) {
	p.rt.Push(e)
}

// PushAsync pushes event into async domain and wakes the worker up.
func (p *Processor) PushAsync(e event.Event) {
	p.async.Push(e)
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// PushUser pushes event into user domain. It's executed by the next
// UserUpdate call.
func (p *Processor) PushUser(e event.Event) {
	p.user.Push(e)
}

// UserUpdate executes events pushed into user domain on the caller's
// goroutine.
func (p *Processor) UserUpdate() {
	p.user.Update()
}

// RTRequestProcess processes one block. Pending real-time events are
// applied first, but only if the buffer is not contended. Then all sinks
// pull the graph and all nodes are advanced. Calls must be serialized by
// the caller.
func (p *Processor) RTRequestProcess() {
	p.rt.TryUpdate()
	for _, n := range p.sinks {
		n.Process()
	}
	for _, n := range p.nodes {
		n.Advance()
	}
	p.measure(int64(p.format.BlockSize))
}

// NodeAttached is called by the node when it's attached to the
// processor. Process nodes are started immediately if processor is
// running.
func (p *Processor) NodeAttached(n *graph.Node) {
	p.PushRT(func() {
		p.nodes = append(p.nodes, n)
		if n.IsSink() {
			p.sinks = append(p.sinks, n)
		}
	})
	s, ok := n.Impl().(graph.Starter)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starters = append(p.starters, n)
	if p.state == running {
		if err := s.Start(); err != nil {
			p.log.WithError(err).WithField("node", n.String()).Error("failed to start node")
		}
	}
}

// NodeDetached is called by the node when it's detached from the
// processor. Process nodes are stopped if processor is running.
func (p *Processor) NodeDetached(n *graph.Node) {
	if s, ok := n.Impl().(graph.Starter); ok {
		p.mu.Lock()
		if i := indexOf(p.starters, n); i >= 0 {
			p.starters = append(p.starters[:i], p.starters[i+1:]...)
			if p.state == running {
				if err := s.Stop(); err != nil {
					p.log.WithError(err).WithField("node", n.String()).Error("failed to stop node")
				}
			}
		}
		p.mu.Unlock()
	}
	p.PushRT(func() {
		if i := indexOf(p.nodes, n); i >= 0 {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
		}
		if i := indexOf(p.sinks, n); i >= 0 {
			p.sinks = append(p.sinks[:i], p.sinks[i+1:]...)
		}
	})
}

func indexOf(nodes []*graph.Node, n *graph.Node) int {
	for i := range nodes {
		if nodes[i] == n {
			return i
		}
	}
	return -1
}
