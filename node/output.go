package node

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/ring"
	"github.com/psychosynth/psynth/signal"
)

// DefaultRingFrames is the ring capacity of registered output nodes.
const DefaultRingFrames = 8192

var (
	// ErrOutputAttached is returned when device is attached twice.
	ErrOutputAttached = errors.New("output is already attached")
	// ErrOutputNotAttached is returned when detached device is not
	// attached.
	ErrOutputNotAttached = errors.New("output is not attached")
)

type (
	// Output is the sink that feeds audio devices. Every block is written
	// into the ring buffer and pushed to passive outputs.
	//
	// Active outputs read the ring with their own cursors. The first
	// active output in the real-time list drives the graph: when its
	// cursor catches up with the ring, it requests the processor to
	// process the next block. Other active outputs only read what is
	// available. While the list is empty, the first device that pulls
	// drives, so pending attach events get applied.
	//
	// Attach and detach change the lists through real-time events. Device
	// goroutines never wait for the user domain.
	Output struct {
		log       logrus.FieldLogger
		ring      *ring.Buffer
		block     signal.Float64
		amplitude *graph.Param
		host      atomic.Pointer[hostRef]

		// mu guards the user view of outputs.
		mu       sync.Mutex
		running  bool
		actives  []*active
		passives []device.Passive

		// rtMu serializes device goroutines. It's taken by the user domain
		// only when the node is detached from the process.
		rtMu       sync.Mutex
		rtActives  []*active
		rtPassives []device.Passive
	}

	active struct {
		dev    device.Output
		reader *ring.Reader
		view   signal.Float64
	}

	hostRef struct {
		graph.Host
	}
)

// NewOutput returns output node with provided ring capacity in frames.
// Capacity must be at least one block.
func NewOutput(ctx *psynth.Context, f signal.Format, capacity int) (*graph.Node, *Output) {
	if capacity < f.BlockSize {
		capacity = f.BlockSize
	}
	log := ctx.Logger(KindOutput)
	o := &Output{
		log:       log,
		ring:      ring.New(log, f.Channels, capacity),
		block:     signal.EmptyFloat64(f.Channels, f.BlockSize),
		amplitude: graph.NewParam(ParamAmplitude, graph.Float, 1.0),
	}
	n := graph.NewNode(KindOutput, f, o, graph.AsSink())
	mustRegister(n,
		graph.NewInPort("input", graph.Audio),
		o.amplitude,
	)
	return n, o
}

// Process implements graph.Impl.
func (o *Output) Process(n *graph.Node) {
	in := n.InAt(0).Data()
	amplitude := o.amplitude.RTFloat()
	for c := range o.block {
		src := in[c%len(in)]
		for i := range o.block[c] {
			o.block[c][i] = src[i] * amplitude
		}
	}
	o.ring.Write(o.block)
	for _, p := range o.rtPassives {
		p.Push(o.block)
	}
}

// AttachProcess implements graph.ProcessAttacher.
func (o *Output) AttachProcess(n *graph.Node, h graph.Host) {
	o.host.Store(&hostRef{Host: h})
}

// DetachProcess implements graph.ProcessAttacher.
func (o *Output) DetachProcess(n *graph.Node) {
	o.host.Store(nil)
}

// Start implements graph.Starter. It starts all active outputs.
func (o *Output) Start() error {
	o.mu.Lock()
	o.running = true
	actives := append([]*active(nil), o.actives...)
	o.mu.Unlock()

	var errs []error
	for _, a := range actives {
		if err := a.dev.Start(); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", a.dev.Config().Device, err))
		}
	}
	return errors.Join(errs...)
}

// Stop implements graph.Starter. It stops all active outputs in reverse
// order. Lock is not held, because devices join the goroutines that pull
// this node.
func (o *Output) Stop() error {
	o.mu.Lock()
	o.running = false
	actives := append([]*active(nil), o.actives...)
	o.mu.Unlock()

	var errs []error
	for i := len(actives) - 1; i >= 0; i-- {
		if err := actives[i].dev.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", actives[i].dev.Config().Device, err))
		}
	}
	return errors.Join(errs...)
}

// AttachOutput adds the active output. It's started immediately if the
// node is running.
func (o *Output) AttachOutput(dev device.Output) error {
	o.mu.Lock()
	if o.find(dev) >= 0 {
		o.mu.Unlock()
		return fmt.Errorf("attach %s: %w", dev.Config().Device, ErrOutputAttached)
	}
	a := &active{
		dev:  dev,
		view: make(signal.Float64, dev.Config().Channels),
	}
	dev.SetCallback(func(dst signal.Float64) {
		o.pull(a, dst)
	})
	o.actives = append(o.actives, a)
	running := o.running
	o.mu.Unlock()

	o.applyRT(func() {
		a.reader = o.ring.NewReader()
		o.rtActives = append(o.rtActives, a)
	})
	if running {
		if err := dev.Start(); err != nil {
			o.remove(a)
			return fmt.Errorf("attach %s: %w", dev.Config().Device, err)
		}
	}
	o.log.WithField("device", dev.Config().Device).Debug("output attached")
	return nil
}

// DetachOutput removes the active output. It's stopped if the node is
// running. If it was driving the graph, the next active output takes
// over.
func (o *Output) DetachOutput(dev device.Output) error {
	o.mu.Lock()
	i := o.find(dev)
	if i < 0 {
		o.mu.Unlock()
		return fmt.Errorf("detach %s: %w", dev.Config().Device, ErrOutputNotAttached)
	}
	a := o.actives[i]
	running := o.running
	o.mu.Unlock()

	o.remove(a)
	o.log.WithField("device", dev.Config().Device).Debug("output detached")
	if running {
		return dev.Stop()
	}
	return nil
}

// remove deletes the active output from both lists.
func (o *Output) remove(a *active) {
	o.mu.Lock()
	if i := indexOfActive(o.actives, a); i >= 0 {
		o.actives = append(o.actives[:i], o.actives[i+1:]...)
	}
	o.mu.Unlock()
	o.applyRT(func() {
		if i := indexOfActive(o.rtActives, a); i >= 0 {
			o.rtActives = append(o.rtActives[:i], o.rtActives[i+1:]...)
		}
	})
}

// Outputs returns the number of active outputs.
func (o *Output) Outputs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.actives)
}

// AttachPassiveOutput adds the passive output. It receives every block
// processed after the next flip of the real-time domain.
func (o *Output) AttachPassiveOutput(p device.Passive) error {
	o.mu.Lock()
	if indexOfPassive(o.passives, p) >= 0 {
		o.mu.Unlock()
		return fmt.Errorf("attach passive: %w", ErrOutputAttached)
	}
	o.passives = append(o.passives, p)
	o.mu.Unlock()

	o.applyRT(func() {
		o.rtPassives = append(o.rtPassives, p)
	})
	return nil
}

// DetachPassiveOutput removes the passive output. It can still receive
// the block that is processed before the next flip.
func (o *Output) DetachPassiveOutput(p device.Passive) error {
	o.mu.Lock()
	i := indexOfPassive(o.passives, p)
	if i < 0 {
		o.mu.Unlock()
		return fmt.Errorf("detach passive: %w", ErrOutputNotAttached)
	}
	o.passives = append(o.passives[:i], o.passives[i+1:]...)
	o.mu.Unlock()

	o.applyRT(func() {
		if i := indexOfPassive(o.rtPassives, p); i >= 0 {
			o.rtPassives = append(o.rtPassives[:i], o.rtPassives[i+1:]...)
		}
	})
	return nil
}

// applyRT pushes event into the real-time domain if node is attached to
// the process. Otherwise it's executed immediately.
func (o *Output) applyRT(e func()) {
	if h := o.host.Load(); h != nil {
		h.PushRT(e)
		return
	}
	o.rtMu.Lock()
	defer o.rtMu.Unlock()
	e()
}

// pull fills the device buffer from the ring. Called by device
// goroutines.
func (o *Output) pull(a *active, dst signal.Float64) {
	o.rtMu.Lock()
	defer o.rtMu.Unlock()
	h := o.host.Load()
	if len(o.rtActives) == 0 && h != nil {
		h.RTRequestProcess()
	}
	read := 0
	if indexOfActive(o.rtActives, a) >= 0 {
		read = o.read(a, dst, h)
	}
	for c := range dst {
		for i := read; i < dst.Size(); i++ {
			dst[c][i] = 0
		}
	}
}

// read copies frames from the ring. The driver processes new blocks when
// the ring is drained. Returns the number of frames read.
func (o *Output) read(a *active, dst signal.Float64, h *hostRef) int {
	driver := o.rtActives[0] == a
	if len(a.view) != len(dst) {
		a.view = make(signal.Float64, len(dst))
	}
	size := dst.Size()
	read := 0
	for read < size {
		if o.ring.Available(a.reader) == 0 {
			if !driver || h == nil {
				break
			}
			h.RTRequestProcess()
			if o.ring.Available(a.reader) == 0 {
				break
			}
		}
		read += o.ring.Read(a.reader, view(a.view, dst, read))
	}
	return read
}

func (o *Output) find(dev device.Output) int {
	for i, a := range o.actives {
		if a.dev == dev {
			return i
		}
	}
	return -1
}

func indexOfActive(as []*active, a *active) int {
	for i := range as {
		if as[i] == a {
			return i
		}
	}
	return -1
}

func indexOfPassive(ps []device.Passive, p device.Passive) int {
	for i := range ps {
		if ps[i] == p {
			return i
		}
	}
	return -1
}

// view slices all channels of src starting from the offset.
func view(dst, src signal.Float64, offset int) signal.Float64 {
	for c := range src {
		dst[c] = src[c][offset:]
	}
	return dst
}
