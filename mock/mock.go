// Package mock provides mocks for engine components and allows to execute
// integration tests.
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// Kinds of mock nodes.
const (
	KindSource    = "mock_source"
	KindProcessor = "mock_processor"
	KindSink      = "mock_sink"
)

// Source mocks a generator node. It writes Value into all outputs.
type Source struct {
	counter
	Value float64
}

// NewSource returns a node with single audio output.
func NewSource(f signal.Format, value float64) (*graph.Node, *Source) {
	m := &Source{Value: value}
	n := graph.NewNode(KindSource, f, m)
	_ = n.Register(graph.NewOutPort("output", graph.Audio))
	return n, m
}

// Process implements graph.Impl.
func (m *Source) Process(n *graph.Node) {
	for _, out := range n.Outputs() {
		data := out.Data()
		for c := range data {
			for i := range data[c] {
				data[c][i] = m.Value
			}
		}
	}
	m.advance(n.Format().BlockSize)
}

// Processor mocks a processing node. It sums all inputs into the output.
type Processor struct {
	counter
}

// NewProcessor returns a node with provided number of audio inputs and
// single audio output.
func NewProcessor(f signal.Format, inputs int) (*graph.Node, *Processor) {
	m := &Processor{}
	n := graph.NewNode(KindProcessor, f, m)
	for i := 0; i < inputs; i++ {
		_ = n.Register(graph.NewInPort(inputName(i), graph.Audio))
	}
	_ = n.Register(graph.NewOutPort("output", graph.Audio))
	return n, m
}

// Process implements graph.Impl.
func (m *Processor) Process(n *graph.Node) {
	sum(n)
	m.advance(n.Format().BlockSize)
}

// Sink mocks a sink node. It sums all inputs and collects the result.
type Sink struct {
	counter
	buffer  signal.Float64
	Discard bool
}

// NewSink returns a sink node with provided number of audio inputs.
func NewSink(f signal.Format, inputs int) (*graph.Node, *Sink) {
	m := &Sink{}
	n := graph.NewNode(KindSink, f, m, graph.AsSink())
	for i := 0; i < inputs; i++ {
		_ = n.Register(graph.NewInPort(inputName(i), graph.Audio))
	}
	_ = n.Register(graph.NewOutPort("output", graph.Audio))
	return n, m
}

// Process implements graph.Impl.
func (m *Sink) Process(n *graph.Node) {
	out := sum(n)
	if !m.Discard {
		m.buffer = m.buffer.Append(out)
	}
	m.advance(n.Format().BlockSize)
}

// Buffer returns sink's buffer.
func (m *Sink) Buffer() signal.Float64 {
	return m.buffer
}

func inputName(i int) string {
	return string(rune('a' + i))
}

// sum writes the sum of all inputs into the first output.
func sum(n *graph.Node) signal.Float64 {
	out := n.OutAt(0).Data()
	out.Zero()
	for _, in := range n.Inputs() {
		data := in.Data()
		for c := range out {
			for i := range out[c] {
				out[c][i] += data[c%len(data)][i]
			}
		}
	}
	return out
}

// Starter mocks a sink node that drives its own I/O. It counts Start and
// Stop calls.
type Starter struct {
	Sink
	mu      sync.Mutex
	Started int
	Stopped int
	Hooks
}

// NewStarter returns a starter sink with provided number of audio inputs.
func NewStarter(f signal.Format, inputs int) (*graph.Node, *Starter) {
	m := &Starter{}
	m.Discard = true
	n := graph.NewNode(KindSink, f, m, graph.AsSink())
	for i := 0; i < inputs; i++ {
		_ = n.Register(graph.NewInPort(inputName(i), graph.Audio))
	}
	_ = n.Register(graph.NewOutPort("output", graph.Audio))
	return n, m
}

// Start implements graph.Starter.
func (m *Starter) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started++
	return m.ErrorOnStart
}

// Stop implements graph.Starter.
func (m *Starter) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped++
	return m.ErrorOnStop
}

// Calls returns the number of Start and Stop calls.
func (m *Starter) Calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Started, m.Stopped
}

// Backend mocks a blocking device stream. Errors are returned by
// consequent Put calls, nil entry accepts the frames. Xrun and suspend
// errors also change the status, which is restored by Prepare or Resume.
type Backend struct {
	mu sync.Mutex
	counter
	buffer  signal.Float64
	state   device.State
	calls   int
	Discard bool
	// Limit is the max number of frames accepted by single Put, zero
	// means no limit.
	Limit    int
	// Delay is applied to every Put call.
	Delay    time.Duration
	Errors   []error
	Resumes  bool
	Prepared int
	Resumed  int
	Closed   bool
	Hooks
}

// Put implements device.Backend.
func (m *Backend) Put(block signal.Float64) (int, error) {
	time.Sleep(m.Delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.calls
	m.calls++
	if call < len(m.Errors) && m.Errors[call] != nil {
		err := m.Errors[call]
		switch {
		case errors.Is(err, device.ErrSuspended):
			m.state = device.Suspended
		case errors.Is(err, device.ErrXrun):
			m.state = device.Xrun
		}
		return 0, err
	}
	if m.state != device.Running {
		return 0, device.ErrXrun
	}
	n := block.Size()
	if m.Limit > 0 && n > m.Limit {
		n = m.Limit
	}
	if !m.Discard {
		m.buffer = m.buffer.Append(block.Slice(0, n))
	}
	m.advance(n)
	return n, nil
}

// Status implements device.Backend.
func (m *Backend) Status() device.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Prepare implements device.Backend.
func (m *Backend) Prepare() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prepared++
	if m.ErrorOnPrepare != nil {
		return m.ErrorOnPrepare
	}
	m.state = device.Running
	return nil
}

// Resume implements device.Resumer. It only succeeds if Resumes is set.
func (m *Backend) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resumed++
	if !m.Resumes {
		return device.ErrSuspended
	}
	m.state = device.Running
	return nil
}

// Close implements device.Backend.
func (m *Backend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.ErrorOnClose
}

// Buffer returns accepted frames.
func (m *Backend) Buffer() signal.Float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer
}

// Count returns blocks and frames metrics.
func (m *Backend) Count() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter.Count()
}

// Writer mocks a recorder writer.
type Writer struct {
	mu sync.Mutex
	counter
	buffer signal.Float64
	Delay  time.Duration
	Closed bool
	Hooks
}

// Write implements device.Writer.
func (m *Writer) Write(block signal.Float64) error {
	time.Sleep(m.Delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnWrite != nil {
		return m.ErrorOnWrite
	}
	m.buffer = m.buffer.Append(block)
	m.advance(block.Size())
	return nil
}

// Close implements device.Writer.
func (m *Writer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.ErrorOnClose
}

// Buffer returns written frames.
func (m *Writer) Buffer() signal.Float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer
}

// Count returns blocks and frames metrics.
func (m *Writer) Count() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter.Count()
}

// Hooks allows to mock errors of components.
type Hooks struct {
	ErrorOnWrite   error
	ErrorOnPrepare error
	ErrorOnClose   error
	ErrorOnStart   error
	ErrorOnStop    error
}

// counter counts blocks and frames.
type counter struct {
	blocks int
	frames int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.blocks++
	c.frames += size
}

// Count returns blocks and frames metrics.
func (c *counter) Count() (int, int) {
	return c.blocks, c.frames
}
