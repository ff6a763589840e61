package psynth_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/log"
	"github.com/psychosynth/psynth/mock"
	"github.com/psychosynth/psynth/signal"
)

var format = signal.Format{
	Channels:   2,
	SampleRate: 44100,
	BlockSize:  graph.FadeLength,
}

var errTest = errors.New("test error")

func newProcessor() *psynth.Processor {
	return psynth.NewProcessor(psynth.NewContext(log.Discard()), format)
}

func TestProcessorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := newProcessor()
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, format, p.Format())
	assert.False(t, p.Running())

	err := p.Stop()
	assert.True(t, errors.Is(err, psynth.ErrInvalidState))

	assert.NoError(t, p.Start())
	assert.True(t, p.Running())
	err = p.Start()
	assert.True(t, errors.Is(err, psynth.ErrInvalidState))

	assert.NoError(t, p.Stop())
	assert.False(t, p.Running())

	// restart is allowed.
	assert.NoError(t, p.Start())
	assert.NoError(t, p.Stop())
}

func TestProcessorEventDelivery(t *testing.T) {
	p := newProcessor()
	var order []int
	p.PushRT(func() { order = append(order, 1) })
	p.PushRT(func() { order = append(order, 2) })
	assert.Empty(t, order)

	p.RTRequestProcess()
	assert.Equal(t, []int{1, 2}, order)

	p.PushRT(func() { order = append(order, 3) })
	p.RTRequestProcess()
	p.RTRequestProcess()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestProcessorUserEvents(t *testing.T) {
	p := newProcessor()
	var calls int
	p.PushUser(func() { calls++ })
	p.RTRequestProcess()
	assert.Equal(t, 0, calls)
	p.UserUpdate()
	assert.Equal(t, 1, calls)
	p.UserUpdate()
	assert.Equal(t, 1, calls)
}

func TestProcessorAsyncEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := newProcessor()
	assert.NoError(t, p.Start())

	var calls atomic.Int32
	p.PushAsync(func() { calls.Add(1) })
	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, time.Millisecond)

	// pending events are executed before stop returns.
	p.PushAsync(func() { calls.Add(1) })
	assert.NoError(t, p.Stop())
	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessorPullsSinks(t *testing.T) {
	p := newProcessor()
	src, source := mock.NewSource(format, 1)
	snk, sink := mock.NewSink(format, 1)
	assert.NoError(t, p.Root().Add(src))
	assert.NoError(t, p.Root().Add(snk))
	in, err := snk.In("a")
	assert.NoError(t, err)
	out, err := src.Out("output")
	assert.NoError(t, err)
	assert.NoError(t, in.Connect(out))

	// nothing is visible before the first block.
	assert.Equal(t, 0, sink.Buffer().Size())

	blocks := 3
	for i := 0; i < blocks; i++ {
		p.RTRequestProcess()
	}
	b, _ := source.Count()
	assert.Equal(t, blocks, b)
	b, frames := sink.Count()
	assert.Equal(t, blocks, b)
	assert.Equal(t, blocks*format.BlockSize, frames)

	// first block is faded in.
	buf := sink.Buffer()
	assert.Equal(t, 0.0, buf[0][0])
	for c := range buf {
		for i := format.BlockSize; i < buf.Size(); i++ {
			assert.Equal(t, 1.0, buf[c][i])
		}
	}

	// removed nodes are not processed after the next block.
	assert.NoError(t, p.Root().Remove(snk))
	p.RTRequestProcess()
	b, _ = sink.Count()
	assert.Equal(t, blocks, b)
	b, _ = source.Count()
	assert.Equal(t, blocks, b)
}

func TestProcessorParamVisibility(t *testing.T) {
	p := newProcessor()
	src, _ := mock.NewSource(format, 1)
	assert.NoError(t, p.Root().Add(src))
	param := graph.NewParam("gain", graph.Float, 1.0)
	assert.NoError(t, src.Register(param))
	p.RTRequestProcess()

	assert.NoError(t, param.Set(0.5))
	assert.Equal(t, 0.5, param.Float())
	assert.Equal(t, 1.0, param.RTFloat())
	p.RTRequestProcess()
	assert.Equal(t, 0.5, param.RTFloat())
}

func TestProcessorStarters(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := newProcessor()
	n1, s1 := mock.NewStarter(format, 1)
	assert.NoError(t, p.Root().Add(n1))
	started, stopped := s1.Calls()
	assert.Equal(t, 0, started)
	assert.Equal(t, 0, stopped)

	assert.NoError(t, p.Start())
	started, _ = s1.Calls()
	assert.Equal(t, 1, started)

	// attached while running is started immediately.
	n2, s2 := mock.NewStarter(format, 1)
	assert.NoError(t, p.Root().Add(n2))
	started, _ = s2.Calls()
	assert.Equal(t, 1, started)

	// removed while running is stopped immediately.
	assert.NoError(t, p.Root().Remove(n2))
	_, stopped = s2.Calls()
	assert.Equal(t, 1, stopped)

	assert.NoError(t, p.Stop())
	_, stopped = s1.Calls()
	assert.Equal(t, 1, stopped)
	_, stopped = s2.Calls()
	assert.Equal(t, 1, stopped)
}

func TestProcessorStarterErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := newProcessor()
	n, s := mock.NewStarter(format, 0)
	s.ErrorOnStart = errTest
	s.ErrorOnStop = errTest
	assert.NoError(t, p.Root().Add(n))

	err := p.Start()
	assert.True(t, errors.Is(err, errTest))
	assert.True(t, p.Running())
	err = p.Stop()
	assert.True(t, errors.Is(err, errTest))
	assert.False(t, p.Running())
}
