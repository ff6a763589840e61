package node_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/wav"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/log"
	"github.com/psychosynth/psynth/mock"
	"github.com/psychosynth/psynth/node"
	"github.com/psychosynth/psynth/patcher"
	"github.com/psychosynth/psynth/signal"
)

var format = signal.Format{
	Channels:   2,
	SampleRate: 44100,
	BlockSize:  64,
}

// fadeBlocks is the number of blocks after which inputs are not faded.
var fadeBlocks = graph.FadeLength / format.BlockSize

func context() *psynth.Context {
	return psynth.NewContext(log.Discard())
}

// run processes the node for provided number of blocks and advances all
// nodes.
func run(blocks int, n *graph.Node, nodes ...*graph.Node) {
	for i := 0; i < blocks; i++ {
		n.Process()
		n.Advance()
		for _, v := range nodes {
			v.Advance()
		}
	}
}

func param(t *testing.T, n *graph.Node, name string, v any) {
	t.Helper()
	p, err := n.Param(name)
	require.NoError(t, err)
	require.NoError(t, p.Set(v))
}

func connect(t *testing.T, src *graph.Node, dst *graph.Node, in int) {
	t.Helper()
	require.NoError(t, dst.InAt(in).Connect(src.OutAt(0)))
}

func TestRegistry(t *testing.T) {
	r := node.Standard()
	assert.Equal(t, []string{
		node.KindControlMixer,
		node.KindFilter,
		node.KindLFO,
		node.KindMixer,
		node.KindNoise,
		node.KindOscillator,
		node.KindOutput,
		node.KindSampler,
	}, r.Kinds())

	for _, kind := range r.Kinds() {
		n, err := r.Create(kind, context(), format)
		assert.NoError(t, err)
		assert.Equal(t, kind, n.Kind())
	}

	_, err := r.Create("unknown", context(), format)
	assert.True(t, errors.Is(err, node.ErrUnknownKind))

	err = r.Register(node.KindMixer, nil)
	assert.True(t, errors.Is(err, node.ErrDuplicateKind))

	errTest := errors.New("test")
	assert.NoError(t, r.Register("failing", func(*psynth.Context, signal.Format) (*graph.Node, error) {
		return nil, errTest
	}))
	_, err = r.Create("failing", context(), format)
	assert.True(t, errors.Is(err, errTest))
}

func TestComponentCounts(t *testing.T) {
	tests := []struct {
		kind    string
		inputs  int
		outputs int
		params  int
		states  int
	}{
		{kind: node.KindOscillator, inputs: 2, outputs: 1, params: 4, states: 1},
		{kind: node.KindLFO, inputs: 2, outputs: 1, params: 4, states: 1},
		{kind: node.KindNoise, inputs: 1, outputs: 1, params: 3},
		{kind: node.KindMixer, inputs: node.MixerInputs, outputs: 1, params: 3},
		{kind: node.KindControlMixer, inputs: node.MixerInputs, outputs: 1, params: 3},
		{kind: node.KindFilter, inputs: 2, outputs: 1, params: 4},
		{kind: node.KindSampler, inputs: 1, outputs: 1, params: 7, states: 1},
		{kind: node.KindOutput, inputs: 1, params: 2},
	}
	r := node.Standard()
	for _, test := range tests {
		n, err := r.Create(test.kind, context(), format)
		assert.NoError(t, err)
		assert.Equal(t, test.inputs, len(n.Inputs()), test.kind)
		assert.Equal(t, test.outputs, len(n.Outputs()), test.kind)
		assert.Equal(t, test.params, len(n.Params()), test.kind)
		assert.Equal(t, test.states, len(n.States()), test.kind)
		for i, p := range n.Params() {
			found, err := n.ParamByID(p.ID())
			assert.NoError(t, err)
			assert.Equal(t, p, found)
			assert.Equal(t, i, p.ID())
		}
	}
}

func TestPatchTable(t *testing.T) {
	tbl := node.PatchTable()
	assert.NoError(t, tbl.Validate())

	tests := []struct {
		producer string
		consumer string
		ok       bool
		rule     patcher.Rule
	}{
		{
			producer: node.KindOscillator,
			consumer: node.KindOutput,
			ok:       true,
			rule:     patcher.Rule{Socket: graph.Audio},
		},
		{
			producer: node.KindSampler,
			consumer: node.KindMixer,
			ok:       true,
			rule:     patcher.Rule{Socket: graph.Audio, In: patcher.AnyInput},
		},
		{
			producer: node.KindLFO,
			consumer: node.KindOscillator,
			ok:       true,
			rule:     patcher.Rule{Socket: graph.Control, In: node.InFrequency},
		},
		{
			producer: node.KindLFO,
			consumer: node.KindFilter,
			ok:       true,
			rule:     patcher.Rule{Socket: graph.Control, In: node.InCutoff},
		},
		{producer: node.KindOutput, consumer: node.KindMixer},
		{producer: node.KindOscillator, consumer: node.KindLFO},
		{producer: node.KindLFO, consumer: node.KindOutput},
	}
	r := node.Standard()
	for _, test := range tests {
		rule, ok := tbl.Lookup(test.producer, test.consumer)
		assert.Equal(t, test.ok, ok, "%s->%s", test.producer, test.consumer)
		if !ok {
			continue
		}
		assert.Equal(t, test.rule, rule)

		// rule refers existing ports of the same type.
		producer, err := r.Create(test.producer, context(), format)
		require.NoError(t, err)
		consumer, err := r.Create(test.consumer, context(), format)
		require.NoError(t, err)
		assert.Equal(t, rule.Socket, producer.OutAt(rule.Out).Type())
		if rule.In != patcher.AnyInput {
			assert.Equal(t, rule.Socket, consumer.InAt(rule.In).Type())
		}
	}
}

func TestOscillator(t *testing.T) {
	f := signal.Format{Channels: 2, SampleRate: 8, BlockSize: 8}
	tests := []struct {
		wave     node.Wave
		expected []float64
	}{
		{
			wave:     node.Square,
			expected: []float64{1, 1, -1, -1, 1, 1, -1, -1},
		},
		{
			wave:     node.Sawtooth,
			expected: []float64{-1, -0.5, 0, 0.5, -1, -0.5, 0, 0.5},
		},
		{
			wave:     node.Triangle,
			expected: []float64{-1, 0, 1, 0, -1, 0, 1, 0},
		},
	}
	for _, test := range tests {
		n := node.NewOscillator(f)
		param(t, n, node.ParamWave, int(test.wave))
		param(t, n, node.ParamFrequency, 2.0)
		param(t, n, node.ParamAmplitude, 1.0)
		n.Process()
		out := n.OutAt(0).Data()
		for c := range out {
			assert.InDeltaSlice(t, test.expected, out[c], 1e-9)
		}
	}

	lfo := node.NewLFO(f)
	assert.Equal(t, graph.Control, lfo.OutAt(0).Type())
	assert.Equal(t, 1, lfo.OutAt(0).Data().NumChannels())
}

func TestOscillatorModulation(t *testing.T) {
	f := signal.Format{Channels: 1, SampleRate: 8, BlockSize: graph.FadeLength}
	p := graph.NewPatch(f)
	n := node.NewOscillator(f)
	require.NoError(t, p.Add(n))
	param(t, n, node.ParamWave, int(node.Square))
	param(t, n, node.ParamFrequency, 1.0)
	param(t, n, node.ParamAmplitude, 1.0)

	lfo := node.NewLFO(f)
	require.NoError(t, p.Add(lfo))
	param(t, lfo, node.ParamWave, int(node.Square))
	param(t, lfo, node.ParamFrequency, 0.0)
	param(t, lfo, node.ParamAmplitude, 0.5)
	connect(t, lfo, n, node.InAmplitude)

	// fade is over after the first block.
	run(1, n, lfo)
	n.Process()
	out := n.OutAt(0).Data()[0]
	for i := range out {
		assert.InDelta(t, 0.5, abs(out[i]), 1e-9)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestNoise(t *testing.T) {
	for _, color := range []node.Color{node.White, node.Pink} {
		n := node.NewNoise(format)
		param(t, n, node.ParamColor, int(color))
		param(t, n, node.ParamAmplitude, 0.5)
		n.Process()
		out := n.OutAt(0).Data()
		nonZero := false
		for i := range out[0] {
			if color == node.White {
				assert.LessOrEqual(t, abs(out[0][i]), 0.5)
			}
			assert.Equal(t, out[0][i], out[1][i])
			nonZero = nonZero || out[0][i] != 0
		}
		assert.True(t, nonZero)
	}
}

func TestMixer(t *testing.T) {
	tests := []struct {
		mode      node.Mode
		amplitude float64
		values    []float64
		expected  float64
	}{
		{mode: node.Sum, amplitude: 1, values: []float64{0.5, 0.25}, expected: 0.75},
		{mode: node.Sum, amplitude: 2, values: []float64{0.5, 0.25}, expected: 1.5},
		{mode: node.Product, amplitude: 1, values: []float64{0.5, 0.25}, expected: 0.125},
		{mode: node.Product, amplitude: 1, values: []float64{0.5}, expected: 0.5},
		{mode: node.Sum, amplitude: 1, expected: 0},
	}
	for _, test := range tests {
		p := graph.NewPatch(format)
		mixer := node.NewMixer(format, node.MixerInputs)
		require.NoError(t, p.Add(mixer))
		param(t, mixer, node.ParamMode, int(test.mode))
		param(t, mixer, node.ParamAmplitude, test.amplitude)
		var sources []*graph.Node
		for i, v := range test.values {
			src, _ := mock.NewSource(format, v)
			require.NoError(t, p.Add(src))
			// leave the first input disconnected.
			connect(t, src, mixer, i+1)
			sources = append(sources, src)
		}
		run(fadeBlocks, mixer, sources...)
		mixer.Process()
		out := mixer.OutAt(0).Data()
		for c := range out {
			for i := range out[c] {
				assert.InDelta(t, test.expected, out[c][i], 1e-9)
			}
		}
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		response node.Response
		expected float64
	}{
		{response: node.LowPass, expected: 1},
		{response: node.HighPass, expected: 0},
		{response: node.BandPass, expected: 0},
		{response: node.Notch, expected: 1},
	}
	for _, test := range tests {
		p := graph.NewPatch(format)
		filter := node.NewFilter(format)
		src, _ := mock.NewSource(format, 1)
		require.NoError(t, p.Add(filter))
		require.NoError(t, p.Add(src))
		param(t, filter, node.ParamResponse, int(test.response))
		param(t, filter, node.ParamFrequency, 1000.0)
		connect(t, src, filter, node.InInput)

		// constant signal settles.
		run(100, filter, src)
		filter.Process()
		out := filter.OutAt(0).Data()
		for c := range out {
			assert.InDelta(t, test.expected, out[c][format.BlockSize-1], 1e-3, test.response)
		}
	}
}

func TestFilterSection(t *testing.T) {
	p := graph.NewPatch(format)
	filter := node.NewFilter(format)
	src, _ := mock.NewSource(format, 0.5)
	require.NoError(t, p.Add(filter))
	require.NoError(t, p.Add(src))
	param(t, filter, node.ParamResponse, int(node.HighPass))
	param(t, filter, node.ParamFrequency, 2000.0)
	param(t, filter, node.ParamResonance, 2.0)
	connect(t, src, filter, node.InInput)

	ref := biquad.NewSection(design.Highpass(2000, 2, float64(format.SampleRate)))
	expected := make([]float64, format.BlockSize)
	for b := 0; b < fadeBlocks+2; b++ {
		filter.Process()
		ref.ProcessBlockTo(expected, filter.InAt(node.InInput).Data()[0])
		assert.InDeltaSlice(t, expected, filter.OutAt(0).Data()[0], 1e-12)
		filter.Advance()
		src.Advance()
	}
}

func writeRamp(t *testing.T, path string, frames int) signal.Float64 {
	t.Helper()
	w, err := wav.NewWriter(path, signal.BitDepth16, format.SampleRate, 1)
	require.NoError(t, err)
	data := signal.EmptyFloat64(1, frames)
	for i := range data[0] {
		data[0][i] = float64(i) / float64(frames)
	}
	require.NoError(t, w.Write(data))
	require.NoError(t, w.Close())
	return data
}

// loadSample attaches the sampler to the processor and waits until the
// file is loaded. Sampler is pulled by a mock sink.
func loadSample(t *testing.T, p *psynth.Processor, n *graph.Node, s *node.Sampler, name string) {
	t.Helper()
	snk, _ := mock.NewSink(format, 1)
	snk.Impl().(*mock.Sink).Discard = true
	require.NoError(t, p.Root().Add(n))
	require.NoError(t, p.Root().Add(snk))
	connect(t, n, snk, 0)
	param(t, n, node.ParamFile, name)
	// sampler requests the file in the first block.
	p.RTRequestProcess()
	assert.Eventually(t, func() bool {
		return s.Loaded() == name
	}, time.Second, time.Millisecond)
}

func TestSampler(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	frames := 100
	data := writeRamp(t, filepath.Join(dir, "ramp.wav"), frames)

	tests := []struct {
		name     string
		rate     float64
		expected func(i int) float64
	}{
		{
			name: "forward",
			rate: 1,
			expected: func(i int) float64 {
				if i < frames-1 {
					return data[0][i]
				}
				return 0
			},
		},
		{
			name: "backward",
			rate: -1,
			expected: func(i int) float64 {
				if i < frames-1 {
					return data[0][frames-1-i]
				}
				return 0
			},
		},
	}
	for _, test := range tests {
		ctx := psynth.NewContext(log.Discard(), dir)
		p := psynth.NewProcessor(ctx, format)
		n, s := node.NewSampler(ctx, format)
		param(t, n, node.ParamRate, test.rate)
		param(t, n, node.ParamLoop, false)
		param(t, n, node.ParamAmplitude, 1.0)
		require.NoError(t, p.Start())
		loadSample(t, p, n, s, "ramp.wav")

		var out []float64
		for i := 0; i < 3; i++ {
			p.RTRequestProcess()
			out = append(out, n.OutAt(0).Data()[1]...)
		}
		for i := range out {
			assert.InDelta(t, test.expected(i), out[i], 1e-3, "%s frame %d", test.name, i)
		}
		assert.NoError(t, p.Stop())
	}
}

func TestSamplerMissingFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger, hook := logtest.NewNullLogger()
	ctx := psynth.NewContext(logger, t.TempDir())
	p := psynth.NewProcessor(ctx, format)
	n, s := node.NewSampler(ctx, format)
	snk, _ := mock.NewSink(format, 1)
	require.NoError(t, p.Root().Add(n))
	require.NoError(t, p.Root().Add(snk))
	connect(t, n, snk, 0)
	var loadErr error
	s.OnLoad(func(name string, err error) {
		assert.Equal(t, "missing.wav", name)
		loadErr = err
	})
	param(t, n, node.ParamFile, "missing.wav")
	require.NoError(t, p.Start())
	p.RTRequestProcess()
	assert.NoError(t, p.Stop())

	// pending async events are executed before stop returns.
	var warnings []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry)
		}
	}
	require.Len(t, warnings, 1)
	err, ok := warnings[0].Data[logrus.ErrorKey].(error)
	require.True(t, ok)
	assert.True(t, errors.Is(err, psynth.ErrNotFound))
	assert.Equal(t, "", s.Loaded())

	// result is delivered in the user domain.
	assert.Nil(t, loadErr)
	p.UserUpdate()
	assert.True(t, errors.Is(loadErr, psynth.ErrNotFound))
}

func TestSamplerOnLoad(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	writeRamp(t, filepath.Join(dir, "ramp.wav"), 10)
	ctx := psynth.NewContext(log.Discard(), dir)
	p := psynth.NewProcessor(ctx, format)
	n, s := node.NewSampler(ctx, format)
	var loaded []string
	s.OnLoad(func(name string, err error) {
		assert.NoError(t, err)
		loaded = append(loaded, name)
	})
	require.NoError(t, p.Start())
	loadSample(t, p, n, s, "ramp.wav")
	require.NoError(t, p.Stop())

	p.UserUpdate()
	assert.Equal(t, []string{"ramp.wav"}, loaded)
	// delivered once.
	p.UserUpdate()
	assert.Equal(t, []string{"ramp.wav"}, loaded)
}

// newOutput returns processor with source connected to the output node.
func newOutput(t *testing.T, value float64) (*psynth.Processor, *node.Output) {
	t.Helper()
	ctx := context()
	p := psynth.NewProcessor(ctx, format)
	src, _ := mock.NewSource(format, value)
	n, o := node.NewOutput(ctx, format, 1024)
	require.NoError(t, p.Root().Add(src))
	require.NoError(t, p.Root().Add(n))
	connect(t, src, n, 0)
	return p, o
}

func deviceConfig(name string) device.Config {
	return device.Config{
		Device:     name,
		BitDepth:   signal.BitDepth16,
		Channels:   2,
		SampleRate: format.SampleRate,
		PeriodSize: 100,
		Periods:    2,
	}
}

func TestOutputDevices(t *testing.T) {
	defer goleak.VerifyNone(t)
	p, o := newOutput(t, 0.5)
	driver := &mock.Backend{Delay: time.Millisecond}
	follower := &mock.Backend{Delay: time.Millisecond}
	dev1 := device.NewThread(log.Discard(), deviceConfig("driver"), driver)
	dev2 := device.NewThread(log.Discard(), deviceConfig("follower"), follower)

	require.NoError(t, o.AttachOutput(dev1))
	err := o.AttachOutput(dev1)
	assert.True(t, errors.Is(err, node.ErrOutputAttached))

	require.NoError(t, p.Start())
	// attached while running is started immediately.
	require.NoError(t, o.AttachOutput(dev2))
	assert.Equal(t, 2, o.Outputs())

	assert.Eventually(t, func() bool {
		_, frames := driver.Count()
		_, followed := follower.Count()
		return frames >= 2*graph.FadeLength && followed > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, o.DetachOutput(dev2))
	err = o.DetachOutput(dev2)
	assert.True(t, errors.Is(err, node.ErrOutputNotAttached))
	require.NoError(t, p.Stop())

	// driver receives the graph output without gaps.
	buf := driver.Buffer()
	assert.Equal(t, 0.0, buf[0][0])
	for c := range buf {
		for i := graph.FadeLength; i < buf.Size(); i++ {
			assert.Equal(t, 0.5, buf[c][i])
		}
	}
	require.NoError(t, o.DetachOutput(dev1))
	assert.Equal(t, 0, o.Outputs())
}

func TestOutputPassive(t *testing.T) {
	defer goleak.VerifyNone(t)
	p, o := newOutput(t, 1)
	w := &mock.Writer{}
	rec := device.NewRecorder(log.Discard(), w, format, 8)
	require.NoError(t, o.AttachPassiveOutput(rec))
	err := o.AttachPassiveOutput(rec)
	assert.True(t, errors.Is(err, node.ErrOutputAttached))

	blocks := 4
	for i := 0; i < blocks; i++ {
		p.RTRequestProcess()
	}
	require.NoError(t, o.DetachPassiveOutput(rec))
	p.RTRequestProcess()
	err = o.DetachPassiveOutput(rec)
	assert.True(t, errors.Is(err, node.ErrOutputNotAttached))

	require.NoError(t, rec.Close())
	b, frames := w.Count()
	assert.Equal(t, blocks, b)
	assert.Equal(t, blocks*format.BlockSize, frames)
	assert.True(t, w.Closed)
}
