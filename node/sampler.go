package node

import (
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/device/mp3"
	"github.com/psychosynth/psynth/device/wav"
	"github.com/psychosynth/psynth/event"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/ring"
	"github.com/psychosynth/psynth/signal"
)

// Ports and controls of the sampler.
const (
	InRate = 0

	ParamFile     = "file"
	ParamRate     = "rate"
	ParamTempo    = "tempo"
	ParamPitch    = "pitch"
	ParamLoop     = "loop"
	StatePosition = "position"
)

// Sampler plays audio files. Files are resolved with the context search
// paths and loaded in the async domain. Negative rate plays the sample
// backwards. Rate input modulates the rate exponentially in octaves.
type Sampler struct {
	log    logrus.FieldLogger
	ctx    *psynth.Context
	host   graph.Host
	scaler *ring.Scaler

	file      *graph.Param
	amplitude *graph.Param
	rate      *graph.Param
	tempo     *graph.Param
	pitch     *graph.Param
	loop      *graph.Param
	position  *graph.State

	// requested file, owned by the real-time domain.
	requested string
	reverse   bool

	// mu guards the sample. It's held by the async domain while the
	// sample is swapped and by the real-time domain while it's played, so
	// the audio goroutine can wait for the swap.
	mu         sync.Mutex
	data       signal.Float64
	sampleRate int
	pos        int
	loaded     string

	onLoad atomic.Pointer[LoadFunc]
}

// LoadFunc receives the result of the file load in the user domain. Error
// is nil when the file is loaded.
type LoadFunc func(name string, err error)

// NewSampler returns sampler node.
func NewSampler(ctx *psynth.Context, f signal.Format) (*graph.Node, *Sampler) {
	s := &Sampler{
		log:       ctx.Logger(KindSampler),
		ctx:       ctx,
		file:      graph.NewParam(ParamFile, graph.String, ""),
		amplitude: graph.NewParam(ParamAmplitude, graph.Float, 0.75),
		rate:      graph.NewParam(ParamRate, graph.Float, 1.0),
		tempo:     graph.NewParam(ParamTempo, graph.Float, 1.0),
		pitch:     graph.NewParam(ParamPitch, graph.Float, 1.0),
		loop:      graph.NewParam(ParamLoop, graph.Bool, true),
		position:  graph.NewState(StatePosition),
	}
	s.scaler = ring.NewScaler(f.Channels, ring.SourceFunc(s.read))
	n := graph.NewNode(KindSampler, f, s)
	mustRegister(n,
		graph.NewInPort("rate", graph.Control),
		graph.NewOutPort("output", graph.Audio),
		s.file,
		s.amplitude,
		s.rate,
		s.tempo,
		s.pitch,
		s.loop,
		s.position,
	)
	return n, s
}

// AttachProcess implements graph.ProcessAttacher.
func (s *Sampler) AttachProcess(n *graph.Node, h graph.Host) {
	s.host = h
}

// DetachProcess implements graph.ProcessAttacher. Host is kept, because
// the node can be processed until the detach is flipped.
func (s *Sampler) DetachProcess(n *graph.Node) {}

// Loaded returns the name of the loaded file.
func (s *Sampler) Loaded() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// OnLoad sets the function notified about loaded files. It's called when
// the processor runs the user domain update.
func (s *Sampler) OnLoad(fn LoadFunc) {
	if fn == nil {
		s.onLoad.Store(nil)
		return
	}
	s.onLoad.Store(&fn)
}

// notify pushes the load result into the user domain.
func (s *Sampler) notify(name string, err error) {
	fn := s.onLoad.Load()
	if fn == nil || s.host == nil {
		return
	}
	s.host.PushUser(func() {
		(*fn)(name, err)
	})
}

// Process implements graph.Impl.
func (s *Sampler) Process(n *graph.Node) {
	if name := s.file.RTText(); name != s.requested {
		s.requested = name
		if s.host != nil {
			s.host.PushAsync(s.load(name))
		}
	}

	out := n.OutAt(0).Data()
	rate := s.rate.RTFloat() * math.Exp2(n.InAt(InRate).Value(0))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverse = rate < 0
	if s.data.Size() == 0 {
		out.Zero()
		return
	}
	if s.reverse {
		rate = -rate
	}
	rate *= float64(s.sampleRate) / float64(n.Format().SampleRate)
	// non-positive factors keep the previous values.
	_ = s.scaler.SetRate(rate)
	_ = s.scaler.SetTempo(s.tempo.RTFloat())
	_ = s.scaler.SetPitch(s.pitch.RTFloat())

	read := 0
	if rate > 0 {
		read = s.scaler.Read(out)
	}
	amplitude := s.amplitude.RTFloat()
	for c := range out {
		for i := range out[c] {
			if i < read {
				out[c][i] *= amplitude
			} else {
				out[c][i] = 0
			}
		}
	}
	s.position.Set(float64(s.pos) / float64(s.sampleRate))
}

// read feeds the scaler from the sample. Position is a cursor between
// frames: forward playback reads the frame after it, backward playback
// reads the frame before it. It's called with mu held.
func (s *Sampler) read(dst signal.Float64) int {
	size := s.data.Size()
	if size == 0 {
		return 0
	}
	loop := s.loop.RTBool()
	n := 0
	for n < dst.Size() {
		frame := s.pos
		if s.reverse {
			frame--
		}
		if frame < 0 || frame >= size {
			if !loop {
				break
			}
			if s.reverse {
				s.pos = size
			} else {
				s.pos = 0
			}
			continue
		}
		for c := range dst {
			dst[c][n] = s.data[c%len(s.data)][frame]
		}
		s.pos = frame
		if !s.reverse {
			s.pos++
		}
		n++
	}
	return n
}

// load returns the event that reads the file and swaps the sample.
func (s *Sampler) load(name string) event.Event {
	return func() {
		var (
			data       signal.Float64
			sampleRate int
		)
		if name != "" {
			path, err := s.ctx.Find(name)
			if err == nil {
				data, sampleRate, err = readFile(path)
			}
			if err != nil {
				s.log.WithError(err).WithField("file", name).Warn("failed to load sample")
				s.notify(name, err)
				return
			}
		}
		s.mu.Lock()
		s.data = data
		s.sampleRate = sampleRate
		s.pos = 0
		if s.reverse {
			s.pos = data.Size()
		}
		s.loaded = name
		s.scaler.Reset()
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"file":   name,
			"frames": data.Size(),
		}).Debug("sample loaded")
		s.notify(name, nil)
	}
}

// readFile decodes the file according to its extension.
func readFile(path string) (signal.Float64, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return mp3.Read(path)
	}
	return wav.Read(path)
}
