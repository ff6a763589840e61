package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/config"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/mp3"
	"github.com/psychosynth/psynth/device/wav"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/node"
	"github.com/psychosynth/psynth/patcher"
	"github.com/psychosynth/psynth/signal"
)

// userUpdatePeriod is how often user domain events are executed.
const userUpdatePeriod = 50 * time.Millisecond

// errOutputs is returned when layout has more than one output node.
var errOutputs = errors.New("layout must have at most one output node")

// engine is the processor with the layout from config, connected by the
// patcher.
type engine struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	ctx      *psynth.Context
	proc     *psynth.Processor
	patcher  *patcher.Patcher
	output   *node.Output
	recorder *device.Recorder
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newEngine(cfg *config.Config, paths []string) (*engine, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	ctx := psynth.NewContext(logger, append(paths, cfg.Paths...)...)
	table := node.PatchTable()
	if err := table.Validate(); err != nil {
		return nil, err
	}
	e := &engine{
		cfg:     cfg,
		log:     ctx.Logger("engine"),
		ctx:     ctx,
		proc:    psynth.NewProcessor(ctx, cfg.Format()),
		patcher: patcher.New(ctx.Logger("patcher"), table),
	}
	e.patcher.AddListener(e)

	registry := node.Standard()
	for _, nc := range cfg.Nodes {
		n, err := registry.Create(nc.Kind, ctx, cfg.Format())
		if err != nil {
			return nil, err
		}
		if err := nc.Apply(n); err != nil {
			return nil, err
		}
		if err := e.add(n); err != nil {
			return nil, err
		}
		switch impl := n.Impl().(type) {
		case *node.Output:
			if e.output != nil {
				return nil, fmt.Errorf("node %v: %w", n, errOutputs)
			}
			e.output = impl
		case *node.Sampler:
			impl.OnLoad(e.sampleLoaded)
		}
	}
	if e.output == nil {
		n, o := node.NewOutput(ctx, cfg.Format(), cfg.Output.RingFrames)
		if err := e.add(n); err != nil {
			return nil, err
		}
		e.output = o
	}
	e.patcher.Update()

	if cfg.Recorder.Path != "" {
		w, err := newWriter(cfg)
		if err != nil {
			return nil, err
		}
		e.recorder = device.NewRecorder(ctx.Logger("recorder"), w, cfg.Format(), cfg.Recorder.Queue)
		if err := e.output.AttachPassiveOutput(e.recorder); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) add(n *graph.Node) error {
	if err := e.proc.Root().Add(n); err != nil {
		return err
	}
	return e.patcher.AddNode(n)
}

func newWriter(cfg *config.Config) (device.Writer, error) {
	f := cfg.Format()
	switch cfg.Recorder.Format {
	case config.FormatMp3:
		return mp3.NewWriter(cfg.Recorder.Path, f.SampleRate, f.Channels, cfg.Recorder.BitRate, cfg.Recorder.Quality)
	default:
		return wav.NewWriter(cfg.Recorder.Path, signal.BitDepth(cfg.Recorder.BitDepth), f.SampleRate, f.Channels)
	}
}

// LinkAdded implements patcher.Listener.
func (e *engine) LinkAdded(l patcher.Link) {
	e.log.WithFields(logrus.Fields{
		"source": l.Source.String(),
		"dest":   l.Dest.String(),
		"input":  l.In,
	}).Debug("link added")
}

// LinkRemoved implements patcher.Listener.
func (e *engine) LinkRemoved(l patcher.Link) {
	e.log.WithFields(logrus.Fields{
		"source": l.Source.String(),
		"dest":   l.Dest.String(),
		"input":  l.In,
	}).Debug("link removed")
}

// sampleLoaded is called in the user domain.
func (e *engine) sampleLoaded(name string, err error) {
	if err != nil {
		e.log.WithError(err).WithField("file", name).Error("sample is not loaded")
		return
	}
	e.log.WithField("file", name).Info("sample loaded")
}

// run streams through the device until done is closed. User domain events
// are executed while waiting.
func (e *engine) run(dev device.Output, done <-chan struct{}) (err error) {
	if err := e.output.AttachOutput(dev); err != nil {
		return err
	}
	if err := e.proc.Start(); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"device":    dev.Config().Device,
		"processor": e.proc.ID(),
	}).Info("streaming")
	ticker := time.NewTicker(userUpdatePeriod)
	for waiting := true; waiting; {
		select {
		case <-done:
			waiting = false
		case <-ticker.C:
			e.proc.UserUpdate()
		}
	}
	ticker.Stop()
	err = e.proc.Stop()
	if detachErr := e.output.DetachOutput(dev); detachErr != nil {
		err = errors.Join(err, detachErr)
	}
	return err
}

// close stops the patcher and flushes the recorder.
func (e *engine) close() error {
	e.patcher.Clear()
	if e.recorder == nil {
		return nil
	}
	if err := e.output.DetachPassiveOutput(e.recorder); err != nil {
		return err
	}
	if err := e.recorder.Close(); err != nil {
		return fmt.Errorf("close recorder: %w", err)
	}
	e.log.WithField("dropped", e.recorder.Dropped()).Info("recording saved")
	return nil
}
