package main

import (
	"errors"
	"flag"
	"sync"
	"time"

	"github.com/psychosynth/psynth/config"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/wav"
	psignal "github.com/psychosynth/psynth/signal"
)

var errNoOutput = errors.New("output path is not set")

type renderCommand struct {
	config   string
	out      string
	duration time.Duration
	paths    stringList
}

func (cmd *renderCommand) Name() string {
	return "render"
}

func (cmd *renderCommand) Help() string {
	return "Render the configured layout into wav file"
}

func (cmd *renderCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.config, "config", "", "path to yaml config")
	fs.StringVar(&cmd.out, "out", "", "path to output wav file")
	fs.DurationVar(&cmd.duration, "duration", 10*time.Second, "length of rendered audio")
	fs.Var(&cmd.paths, "path", "semicolon separated list of sample search paths")
}

func (cmd *renderCommand) Run() error {
	if cmd.out == "" {
		return errNoOutput
	}
	cfg, err := loadConfig(cmd.config)
	if err != nil {
		return err
	}
	cfg.Output.Driver = config.DriverWav
	cfg.Output.Device = cmd.out
	e, err := newEngine(cfg, cmd.paths)
	if err != nil {
		return err
	}

	dc := cfg.DeviceConfig()
	b, err := wav.NewBackend(dc)
	if err != nil {
		return errors.Join(err, e.close())
	}
	l := newLimit(b, psignal.FramesOf(dc.SampleRate, cmd.duration))
	t := device.NewThread(e.ctx.Logger("device"), dc, l)

	err = e.run(t, l.done)
	return errors.Join(err, t.Close(), e.close())
}

// limit passes the fixed number of frames to the backend and discards the
// rest. Done is closed once all frames are written.
type limit struct {
	device.Backend
	left int
	done chan struct{}
	once sync.Once
}

func newLimit(b device.Backend, frames int) *limit {
	l := &limit{
		Backend: b,
		left:    frames,
		done:    make(chan struct{}),
	}
	if frames <= 0 {
		close(l.done)
	}
	return l
}

func (l *limit) Put(block psignal.Float64) (int, error) {
	size := block.Size()
	if l.left <= 0 {
		return size, nil
	}
	if size > l.left {
		block = block.Slice(0, l.left)
	}
	n, err := l.Backend.Put(block)
	l.left -= n
	if l.left <= 0 {
		l.once.Do(func() { close(l.done) })
	}
	return n, err
}
