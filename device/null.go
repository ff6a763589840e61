package device

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/signal"
)

// Null discards frames at the pace of the real device. It's used when the
// configured device cannot be opened.
type Null struct {
	sampleRate int
	started    time.Time
	frames     int64
}

// NewNull returns the null backend driven by a thread.
func NewNull(log logrus.FieldLogger, cfg Config) (*Thread, error) {
	if cfg.Device == "" {
		cfg.Device = "null"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewThread(log, cfg, &Null{sampleRate: cfg.SampleRate}), nil
}

// Put discards the block and sleeps until the wall clock catches up with
// the number of frames written.
func (n *Null) Put(block signal.Float64) (int, error) {
	if n.started.IsZero() {
		n.started = time.Now()
	}
	size := block.Size()
	n.frames += int64(size)
	if ahead := signal.DurationOf(n.sampleRate, n.frames) - time.Since(n.started); ahead > 0 {
		time.Sleep(ahead)
	}
	return size, nil
}

// Status is always running.
func (n *Null) Status() State {
	return Running
}

// Prepare resets the pacing clock.
func (n *Null) Prepare() error {
	n.started = time.Time{}
	n.frames = 0
	return nil
}

// Close does nothing.
func (n *Null) Close() error {
	return nil
}
