package device

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/metric"
	"github.com/psychosynth/psynth/signal"
)

// Thread drives a blocking backend from its own goroutine. Every period it
// pulls frames through the callback and puts them into the backend,
// retrying partial writes. Xruns and suspends are recovered without
// stopping the stream.
type Thread struct {
	log     logrus.FieldLogger
	cfg     Config
	backend Backend

	mu       sync.Mutex
	callback Callback
	running  bool
	stop     atomic.Bool
	done     chan struct{}
	err      error

	buf  signal.Float64
	view signal.Float64
}

// NewThread returns a stopped driver for the backend.
func NewThread(log logrus.FieldLogger, cfg Config, backend Backend) *Thread {
	return &Thread{
		log:     log.WithField("device", cfg.Device),
		cfg:     cfg,
		backend: backend,
		buf:     signal.EmptyFloat64(cfg.Channels, cfg.PeriodSize),
		view:    make(signal.Float64, cfg.Channels),
	}
}

// Config returns device config.
func (t *Thread) Config() Config {
	return t.cfg
}

// SetCallback sets the function that fills periods. It must be set before
// start.
func (t *Thread) SetCallback(cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = cb
}

// Start spawns the driver goroutine.
func (t *Thread) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrInvalidState
	}
	if t.callback == nil {
		return ErrNoCallback
	}
	t.running = true
	t.err = nil
	t.stop.Store(false)
	t.done = make(chan struct{})
	go t.run(t.callback, t.done)
	t.log.Debug("device started")
	return nil
}

// Stop raises the stop flag and waits for the goroutine to exit. Returns
// the error that terminated the stream, if any.
func (t *Thread) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrInvalidState
	}
	t.stop.Store(true)
	<-t.done
	t.running = false
	t.log.Debug("device stopped")
	return t.err
}

// Close stops the stream if it's running and closes the backend.
func (t *Thread) Close() error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if running {
		if err := t.Stop(); err != nil {
			t.log.WithError(err).Warn("device stopped with error")
		}
	}
	return t.backend.Close()
}

func (t *Thread) run(cb Callback, done chan struct{}) {
	defer close(done)
	for !t.stop.Load() {
		cb(t.buf)
		if err := t.put(t.buf); err != nil {
			t.log.WithError(err).Error("device stream failed")
			t.err = err
			return
		}
	}
}

// put writes the whole block, retrying partial writes.
func (t *Thread) put(block signal.Float64) error {
	size := block.Size()
	for offset := 0; offset < size && !t.stop.Load(); {
		n, err := t.backend.Put(view(t.view, block, offset))
		offset += n
		if err == nil {
			continue
		}
		if err = t.recover(err); err != nil {
			return err
		}
	}
	return nil
}

// recover restores the stream after xrun or suspend. Other errors are
// returned as is.
func (t *Thread) recover(err error) error {
	if !errors.Is(err, ErrXrun) && !errors.Is(err, ErrSuspended) {
		return err
	}
	metric.Xrun(t.backend)
	status := t.backend.Status()
	if status == Suspended {
		if r, ok := t.backend.(Resumer); ok {
			if rerr := r.Resume(); rerr == nil {
				t.log.WithField("status", status).Warn("device resumed")
				return nil
			}
		}
	}
	if perr := t.backend.Prepare(); perr != nil {
		return perr
	}
	t.log.WithField("status", status).Warn("device recovered")
	return nil
}
