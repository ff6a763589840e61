package device

import (
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/metric"
	"github.com/psychosynth/psynth/signal"
)

// Recorder is a passive output that writes the signal on its own
// goroutine. Blocks are copied into a fixed set of buffers and passed over
// a bounded channel. When all buffers are in flight, the block is dropped,
// so Push never blocks the audio goroutine.
type Recorder struct {
	id      string
	log     logrus.FieldLogger
	w       Writer
	blocks  chan signal.Float64
	free    chan signal.Float64
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
	err     error
}

// NewRecorder starts a recorder with queue of provided number of blocks.
func NewRecorder(log logrus.FieldLogger, w Writer, f signal.Format, queue int) *Recorder {
	id := xid.New().String()
	r := &Recorder{
		id:     id,
		log:    log.WithField("recorder", id),
		w:      w,
		blocks: make(chan signal.Float64, queue),
		free:   make(chan signal.Float64, queue),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := 0; i < queue; i++ {
		r.free <- signal.EmptyFloat64(f.Channels, f.BlockSize)
	}
	go r.run()
	r.log.Debug("recorder started")
	return r
}

// ID returns unique id of the recorder.
func (r *Recorder) ID() string {
	return r.id
}

// Push copies the block into the queue. Returns false if the block was
// dropped.
func (r *Recorder) Push(block signal.Float64) bool {
	var buf signal.Float64
	select {
	case buf = <-r.free:
	default:
		r.dropped.Add(1)
		metric.Drop(r)
		return false
	}
	if buf.Size() != block.Size() {
		buf = signal.EmptyFloat64(buf.NumChannels(), block.Size())
	}
	buf.CopyFrom(block)
	r.blocks <- buf
	return true
}

// Dropped returns the number of dropped blocks.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close writes all queued blocks, waits for the goroutine and closes the
// writer. Returns the first write error.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.quit)
		<-r.done
		if err := r.w.Close(); err != nil && r.err == nil {
			r.err = err
		}
		if d := r.dropped.Load(); d > 0 {
			r.log.WithField("dropped", d).Warn("recorder dropped blocks")
		}
		r.log.Debug("recorder closed")
	})
	return r.err
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case buf := <-r.blocks:
			r.write(buf)
		case <-r.quit:
			for {
				select {
				case buf := <-r.blocks:
					r.write(buf)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(buf signal.Float64) {
	if r.err == nil {
		if err := r.w.Write(buf); err != nil {
			r.err = err
			r.log.WithError(err).Error("recorder write failed")
		}
	}
	r.free <- buf
}
