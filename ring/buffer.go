/*
Package ring provides the transport between the graph block cadence and the
device callback cadence.

Buffer is a circular buffer of audio frames with a single write cursor and
any number of independent read cursors. Cursors are absolute frame
positions, the storage slot is the position modulo capacity. Each cursor
moves in its own direction, so the same data can be played backwards.

Buffer is not safe for concurrent use. The owner of the write cursor
serializes access to it.
*/
package ring

import (
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/signal"
)

// Direction of cursor movement.
type Direction int

const (
	// Forward cursor moves towards greater positions.
	Forward Direction = iota
	// Backward cursor moves towards lesser positions.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

type (
	// Buffer is a fixed-capacity circular buffer of non-interleaved frames.
	Buffer struct {
		log      logrus.FieldLogger
		data     signal.Float64
		capacity int
		dir      Direction
		pos      int64
		written  int64
	}

	// Reader is an independent read cursor. It tracks its own position and
	// the number of frames consumed, so the availability is the distance
	// to the write cursor.
	Reader struct {
		pos      int64
		consumed int64
		dir      Direction
	}
)

// New creates a buffer with provided number of channels and capacity in
// frames.
func New(log logrus.FieldLogger, channels, capacity int) *Buffer {
	return &Buffer{
		log:      log,
		data:     signal.EmptyFloat64(channels, capacity),
		capacity: capacity,
	}
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	return b.data.NumChannels()
}

// Capacity returns the capacity in frames.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Direction returns the direction of the write cursor.
func (b *Buffer) Direction() Direction {
	return b.dir
}

// SetDirection changes the direction of the write cursor. Subsequent
// writes start at the current position.
func (b *Buffer) SetDirection(d Direction) {
	b.dir = d
}

// Position returns the absolute position of the write cursor.
func (b *Buffer) Position() int64 {
	return b.pos
}

// Written returns the total number of frames written.
func (b *Buffer) Written() int64 {
	return b.written
}

// slot maps absolute position to the storage index.
func (b *Buffer) slot(pos int64) int {
	i := int(pos % int64(b.capacity))
	if i < 0 {
		i += b.capacity
	}
	return i
}

// Write copies the block at the write cursor and moves the cursor by the
// block size. Channels of the block are wrapped if it has fewer channels
// than buffer. Block larger than capacity is dropped with a warning and
// buffer is left unchanged.
func (b *Buffer) Write(block signal.Float64) {
	n := block.Size()
	if n > b.capacity {
		b.log.WithFields(logrus.Fields{
			"frames":   n,
			"capacity": b.capacity,
		}).Warn("ring buffer overflow, block dropped")
		return
	}
	if n == 0 || block.NumChannels() == 0 {
		return
	}
	for c := range b.data {
		src := block[c%len(block)]
		for i := 0; i < n; i++ {
			b.data[c][b.slot(b.frame(b.pos, b.dir, i))] = src[i]
		}
	}
	b.pos = move(b.pos, b.dir, n)
	b.written += int64(n)
}

// NewReader returns a reader at the current write cursor that moves in the
// direction of the buffer.
func (b *Buffer) NewReader() *Reader {
	return b.NewReaderDirection(b.dir)
}

// NewReaderDirection returns a reader at the current write cursor that
// moves in provided direction.
func (b *Buffer) NewReaderDirection(d Direction) *Reader {
	return &Reader{
		pos:      b.pos,
		consumed: b.written,
		dir:      d,
	}
}

// Sync moves the reader to the write cursor, dropping all unread frames.
func (b *Buffer) Sync(r *Reader) {
	r.pos = b.pos
	r.consumed = b.written
}

// Available returns the number of frames the reader can read. Readers that
// fell behind more than capacity are resynchronized to the oldest frame
// still stored.
func (b *Buffer) Available(r *Reader) int {
	lag := b.written - r.consumed
	if lag > int64(b.capacity) {
		skip := lag - int64(b.capacity)
		b.log.WithFields(logrus.Fields{
			"lag":      lag,
			"capacity": b.capacity,
		}).Debug("ring buffer reader resynced")
		r.pos = move(r.pos, r.dir, int(skip))
		r.consumed += skip
		lag = int64(b.capacity)
	}
	return int(lag)
}

// Read copies min(available, dst.Size()) frames into dst and moves the
// reader in its direction. Returns the number of frames read, the rest of
// dst is left untouched.
func (b *Buffer) Read(r *Reader, dst signal.Float64) int {
	n := b.Available(r)
	if size := dst.Size(); size < n {
		n = size
	}
	if n == 0 {
		return 0
	}
	for c := range dst {
		src := b.data[c%len(b.data)]
		for i := 0; i < n; i++ {
			dst[c][i] = src[b.slot(b.frame(r.pos, r.dir, i))]
		}
	}
	r.pos = move(r.pos, r.dir, n)
	r.consumed += int64(n)
	return n
}

// Zero clears the stored frames, cursors are not changed.
func (b *Buffer) Zero() {
	b.data.Zero()
}

// frame returns the absolute position of i-th frame from the cursor.
func (b *Buffer) frame(pos int64, d Direction, i int) int64 {
	if d == Backward {
		return pos - 1 - int64(i)
	}
	return pos + int64(i)
}

func move(pos int64, d Direction, n int) int64 {
	if d == Backward {
		return pos - int64(n)
	}
	return pos + int64(n)
}

// Position returns the absolute position of the reader.
func (r *Reader) Position() int64 {
	return r.pos
}

// Direction returns the direction of the reader.
func (r *Reader) Direction() Direction {
	return r.dir
}
