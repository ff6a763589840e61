// Package event provides the buffers used to move mutations between the
// execution domains of the engine.
//
// Each domain (real-time, async and user) owns one Buffer. Other domains
// never touch the state owned by a domain directly. Instead, they push an
// Event into its Buffer and the owner executes it at a well-defined point:
// after it flips the buffer.
//
// Buffer has three slots. Producers append to the back slot under a short
// lock. Flip rotates back into the local slot, which is owned by the
// consumer and can be executed without any locking. The front slot keeps
// the storage of the previously executed queue, so steady-state flips don't
// allocate.
package event

import "sync"

type (
	// Event mutates the state owned by a certain domain.
	Event func()

	// Queue is an ordered list of events.
	Queue []Event

	// Buffer is the triple buffer of events owned by a single domain.
	Buffer struct {
		mu    sync.Mutex
		back  Queue
		front Queue
		local Queue
	}
)

// Run executes all events in the push order.
func (q Queue) Run() {
	for _, e := range q {
		e()
	}
}

// Push appends event to the back slot. It's safe to call from any
// goroutine.
func (b *Buffer) Push(events ...Event) {
	b.mu.Lock()
	b.back = append(b.back, events...)
	b.mu.Unlock()
}

// Flip rotates the back slot into the local one. It blocks if a producer
// holds the lock. Events, pushed after the flip, will be executed after the
// next one.
func (b *Buffer) Flip() {
	b.mu.Lock()
	b.rotate()
	b.mu.Unlock()
}

// TryFlip does the same as Flip, but never blocks. If the lock is contended,
// flip is skipped and false is returned. Events stay in the back slot
// until the next successful flip.
func (b *Buffer) TryFlip() bool {
	if !b.mu.TryLock() {
		return false
	}
	b.rotate()
	b.mu.Unlock()
	return true
}

// rotate must be called with lock held by the owner of the buffer. If
// the local slot still has events, new ones are appended to keep the push
// order.
func (b *Buffer) rotate() {
	if len(b.local) > 0 {
		b.local = append(b.local, b.back...)
		clear(b.back)
		b.back = b.back[:0]
		return
	}
	spare := b.front[:0]
	b.front = nil
	b.local = b.back
	b.back = spare
}

// Process executes every event in the local slot exactly once and clears
// it. Must be called only by the owner of the buffer.
func (b *Buffer) Process() {
	if len(b.local) == 0 {
		return
	}
	b.local.Run()
	clear(b.local)
	b.front = b.local[:0]
	b.local = nil
}

// Update is a shortcut for blocking Flip followed by Process.
func (b *Buffer) Update() {
	b.Flip()
	b.Process()
}

// TryUpdate is a shortcut for TryFlip followed by Process. Events flipped
// earlier, but not processed yet, are executed regardless of flip result.
func (b *Buffer) TryUpdate() bool {
	ok := b.TryFlip()
	b.Process()
	return ok
}

// Pending returns number of events waiting in the back slot.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}
