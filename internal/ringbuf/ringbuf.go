// Package ringbuf provides a lock-free single-producer single-consumer
// ring of chart frames between the ingest side and the render pump.
package ringbuf

import (
	"sync/atomic"

	"signalchart/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is an SPSC ring of frames. Capacity is a power of two so the slot
// index is a mask. Multiple producers must serialize Push themselves.
type Ring struct {
	buf  []model.Frame
	mask uint64

	_pad0 [cacheLine]byte
	head  atomic.Uint64 // producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // consumer
	_pad2 [cacheLine]byte

	overflow atomic.Uint64
}

// New creates a ring holding at least capacity frames (minimum 2).
func New(capacity int) *Ring {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring{
		buf:  make([]model.Frame, n),
		mask: uint64(n - 1),
	}
}

// Push appends f. It returns false and counts an overflow when the ring is full.
func (r *Ring) Push(f model.Frame) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= uint64(len(r.buf)) {
		r.overflow.Add(1)
		return false
	}
	r.buf[head&r.mask] = f
	r.head.Store(head + 1)
	return true
}

// Pop removes the oldest frame.
func (r *Ring) Pop() (model.Frame, bool) {
	tail := r.tail.Load()
	if tail >= r.head.Load() {
		return model.Frame{}, false
	}
	slot := tail & r.mask
	f := r.buf[slot]
	r.buf[slot] = model.Frame{} // drop references to the quote slices
	r.tail.Store(tail + 1)
	return f, true
}

// DrainLatest pops everything currently queued and returns the newest frame
// per chart in first-seen order, plus how many older frames were superseded.
func (r *Ring) DrainLatest() (latest []model.Frame, superseded int) {
	idx := make(map[string]int)
	for {
		f, ok := r.Pop()
		if !ok {
			return latest, superseded
		}
		if i, seen := idx[f.Chart]; seen {
			latest[i] = f
			superseded++
			continue
		}
		idx[f.Chart] = len(latest)
		latest = append(latest, f)
	}
}

// Len returns the number of queued frames.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the number of rejected pushes.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
