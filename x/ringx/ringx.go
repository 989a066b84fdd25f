// Package ringx provides a single-producer single-consumer ring of audio
// samples. Indices are monotonic atomics masked into a power-of-two buffer,
// so neither side takes a lock and neither side ever blocks.
package ringx

import (
	"sync/atomic"
)

// Ring is a single-producer, single-consumer float32 ring.
type Ring struct {
	buf  []float32
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // 0->>0 available edge
	writable chan struct{} // 0->>0 space edge
}

// New allocates a ring holding size samples. size must be a power of two.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ringx: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]float32, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Space reports how many samples the producer could write right now.
func (r *Ring) Space() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(r.size() - (wr - rd))
}

// Available reports how many samples the consumer could read right now.
func (r *Ring) Available() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// TryWriteFrom copies as much of src as fits and returns the count.
// Never blocks; returns 0 when full.
func (r *Ring) TryWriteFrom(src []float32) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	space := int(r.size() - beforeAvail)
	if space <= 0 {
		return 0
	}
	if len(src) < space {
		space = len(src)
	}
	n = space

	size := r.size()
	wrIdx := wr & r.mask
	first := int(size - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n)) // release

	// Notify reader if we transitioned 0->>0 available.
	if beforeAvail == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryReadInto fills as much of dst as is available and returns the count.
// Never blocks; returns 0 when empty.
func (r *Ring) TryReadInto(dst []float32) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	avail := int(wr - rd)
	if avail <= 0 {
		return 0
	}
	if len(dst) < avail {
		avail = len(dst)
	}
	n = avail

	size := r.size()
	rdIdx := rd & r.mask
	first := int(size - rdIdx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n)) // release

	// Notify writer if we transitioned 0->>0 space.
	beforeSpace := int(size - (wr - rd))
	if beforeSpace == 0 {
		select {
		case r.writable <- struct{}{}:
		default:
		}
	}
	return n
}

// Readable signals the empty->non-empty edge. Consumers that drained the
// ring can select on it instead of spinning.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable signals the full->non-full edge.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
