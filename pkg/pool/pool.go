// Package pool implements the fixed-capacity packet-buffer pool (spec §4.3):
// a pre-allocated set of uniform buffers shared by the TX, RX and control
// goroutines, sized like a DPDK mbuf pool so the generator never allocates
// on the hot path.
package pool

import (
	"sync/atomic"

	"github.com/pktforge/tgen/pkg/tgerr"
)

// DefaultCount and DefaultBufferSize mirror the 16k x 2048B mbuf pool the
// reference dataplane creates at startup.
const (
	DefaultCount      = 16 * 1024
	DefaultBufferSize = 2048
	// Headroom reserved at the front of every buffer for layers that grow a
	// frame leftward (none of ours do today, but it matches mbuf convention).
	DefaultHeadroom = 128
)

// Buffer is a contiguous byte region with a headroom offset, an effective
// length, and a reference count. It is mutated only by its current
// exclusive holder. It must never be touched after being posted to a NIC's
// TX queue until the driver releases it, except via RefUp beforehand.
type Buffer struct {
	pool     *Pool
	data     []byte
	headroom int
	length   int
	refcount atomic.Int32
}

// Bytes returns the buffer's current payload, data[headroom:headroom+length].
func (b *Buffer) Bytes() []byte { return b.data[b.headroom : b.headroom+b.length] }

// Tailroom reports how many more bytes can be appended before truncation.
func (b *Buffer) Tailroom() int { return len(b.data) - b.headroom - b.length }

// Len reports the buffer's effective length.
func (b *Buffer) Len() int { return b.length }

// Reset truncates the buffer to zero length without returning it to the
// pool; the caller retains ownership.
func (b *Buffer) Reset() { b.length = 0 }

// SetBytes copies data into the buffer starting at its headroom offset,
// truncating to tailroom if data is larger than available space. Returns
// the number of bytes actually copied and whether truncation occurred.
func (b *Buffer) SetBytes(data []byte) (n int, truncated bool) {
	avail := len(b.data) - b.headroom
	n = len(data)
	if n > avail {
		n = avail
		truncated = true
	}
	copy(b.data[b.headroom:b.headroom+n], data[:n])
	b.length = n
	return n, truncated
}

// Pool is a fixed-capacity allocator of uniform-sized buffers. Safe for
// concurrent Alloc/Free from any number of goroutines.
type Pool struct {
	free chan *Buffer
	all  []*Buffer
}

// New constructs a pool of count buffers, each bufSize bytes, with headroom
// reserved bytes at the front of each. It pre-allocates every buffer up
// front; Alloc never allocates on its own.
func New(count, bufSize, headroom int) *Pool {
	if count <= 0 {
		count = DefaultCount
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	p := &Pool{
		free: make(chan *Buffer, count),
		all:  make([]*Buffer, count),
	}
	for i := 0; i < count; i++ {
		buf := &Buffer{
			pool:     p,
			data:     make([]byte, bufSize),
			headroom: headroom,
		}
		p.all[i] = buf
		p.free <- buf
	}
	return p
}

// Alloc removes one buffer from the free list with refcount 1, or returns
// tgerr.PoolExhausted if none are available.
func (p *Pool) Alloc() (*Buffer, error) {
	select {
	case b := <-p.free:
		b.length = 0
		b.refcount.Store(1)
		return b, nil
	default:
		return nil, tgerr.New(tgerr.PoolExhausted, "pool.Alloc")
	}
}

// Free returns a buffer to the pool unconditionally, bypassing the
// refcount. Most callers should use RefDown instead.
func (p *Pool) Free(b *Buffer) {
	b.refcount.Store(0)
	b.length = 0
	p.free <- b
}

// RefUp increments a buffer's refcount. Called by the transmit loop before
// posting to the NIC so the packet list retains its own reference.
func (p *Pool) RefUp(b *Buffer) {
	b.refcount.Add(1)
}

// RefDown decrements a buffer's refcount, returning it to the pool when it
// reaches zero. Called by packetlist's List.Clear and by TransmitTopSpeed
// after each post; the NIC drivers and the RX poller do not call it.
func (p *Pool) RefDown(b *Buffer) {
	if b.refcount.Add(-1) == 0 {
		b.length = 0
		p.free <- b
	}
}

// CurrentCount reports how many buffers are currently available for Alloc.
func (p *Pool) CurrentCount() int { return len(p.free) }

// Capacity reports the pool's total buffer count.
func (p *Pool) Capacity() int { return len(p.all) }
