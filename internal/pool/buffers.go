package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// BufferPool recycles byte buffers across frame re-encodes. A
// screenshot re-encode inflates its buffer to multi-megabyte capacity;
// buffers grown past the retention cap are dropped on Put rather than
// pinned for the life of the process.
type BufferPool struct {
	pool      sync.Pool
	maxRetain int

	gets   atomic.Int64
	puts   atomic.Int64
	allocs atomic.Int64
	drops  atomic.Int64
}

// NewBufferPool creates a pool whose fresh buffers start at
// initialSize capacity and whose returned buffers are kept only up to
// maxRetain capacity. maxRetain <= 0 retains everything.
func NewBufferPool(initialSize, maxRetain int) *BufferPool {
	p := &BufferPool{maxRetain: maxRetain}
	p.pool.New = func() any {
		p.allocs.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialSize))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	p.gets.Add(1)
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets the buffer and returns it to the pool. Callers must copy
// bytes out first; oversized buffers are discarded.
func (p *BufferPool) Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	if p.maxRetain > 0 && b.Cap() > p.maxRetain {
		p.drops.Add(1)
		return
	}
	b.Reset()
	p.puts.Add(1)
	p.pool.Put(b)
}

// Stats returns a snapshot of pool traffic.
func (p *BufferPool) Stats() BufferStats {
	return BufferStats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		Allocs: p.allocs.Load(),
		Drops:  p.drops.Load(),
	}
}

// BufferStats describes buffer pool traffic.
type BufferStats struct {
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
	Allocs int64 `json:"allocs"`
	Drops  int64 `json:"drops"`
}

// HitRate is the fraction of Gets served without allocating.
func (s BufferStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.Allocs) / float64(s.Gets)
}

// Buffers is the process-wide pool shared by frame optimization.
// 64KiB covers most re-encoded frames; anything grown past 8MiB goes
// back to the allocator.
var Buffers = NewBufferPool(64<<10, 8<<20)
