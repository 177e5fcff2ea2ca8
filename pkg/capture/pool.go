package capture

import (
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// BufferPool is a fixed set of equally sized callback buffers.
type BufferPool struct {
	size int
	free chan []byte
}

// NewBufferPool allocates count buffers of size bytes.
func NewBufferPool(count, size int) *BufferPool {
	p := &BufferPool{size: size, free: make(chan []byte, count)}
	for i := 0; i < count; i++ {
		p.free <- make([]byte, size)
	}
	return p
}

// Get takes a buffer without blocking. It returns false when all buffers
// are out.
func (p *BufferPool) Get() ([]byte, bool) {
	select {
	case buf := <-p.free:
		return buf, true
	default:
		return nil, false
	}
}

// Put returns a buffer. Buffers of the wrong size, or beyond the pool's
// capacity, are discarded.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	select {
	case p.free <- buf:
	default:
	}
}

// Available returns the number of buffers not checked out.
func (p *BufferPool) Available() int {
	return len(p.free)
}

// BufferSize returns the size of each buffer.
func (p *BufferPool) BufferSize() int {
	return p.size
}

// PoolCamera is a PreviewCamera with a fixed size whose callback buffers
// return to a BufferPool.
type PoolCamera struct {
	Size frame.Size
	Pool *BufferPool
}

// PreviewSize returns the fixed size.
func (c *PoolCamera) PreviewSize() (frame.Size, error) {
	if c.Size.Empty() {
		return frame.Size{}, ErrNoPreviewSize
	}
	return c.Size, nil
}

// AddCallbackBuffer returns buf to the pool.
func (c *PoolCamera) AddCallbackBuffer(buf []byte) {
	c.Pool.Put(buf)
}
