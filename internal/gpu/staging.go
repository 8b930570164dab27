package gpu

import (
	"fmt"
	"sync"
)

// minStagingClass is the smallest staging size class. Frames smaller than
// this share the 4 KiB class.
const minStagingClass = 4 << 10

// Staging is a pooled CPU-to-GPU copy source buffer. Its Size is the size
// class, at least as large as the frame that requested it.
type Staging struct {
	ID   BufferID
	Size int
}

type pendingStaging struct {
	buf   *Staging
	fence FenceValue
}

// StagingPool recycles staging buffers in power-of-two size classes. A
// released buffer stays pending until the copy reading from it has signaled
// its fence, so a buffer is never rewritten while a transfer is in flight.
type StagingPool struct {
	backend Backend

	mu      sync.Mutex
	free    map[int][]*Staging
	pending []pendingStaging
	closed  bool
}

// NewStagingPool builds a pool over backend.
func NewStagingPool(backend Backend) *StagingPool {
	return &StagingPool{
		backend: backend,
		free:    make(map[int][]*Staging),
	}
}

func sizeClass(n int) int {
	c := minStagingClass
	for c < n {
		c <<= 1
	}
	return c
}

// reclaim moves pending buffers whose fences have signaled back to the free
// lists. Pending entries are fence-ordered, so the scan stops at the first
// incomplete one.
func (p *StagingPool) reclaim() error {
	for len(p.pending) > 0 {
		head := p.pending[0]
		done, err := p.backend.FenceDone(head.fence)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		p.pending = p.pending[1:]
		p.free[head.buf.Size] = append(p.free[head.buf.Size], head.buf)
	}
	return nil
}

// Acquire vends a staging buffer with capacity for size bytes, reusing a
// reclaimed buffer of the same class when one exists.
func (p *StagingPool) Acquire(size int) (*Staging, error) {
	if size <= 0 {
		return nil, fmt.Errorf("staging size %d", size)
	}
	class := sizeClass(size)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("staging pool closed")
	}
	if err := p.reclaim(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if list := p.free[class]; len(list) > 0 {
		buf := list[len(list)-1]
		p.free[class] = list[:len(list)-1]
		p.mu.Unlock()
		return buf, nil
	}
	p.mu.Unlock()

	id, err := p.backend.CreateStagingBuffer(class)
	if err != nil {
		return nil, err
	}
	return &Staging{ID: id, Size: class}, nil
}

// ReleaseAfter returns a buffer to the pool once the submission with the
// given fence value completes.
func (p *StagingPool) ReleaseAfter(buf *Staging, fence FenceValue) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.backend.DestroyBuffer(buf.ID)
		return
	}
	p.pending = append(p.pending, pendingStaging{buf: buf, fence: fence})
	p.mu.Unlock()
}

// Discard destroys a buffer that was never submitted, typically after a
// failed write.
func (p *StagingPool) Discard(buf *Staging) {
	if buf == nil {
		return
	}
	p.backend.DestroyBuffer(buf.ID)
}

// Close destroys every pooled buffer. Pending buffers are destroyed too;
// the caller must have drained in-flight submissions first.
func (p *StagingPool) Close() {
	p.mu.Lock()
	p.closed = true
	var drop []*Staging
	for _, list := range p.free {
		drop = append(drop, list...)
	}
	p.free = make(map[int][]*Staging)
	for _, pend := range p.pending {
		drop = append(drop, pend.buf)
	}
	p.pending = nil
	p.mu.Unlock()

	for _, buf := range drop {
		p.backend.DestroyBuffer(buf.ID)
	}
}
