// Package gputest provides an in-memory gpu.Backend for tests. Fences
// complete only when the test calls Complete, so fence-gated reuse paths
// are observable.
package gputest

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumen-media/lumen/internal/gpu"
)

// Texture records one live backend texture.
type Texture struct {
	Width  int
	Height int
	Format gpu.Format
}

// Copy records one submitted staging-to-texture copy.
type Copy struct {
	Src    gpu.BufferID
	Dst    gpu.TextureID
	Layout gpu.CopyLayout
	Fence  gpu.FenceValue
}

// Backend implements gpu.Backend in memory.
type Backend struct {
	mu        sync.Mutex
	nextID    uint64
	textures  map[gpu.TextureID]Texture
	buffers   map[gpu.BufferID][]byte
	copies    []Copy
	submitted gpu.FenceValue
	completed gpu.FenceValue
	created   int
	copyErr   error
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		textures: make(map[gpu.TextureID]Texture),
		buffers:  make(map[gpu.BufferID][]byte),
	}
}

func (b *Backend) CreateTexture(width, height int, format gpu.Format) (gpu.TextureID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := gpu.TextureID(b.nextID)
	b.textures[id] = Texture{width, height, format}
	b.created++
	return id, nil
}

func (b *Backend) DestroyTexture(id gpu.TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.textures, id)
}

func (b *Backend) CreateStagingBuffer(size int) (gpu.BufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := gpu.BufferID(b.nextID)
	b.buffers[id] = make([]byte, size)
	return id, nil
}

func (b *Backend) DestroyBuffer(id gpu.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, id)
}

func (b *Backend) WriteBuffer(id gpu.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("buffer %d not found", id)
	}
	if int(offset)+len(data) > len(buf) {
		return fmt.Errorf("write past end of buffer %d", id)
	}
	copy(buf[offset:], data)
	return nil
}

func (b *Backend) CopyToTexture(src gpu.BufferID, dst gpu.TextureID, layout gpu.CopyLayout) (gpu.FenceValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.copyErr != nil {
		return 0, b.copyErr
	}
	buf, ok := b.buffers[src]
	if !ok {
		return 0, fmt.Errorf("buffer %d not found", src)
	}
	if _, ok := b.textures[dst]; !ok {
		return 0, fmt.Errorf("texture %d not found", dst)
	}
	if layout.BytesPerRow%256 != 0 {
		return 0, fmt.Errorf("bytes per row %d not 256-aligned", layout.BytesPerRow)
	}
	if need := layout.BytesPerRow * layout.RowsPerImage; int(layout.Offset)+need > len(buf) {
		return 0, fmt.Errorf("copy of %d bytes at offset %d overruns buffer %d (%d bytes)",
			need, layout.Offset, src, len(buf))
	}
	b.submitted++
	b.copies = append(b.copies, Copy{src, dst, layout, b.submitted})
	return b.submitted, nil
}

func (b *Backend) FenceDone(v gpu.FenceValue) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return v <= b.completed, nil
}

func (b *Backend) WaitFence(v gpu.FenceValue, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v > b.completed {
		return fmt.Errorf("fence %d not signaled", v)
	}
	return nil
}

func (b *Backend) Close() error { return nil }

// Complete marks all submissions up to v as finished.
func (b *Backend) Complete(v gpu.FenceValue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v > b.completed {
		b.completed = v
	}
}

// CompleteAll finishes every submitted copy.
func (b *Backend) CompleteAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = b.submitted
}

// FailCopies makes every subsequent CopyToTexture return err. Pass nil to
// restore normal operation.
func (b *Backend) FailCopies(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.copyErr = err
}

// Created returns the total number of textures ever allocated.
func (b *Backend) Created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

// Live returns the number of textures not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.textures)
}

// BufferBytes returns a copy of a staging buffer's contents.
func (b *Backend) BufferBytes(id gpu.BufferID) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buffers[id]...)
}

// Copies returns all submitted copies in order.
func (b *Backend) Copies() []Copy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Copy(nil), b.copies...)
}

// LastCopy returns the most recent submitted copy.
func (b *Backend) LastCopy() Copy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copies[len(b.copies)-1]
}
