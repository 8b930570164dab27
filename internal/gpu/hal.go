package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Vulkan backend registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// OpenHALBackend creates an instance on the Vulkan backend, opens the first
// usable adapter (preferring discrete then integrated GPUs), and wraps its
// device and queue.
func OpenHALBackend() (*HALBackend, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return NewHALBackend(open.Device, open.Queue)
}

// halTexture tracks the usage state a texture was left in, so the next
// upload records the right barrier.
type halTexture struct {
	tex         hal.Texture
	initialized bool
}

// pendingSubmission holds an encoder whose command buffer the GPU may still
// be executing. Once the queue reports the submission index complete, the
// encoder is reset and returned to the free list.
type pendingSubmission struct {
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
	index   uint64
}

// HALBackend implements Backend on a gogpu/wgpu HAL device. Completion
// tracking uses the queue's submission indices: Submit returns a
// monotonically increasing index and PollCompleted reports the highest
// index the GPU has retired, so FenceValue is a submission index here.
// Command encoders are pooled and reset after GPU completion, matching the
// encoder lifecycle the HAL documents.
type HALBackend struct {
	device hal.Device
	queue  hal.Queue

	mu       sync.Mutex
	nextID   uint64
	textures map[TextureID]*halTexture
	buffers  map[BufferID]hal.Buffer
	free     []hal.CommandEncoder
	pending  []pendingSubmission
}

// NewHALBackend wraps an opened HAL device and queue.
func NewHALBackend(device hal.Device, queue hal.Queue) (*HALBackend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("nil HAL device or queue")
	}
	return &HALBackend{
		device:   device,
		queue:    queue,
		textures: make(map[TextureID]*halTexture),
		buffers:  make(map[BufferID]hal.Buffer),
	}, nil
}

func halFormat(f Format) gputypes.TextureFormat {
	switch f {
	case FormatBC1:
		return gputypes.TextureFormatBC1RGBAUnorm
	case FormatBC3:
		return gputypes.TextureFormatBC3RGBAUnorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func (b *HALBackend) CreateTexture(width, height int, format Format) (TextureID, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("texture dimensions %dx%d", width, height)
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: "lumen-frame",
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        halFormat(format),
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return 0, fmt.Errorf("create texture %dx%d %s: %w", width, height, format, err)
	}

	b.mu.Lock()
	b.nextID++
	id := TextureID(b.nextID)
	b.textures[id] = &halTexture{tex: tex}
	b.mu.Unlock()
	return id, nil
}

func (b *HALBackend) DestroyTexture(id TextureID) {
	b.mu.Lock()
	t, ok := b.textures[id]
	delete(b.textures, id)
	b.mu.Unlock()
	if ok {
		b.device.DestroyTexture(t.tex)
	}
}

func (b *HALBackend) CreateStagingBuffer(size int) (BufferID, error) {
	if size <= 0 {
		return 0, fmt.Errorf("staging buffer size %d", size)
	}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lumen-staging",
		Size:  uint64(size),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("create staging buffer (%d bytes): %w", size, err)
	}

	b.mu.Lock()
	b.nextID++
	id := BufferID(b.nextID)
	b.buffers[id] = buf
	b.mu.Unlock()
	return id, nil
}

func (b *HALBackend) DestroyBuffer(id BufferID) {
	b.mu.Lock()
	buf, ok := b.buffers[id]
	delete(b.buffers, id)
	b.mu.Unlock()
	if ok {
		b.device.DestroyBuffer(buf)
	}
}

func (b *HALBackend) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	buf, ok := b.buffers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("staging buffer %d not found", id)
	}
	if err := b.queue.WriteBuffer(buf, offset, data); err != nil {
		return fmt.Errorf("%w: write buffer: %v", ErrDeviceLost, err)
	}
	return nil
}

// acquireEncoderLocked pops a pooled encoder or creates one.
func (b *HALBackend) acquireEncoderLocked() (hal.CommandEncoder, error) {
	if n := len(b.free); n > 0 {
		enc := b.free[n-1]
		b.free[n-1] = nil
		b.free = b.free[:n-1]
		return enc, nil
	}
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "lumen-upload",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	return enc, nil
}

// reapLocked resets encoders whose submissions the GPU has retired and
// returns them to the free list.
func (b *HALBackend) reapLocked(completed uint64) {
	kept := b.pending[:0]
	for _, p := range b.pending {
		if p.index > completed {
			kept = append(kept, p)
			continue
		}
		p.encoder.ResetAll([]hal.CommandBuffer{p.cmd})
		b.free = append(b.free, p.encoder)
	}
	b.pending = kept
}

func (b *HALBackend) CopyToTexture(src BufferID, dst TextureID, layout CopyLayout) (FenceValue, error) {
	b.mu.Lock()
	buf, bok := b.buffers[src]
	t, tok := b.textures[dst]
	if !bok || !tok {
		b.mu.Unlock()
		if !bok {
			return 0, fmt.Errorf("staging buffer %d not found", src)
		}
		return 0, fmt.Errorf("texture %d not found", dst)
	}
	b.reapLocked(b.queue.PollCompleted())
	enc, err := b.acquireEncoderLocked()
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}
	oldUsage := gputypes.TextureUsage(0)
	if t.initialized {
		oldUsage = gputypes.TextureUsageTextureBinding
	}
	t.initialized = true
	b.mu.Unlock()

	if err := enc.BeginEncoding("upload"); err != nil {
		enc.Destroy()
		return 0, fmt.Errorf("begin encoding: %w", err)
	}

	colorRange := hal.TextureRange{Aspect: gputypes.TextureAspectAll}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Range:   colorRange,
		Usage: hal.TextureUsageTransition{
			OldUsage: oldUsage,
			NewUsage: gputypes.TextureUsageCopyDst,
		},
	}})
	enc.CopyBufferToTexture(buf, t.tex, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       layout.Offset,
			BytesPerRow:  uint32(layout.BytesPerRow),
			RowsPerImage: uint32(layout.RowsPerImage),
		},
		TextureBase: hal.ImageCopyTexture{
			Texture: t.tex,
			Aspect:  gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{
			Width:              uint32(layout.Width),
			Height:             uint32(layout.Height),
			DepthOrArrayLayers: 1,
		},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Range:   colorRange,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})

	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return 0, fmt.Errorf("end encoding: %w", err)
	}

	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		enc.ResetAll([]hal.CommandBuffer{cmd})
		b.mu.Lock()
		b.free = append(b.free, enc)
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: submit: %v", ErrDeviceLost, err)
	}

	b.mu.Lock()
	b.pending = append(b.pending, pendingSubmission{encoder: enc, cmd: cmd, index: index})
	b.mu.Unlock()
	return FenceValue(index), nil
}

func (b *HALBackend) FenceDone(v FenceValue) (bool, error) {
	completed := b.queue.PollCompleted()
	b.mu.Lock()
	b.reapLocked(completed)
	b.mu.Unlock()
	return completed >= uint64(v), nil
}

func (b *HALBackend) WaitFence(v FenceValue, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := b.FenceDone(v)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("submission %d not complete after %s", v, timeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (b *HALBackend) Close() error {
	var firstErr error
	if err := b.device.WaitIdle(); err != nil {
		firstErr = fmt.Errorf("wait idle: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.reapLocked(b.queue.PollCompleted())
	for _, p := range b.pending {
		p.encoder.ResetAll([]hal.CommandBuffer{p.cmd})
		p.encoder.Destroy()
	}
	b.pending = nil
	for _, enc := range b.free {
		enc.Destroy()
	}
	b.free = nil
	for id, buf := range b.buffers {
		b.device.DestroyBuffer(buf)
		delete(b.buffers, id)
	}
	for id, t := range b.textures {
		b.device.DestroyTexture(t.tex)
		delete(b.textures, id)
	}
	return firstErr
}
