package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout is how long a released texture survives unused
	// before the sweeper frees it.
	DefaultIdleTimeout = 30 * time.Second
	// DefaultSweepInterval is how often the sweeper scans for expired
	// idle textures.
	DefaultSweepInterval = 2 * time.Second
)

// Texture is a pool-vended GPU texture. Between Acquire and Release the
// caller owns it exclusively.
type Texture struct {
	ID     TextureID
	Width  int
	Height int
	Format Format
}

type textureKey struct {
	width  int
	height int
	format Format
}

type idleTexture struct {
	tex   *Texture
	since time.Time
}

// TexturePool reuses GPU textures across frames. A texture is either in use
// (vended, never evicted) or idle (reusable, freed after the idle timeout).
// The pool's mutex is the only synchronization between the decode-side
// producers and the render-side consumer.
type TexturePool struct {
	backend Backend
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	idle   map[textureKey][]idleTexture
	inUse  map[TextureID]*Texture
	closed bool
}

// NewTexturePool builds a pool over backend. A zero timeout means
// DefaultIdleTimeout.
func NewTexturePool(backend Backend, timeout time.Duration, log *slog.Logger) *TexturePool {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &TexturePool{
		backend: backend,
		timeout: timeout,
		log:     log.With("component", "texture_pool"),
		idle:    make(map[textureKey][]idleTexture),
		inUse:   make(map[TextureID]*Texture),
	}
}

// Acquire vends a texture of the exact dimensions and format, reusing the
// most recently released idle entry when one exists.
func (p *TexturePool) Acquire(width, height int, format Format) (*Texture, error) {
	k := textureKey{width, height, format}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("texture pool closed")
	}
	if list := p.idle[k]; len(list) > 0 {
		entry := list[len(list)-1]
		p.idle[k] = list[:len(list)-1]
		p.inUse[entry.tex.ID] = entry.tex
		p.mu.Unlock()
		return entry.tex, nil
	}
	p.mu.Unlock()

	id, err := p.backend.CreateTexture(width, height, format)
	if err != nil {
		return nil, err
	}
	tex := &Texture{ID: id, Width: width, Height: height, Format: format}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.backend.DestroyTexture(id)
		return nil, fmt.Errorf("texture pool closed")
	}
	p.inUse[id] = tex
	p.mu.Unlock()

	p.log.Debug("texture allocated", "id", uint64(id),
		"size", fmt.Sprintf("%dx%d", width, height), "format", format.String())
	return tex, nil
}

// Release returns a vended texture to the idle set. Releasing a texture the
// pool did not vend, or releasing twice, is ignored so a stale handle can
// never alias a live one.
func (p *TexturePool) Release(tex *Texture) {
	if tex == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.inUse[tex.ID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, tex.ID)
	if p.closed {
		p.mu.Unlock()
		p.backend.DestroyTexture(tex.ID)
		return
	}
	k := textureKey{tex.Width, tex.Height, tex.Format}
	p.idle[k] = append(p.idle[k], idleTexture{tex: tex, since: time.Now()})
	p.mu.Unlock()
}

// Discard destroys a vended texture instead of pooling it. Used when an
// upload into it failed and its contents are undefined.
func (p *TexturePool) Discard(tex *Texture) {
	if tex == nil {
		return
	}
	p.mu.Lock()
	_, ok := p.inUse[tex.ID]
	delete(p.inUse, tex.ID)
	p.mu.Unlock()
	if ok {
		p.backend.DestroyTexture(tex.ID)
	}
}

// Sweep frees idle textures older than the pool timeout and returns the
// number freed. In-use textures are never touched.
func (p *TexturePool) Sweep(now time.Time) int {
	var expired []*Texture

	p.mu.Lock()
	for k, list := range p.idle {
		kept := list[:0]
		for _, entry := range list {
			if now.Sub(entry.since) > p.timeout {
				expired = append(expired, entry.tex)
			} else {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(p.idle, k)
		} else {
			p.idle[k] = kept
		}
	}
	p.mu.Unlock()

	for _, tex := range expired {
		p.backend.DestroyTexture(tex.ID)
	}
	if len(expired) > 0 {
		p.log.Debug("swept idle textures", "freed", len(expired))
	}
	return len(expired)
}

// Invalidate drops every pooled texture after a device loss. Idle entries
// are destroyed; vended handles are forgotten so their eventual Release is
// a no-op. The pool stays usable for re-acquisition once the backend
// recovers.
func (p *TexturePool) Invalidate() {
	var drop []*Texture

	p.mu.Lock()
	for _, list := range p.idle {
		for _, entry := range list {
			drop = append(drop, entry.tex)
		}
	}
	p.idle = make(map[textureKey][]idleTexture)
	inUse := len(p.inUse)
	p.inUse = make(map[TextureID]*Texture)
	p.mu.Unlock()

	for _, tex := range drop {
		p.backend.DestroyTexture(tex.ID)
	}
	p.log.Warn("texture pool invalidated", "idle_dropped", len(drop), "in_use_forgotten", inUse)
}

// Run sweeps on the given interval until ctx is done. A zero interval means
// DefaultSweepInterval.
func (p *TexturePool) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Sweep(now)
		}
	}
}

// Stats reports pool occupancy.
type Stats struct {
	InUse int
	Idle  int
}

// Stats returns current occupancy counts.
func (p *TexturePool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := 0
	for _, list := range p.idle {
		idle += len(list)
	}
	return Stats{InUse: len(p.inUse), Idle: idle}
}

// Close destroys all idle textures and destroys vended ones as they come
// back through Release.
func (p *TexturePool) Close() {
	var drop []*Texture

	p.mu.Lock()
	p.closed = true
	for _, list := range p.idle {
		for _, entry := range list {
			drop = append(drop, entry.tex)
		}
	}
	p.idle = make(map[textureKey][]idleTexture)
	p.mu.Unlock()

	for _, tex := range drop {
		p.backend.DestroyTexture(tex.ID)
	}
}
