// Package engine ties the pieces together: it owns the shared GPU texture
// pool and its sweeper, opens media sources into playback sessions, and
// tracks session lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lumen-media/lumen/internal/config"
	"github.com/lumen-media/lumen/internal/decode"
	"github.com/lumen-media/lumen/internal/gpu"
	"github.com/lumen-media/lumen/internal/playback"
)

// Engine is the top-level media pipeline. One engine serves all open
// sources; its texture pool is the single shared GPU resource arena.
type Engine struct {
	log     *slog.Logger
	cfg     config.Config
	backend gpu.Backend
	pool    *gpu.TexturePool

	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.RWMutex
	sessions map[uuid.UUID]*playback.Session
	closed   bool
}

// New builds an engine over an initialized GPU backend and starts the pool
// sweeper. If log is nil, slog.Default() is used.
func New(backend gpu.Backend, cfg config.Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "engine")
	pool := gpu.NewTexturePool(backend, cfg.GPU.IdleTimeout, log)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool.Run(ctx, cfg.GPU.SweepInterval)
		return nil
	})

	return &Engine{
		log:      log,
		cfg:      cfg,
		backend:  backend,
		pool:     pool,
		cancel:   cancel,
		group:    g,
		sessions: make(map[uuid.UUID]*playback.Session),
	}
}

// Pool exposes the shared texture pool, mainly for stats.
func (e *Engine) Pool() *gpu.TexturePool { return e.pool }

// Open probes and opens a media source, returning its playback session. The
// session starts in the idle state; call Play on it to begin.
func (e *Engine) Open(path string) (*playback.Session, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("engine closed")
	}

	dec, err := decode.Open(path, e.cfg.Sequence.Framerate, e.log)
	if err != nil {
		return nil, err
	}

	uploader := gpu.NewUploader(e.backend, e.pool, e.log)
	s := playback.NewSession(dec, uploader, playback.Options{
		QueueDepth:       e.cfg.Playback.QueueDepth,
		FailureThreshold: e.cfg.Playback.FailureThreshold,
		Logger:           e.log,
	})

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		s.Close()
		return nil, fmt.Errorf("engine closed")
	}
	e.sessions[s.ID()] = s
	count := len(e.sessions)
	e.mu.Unlock()

	e.log.Info("session opened", "session_id", s.ID().String(), "path", path, "open_sessions", count)
	return s, nil
}

// Session looks up an open session by ID.
func (e *Engine) Session(id uuid.UUID) (*playback.Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Sessions returns all open sessions.
func (e *Engine) Sessions() []*playback.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*playback.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// CloseSession terminates one session and forgets it.
func (e *Engine) CloseSession(id uuid.UUID) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	return s.Close()
}

// Close terminates every session, stops the sweeper, and releases all
// pooled GPU resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := make([]*playback.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[uuid.UUID]*playback.Session)
	e.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.cancel()
	if err := e.group.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.pool.Close()
	if err := e.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.log.Info("engine closed", "sessions_closed", len(sessions))
	return firstErr
}
